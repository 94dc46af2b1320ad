package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/fitgate/fitgate/internal/instrumentation"
	"github.com/fitgate/fitgate/internal/provider"
	"github.com/fitgate/fitgate/internal/vault"
)

// DefaultMaxSessions bounds the in-memory session cache.
const DefaultMaxSessions = 1024

type sessionKey struct {
	tenantID uuid.UUID
	provider string
}

type sessionEntry struct {
	session  *Session
	lastUsed int64 // monotonic use counter, not wall time
}

// Manager hands out the one live Session per (tenant, provider) pair and
// bounds how many are kept. The bound exists because sessions are created
// per authenticated tenant; an evicted session is rebuilt from the vault on
// next use, so eviction only costs a credential read.
type Manager struct {
	vault    *vault.Vault
	registry *provider.Registry
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	// refreshGroup collapses concurrent token refreshes per (tenant,
	// provider) pair. It lives on the Manager rather than the Session so
	// the guard outlives LRU eviction: a pair whose session is dropped
	// mid-refresh gets a replacement that joins the in-flight call.
	refreshGroup singleflight.Group

	mu          sync.Mutex
	sessions    map[sessionKey]*sessionEntry
	useCounter  int64
	maxSessions int
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithMaxSessions overrides the session cache bound.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithClock injects a clock, used by tests.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithMetrics attaches a metrics recorder for refresh outcomes.
func WithMetrics(metrics *instrumentation.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a session manager over the vault and provider registry.
func NewManager(v *vault.Vault, registry *provider.Registry, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		vault:       v,
		registry:    registry,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     &instrumentation.Metrics{},
		sessions:    make(map[sessionKey]*sessionEntry),
		maxSessions: DefaultMaxSessions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider resolves a provider implementation by name.
func (m *Manager) Provider(name string) (provider.Provider, error) {
	return m.registry.Get(name)
}

// Get returns the Session for (tenantID, providerName), creating it lazily.
// Concurrent callers for the same pair receive the same instance while it
// stays cached; after an eviction the rebuilt instance still shares the
// manager-level refresh guard with its predecessor.
func (m *Manager) Get(tenantID uuid.UUID, providerName string) (*Session, error) {
	prov, err := m.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	key := sessionKey{tenantID: tenantID, provider: prov.Name()}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.useCounter++
	if entry, ok := m.sessions[key]; ok {
		entry.lastUsed = m.useCounter
		return entry.session, nil
	}

	if len(m.sessions) >= m.maxSessions {
		m.evictOldest()
	}

	sess := newSession(tenantID, prov, m.vault, m.clock, m.logger, m.metrics, &m.refreshGroup)
	m.sessions[key] = &sessionEntry{session: sess, lastUsed: m.useCounter}
	return sess, nil
}

// evictOldest drops the least recently used session. Caller holds m.mu.
func (m *Manager) evictOldest() {
	var oldestKey sessionKey
	oldest := int64(-1)
	for key, entry := range m.sessions {
		if oldest == -1 || entry.lastUsed < oldest {
			oldest = entry.lastUsed
			oldestKey = key
		}
	}
	if oldest != -1 {
		delete(m.sessions, oldestKey)
	}
}

// Len reports how many sessions are cached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
