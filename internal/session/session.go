// Package session tracks the OAuth2 lifecycle of one (tenant, provider)
// pair: authorization, code exchange, expiry detection and refresh. Refresh
// is the delicate part: provider refresh tokens rotate on every use, so
// concurrent refreshes for the same pair are collapsed into a single upstream
// call that every waiter shares.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/fitgate/fitgate/internal/instrumentation"
	"github.com/fitgate/fitgate/internal/logging"
	"github.com/fitgate/fitgate/internal/provider"
	"github.com/fitgate/fitgate/internal/vault"
)

// RefreshSkew is the safety window before expiry within which a token is
// proactively refreshed, so it cannot expire mid-call upstream.
const RefreshSkew = 60 * time.Second

var (
	// ErrSessionInvalid means the refresh token was revoked and the
	// session is terminally dead; the tenant must re-authorize.
	ErrSessionInvalid = errors.New("provider session invalid, re-authorization required")

	// ErrRefreshFailed wraps the refresh failure that invalidated a session.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrStateMismatch means the exchange carried a state nonce that does
	// not match the pending authorization.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrNoPendingAuthorization means ExchangeCode was called without a
	// prior AuthorizeURL on this session.
	ErrNoPendingAuthorization = errors.New("no pending authorization")

	// ErrPersistFailed means the vault write for a credential failed.
	ErrPersistFailed = errors.New("failed to persist credential")
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthorizationPending
	StateAuthenticated
	StateRefreshing
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizationPending:
		return "authorization_pending"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Session is the in-memory lifecycle controller for one (tenant, provider)
// pair. It mirrors the persisted credential plus transient state. All methods
// are safe for concurrent use.
type Session struct {
	tenantID uuid.UUID
	prov     provider.Provider
	vault    *vault.Vault
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	mu              sync.Mutex
	state           State
	cred            *vault.Credential
	pendingState    string
	pendingRedirect string
	pendingApp      provider.OAuthApp

	// refreshGroup is owned by the Manager and keyed per (tenant, provider)
	// pair. Keeping it above session lifetime matters: if this session is
	// evicted mid-refresh and rebuilt, the successor joins the same flight
	// instead of spending the rotating refresh token a second time.
	refreshGroup *singleflight.Group
	refreshKey   string
}

func newSession(tenantID uuid.UUID, prov provider.Provider, v *vault.Vault, clock clockwork.Clock, logger *slog.Logger, metrics *instrumentation.Metrics, group *singleflight.Group) *Session {
	return &Session{
		tenantID:     tenantID,
		prov:         prov,
		vault:        v,
		clock:        clock,
		logger:       logging.WithProvider(logging.WithTenant(logger, tenantID.String()), prov.Name()),
		metrics:      metrics,
		state:        StateUnauthenticated,
		refreshGroup: group,
		refreshKey:   tenantID.String() + "/" + prov.Name(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AuthorizeURL builds the provider authorization URL for the given app and
// caller-supplied state nonce, and moves the session to AuthorizationPending.
func (s *Session) AuthorizeURL(app provider.OAuthApp, redirectURI, state string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingApp = app
	s.pendingRedirect = redirectURI
	s.pendingState = state
	if s.state != StateAuthenticated {
		s.state = StateAuthorizationPending
	}

	return s.prov.AuthCodeURL(app, redirectURI, state)
}

// ExchangeCode trades an authorization code for tokens, persists the
// credential through the vault and moves the session to Authenticated.
// The state nonce must match the pending authorization.
func (s *Session) ExchangeCode(ctx context.Context, state, code string) error {
	s.mu.Lock()
	if s.pendingState == "" {
		s.mu.Unlock()
		return ErrNoPendingAuthorization
	}
	if s.pendingState != state {
		s.mu.Unlock()
		return ErrStateMismatch
	}
	app := s.pendingApp
	redirectURI := s.pendingRedirect
	s.mu.Unlock()

	tok, err := s.prov.Exchange(ctx, app, code, redirectURI)
	if err != nil {
		return err
	}

	cred := &vault.Credential{
		TenantID:     s.tenantID,
		Provider:     s.prov.Name(),
		AuthType:     "oauth2",
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		Scopes:       app.Scopes,
	}
	if err := s.vault.UpsertCredential(ctx, cred); err != nil {
		s.metrics.RecordStorageFailure(ctx)
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	s.mu.Lock()
	s.cred = cred
	s.state = StateAuthenticated
	s.pendingState = ""
	s.pendingRedirect = ""
	s.pendingApp = provider.OAuthApp{}
	s.mu.Unlock()

	s.logger.Info("provider linked", logging.Operation("exchange_code"))
	return nil
}

// EnsureFresh returns an access token that is valid for at least RefreshSkew.
// If the stored token is inside the skew window it is refreshed first, with
// concurrent callers awaiting the one in-flight refresh instead of issuing
// their own; the rotated refresh token is persisted before anyone proceeds.
func (s *Session) EnsureFresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state == StateInvalid {
		s.mu.Unlock()
		return "", ErrSessionInvalid
	}
	if s.cred == nil {
		cred, err := s.vault.GetCredential(ctx, s.tenantID, s.prov.Name())
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.cred = cred
		s.state = StateAuthenticated
	}
	if s.fresh() {
		token := s.cred.AccessToken
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	result, err, _ := s.refreshGroup.Do(s.refreshKey, func() (interface{}, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// fresh reports whether the mirrored token is outside the skew window.
// Caller holds s.mu.
func (s *Session) fresh() bool {
	return s.cred.ExpiresAt.After(s.clock.Now().Add(RefreshSkew))
}

// refresh performs one refresh round trip and persists the rotated tokens.
// Runs inside the singleflight group, so at most one execution per pair.
func (s *Session) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	// A previous winner of the singleflight race may have refreshed
	// already by the time a queued call gets here.
	if s.fresh() {
		token := s.cred.AccessToken
		s.mu.Unlock()
		return token, nil
	}
	if s.state == StateInvalid {
		s.mu.Unlock()
		return "", ErrSessionInvalid
	}
	s.mu.Unlock()

	// The mirror can lag the vault when this session replaces an evicted
	// one whose refresh finished between our credential load and now.
	// Re-read the persisted row before spending the rotating token.
	if cred, err := s.vault.GetCredential(ctx, s.tenantID, s.prov.Name()); err == nil {
		s.mu.Lock()
		s.cred = cred
		if s.fresh() {
			token := cred.AccessToken
			s.state = StateAuthenticated
			s.mu.Unlock()
			return token, nil
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.state = StateRefreshing
	app := provider.OAuthApp{
		ClientID:     s.cred.ClientID,
		ClientSecret: s.cred.ClientSecret,
		Scopes:       s.cred.Scopes,
	}
	refreshToken := s.cred.RefreshToken
	s.mu.Unlock()

	// The refresh consumes a single-use rotating token. Once it is on the
	// wire it must run to completion even if the triggering request goes
	// away, otherwise the persisted credential is left half rotated.
	tok, err := s.prov.Refresh(context.WithoutCancel(ctx), app, refreshToken)
	if err != nil {
		s.metrics.RecordTokenRefresh(ctx, s.prov.Name(), instrumentation.StatusError)
		s.mu.Lock()
		if errors.Is(err, provider.ErrRefreshRevoked) {
			s.state = StateInvalid
			s.mu.Unlock()
			s.logger.Warn("refresh token revoked, session invalidated",
				logging.Operation("refresh"), logging.Status(logging.StatusError))
			return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
		// Transport trouble is transient; keep the session recoverable.
		s.state = StateAuthenticated
		s.mu.Unlock()
		return "", err
	}

	s.mu.Lock()
	cred := *s.cred
	cred.AccessToken = tok.AccessToken
	cred.RefreshToken = tok.RefreshToken
	cred.ExpiresAt = tok.ExpiresAt
	s.mu.Unlock()

	if err := s.vault.UpsertCredential(context.WithoutCancel(ctx), &cred); err != nil {
		// The rotated token exists only in memory now. Keep it on the
		// session so the connection can still use it, but report the
		// storage failure.
		s.metrics.RecordStorageFailure(ctx)
		s.mu.Lock()
		s.cred = &cred
		s.state = StateAuthenticated
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	s.mu.Lock()
	s.cred = &cred
	s.state = StateAuthenticated
	s.mu.Unlock()

	s.metrics.RecordTokenRefresh(ctx, s.prov.Name(), instrumentation.StatusSuccess)
	s.logger.Debug("token refreshed",
		logging.Operation("refresh"),
		slog.Time("expires_at", tok.ExpiresAt))
	return tok.AccessToken, nil
}
