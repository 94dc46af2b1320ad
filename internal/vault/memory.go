package vault

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type credentialKey struct {
	tenantID uuid.UUID
	provider string
}

// MemoryStore is a mutex-guarded in-memory Store. Two MemoryStore instances
// share nothing; each carries its own maps.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]*User
	emails      map[string]uuid.UUID
	credentials map[credentialKey]*Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]*User),
		emails:      make(map[string]uuid.UUID),
		credentials: make(map[credentialKey]*Credential),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.emails[email]; exists {
		return ErrDuplicateEmail
	}

	u := *user
	s.users[u.ID] = &u
	s.emails[email] = u.ID
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	u := *user
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}

	u := *s.users[id]
	return &u, nil
}

func (s *MemoryStore) UpsertCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cred
	c.Scopes = append([]string(nil), cred.Scopes...)
	s.credentials[credentialKey{cred.TenantID, cred.Provider}] = &c
	return nil
}

func (s *MemoryStore) GetCredential(_ context.Context, tenantID uuid.UUID, provider string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[credentialKey{tenantID, provider}]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	c := *cred
	c.Scopes = append([]string(nil), cred.Scopes...)
	return &c, nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context, tenantID uuid.UUID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, credentialKey{tenantID, provider})
	return nil
}
