// Package provider defines the capability interface a fitness provider must
// implement and a registry for name-based selection at dispatch time.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Errors surfaced by provider implementations.
var (
	// ErrUnknownProvider is returned by the registry for unsupported names.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrRefreshRevoked is returned when the provider rejects a refresh
	// token as invalid or revoked. The credential cannot be recovered
	// without a fresh authorization flow.
	ErrRefreshRevoked = errors.New("refresh token revoked")
)

// TransportError is a failed upstream call: network failure, timeout or a
// non-2xx response. The provider's own message is carried through verbatim;
// it never contains token material.
type TransportError struct {
	Provider string
	Status   int
	Message  string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: transport error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Status, e.Message)
}

// OAuthApp is the per-tenant OAuth application registration used for token
// operations. It is read from the tenant's vault credential, never from
// process-wide state.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Token is the result of a code exchange or a refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is the capability set implemented once per supported provider.
type Provider interface {
	Name() string

	// AuthCodeURL builds the provider's authorization endpoint URL for the
	// given app, redirect URI and anti-forgery state nonce.
	AuthCodeURL(app OAuthApp, redirectURI, state string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, app OAuthApp, code, redirectURI string) (*Token, error)

	// Refresh trades a refresh token for a new token pair. Providers
	// rotate refresh tokens, so the returned token must replace the old
	// one atomically. Returns ErrRefreshRevoked if the token is dead.
	Refresh(ctx context.Context, app OAuthApp, refreshToken string) (*Token, error)

	FetchActivities(ctx context.Context, accessToken string, limit int) ([]Activity, error)
	FetchAthlete(ctx context.Context, accessToken string) (*Athlete, error)
	FetchStats(ctx context.Context, accessToken string, athleteID int64) (*Stats, error)
}

// Registry maps provider names to implementations.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

// Get resolves a provider by name, case-insensitively.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
