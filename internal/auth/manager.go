// Package auth issues and validates the signed session tokens that bind a
// request to a tenant. Tokens are HS256 JWTs carrying only {sub, iat, exp};
// validity is determined purely by signature and expiry at validation time,
// nothing is stored server-side.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MinSecretSize is the minimum accepted signing secret length. The launcher
// is expected to generate 64 bytes; anything under 32 is rejected outright.
const MinSecretSize = 32

// Validation failures, distinguishable via errors.Is.
var (
	ErrTokenMalformed   = errors.New("session token malformed")
	ErrSignatureInvalid = errors.New("session token signature invalid")
	ErrTokenExpired     = errors.New("session token expired")
)

// Manager signs and validates session tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
	clock  clockwork.Clock
}

// New creates a Manager. The secret is an opaque high-entropy byte buffer
// owned by the launcher; expiry bounds the lifetime of issued tokens.
func New(secret []byte, expiry time.Duration) (*Manager, error) {
	return NewWithClock(secret, expiry, clockwork.NewRealClock())
}

// NewWithClock creates a Manager with an injected clock for tests.
func NewWithClock(secret []byte, expiry time.Duration, clock clockwork.Clock) (*Manager, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretSize, len(secret))
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("token expiry must be positive, got %s", expiry)
	}
	return &Manager{secret: secret, expiry: expiry, clock: clock}, nil
}

// IssueToken signs a session token for the given tenant.
func (m *Manager) IssueToken(userID uuid.UUID) (string, error) {
	now := m.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry against the wall clock and
// returns the tenant id the token was issued for.
func (m *Manager) ValidateToken(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
		// fall through to subject parsing
	case errors.Is(err, jwt.ErrTokenExpired):
		return uuid.Nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return uuid.Nil, ErrSignatureInvalid
	default:
		return uuid.Nil, ErrTokenMalformed
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}
	return userID, nil
}
