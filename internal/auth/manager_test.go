package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef0123456789abcdef")

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		secret  []byte
		expiry  time.Duration
		wantErr bool
	}{
		{name: "valid", secret: testSecret, expiry: time.Hour, wantErr: false},
		{name: "short secret", secret: []byte("too short"), expiry: time.Hour, wantErr: true},
		{name: "nil secret", secret: nil, expiry: time.Hour, wantErr: true},
		{name: "zero expiry", secret: testSecret, expiry: 0, wantErr: true},
		{name: "negative expiry", secret: testSecret, expiry: -time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.secret, tt.expiry)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIssueAndValidate(t *testing.T) {
	m, err := New(testSecret, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := m.IssueToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestValidateToken_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m, err := NewWithClock(testSecret, time.Hour, clock)
	require.NoError(t, err)

	token, err := m.IssueToken(uuid.New())
	require.NoError(t, err)

	// Still valid just inside the expiry window.
	clock.Advance(time.Hour - time.Second)
	_, err = m.ValidateToken(token)
	assert.NoError(t, err)

	// Expired once the window has fully passed.
	clock.Advance(2 * time.Second)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer, err := New(testSecret, time.Hour)
	require.NoError(t, err)
	verifier, err := New([]byte("another secret, also long enough!!"), time.Hour)
	require.NoError(t, err)

	token, err := issuer.IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestValidateToken_Malformed(t *testing.T) {
	m, err := New(testSecret, time.Hour)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", "a.b.c", "ey.ey.ey"} {
		_, err := m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestValidateToken_NonUUIDSubject(t *testing.T) {
	// A correctly signed, unexpired token whose subject is not a uuid
	// must be rejected rather than mapped to the nil tenant.
	m, err := New(testSecret, time.Hour)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestValidateToken_TamperedSignature(t *testing.T) {
	m, err := New(testSecret, time.Hour)
	require.NoError(t, err)

	token, err := m.IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = m.ValidateToken(token + "x")
	assert.Error(t, err)
}
