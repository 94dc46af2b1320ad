package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenCipher_KeySize(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr bool
	}{
		{name: "32 bytes", keyLen: 32, wantErr: false},
		{name: "empty key", keyLen: 0, wantErr: true},
		{name: "16 bytes", keyLen: 16, wantErr: true},
		{name: "64 bytes", keyLen: 64, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenCipher(make([]byte, tt.keyLen))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)

	plaintexts := []string{
		"",
		"a",
		"ya29.short-access-token",
		strings.Repeat("x", 4096),
		"token with spaces and unicode ☂",
	}

	for _, plaintext := range plaintexts {
		sealed, err := c.Seal(plaintext)
		require.NoError(t, err)

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestTokenCipher_EmptyStaysEmpty(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)

	sealed, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)
}

func TestTokenCipher_CiphertextHidesPlaintext(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)

	const secret = "refresh-token-value"
	sealed, err := c.Seal(secret)
	require.NoError(t, err)

	assert.NotContains(t, sealed, secret)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), secret)
}

func TestTokenCipher_NonceVaries(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)

	first, err := c.Seal("same input")
	require.NoError(t, err)
	second, err := c.Seal("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenCipher_WrongKeyFails(t *testing.T) {
	keyA, err := GenerateMasterKey()
	require.NoError(t, err)
	keyB, err := GenerateMasterKey()
	require.NoError(t, err)

	cipherA, err := NewTokenCipher(keyA)
	require.NoError(t, err)
	cipherB, err := NewTokenCipher(keyB)
	require.NoError(t, err)

	sealed, err := cipherA.Seal("secret")
	require.NoError(t, err)

	_, err = cipherB.Open(sealed)
	assert.Error(t, err)
}

func TestTokenCipher_TamperDetected(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)

	sealed, err := c.Seal("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = c.Open(tampered)
	assert.Error(t, err)
}

func TestTokenCipher_OpenRejectsGarbage(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)

	_, err = c.Open("not base64!!!")
	assert.Error(t, err)

	// Valid base64 but shorter than a nonce.
	_, err = c.Open(base64.StdEncoding.EncodeToString([]byte("abc")))
	assert.Error(t, err)
}

func TestMasterKeyFromBase64(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)

	decoded, err := MasterKeyFromBase64(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = MasterKeyFromBase64("%%%")
	assert.Error(t, err)

	_, err = MasterKeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
