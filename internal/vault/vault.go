package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Vault is the credential vault. It owns the master-key cipher and converts
// credentials between plaintext (its callers) and ciphertext (its Store).
// Safe for concurrent use as long as the underlying Store is.
type Vault struct {
	store  Store
	cipher *TokenCipher
}

// New creates a Vault over store with the given 32-byte master key.
func New(store Store, masterKey []byte) (*Vault, error) {
	cipher, err := NewTokenCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("vault init: %w", err)
	}
	return &Vault{store: store, cipher: cipher}, nil
}

// CreateUser registers a new tenant and returns its id.
// Returns ErrDuplicateEmail if the email is already taken.
func (v *Vault) CreateUser(ctx context.Context, email, passwordHash, displayName string) (uuid.UUID, error) {
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := v.store.CreateUser(ctx, user); err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

// GetUser looks a tenant up by id. Returns ErrUserNotFound if absent.
func (v *Vault) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return v.store.GetUser(ctx, id)
}

// GetUserByEmail looks a tenant up by email. Returns ErrUserNotFound if absent.
func (v *Vault) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return v.store.GetUserByEmail(ctx, email)
}

// UpsertCredential seals the credential's secrets and writes it, replacing
// any existing row for the same (tenant, provider).
func (v *Vault) UpsertCredential(ctx context.Context, cred *Credential) error {
	sealed := *cred
	sealed.Scopes = append([]string(nil), cred.Scopes...)

	var err error
	if sealed.AccessToken, err = v.cipher.Seal(cred.AccessToken); err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	if sealed.RefreshToken, err = v.cipher.Seal(cred.RefreshToken); err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}
	if sealed.ClientSecret, err = v.cipher.Seal(cred.ClientSecret); err != nil {
		return fmt.Errorf("failed to seal client secret: %w", err)
	}

	return v.store.UpsertCredential(ctx, &sealed)
}

// GetCredential reads and unseals a tenant's credential for a provider.
// Returns ErrCredentialNotFound if the tenant never linked the provider.
func (v *Vault) GetCredential(ctx context.Context, tenantID uuid.UUID, provider string) (*Credential, error) {
	cred, err := v.store.GetCredential(ctx, tenantID, provider)
	if err != nil {
		return nil, err
	}

	if cred.AccessToken, err = v.cipher.Open(cred.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to unseal access token: %w", err)
	}
	if cred.RefreshToken, err = v.cipher.Open(cred.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to unseal refresh token: %w", err)
	}
	if cred.ClientSecret, err = v.cipher.Open(cred.ClientSecret); err != nil {
		return nil, fmt.Errorf("failed to unseal client secret: %w", err)
	}

	return cred, nil
}

// DeleteCredential unlinks a provider from a tenant.
func (v *Vault) DeleteCredential(ctx context.Context, tenantID uuid.UUID, provider string) error {
	return v.store.DeleteCredential(ctx, tenantID, provider)
}
