package vault

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors shared by all Store implementations.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

// User is a registered tenant.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// Credential holds one tenant's OAuth link to one provider.
// In the Store layer AccessToken, RefreshToken and ClientSecret are
// ciphertext; the Vault converts to and from plaintext at its boundary.
type Credential struct {
	TenantID     uuid.UUID
	Provider     string
	AuthType     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	UpdatedAt    time.Time
}

// Store is the persistence interface beneath the Vault. Implementations must
// be safe for concurrent use and must scope every credential operation by
// tenant id. All writes are durable before the call returns.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpsertCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, tenantID uuid.UUID, provider string) (*Credential, error)
	DeleteCredential(ctx context.Context, tenantID uuid.UUID, provider string) error
}

// HashPassword hashes a password for storage using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
