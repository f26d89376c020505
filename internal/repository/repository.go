package repository

import (
	"context"
	"time"

	"github.com/Taro112233/mederror/internal/domain"
)

// AccountRepository defines the interface for account persistence operations.
type AccountRepository interface {
	// Create inserts a new account into the store.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// GetByOrgAndUsername retrieves an account by organization and username.
	// A nil organization matches accounts that have not joined one yet.
	GetByOrgAndUsername(ctx context.Context, organizationID *string, username string) (*domain.Account, error)

	// Update modifies an existing account in the store.
	Update(ctx context.Context, account *domain.Account) error

	// UpdateLastActivity stamps the account's last activity time.
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error

	// List returns all accounts, newest first.
	List(ctx context.Context) ([]domain.Account, error)

	// Delete removes an account from the store by its identifier.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository defines the interface for refresh token persistence
// operations. Records are deleted rather than flagged; a missing row means
// the token is no longer valid.
type RefreshTokenRepository interface {
	// Create stores a new refresh token hash.
	Create(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error

	// GetByHash retrieves a refresh token record by its hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Delete removes a refresh token record by its hash. Deleting an absent
	// hash is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// Rotate atomically replaces oldHash with a new record. It fails with
	// ErrNotFound when oldHash no longer exists, which makes the loser of a
	// concurrent rotation race observable.
	Rotate(ctx context.Context, oldHash string, accountID, newHash string, expiresAt time.Time) error

	// DeleteByAccount removes all refresh tokens for the given account.
	DeleteByAccount(ctx context.Context, accountID string) error

	// DeleteExpired removes tokens past their stored expiry and tokens whose
	// owning account has been inactive since before inactivityCutoff. It
	// returns both counts.
	DeleteExpired(ctx context.Context, now, inactivityCutoff time.Time) (expired int64, inactive int64, err error)
}
