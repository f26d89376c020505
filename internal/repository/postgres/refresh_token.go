package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/pkg/database"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// PostgreSQL. Rows are hard-deleted on revocation so that a hash lookup
// miss is the single invalidity signal.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token hash in the database.
func (r *RefreshTokenRepository) Create(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, uuid.New().String(), accountID, tokenHash, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByHash retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var rt domain.RefreshToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID,
		&rt.AccountID,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &rt, nil
}

// Delete removes a refresh token record by its hash. Deleting an absent
// hash succeeds, which keeps logout idempotent.
func (r *RefreshTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`

	_, err := r.db.Exec(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	return nil
}

// Rotate atomically replaces oldHash with a new record inside one
// transaction. The conditional delete means exactly one of two concurrent
// rotations of the same token can succeed; the other observes ErrNotFound.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, accountID, newHash string, expiresAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ct, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, oldHash)
	if err != nil {
		return fmt.Errorf("rotate: delete old token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), accountID, newHash, expiresAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("rotate: insert new token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotate tx: %w", err)
	}

	return nil
}

// DeleteByAccount removes all refresh tokens for the given account.
func (r *RefreshTokenRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	query := `DELETE FROM refresh_tokens WHERE account_id = $1`

	_, err := r.db.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("delete refresh tokens by account: %w", err)
	}

	return nil
}

// DeleteExpired removes tokens past their stored expiry and tokens whose
// owning account has been inactive since before inactivityCutoff.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now, inactivityCutoff time.Time) (int64, int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	expired := ct.RowsAffected()

	ct, err = r.db.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE account_id IN (SELECT id FROM accounts WHERE last_activity_at < $1)`,
		inactivityCutoff.UTC(),
	)
	if err != nil {
		return expired, 0, fmt.Errorf("delete inactive refresh tokens: %w", err)
	}

	return expired, ct.RowsAffected(), nil
}
