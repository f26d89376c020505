package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/pkg/database"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db database.DBTX
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, organization_id, username, password_hash, role, onboarded, name, position, phone, last_activity_at, created_at, updated_at`

// Create inserts a new account into the database.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (id, organization_id, username, password_hash, role, onboarded, name, position, phone, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		a.ID,
		a.OrganizationID,
		a.Username,
		a.PasswordHash,
		a.Role,
		a.Onboarded,
		a.Name,
		a.Position,
		a.Phone,
		a.LastActivityAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("account", "username", a.Username)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(ctx, query, id)
}

// GetByOrgAndUsername retrieves an account by organization and username.
func (r *AccountRepository) GetByOrgAndUsername(ctx context.Context, organizationID *string, username string) (*domain.Account, error) {
	if organizationID == nil {
		query := `SELECT ` + accountColumns + ` FROM accounts WHERE organization_id IS NULL AND username = $1`
		return r.scanAccount(ctx, query, username)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE organization_id = $1 AND username = $2`
	return r.scanAccount(ctx, query, *organizationID, username)
}

// Update modifies an existing account in the database.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) error {
	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accounts
		SET organization_id = $1, username = $2, password_hash = $3, role = $4,
		    onboarded = $5, name = $6, position = $7, phone = $8, updated_at = $9
		WHERE id = $10`

	ct, err := r.db.Exec(ctx, query,
		a.OrganizationID,
		a.Username,
		a.PasswordHash,
		a.Role,
		a.Onboarded,
		a.Name,
		a.Position,
		a.Phone,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("account", "username", a.Username)
		}
		return fmt.Errorf("update account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", a.ID)
	}

	return nil
}

// UpdateLastActivity stamps the account's last activity time.
func (r *AccountRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_activity_at = $1 WHERE id = $2`

	ct, err := r.db.Exec(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last activity: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// List returns all accounts, newest first.
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(
			&a.ID,
			&a.OrganizationID,
			&a.Username,
			&a.PasswordHash,
			&a.Role,
			&a.Onboarded,
			&a.Name,
			&a.Position,
			&a.Phone,
			&a.LastActivityAt,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// Delete removes an account from the database by its ID.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE id = $1`

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("account", id)
	}

	return nil
}

// scanAccount executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var a domain.Account

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.OrganizationID,
		&a.Username,
		&a.PasswordHash,
		&a.Role,
		&a.Onboarded,
		&a.Name,
		&a.Position,
		&a.Phone,
		&a.LastActivityAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &a, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
