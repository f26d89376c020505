package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

func newTokenTestFixture(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewRefreshTokenRepository(mock)
	return repo, mock
}

func TestRefreshTokenRepository_Create(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	expiresAt := time.Now().UTC().Add(14 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(pgxmock.AnyArg(), "acc-1", "hash-abc", expiresAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), "acc-1", "hash-abc", expiresAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByHash_Success(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rows := pgxmock.NewRows([]string{"id", "account_id", "token_hash", "expires_at", "created_at"}).
		AddRow("tok-1", "acc-1", "hash-abc", now.Add(time.Hour), now)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash =").
		WithArgs("hash-abc").
		WillReturnRows(rows)

	rt, err := repo.GetByHash(context.Background(), "hash-abc")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rt.ID)
	assert.Equal(t, "acc-1", rt.AccountID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByHash_NotFound(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash =").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	rt, err := repo.GetByHash(context.Background(), "missing")
	assert.Nil(t, rt)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Delete_AbsentHashSucceeds(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE token_hash =").
		WithArgs("already-gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), "already-gone")
	assert.NoError(t, err, "deleting an absent hash must be idempotent")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_Success(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	expiresAt := time.Now().UTC().Add(14 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE token_hash =").
		WithArgs("old-hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(pgxmock.AnyArg(), "acc-1", "new-hash", expiresAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.Rotate(context.Background(), "old-hash", "acc-1", "new-hash", expiresAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Rotate_OldHashGone(t *testing.T) {
	// The loser of a concurrent rotation race sees zero rows deleted and
	// must not insert a replacement.
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE token_hash =").
		WithArgs("old-hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "old-hash", "acc-1", "new-hash", time.Now().Add(time.Hour))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteByAccount(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE account_id =").
		WithArgs("acc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	err := repo.DeleteByAccount(context.Background(), "acc-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()
	cutoff := now.Add(-2 * time.Hour)

	mock.ExpectExec("DELETE FROM refresh_tokens WHERE expires_at <").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	expired, inactive, err := repo.DeleteExpired(context.Background(), now, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), expired)
	assert.Equal(t, int64(2), inactive)
	assert.NoError(t, mock.ExpectationsWereMet())
}
