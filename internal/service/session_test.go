package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected *AppError, got: %v", err)
	return appErr.Code
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	account := activeAccount()
	accountRepo.On("GetByOrgAndUsername", ctx, strPtr("org-1"), "jdoe").Return(account, nil)
	accountRepo.On("UpdateLastActivity", ctx, "acc-1", mock.AnythingOfType("time.Time")).Return(nil)
	tokenRepo.On("Create", ctx, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	got, pair, err := svc.Login(ctx, LoginInput{
		OrganizationID: strPtr("org-1"),
		Username:       "jdoe",
		Password:       "SecurePass123",
	})

	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	accountRepo.AssertExpectations(t)
	tokenRepo.AssertExpectations(t)
}

func TestLogin_SeedsRefreshTokenChain(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	account := activeAccount()
	accountRepo.On("GetByOrgAndUsername", ctx, mock.Anything, "jdoe").Return(account, nil)
	accountRepo.On("UpdateLastActivity", ctx, "acc-1", mock.AnythingOfType("time.Time")).Return(nil)

	var storedHash string
	var storedExpiry time.Time
	tokenRepo.On("Create", ctx, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			storedHash = args.String(2)
			storedExpiry = args.Get(3).(time.Time)
		}).Return(nil)

	_, pair, err := svc.Login(ctx, LoginInput{OrganizationID: strPtr("org-1"), Username: "jdoe", Password: "SecurePass123"})

	require.NoError(t, err)
	assert.Equal(t, auth.HashRefreshToken(pair.RefreshToken), storedHash,
		"the stored hash must be the SHA-256 of the raw token handed to the client")
	assert.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), storedExpiry, time.Minute)
}

func TestLogin_UnknownAccount(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	accountRepo.On("GetByOrgAndUsername", ctx, mock.Anything, "nobody").Return(nil, apperrors.ErrNotFound)

	_, _, err := svc.Login(ctx, LoginInput{Username: "nobody", Password: "SecurePass123"})

	require.Error(t, err)
	assert.Equal(t, "INVALID_CREDENTIALS", appErrCode(t, err))
}

func TestLogin_WrongPassword(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	accountRepo.On("GetByOrgAndUsername", ctx, mock.Anything, "jdoe").Return(activeAccount(), nil)

	_, _, err := svc.Login(ctx, LoginInput{Username: "jdoe", Password: "WrongPass999"})

	require.Error(t, err)
	assert.Equal(t, "INVALID_CREDENTIALS", appErrCode(t, err))
}

func TestLogin_ErrorIdenticalForUnknownAndWrongPassword(t *testing.T) {
	// The two failure modes must be indistinguishable to the caller.
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	accountRepo.On("GetByOrgAndUsername", ctx, mock.Anything, "nobody").Return(nil, apperrors.ErrNotFound)
	accountRepo.On("GetByOrgAndUsername", ctx, mock.Anything, "jdoe").Return(activeAccount(), nil)

	_, _, errUnknown := svc.Login(ctx, LoginInput{Username: "nobody", Password: "SecurePass123"})
	_, _, errWrong := svc.Login(ctx, LoginInput{Username: "jdoe", Password: "WrongPass999"})

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_MissingFields(t *testing.T) {
	svc := newTestSessionService(new(mockAccountRepository), new(mockRefreshTokenRepository))

	_, _, err := svc.Login(context.Background(), LoginInput{Username: "", Password: "x"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, _, err = svc.Login(context.Background(), LoginInput{Username: "jdoe", Password: ""})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

// --- Refresh Tests ---

func storedToken(accountID, raw string, expiresAt time.Time) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:        "tok-1",
		AccountID: accountID,
		TokenHash: auth.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestRefresh_Success(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	raw := "raw-refresh-token"
	oldHash := auth.HashRefreshToken(raw)
	account := activeAccount()

	tokenRepo.On("GetByHash", ctx, oldHash).Return(storedToken("acc-1", raw, time.Now().Add(24*time.Hour)), nil)
	accountRepo.On("GetByID", ctx, "acc-1").Return(account, nil)
	accountRepo.On("UpdateLastActivity", ctx, "acc-1", mock.AnythingOfType("time.Time")).Return(nil)
	tokenRepo.On("Rotate", ctx, oldHash, "acc-1", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	got, pair, err := svc.Refresh(ctx, raw)

	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, raw, pair.RefreshToken, "rotation must issue a new opaque value")
	tokenRepo.AssertExpectations(t)
	accountRepo.AssertExpectations(t)
}

func TestRefresh_ReadsLiveClaims(t *testing.T) {
	// Role and onboarded come from the current account row, not from any
	// previous token snapshot.
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	raw := "raw-refresh-token"
	account := activeAccount()
	account.Role = domain.RoleAdmin

	tokenRepo.On("GetByHash", ctx, mock.Anything).Return(storedToken("acc-1", raw, time.Now().Add(24*time.Hour)), nil)
	accountRepo.On("GetByID", ctx, "acc-1").Return(account, nil)
	accountRepo.On("UpdateLastActivity", ctx, "acc-1", mock.AnythingOfType("time.Time")).Return(nil)
	tokenRepo.On("Rotate", ctx, mock.Anything, "acc-1", mock.Anything, mock.Anything).Return(nil)

	_, pair, err := svc.Refresh(ctx, raw)
	require.NoError(t, err)

	claims, err := newTestTokenManager().ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time), "refresh-issued tokens live one hour")
}

func TestRefresh_MissingToken(t *testing.T) {
	svc := newTestSessionService(new(mockAccountRepository), new(mockRefreshTokenRepository))

	_, _, err := svc.Refresh(context.Background(), "")

	require.Error(t, err)
	assert.Equal(t, "UNAUTHORIZED", appErrCode(t, err))
}

func TestRefresh_UnknownToken(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	tokenRepo.On("GetByHash", ctx, mock.Anything).Return(nil, apperrors.ErrNotFound)

	_, _, err := svc.Refresh(ctx, "unknown-token")

	require.Error(t, err)
	assert.Equal(t, "INVALID_TOKEN", appErrCode(t, err))
}

func TestRefresh_ExpiredTokenDeleted(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	raw := "expired-token"
	hash := auth.HashRefreshToken(raw)
	tokenRepo.On("GetByHash", ctx, hash).Return(storedToken("acc-1", raw, time.Now().Add(-time.Minute)), nil)
	tokenRepo.On("Delete", ctx, hash).Return(nil)

	_, _, err := svc.Refresh(ctx, raw)

	require.Error(t, err)
	assert.Equal(t, "TOKEN_EXPIRED", appErrCode(t, err))
	tokenRepo.AssertCalled(t, "Delete", ctx, hash)
}

func TestRefresh_InactivityTimeout(t *testing.T) {
	// The stored expiry is still in the future, but the account has been
	// idle past the window. Both limits are enforced independently.
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	raw := "stale-session-token"
	hash := auth.HashRefreshToken(raw)
	account := activeAccount()
	account.LastActivityAt = time.Now().UTC().Add(-3 * time.Hour)

	tokenRepo.On("GetByHash", ctx, hash).Return(storedToken("acc-1", raw, time.Now().Add(10*24*time.Hour)), nil)
	accountRepo.On("GetByID", ctx, "acc-1").Return(account, nil)
	tokenRepo.On("Delete", ctx, hash).Return(nil)

	_, _, err := svc.Refresh(ctx, raw)

	require.Error(t, err)
	assert.Equal(t, "SESSION_EXPIRED_INACTIVITY", appErrCode(t, err))
	tokenRepo.AssertCalled(t, "Delete", ctx, hash)
}

func TestRefresh_JustInsideInactivityWindow(t *testing.T) {
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	raw := "near-idle-token"
	account := activeAccount()
	account.LastActivityAt = time.Now().UTC().Add(-119 * time.Minute)

	tokenRepo.On("GetByHash", ctx, mock.Anything).Return(storedToken("acc-1", raw, time.Now().Add(24*time.Hour)), nil)
	accountRepo.On("GetByID", ctx, "acc-1").Return(account, nil)
	accountRepo.On("UpdateLastActivity", ctx, "acc-1", mock.AnythingOfType("time.Time")).Return(nil)
	tokenRepo.On("Rotate", ctx, mock.Anything, "acc-1", mock.Anything, mock.Anything).Return(nil)

	_, _, err := svc.Refresh(ctx, raw)

	assert.NoError(t, err, "119 minutes idle is still within the 2-hour window")
}

func TestRefresh_RotationRaceLoserFails(t *testing.T) {
	// Two concurrent refreshes pass the lookup; the one whose conditional
	// delete finds no row must fail rather than mint a second session.
	accountRepo := new(mockAccountRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(accountRepo, tokenRepo)
	ctx := context.Background()

	raw := "contested-token"
	tokenRepo.On("GetByHash", ctx, mock.Anything).Return(storedToken("acc-1", raw, time.Now().Add(24*time.Hour)), nil)
	accountRepo.On("GetByID", ctx, "acc-1").Return(activeAccount(), nil)
	accountRepo.On("UpdateLastActivity", ctx, "acc-1", mock.AnythingOfType("time.Time")).Return(nil)
	tokenRepo.On("Rotate", ctx, mock.Anything, "acc-1", mock.Anything, mock.Anything).Return(apperrors.ErrNotFound)

	_, _, err := svc.Refresh(ctx, raw)

	require.Error(t, err)
	assert.Equal(t, "INVALID_TOKEN", appErrCode(t, err))
}

// --- Logout Tests ---

func TestLogout_DeletesToken(t *testing.T) {
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(new(mockAccountRepository), tokenRepo)
	ctx := context.Background()

	raw := "raw-refresh-token"
	tokenRepo.On("Delete", ctx, auth.HashRefreshToken(raw)).Return(nil)

	err := svc.Logout(ctx, raw)

	assert.NoError(t, err)
	tokenRepo.AssertExpectations(t)
}

func TestLogout_NoCookieStillSucceeds(t *testing.T) {
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(new(mockAccountRepository), tokenRepo)

	err := svc.Logout(context.Background(), "")

	assert.NoError(t, err)
	tokenRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestLogout_UnknownTokenStillSucceeds(t *testing.T) {
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(new(mockAccountRepository), tokenRepo)
	ctx := context.Background()

	tokenRepo.On("Delete", ctx, mock.Anything).Return(nil)

	err := svc.Logout(ctx, "never-issued")

	assert.NoError(t, err)
}

// --- Cleanup Tests ---

func TestCleanup_ReturnsCounts(t *testing.T) {
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(new(mockAccountRepository), tokenRepo)
	ctx := context.Background()

	tokenRepo.On("DeleteExpired", ctx, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
		Return(int64(5), int64(2), nil)

	result, err := svc.Cleanup(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(5), result.ExpiredTokens)
	assert.Equal(t, int64(2), result.InactiveTokens)
}

func TestCleanup_CutoffMatchesInactivityWindow(t *testing.T) {
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(new(mockAccountRepository), tokenRepo)
	ctx := context.Background()

	var gotNow, gotCutoff time.Time
	tokenRepo.On("DeleteExpired", ctx, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			gotNow = args.Get(1).(time.Time)
			gotCutoff = args.Get(2).(time.Time)
		}).Return(int64(0), int64(0), nil)

	_, err := svc.Cleanup(ctx)

	require.NoError(t, err)
	assert.WithinDuration(t, gotNow.Add(-2*time.Hour), gotCutoff, time.Second)
}

func TestRevokeAccount(t *testing.T) {
	tokenRepo := new(mockRefreshTokenRepository)
	svc := newTestSessionService(new(mockAccountRepository), tokenRepo)
	ctx := context.Background()

	tokenRepo.On("DeleteByAccount", ctx, "acc-1").Return(nil)

	err := svc.RevokeAccount(ctx, "acc-1")

	assert.NoError(t, err)
	tokenRepo.AssertExpectations(t)
}
