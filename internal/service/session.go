package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/event"
	"github.com/Taro112233/mederror/internal/repository"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

// invalidCredentialsMsg is returned for both unknown usernames and wrong
// passwords so that login responses never reveal which one failed.
const invalidCredentialsMsg = "invalid username or password"

// SessionConfig holds the session lifetimes the service enforces.
type SessionConfig struct {
	RefreshTokenTTL   time.Duration
	InactivityTimeout time.Duration
}

// DefaultSessionConfig returns the standard session lifetimes.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		RefreshTokenTTL:   14 * 24 * time.Hour,
		InactivityTimeout: 2 * time.Hour,
	}
}

// SessionService implements login, refresh rotation, logout, and session
// maintenance.
type SessionService struct {
	accountRepo repository.AccountRepository
	tokenRepo   repository.RefreshTokenRepository
	tokens      *auth.Manager
	producer    *event.Producer
	logger      *slog.Logger
	cfg         SessionConfig
}

// NewSessionService creates a new session service.
func NewSessionService(
	accountRepo repository.AccountRepository,
	tokenRepo repository.RefreshTokenRepository,
	tokens *auth.Manager,
	producer *event.Producer,
	logger *slog.Logger,
	cfg SessionConfig,
) *SessionService {
	return &SessionService{
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		tokens:      tokens,
		producer:    producer,
		logger:      logger,
		cfg:         cfg,
	}
}

// LoginInput holds the parameters for account login.
type LoginInput struct {
	OrganizationID *string
	Username       string
	Password       string
}

// Login authenticates an account and issues an access token plus a fresh
// refresh token chain.
func (s *SessionService) Login(ctx context.Context, input LoginInput) (*domain.Account, *domain.TokenPair, error) {
	if input.Username == "" || input.Password == "" {
		return nil, nil, apperrors.InvalidInput("username and password are required")
	}

	account, err := s.accountRepo.GetByOrgAndUsername(ctx, input.OrganizationID, input.Username)
	if err != nil {
		// Same response as a wrong password; do not leak account existence.
		loginFailures.WithLabelValues("unknown_account").Inc()
		return nil, nil, apperrors.UnauthorizedCode("INVALID_CREDENTIALS", invalidCredentialsMsg)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
		loginFailures.WithLabelValues("wrong_password").Inc()
		return nil, nil, apperrors.UnauthorizedCode("INVALID_CREDENTIALS", invalidCredentialsMsg)
	}

	now := time.Now().UTC()
	if err := s.accountRepo.UpdateLastActivity(ctx, account.ID, now); err != nil {
		return nil, nil, fmt.Errorf("stamp login activity: %w", err)
	}
	account.LastActivityAt = now

	pair, err := s.issueTokenPair(ctx, account, auth.IssueLogin)
	if err != nil {
		return nil, nil, err
	}

	loginsTotal.Inc()
	s.logger.InfoContext(ctx, "account logged in",
		slog.String("account_id", account.ID),
		slog.String("role", account.Role),
	)

	return account, pair, nil
}

// Refresh validates and rotates a refresh token, issuing a new token pair.
// Each check is a hard stop in order: presence, lookup, absolute expiry,
// inactivity window, rotation.
func (s *SessionService) Refresh(ctx context.Context, rawToken string) (*domain.Account, *domain.TokenPair, error) {
	if rawToken == "" {
		refreshFailures.WithLabelValues("missing").Inc()
		return nil, nil, apperrors.Unauthorized("refresh token is required")
	}

	oldHash := auth.HashRefreshToken(rawToken)
	stored, err := s.tokenRepo.GetByHash(ctx, oldHash)
	if err != nil {
		refreshFailures.WithLabelValues("invalid").Inc()
		return nil, nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "refresh token not recognized")
	}

	now := time.Now().UTC()
	if now.After(stored.ExpiresAt) {
		if err := s.tokenRepo.Delete(ctx, oldHash); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete expired refresh token",
				slog.String("account_id", stored.AccountID),
				slog.String("error", err.Error()),
			)
		}
		refreshFailures.WithLabelValues("expired").Inc()
		return nil, nil, apperrors.UnauthorizedCode("TOKEN_EXPIRED", "refresh token has expired")
	}

	account, err := s.accountRepo.GetByID(ctx, stored.AccountID)
	if err != nil {
		refreshFailures.WithLabelValues("invalid").Inc()
		return nil, nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "refresh token not recognized")
	}

	// Inactivity timeout is enforced independently of the stored expiry.
	if now.Sub(account.LastActivityAt) > s.cfg.InactivityTimeout {
		if err := s.tokenRepo.Delete(ctx, oldHash); err != nil {
			s.logger.ErrorContext(ctx, "failed to delete inactive refresh token",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
		refreshFailures.WithLabelValues("inactive").Inc()
		return nil, nil, apperrors.UnauthorizedCode("SESSION_EXPIRED_INACTIVITY", "session expired due to inactivity")
	}

	if err := s.accountRepo.UpdateLastActivity(ctx, account.ID, now); err != nil {
		return nil, nil, fmt.Errorf("stamp refresh activity: %w", err)
	}
	account.LastActivityAt = now

	// Claims come from the live account row, self-healing any staleness in
	// the previous access token.
	accessToken, err := s.tokens.GenerateAccessToken(account, auth.IssueRefresh)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	newRaw, newHash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}

	err = s.tokenRepo.Rotate(ctx, oldHash, account.ID, newHash, now.Add(s.cfg.RefreshTokenTTL))
	if err != nil {
		// The row vanished between lookup and rotation: a concurrent refresh
		// won the race and this caller's token is no longer valid.
		refreshFailures.WithLabelValues("rotation_race").Inc()
		return nil, nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "refresh token not recognized")
	}

	s.logger.InfoContext(ctx, "session refreshed",
		slog.String("account_id", account.ID),
	)

	return account, &domain.TokenPair{AccessToken: accessToken, RefreshToken: newRaw}, nil
}

// Logout deletes the refresh token record matching the presented raw token.
// It succeeds regardless of whether the token was present or valid.
func (s *SessionService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}

	if err := s.tokenRepo.Delete(ctx, auth.HashRefreshToken(rawToken)); err != nil {
		return fmt.Errorf("delete refresh token on logout: %w", err)
	}

	return nil
}

// RevokeAccount deletes every refresh token belonging to the account,
// terminating all of its sessions.
func (s *SessionService) RevokeAccount(ctx context.Context, accountID string) error {
	if err := s.tokenRepo.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}
	return nil
}

// Cleanup removes refresh tokens past expiry and tokens whose owning
// account breached the inactivity window. Safe to run concurrently with
// live traffic; it only deletes rows that are already invalid.
func (s *SessionService) Cleanup(ctx context.Context) (*domain.CleanupResult, error) {
	now := time.Now().UTC()
	expired, inactive, err := s.tokenRepo.DeleteExpired(ctx, now, now.Add(-s.cfg.InactivityTimeout))
	if err != nil {
		return nil, fmt.Errorf("cleanup refresh tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "refresh token cleanup completed",
		slog.Int64("expired", expired),
		slog.Int64("inactive", inactive),
	)

	return &domain.CleanupResult{ExpiredTokens: expired, InactiveTokens: inactive}, nil
}

// issueTokenPair mints an access token and seeds a refresh token row.
func (s *SessionService) issueTokenPair(ctx context.Context, account *domain.Account, reason auth.IssueReason) (*domain.TokenPair, error) {
	accessToken, err := s.tokens.GenerateAccessToken(account, reason)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	raw, hash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.cfg.RefreshTokenTTL)
	if err := s.tokenRepo.Create(ctx, account.ID, hash, expiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{AccessToken: accessToken, RefreshToken: raw}, nil
}
