package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/repository"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

// SecurityService implements the step-up verification flow that gates
// sensitive settings behind a fresh password re-check.
type SecurityService struct {
	accountRepo repository.AccountRepository
	tokens      *auth.Manager
	logger      *slog.Logger
}

// NewSecurityService creates a new security step-up service.
func NewSecurityService(accountRepo repository.AccountRepository, tokens *auth.Manager, logger *slog.Logger) *SecurityService {
	return &SecurityService{
		accountRepo: accountRepo,
		tokens:      tokens,
		logger:      logger,
	}
}

// VerifyPassword re-checks the account's password against the live stored
// hash and mints a security token on success. The access token's claims are
// never trusted for this; the account row is always re-fetched.
func (s *SecurityService) VerifyPassword(ctx context.Context, accountID, password string) (string, error) {
	if password == "" {
		return "", apperrors.InvalidInput("password is required")
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		securityVerifications.WithLabelValues("failure").Inc()
		return "", apperrors.UnauthorizedCode("INVALID_PASSWORD", "password verification failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		securityVerifications.WithLabelValues("failure").Inc()
		return "", apperrors.UnauthorizedCode("INVALID_PASSWORD", "password verification failed")
	}

	token, err := s.tokens.GenerateSecurityToken(account.ID, time.Now().UTC())
	if err != nil {
		return "", apperrors.Internal(err)
	}

	securityVerifications.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "security verification succeeded",
		slog.String("account_id", account.ID),
	)

	return token, nil
}

// CheckAccess validates a security token on behalf of the given account
// and reports the remaining window. The window is recomputed from
// VerifiedAt on every call; the token's own registered expiry is necessary
// but not sufficient.
func (s *SecurityService) CheckAccess(rawToken, accountID string) (*domain.SecurityStatus, error) {
	if rawToken == "" {
		return nil, apperrors.Unauthorized("security verification required")
	}

	claims, err := s.tokens.ParseSecurityToken(rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperrors.UnauthorizedCode("TOKEN_EXPIRED", "security verification has expired")
		}
		return nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "security verification required")
	}
	if claims.AccountID != accountID {
		return nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "security verification required")
	}

	remaining := s.remaining(claims)
	if remaining <= 0 {
		return nil, apperrors.UnauthorizedCode("TOKEN_EXPIRED", "security verification has expired")
	}

	return &domain.SecurityStatus{
		Verified:         true,
		RemainingSeconds: int64(remaining.Seconds()),
	}, nil
}

// RequireVerified checks a security token on behalf of a sensitive
// operation for the given account. It fails when the token belongs to a
// different account or the recomputed window has elapsed.
func (s *SecurityService) RequireVerified(rawToken, accountID string) error {
	if rawToken == "" {
		return apperrors.Unauthorized("security verification required")
	}

	claims, err := s.tokens.ParseSecurityToken(rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return apperrors.UnauthorizedCode("TOKEN_EXPIRED", "security verification has expired")
		}
		return apperrors.UnauthorizedCode("INVALID_TOKEN", "security verification required")
	}
	if claims.AccountID != accountID {
		return apperrors.UnauthorizedCode("INVALID_TOKEN", "security verification required")
	}
	if s.remaining(claims) <= 0 {
		return apperrors.UnauthorizedCode("TOKEN_EXPIRED", "security verification has expired")
	}

	return nil
}

func (s *SecurityService) remaining(claims *auth.SecurityClaims) time.Duration {
	verifiedAt := time.Unix(claims.VerifiedAt, 0).UTC()
	elapsed := time.Now().UTC().Sub(verifiedAt)
	return s.tokens.SecurityTTL() - elapsed
}
