package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/event"
	"github.com/Taro112233/mederror/internal/repository"
	apperrors "github.com/Taro112233/mederror/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// AccountService implements account lifecycle operations: registration,
// onboarding, role management, and credential changes.
type AccountService struct {
	accountRepo repository.AccountRepository
	tokenRepo   repository.RefreshTokenRepository
	tokens      *auth.Manager
	producer    *event.Producer
	logger      *slog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(
	accountRepo repository.AccountRepository,
	tokenRepo repository.RefreshTokenRepository,
	tokens *auth.Manager,
	producer *event.Producer,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		tokens:      tokens,
		producer:    producer,
		logger:      logger,
	}
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Username string
	Password string
}

// OnboardingInput holds the profile details collected during onboarding.
type OnboardingInput struct {
	Name           string
	Position       string
	Phone          string
	OrganizationID string
}

// AdminUpdateInput holds the fields an admin may change on any account.
// Nil fields are left untouched.
type AdminUpdateInput struct {
	Username *string
	Name     *string
	Position *string
	Phone    *string
	Role     *string
}

// Register creates a new account in the UNAPPROVED state. The account gains
// access only after completing onboarding and being approved by an admin.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	if input.Username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:             uuid.New().String(),
		Username:       input.Username,
		PasswordHash:   string(hashedPassword),
		Role:           domain.RoleUnapproved,
		Onboarded:      false,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishAccountRegistered(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.registered event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", account.ID),
		slog.String("username", account.Username),
	)

	return account, nil
}

// CompleteOnboarding records the account's profile and organization, marks
// it onboarded, and re-issues an access token reflecting the new claims.
func (s *AccountService) CompleteOnboarding(ctx context.Context, accountID string, input OnboardingInput) (*domain.Account, string, error) {
	if input.Name == "" {
		return nil, "", apperrors.InvalidInput("name is required")
	}
	if input.OrganizationID == "" {
		return nil, "", apperrors.InvalidInput("organization is required")
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("get account for onboarding: %w", err)
	}
	if account.Onboarded {
		return nil, "", apperrors.Conflict("onboarding already completed")
	}

	account.Name = input.Name
	account.Position = input.Position
	account.Phone = input.Phone
	account.OrganizationID = &input.OrganizationID
	account.Onboarded = true

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, "", fmt.Errorf("update account after onboarding: %w", err)
	}

	// A fresh token carries onboarded=true so the account does not stay
	// stuck behind the onboarding gate until the next refresh.
	accessToken, err := s.tokens.GenerateAccessToken(account, auth.IssueOnboarding)
	if err != nil {
		return nil, "", fmt.Errorf("reissue access token: %w", err)
	}

	if err := s.producer.PublishAccountUpdated(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.updated event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "onboarding completed",
		slog.String("account_id", account.ID),
		slog.String("organization_id", input.OrganizationID),
	)

	return account, accessToken, nil
}

// SetRole changes an account's role. Promotion out of UNAPPROVED publishes
// an approval event.
func (s *AccountService) SetRole(ctx context.Context, accountID, role string) (*domain.Account, error) {
	if !domain.IsValidRole(role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown role %q", role))
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account for role change: %w", err)
	}

	wasUnapproved := account.Role == domain.RoleUnapproved
	account.Role = role

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("update account role: %w", err)
	}

	if wasUnapproved && domain.IsApproved(role) {
		if err := s.producer.PublishAccountApproved(ctx, account); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish account.approved event",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "account role changed",
		slog.String("account_id", account.ID),
		slog.String("role", role),
	)

	return account, nil
}

// ChangePassword verifies the current password against the live hash,
// stores the new one, and revokes every refresh token the account holds.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("get account for password change: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(currentPassword)); err != nil {
		return apperrors.UnauthorizedCode("INVALID_PASSWORD", "current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	account.PasswordHash = string(hashedPassword)
	if err := s.accountRepo.Update(ctx, account); err != nil {
		return fmt.Errorf("update account password: %w", err)
	}

	// Existing sessions on other devices must re-authenticate.
	if err := s.tokenRepo.DeleteByAccount(ctx, account.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after password change",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishAccountPasswordChanged(ctx, account.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.password_changed event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("account_id", account.ID),
	)

	return nil
}

// AdminUpdate applies an admin edit to an account. Changing the username
// demotes the account to UNAPPROVED and clears its onboarded flag, since
// the identity it was approved under no longer exists.
func (s *AccountService) AdminUpdate(ctx context.Context, accountID string, input AdminUpdateInput) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account for admin update: %w", err)
	}

	if input.Username != nil && *input.Username != account.Username {
		if *input.Username == "" {
			return nil, apperrors.InvalidInput("username cannot be empty")
		}
		account.Username = *input.Username
		account.Role = domain.RoleUnapproved
		account.Onboarded = false
	}
	if input.Name != nil {
		account.Name = *input.Name
	}
	if input.Position != nil {
		account.Position = *input.Position
	}
	if input.Phone != nil {
		account.Phone = *input.Phone
	}
	if input.Role != nil {
		if !domain.IsValidRole(*input.Role) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown role %q", *input.Role))
		}
		account.Role = *input.Role
	}

	if err := s.accountRepo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("admin update account: %w", err)
	}

	if err := s.producer.PublishAccountUpdated(ctx, account); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.updated event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account updated by admin",
		slog.String("account_id", account.ID),
	)

	return account, nil
}

// Get retrieves an account by ID.
func (s *AccountService) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// List returns all accounts, newest first.
func (s *AccountService) List(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Delete removes an account and all of its refresh tokens.
func (s *AccountService) Delete(ctx context.Context, accountID string) error {
	if err := s.tokenRepo.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("delete account sessions: %w", err)
	}
	if err := s.accountRepo.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	s.logger.InfoContext(ctx, "account deleted",
		slog.String("account_id", accountID),
	)

	return nil
}

// validatePassword enforces the minimum password policy.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one uppercase letter, one lowercase letter, and one digit")
	}

	return nil
}
