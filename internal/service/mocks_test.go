package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/event"
	pkgkafka "github.com/Taro112233/mederror/pkg/kafka"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) GetByOrgAndUsername(ctx context.Context, organizationID *string, username string) (*domain.Account, error) {
	args := m.Called(ctx, organizationID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) Update(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *mockAccountRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, accountID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) Rotate(ctx context.Context, oldHash string, accountID, newHash string, expiresAt time.Time) error {
	args := m.Called(ctx, oldHash, accountID, newHash, expiresAt)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, now, inactivityCutoff time.Time) (int64, int64, error) {
	args := m.Called(ctx, now, inactivityCutoff)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTokenManager() *auth.Manager {
	return auth.NewManager("test-secret-key-for-testing", auth.DefaultTTLConfig())
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newTestSessionService(accountRepo *mockAccountRepository, tokenRepo *mockRefreshTokenRepository) *SessionService {
	return NewSessionService(accountRepo, tokenRepo, newTestTokenManager(), newTestEventProducer(), newTestLogger(), DefaultSessionConfig())
}

func newTestAccountService(accountRepo *mockAccountRepository, tokenRepo *mockRefreshTokenRepository) *AccountService {
	return NewAccountService(accountRepo, tokenRepo, newTestTokenManager(), newTestEventProducer(), newTestLogger())
}

func newTestSecurityService(accountRepo *mockAccountRepository) *SecurityService {
	return NewSecurityService(accountRepo, newTestTokenManager(), newTestLogger())
}

func strPtr(s string) *string {
	return &s
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func activeAccount() *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:             "acc-1",
		OrganizationID: strPtr("org-1"),
		Username:       "jdoe",
		PasswordHash:   hashForTest("SecurePass123"),
		Role:           domain.RoleUser,
		Onboarded:      true,
		Name:           "Jane Doe",
		LastActivityAt: now,
		CreatedAt:      now.Add(-24 * time.Hour),
		UpdatedAt:      now,
	}
}
