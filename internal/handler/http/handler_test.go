package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Taro112233/mederror/internal/auth"
	"github.com/Taro112233/mederror/internal/domain"
	"github.com/Taro112233/mederror/internal/event"
	"github.com/Taro112233/mederror/internal/service"
	"github.com/Taro112233/mederror/pkg/health"
	pkgkafka "github.com/Taro112233/mederror/pkg/kafka"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByOrgAndUsername(ctx context.Context, organizationID *string, username string) (*domain.Account, error) {
	args := m.Called(ctx, organizationID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) Update(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockAccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *mockAccountRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockTokenRepo struct {
	mock.Mock
}

func (m *mockTokenRepo) Create(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, accountID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockTokenRepo) Delete(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockTokenRepo) Rotate(ctx context.Context, oldHash, accountID, newHash string, expiresAt time.Time) error {
	args := m.Called(ctx, oldHash, accountID, newHash, expiresAt)
	return args.Error(0)
}

func (m *mockTokenRepo) DeleteByAccount(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockTokenRepo) DeleteExpired(ctx context.Context, now, inactivityCutoff time.Time) (int64, int64, error) {
	args := m.Called(ctx, now, inactivityCutoff)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// ============================================================================
// Test Environment
// ============================================================================

const (
	testAccountID = "550e8400-e29b-41d4-a716-446655440001"
	testOrgID     = "550e8400-e29b-41d4-a716-446655440010"
	testSecret    = "test-secret-key-for-handler-tests"
)

type testEnv struct {
	router      http.Handler
	accountRepo *mockAccountRepo
	tokenRepo   *mockTokenRepo
	tokens      *auth.Manager
}

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func handlerTestEventProducer() *event.Producer {
	logger := handlerTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := handlerTestLogger()
	accountRepo := new(mockAccountRepo)
	tokenRepo := new(mockTokenRepo)
	tokens := auth.NewManager(testSecret, auth.DefaultTTLConfig())
	producer := handlerTestEventProducer()

	sessions := service.NewSessionService(accountRepo, tokenRepo, tokens, producer, logger, service.DefaultSessionConfig())
	accounts := service.NewAccountService(accountRepo, tokenRepo, tokens, producer, logger)
	security := service.NewSecurityService(accountRepo, tokens, logger)

	cookies := CookieConfig{Secure: false}
	ttls := SessionCookieTTLs{
		Session:  2 * time.Hour,
		Refresh:  14 * 24 * time.Hour,
		Security: 15 * time.Minute,
	}

	guard := NewGuard(tokens, accounts, security, logger)

	router := NewRouter(RouterDeps{
		Auth:     NewAuthHandler(sessions, accounts, cookies, ttls, logger),
		Accounts: NewAccountHandler(accounts, cookies, ttls, logger),
		Security: NewSecurityHandler(security, cookies, ttls, logger),
		Pages:    NewPageHandler(security, logger),
		Guard:    guard,
		Edge:     NewEdgeGate(tokens, logger),
		Health:   health.NewHandler(),
		CORS:     CORSConfig{Environment: "development"},
		Logger:   logger,
	})

	return &testEnv{
		router:      router,
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		tokens:      tokens,
	}
}

func hashForHandlerTest(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func approvedAccount(t *testing.T) *domain.Account {
	t.Helper()
	now := time.Now().UTC()
	orgID := testOrgID
	return &domain.Account{
		ID:             testAccountID,
		OrganizationID: &orgID,
		Username:       "jdoe",
		PasswordHash:   hashForHandlerTest(t, "Correct1Password"),
		Role:           domain.RoleUser,
		Onboarded:      true,
		Name:           "Jane Doe",
		Position:       "Pharmacist",
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// sessionCookieFor mints a valid access token for the account and wraps it
// in the session cookie.
func (e *testEnv) sessionCookieFor(t *testing.T, account *domain.Account) *http.Cookie {
	t.Helper()
	token, err := e.tokens.GenerateAccessToken(account, auth.IssueLogin)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func (e *testEnv) securityCookieFor(t *testing.T, accountID string, verifiedAt time.Time) *http.Cookie {
	t.Helper()
	token, err := e.tokens.GenerateSecurityToken(accountID, verifiedAt)
	require.NoError(t, err)
	return &http.Cookie{Name: securityCookieName, Value: token}
}

// ============================================================================
// Response decoding
// ============================================================================

type decodedError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

type decodedResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *decodedError   `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) decodedResponse {
	t.Helper()
	var resp decodedResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

// cookieByName finds a Set-Cookie entry from the recorder, or nil.
func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
