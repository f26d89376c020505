package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Taro112233/mederror/internal/domain"
)

const issuer = "mederror-api"

// Sentinel errors distinguishing why a token was rejected. Callers map
// these to the session error taxonomy.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// IssueReason identifies why an access token is being minted. The reason
// determines the token lifetime; call sites never choose TTLs directly.
type IssueReason int

const (
	IssueLogin IssueReason = iota
	IssueRefresh
	IssueOnboarding
)

// AccessClaims represents the JWT claims of an access token. The account
// fields are a snapshot taken at issuance; authoritative checks re-fetch
// the account.
type AccessClaims struct {
	AccountID      string  `json:"id"`
	OrganizationID *string `json:"orgId,omitempty"`
	Role           string  `json:"role"`
	Onboarded      bool    `json:"onboarded"`
	jwt.RegisteredClaims
}

// SecurityClaims represents the JWT claims of a step-up security token.
// VerifiedAt is the moment the password re-check succeeded; consumers
// recompute the remaining window from it on every check.
type SecurityClaims struct {
	AccountID        string `json:"id"`
	SecurityVerified bool   `json:"securityVerified"`
	VerifiedAt       int64  `json:"verifiedAt"`
	jwt.RegisteredClaims
}

// TTLConfig holds the lifetimes the Manager applies per issuance reason.
type TTLConfig struct {
	Login      time.Duration
	Refresh    time.Duration
	Onboarding time.Duration
	Security   time.Duration
}

// DefaultTTLConfig returns the standard token lifetimes.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		Login:      2 * time.Hour,
		Refresh:    1 * time.Hour,
		Onboarding: 1 * time.Hour,
		Security:   15 * time.Minute,
	}
}

// Manager handles token generation and validation (HS256, shared secret).
type Manager struct {
	secret []byte
	ttl    TTLConfig
}

// NewManager creates a token manager with the given secret and lifetimes.
func NewManager(secret string, ttl TTLConfig) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// accessTTL maps an issuance reason to a lifetime.
func (m *Manager) accessTTL(reason IssueReason) time.Duration {
	switch reason {
	case IssueRefresh:
		return m.ttl.Refresh
	case IssueOnboarding:
		return m.ttl.Onboarding
	default:
		return m.ttl.Login
	}
}

// SecurityTTL returns the step-up token lifetime.
func (m *Manager) SecurityTTL() time.Duration {
	return m.ttl.Security
}

// GenerateAccessToken creates a signed access token carrying a snapshot of
// the account. The lifetime depends on the issuance reason.
func (m *Manager) GenerateAccessToken(account *domain.Account, reason IssueReason) (string, error) {
	now := time.Now().UTC()
	claims := &AccessClaims{
		AccountID:      account.ID,
		OrganizationID: account.OrganizationID,
		Role:           account.Role,
		Onboarded:      account.Onboarded,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL(reason))),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signedToken, nil
}

// GenerateSecurityToken creates a signed step-up token asserting that the
// account re-verified its password at verifiedAt.
func (m *Manager) GenerateSecurityToken(accountID string, verifiedAt time.Time) (string, error) {
	verifiedAt = verifiedAt.UTC()
	claims := &SecurityClaims{
		AccountID:        accountID,
		SecurityVerified: true,
		VerifiedAt:       verifiedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(verifiedAt),
			ExpiresAt: jwt.NewNumericDate(verifiedAt.Add(m.ttl.Security)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign security token: %w", err)
	}

	return signedToken, nil
}

// ParseAccessToken parses and validates an access token. Expired tokens
// return ErrTokenExpired; any other failure, including a missing subject or
// unknown role, returns ErrTokenInvalid.
func (m *Manager) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrTokenInvalid)
	}
	if !domain.IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}

// ParseSecurityToken parses and validates a step-up token. It checks the
// signature and registered expiry only; callers must additionally recompute
// the window from VerifiedAt.
func (m *Manager) ParseSecurityToken(tokenString string) (*SecurityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SecurityClaims{}, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*SecurityClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.AccountID == "" || !claims.SecurityVerified || claims.VerifiedAt == 0 {
		return nil, fmt.Errorf("%w: incomplete security claims", ErrTokenInvalid)
	}

	return claims, nil
}

// ParseAccessTokenUnverified decodes access token claims WITHOUT verifying
// the signature or expiry. Use only for log enrichment; never for
// authorization decisions.
func ParseAccessTokenUnverified(tokenString string) (*AccessClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &AccessClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (m *Manager) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secret, nil
}

// NewRefreshToken generates an opaque refresh token and the hex SHA-256
// hash under which it is persisted. The raw value goes to the client; only
// the hash is stored.
func NewRefreshToken() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken returns the hex SHA-256 hash of a raw refresh token.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
