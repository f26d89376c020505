package domain

import (
	"time"
)

// Account represents a registered account in the system. Accounts belong to
// an organization once onboarding is complete; until then OrganizationID is
// nil.
type Account struct {
	ID             string    `json:"id"`
	OrganizationID *string   `json:"orgId,omitempty"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	Onboarded      bool      `json:"onboarded"`
	Name           string    `json:"name,omitempty"`
	Position       string    `json:"position,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RefreshToken represents a stored refresh token for an account session.
// Only the SHA-256 hash of the opaque token is persisted.
type RefreshToken struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair holds an access token and the opaque refresh token issued
// alongside it.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SecurityStatus describes the state of a step-up security verification.
type SecurityStatus struct {
	Verified         bool  `json:"verified"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// CleanupResult reports how many stale rows a cleanup pass removed.
type CleanupResult struct {
	ExpiredTokens  int64 `json:"expired_tokens"`
	InactiveTokens int64 `json:"inactive_tokens"`
}
