package domain

import (
	"time"

	"github.com/google/uuid"
)

type AccountStatus string

const (
	StatusActive  AccountStatus = "active"
	StatusBanned  AccountStatus = "banned"
	StatusDeleted AccountStatus = "deleted"
)

type AccountRole string

const (
	RoleUser  AccountRole = "user"
	RoleAdmin AccountRole = "admin"
)

// Account is the identity record. Owns one Credentials row and many
// RefreshTokens.
type Account struct {
	ID        int64
	Username  string
	Email     string // stored lower-cased, unique case-insensitive
	Status    AccountStatus
	Role      AccountRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanLogin reports whether the account status permits token issuance.
func (a Account) CanLogin() bool {
	return a.Status == StatusActive
}

// Credentials is one-to-one with Account. FailedAttempts/LockedUntil are
// legacy columns kept for schema compatibility; the login hot path tracks
// failures in Redis only.
type Credentials struct {
	AccountID         int64
	PasswordHash      string
	PasswordUpdatedAt time.Time
	LastLoginAt       *time.Time
	FailedAttempts    int
	LockedUntil       *time.Time
}

// RefreshToken is the persisted record of an issued refresh JWT. Only the
// SHA-256 of the token text is stored, never the token itself.
type RefreshToken struct {
	ID        int64
	AccountID int64
	JTI       uuid.UUID
	TokenHash string
	UserAgent string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Active reports the invariant: revoked_at IS NULL AND expires_at > now.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}
