package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/security"
)

// AccountRepo is the persistence port for accounts + credentials.
type AccountRepo interface {
	GetByUsername(ctx context.Context, username string) (domain.Account, domain.Credentials, error)
	GetByID(ctx context.Context, id int64) (domain.Account, error)
	Exists(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, username, email, passwordHash string) (domain.Account, error)
	SetLastLogin(ctx context.Context, accountID int64, at time.Time) error
}

// RefreshTokenRepo is the persistence port for refresh-token records.
type RefreshTokenRepo interface {
	Insert(ctx context.Context, rec domain.RefreshToken) error
	GetByJTI(ctx context.Context, jti uuid.UUID) (domain.RefreshToken, error)
	Rotate(ctx context.Context, oldID int64, next domain.RefreshToken) error
	RevokeByJTI(ctx context.Context, jti uuid.UUID, at time.Time) error
}

// LoginGuard is the Redis-backed brute-force defense.
type LoginGuard interface {
	IsBanned(ctx context.Context, username string) (bool, error)
	RegisterFailure(ctx context.Context, username string) (banned bool, err error)
	Reset(ctx context.Context, username string) error
}

// PasswordHasher abstracts the adaptive KDF.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error // nil if match
}

// TokenManager mints and verifies the JWT pair.
type TokenManager interface {
	MintAccessToken(accountID int64, username string) (string, error)
	MintRefreshToken(accountID int64) (token string, jti uuid.UUID, expiresAt time.Time, err error)
	VerifyAccessToken(token string) (security.AccessClaims, error)
	VerifyRefreshToken(token string) (security.RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}
