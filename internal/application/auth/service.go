package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/security"
)

// Service holds the auth business logic behind the RPC queues.
type Service struct {
	accounts AccountRepo
	tokens   RefreshTokenRepo
	guard    LoginGuard
	hasher   PasswordHasher
	jwt      TokenManager
	lg       zerolog.Logger
}

func NewService(
	accounts AccountRepo,
	tokens RefreshTokenRepo,
	guard LoginGuard,
	hasher PasswordHasher,
	jwt TokenManager,
	lg zerolog.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		guard:    guard,
		hasher:   hasher,
		jwt:      jwt,
		lg:       lg.With().Str("component", "auth_service").Logger(),
	}
}

// issuePair mints the access/refresh pair and persists the refresh record.
// Used by Issue directly; Refresh persists via Rotate instead.
func (s *Service) issuePair(ctx context.Context, acc domain.Account, userAgent, ip string) (contracts.TokenPairResponse, domain.RefreshToken, error) {
	access, err := s.jwt.MintAccessToken(acc.ID, acc.Username)
	if err != nil {
		return contracts.TokenPairResponse{}, domain.RefreshToken{}, err
	}
	refresh, jti, expiresAt, err := s.jwt.MintRefreshToken(acc.ID)
	if err != nil {
		return contracts.TokenPairResponse{}, domain.RefreshToken{}, err
	}

	rec := domain.RefreshToken{
		AccountID: acc.ID,
		JTI:       jti,
		TokenHash: security.HashRefreshToken(refresh),
		UserAgent: userAgent,
		IP:        ip,
		ExpiresAt: expiresAt,
	}
	pair := contracts.TokenPairResponse{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwt.AccessTTL() / time.Second),
		AccountID:    acc.ID,
	}
	return pair, rec, nil
}
