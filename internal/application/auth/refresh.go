package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/security"
)

// Refresh rotates a refresh token: the presented token must verify, match
// the stored hash and still be active; the old record is revoked and a fresh
// pair issued in one transaction. A rotated token can never be replayed.
func (s *Service) Refresh(ctx context.Context, req contracts.RefreshTokenRequest) (contracts.TokenPairResponse, error) {
	claims, err := s.jwt.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return contracts.TokenPairResponse{}, domain.ErrRefreshInvalid()
	}

	old, err := s.tokens.GetByJTI(ctx, claims.JTI)
	if err != nil {
		return contracts.TokenPairResponse{}, err
	}
	if !old.Active(time.Now()) {
		return contracts.TokenPairResponse{}, domain.ErrRefreshInvalid()
	}

	expected := security.HashRefreshToken(req.RefreshToken)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(old.TokenHash)) != 1 {
		return contracts.TokenPairResponse{}, domain.ErrRefreshInvalid()
	}

	acc, err := s.accounts.GetByID(ctx, old.AccountID)
	if err != nil {
		return contracts.TokenPairResponse{}, domain.ErrRefreshInvalid()
	}
	if !acc.CanLogin() {
		return contracts.TokenPairResponse{}, domain.ErrForbidden()
	}

	pair, rec, err := s.issuePair(ctx, acc, req.UserAgent, req.IP)
	if err != nil {
		return contracts.TokenPairResponse{}, err
	}
	if err := s.tokens.Rotate(ctx, old.ID, rec); err != nil {
		return contracts.TokenPairResponse{}, err
	}

	return pair, nil
}
