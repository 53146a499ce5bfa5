package auth

import (
	"context"
	"time"

	"github.com/codexdlc/gatewaykit/internal/contracts"
)

// Logout revokes the refresh token behind the presented JWT. It is
// idempotent and never surfaces a failure: garbage tokens, unknown JTIs and
// already-revoked records all come back ok.
func (s *Service) Logout(ctx context.Context, req contracts.LogoutRequest) contracts.LogoutResponse {
	claims, err := s.jwt.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		s.lg.Debug().Msg("logout with undecodable refresh token; treated as no-op")
		return contracts.LogoutResponse{LoggedOut: true}
	}

	if err := s.tokens.RevokeByJTI(ctx, claims.JTI, time.Now()); err != nil {
		s.lg.Debug().Err(err).Msg("logout revoke failed; treated as no-op")
	}
	return contracts.LogoutResponse{LoggedOut: true}
}
