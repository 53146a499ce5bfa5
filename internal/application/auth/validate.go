package auth

import (
	"context"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Validate verifies an access token. Signature, expiry and audience checks
// only; no database access on this path.
func (s *Service) Validate(_ context.Context, req contracts.ValidateTokenRequest) contracts.ValidateTokenResponse {
	claims, err := s.jwt.VerifyAccessToken(req.AccessToken)
	if err != nil {
		de := domain.AsError(err)
		return contracts.ValidateTokenResponse{
			Valid:        false,
			ErrorCode:    de.Code,
			ErrorMessage: de.Message,
		}
	}
	return contracts.ValidateTokenResponse{
		Valid:     true,
		AccountID: claims.AccountID,
		ClientID:  claims.Audience,
		Scopes:    claims.Scopes,
		Exp:       claims.ExpiresAt.Unix(),
	}
}
