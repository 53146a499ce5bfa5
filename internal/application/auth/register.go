package auth

import (
	"context"
	"strings"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Register creates an account with credentials. Duplicate username or email
// (case-insensitive) maps to auth.user_exists, including the race where two
// registrations pass the pre-check and collide on the unique index.
func (s *Service) Register(ctx context.Context, req contracts.RegisterRequest) (contracts.RegisterResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	taken, err := s.accounts.Exists(ctx, username, email)
	if err != nil {
		return contracts.RegisterResponse{}, err
	}
	if taken {
		return contracts.RegisterResponse{}, domain.ErrUserExists()
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return contracts.RegisterResponse{}, err
	}

	acc, err := s.accounts.Create(ctx, username, email, hash)
	if err != nil {
		return contracts.RegisterResponse{}, err
	}

	s.lg.Info().Int64("account_id", acc.ID).Str("username", acc.Username).Msg("account registered")
	return contracts.RegisterResponse{AccountID: acc.ID}, nil
}
