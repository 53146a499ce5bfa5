package auth

import (
	"context"
	"time"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Issue authenticates username/password and mints a token pair.
//
// Order matters: the ban flag is checked before any database work; every
// credential failure feeds the Redis window counter; a successful login
// clears the counter. The persistent failed_attempts column is intentionally
// not written here.
func (s *Service) Issue(ctx context.Context, req contracts.IssueTokenRequest) (contracts.TokenPairResponse, error) {
	if req.Username == "" || req.Password == "" {
		return contracts.TokenPairResponse{}, domain.ErrInvalidCredentials()
	}

	banned, err := s.guard.IsBanned(ctx, req.Username)
	if err != nil {
		return contracts.TokenPairResponse{}, err
	}
	if banned {
		s.lg.Warn().Str("username", req.Username).Msg("login rejected: principal is banned")
		return contracts.TokenPairResponse{}, domain.ErrForbidden()
	}

	acc, cred, err := s.accounts.GetByUsername(ctx, req.Username)
	if err != nil {
		if domain.Is(err, domain.CodeInvalidCredentials) {
			return contracts.TokenPairResponse{}, s.recordFailure(ctx, req.Username)
		}
		return contracts.TokenPairResponse{}, err
	}

	if !acc.CanLogin() {
		return contracts.TokenPairResponse{}, domain.ErrForbidden()
	}

	if err := s.hasher.Compare(cred.PasswordHash, req.Password); err != nil {
		return contracts.TokenPairResponse{}, s.recordFailure(ctx, req.Username)
	}

	if err := s.guard.Reset(ctx, req.Username); err != nil {
		return contracts.TokenPairResponse{}, err
	}

	pair, rec, err := s.issuePair(ctx, acc, req.UserAgent, req.IP)
	if err != nil {
		return contracts.TokenPairResponse{}, err
	}
	if err := s.tokens.Insert(ctx, rec); err != nil {
		return contracts.TokenPairResponse{}, err
	}
	if err := s.accounts.SetLastLogin(ctx, acc.ID, time.Now()); err != nil {
		return contracts.TokenPairResponse{}, err
	}

	return pair, nil
}

// recordFailure feeds the brute-force counter and always returns
// invalid_credentials so the caller cannot distinguish unknown user from bad
// password.
func (s *Service) recordFailure(ctx context.Context, username string) error {
	banned, err := s.guard.RegisterFailure(ctx, username)
	if err != nil {
		return err
	}
	if banned {
		s.lg.Warn().Str("username", username).Msg("principal banned after repeated login failures")
	}
	return domain.ErrInvalidCredentials()
}
