// Package rpc wires the auth application service onto the RPC queues: one
// typed handler per operation, each decoding and validating its request
// before delegating.
package rpc

import (
	"context"

	"github.com/codexdlc/gatewaykit/internal/application/auth"
	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/messaging/rabbitmq"
)

func Register(svc *auth.Service) rabbitmq.RPCHandlerFunc {
	return func(ctx context.Context, payload []byte, _ string) (any, *domain.Error) {
		var req contracts.RegisterRequest
		if derr := contracts.DecodeAndValidate(payload, &req); derr != nil {
			return nil, derr
		}
		res, err := svc.Register(ctx, req)
		if err != nil {
			return nil, domain.AsError(err)
		}
		return res, nil
	}
}

func IssueToken(svc *auth.Service) rabbitmq.RPCHandlerFunc {
	return func(ctx context.Context, payload []byte, _ string) (any, *domain.Error) {
		var req contracts.IssueTokenRequest
		if derr := contracts.DecodeAndValidate(payload, &req); derr != nil {
			return nil, derr
		}
		res, err := svc.Issue(ctx, req)
		if err != nil {
			return nil, domain.AsError(err)
		}
		return res, nil
	}
}

func RefreshToken(svc *auth.Service) rabbitmq.RPCHandlerFunc {
	return func(ctx context.Context, payload []byte, _ string) (any, *domain.Error) {
		var req contracts.RefreshTokenRequest
		if derr := contracts.DecodeAndValidate(payload, &req); derr != nil {
			return nil, derr
		}
		res, err := svc.Refresh(ctx, req)
		if err != nil {
			return nil, domain.AsError(err)
		}
		return res, nil
	}
}

func Logout(svc *auth.Service) rabbitmq.RPCHandlerFunc {
	return func(ctx context.Context, payload []byte, _ string) (any, *domain.Error) {
		var req contracts.LogoutRequest
		if derr := contracts.DecodeAndValidate(payload, &req); derr != nil {
			// Logout is idempotent even for unparsable requests; an empty
			// token still comes back ok.
			return contracts.LogoutResponse{LoggedOut: true}, nil
		}
		return svc.Logout(ctx, req), nil
	}
}

// ValidateToken always replies success=true; token problems surface inside
// the data as valid=false with a diagnostic code, never as an RPC error.
func ValidateToken(svc *auth.Service) rabbitmq.RPCHandlerFunc {
	return func(ctx context.Context, payload []byte, _ string) (any, *domain.Error) {
		var req contracts.ValidateTokenRequest
		if derr := contracts.DecodeAndValidate(payload, &req); derr != nil {
			return nil, derr
		}
		return svc.Validate(ctx, req), nil
	}
}
