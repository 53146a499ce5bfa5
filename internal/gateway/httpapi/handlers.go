package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/messaging/rabbitmq"
)

const maxBodyBytes = 64 << 10

// RPCCaller is the bus surface the REST handlers forward through.
type RPCCaller interface {
	CallRPC(ctx context.Context, exchange, routingKey string, payload any, correlationID string) ([]byte, error)
}

// AuthHandlers is the REST facade over the auth RPC queues. Handlers decode
// and validate locally, forward over the bus and translate the response
// envelope into HTTP.
type AuthHandlers struct {
	bus RPCCaller
	lg  zerolog.Logger
}

func NewAuthHandlers(bus RPCCaller, lg zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{bus: bus, lg: lg.With().Str("component", "auth_routes").Logger()}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req contracts.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.forward(w, r, rabbitmq.QueueAuthRegister, req, http.StatusCreated)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req contracts.IssueTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserAgent = r.UserAgent()
	req.IP = clientIP(r)
	h.forward(w, r, rabbitmq.QueueAuthIssueToken, req, http.StatusOK)
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req contracts.RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserAgent = r.UserAgent()
	req.IP = clientIP(r)
	h.forward(w, r, rabbitmq.QueueAuthRefreshToken, req, http.StatusOK)
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req contracts.LogoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.forward(w, r, rabbitmq.QueueAuthLogout, req, http.StatusOK)
}

// Me validates the bearer token and echoes the token identity. Protected
// route example; no database behind it.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeErrorCode(w, domain.CodeInvalidToken, "missing bearer token")
		return
	}
	resp, err := h.call(r.Context(), rabbitmq.QueueAuthValidateToken, contracts.ValidateTokenRequest{AccessToken: token})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !resp.Success {
		writeErrorCode(w, resp.ErrorCode, resp.Message)
		return
	}
	var v contracts.ValidateTokenResponse
	if !remarshal(resp.Data, &v) {
		writeDomainError(w, domain.ErrRPCBadResponse(nil))
		return
	}
	if !v.Valid {
		code := v.ErrorCode
		if code == "" {
			code = domain.CodeInvalidToken
		}
		writeErrorCode(w, code, v.ErrorMessage)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// decode reads and validates the JSON body; failures are answered directly.
func (h *AuthHandlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErrorCode(w, domain.CodeValidationFailed, "unreadable body")
		return false
	}
	if derr := contracts.DecodeAndValidate(body, dst); derr != nil {
		writeErrorCode(w, derr.Code, derr.Message)
		return false
	}
	return true
}

// forward performs the RPC and writes the mapped HTTP response.
func (h *AuthHandlers) forward(w http.ResponseWriter, r *http.Request, queue string, payload any, okStatus int) {
	resp, err := h.call(r.Context(), queue, payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !resp.Success {
		writeErrorCode(w, resp.ErrorCode, resp.Message)
		return
	}
	writeJSON(w, okStatus, resp.Data)
}

func (h *AuthHandlers) call(ctx context.Context, queue string, payload any) (contracts.RPCResponse, error) {
	raw, err := h.bus.CallRPC(ctx, rabbitmq.ExchangeRPC, queue, payload, "")
	if err != nil {
		return contracts.RPCResponse{}, err
	}
	return rabbitmq.ParseRPCResponse(raw)
}

func remarshal(data any, dst any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}
