package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/messaging/rabbitmq"
)

const (
	defaultClientType  = "player"
	commandPublishWait = 5 * time.Second
)

// gatewayBus is the slice of the bus the session plane uses: token checks
// over RPC and fire-and-forget command publishes.
type gatewayBus interface {
	CallRPC(ctx context.Context, exchange, routingKey string, payload any, correlationID string) ([]byte, error)
	Publish(ctx context.Context, opts rabbitmq.PublishOptions, body any) error
}

// sessionMeta is the identity a session carries through its read loop; it
// stamps every command envelope's auth/origin sections.
type sessionMeta struct {
	connID    string
	accountID int64
	ip        string
	userAgent string
}

// Handler upgrades HTTP requests into registered WS sessions: token check
// over RPC, hello frame, then the per-session read loop.
type Handler struct {
	bus          gatewayBus
	reg          *Registry
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	lg           zerolog.Logger
}

func NewHandler(bus gatewayBus, reg *Registry, pingInterval time.Duration, lg zerolog.Logger) *Handler {
	return &Handler{
		bus:          bus,
		reg:          reg,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect cross-origin through the edge; auth is
			// the bearer token, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		lg: lg.With().Str("component", "ws_handler").Logger(),
	}
}

// ServeHTTP implements GET /ws/v1/connect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if token == "" {
		closeConn(conn, ClosePolicy, "Token not provided")
		return
	}

	accountID, err := h.validateToken(r.Context(), token)
	if err != nil {
		// Could not reach the auth service; not the client's fault.
		closeConn(conn, CloseInternal, "Internal server error")
		return
	}
	if accountID == 0 {
		closeConn(conn, ClosePolicy, "Invalid token")
		return
	}

	meta := sessionMeta{
		connID:    NewConnectionID(accountID),
		accountID: accountID,
		ip:        remoteIP(r),
		userAgent: r.UserAgent(),
	}
	h.reg.Connect(conn, meta.connID, accountID, defaultClientType)
	h.lg.Info().Int64("account_id", accountID).Str("connection_id", meta.connID).Str("remote", r.RemoteAddr).Msg("ws connected")

	hello, _ := json.Marshal(contracts.NewHelloFrame(meta.connID, int(h.pingInterval/time.Second)))
	if !h.reg.Send(meta.connID, hello) {
		return
	}

	h.readLoop(conn, meta)
}

// validateToken asks the auth service over RPC. A non-nil error means the
// check itself failed (timeout, broker down); accountID 0 with nil error
// means the token was rejected.
func (h *Handler) validateToken(ctx context.Context, token string) (int64, error) {
	raw, err := h.bus.CallRPC(ctx, rabbitmq.ExchangeRPC, rabbitmq.QueueAuthValidateToken,
		contracts.ValidateTokenRequest{AccessToken: token}, "")
	if err != nil {
		h.lg.Warn().Err(err).Msg("token validation RPC failed")
		return 0, err
	}
	resp, err := rabbitmq.ParseRPCResponse(raw)
	if err != nil || !resp.Success {
		return 0, nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return 0, nil
	}
	var v contracts.ValidateTokenResponse
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, nil
	}
	if !v.Valid || v.AccountID == 0 {
		return 0, nil
	}
	return v.AccountID, nil
}

// readLoop owns the session until the client disconnects or the sweeper
// closes it. Every inbound frame counts as activity.
func (h *Handler) readLoop(conn *websocket.Conn, meta sessionMeta) {
	defer func() {
		h.reg.Disconnect(meta.connID)
		_ = conn.Close()
	}()

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			h.lg.Debug().Err(err).Str("connection_id", meta.connID).Msg("ws read ended")
			return
		}
		h.reg.UpdateActivity(meta.connID)

		if msgType != websocket.TextMessage {
			continue
		}

		var frame contracts.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(meta.connID, domain.CodeValidationFailed, "frame is not valid JSON")
			continue
		}
		h.handleFrame(meta, frame)
	}
}

func (h *Handler) handleFrame(meta sessionMeta, frame contracts.ClientFrame) {
	switch frame.Type {
	case contracts.FramePing:
		pong, _ := json.Marshal(contracts.NewPongFrame(frame.Nonce))
		h.reg.Send(meta.connID, pong)

	case contracts.FrameSubscribe:
		if frame.Topic == "" {
			h.sendError(meta.connID, domain.CodeValidationFailed, "subscribe requires a topic")
			return
		}
		h.reg.Subscribe(meta.connID, frame.Topic)

	case contracts.FrameUnsubscribe:
		if frame.Topic == "" {
			h.sendError(meta.connID, domain.CodeValidationFailed, "unsubscribe requires a topic")
			return
		}
		h.reg.Unsubscribe(meta.connID, frame.Topic)

	case contracts.FrameCommand:
		if frame.Domain == "" || frame.Command == "" {
			h.sendError(meta.connID, domain.CodeValidationFailed, "command requires domain and command")
			return
		}
		h.forwardCommand(meta, frame)

	default:
		h.sendError(meta.connID, domain.CodeValidationFailed, "unknown frame type")
	}
}

// forwardCommand publishes the frame to the command exchange for backend
// workers. Fire-and-forget: failures are logged, never reported to the
// client; results come back through the outbound queue or the events topic.
func (h *Handler) forwardCommand(meta sessionMeta, frame contracts.ClientFrame) {
	env := contracts.InboundCommandEnvelope{
		Routing: contracts.CommandRouting{Domain: frame.Domain, Command: frame.Command},
		Auth:    contracts.CommandAuth{AccountID: meta.accountID},
		Origin: contracts.CommandOrigin{
			Transport:    contracts.TransportWS,
			ConnectionID: meta.connID,
			IP:           meta.ip,
			UserAgent:    meta.userAgent,
		},
		Payload:     frame.Payload,
		ClientMsgID: frame.ClientMsgID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandPublishWait)
	defer cancel()

	err := h.bus.Publish(ctx, rabbitmq.PublishOptions{
		Exchange:   rabbitmq.ExchangeCommands,
		RoutingKey: contracts.CommandRoutingKey(frame.Domain, frame.Command),
		MessageID:  uuid.NewString(),
		Persistent: true,
	}, env)
	if err != nil {
		h.lg.Warn().Err(err).
			Str("connection_id", meta.connID).
			Str("domain", frame.Domain).
			Str("command", frame.Command).
			Msg("command publish failed; dropped")
	}
}

func (h *Handler) sendError(connID, code, message string) {
	frame, _ := json.Marshal(contracts.NewErrorFrame(code, message, ""))
	h.reg.Send(connID, frame)
}

// tokenFromRequest pulls the bearer token from the Authorization header or
// the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func remoteIP(r *http.Request) string {
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
