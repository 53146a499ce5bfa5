package contracts

import "encoding/json"

// WS framing. Client -> server: command, ping, subscribe, unsubscribe.
// Server -> client: hello, pong, event, error. All frames are JSON text.

const (
	FrameCommand     = "command"
	FramePing        = "ping"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"

	FrameHello = "hello"
	FramePong  = "pong"
	FrameEvent = "event"
	FrameError = "error"
)

// ClientFrame is the decoded superset of every client -> server frame; Type
// selects which fields are meaningful.
type ClientFrame struct {
	Type        string          `json:"type"`
	ClientMsgID string          `json:"client_msg_id,omitempty"`
	Nonce       string          `json:"nonce,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Domain      string          `json:"domain,omitempty"`
	Command     string          `json:"command,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type HelloFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	HeartbeatSec int    `json:"heartbeat_sec"`
}

func NewHelloFrame(connectionID string, heartbeatSec int) HelloFrame {
	return HelloFrame{Type: FrameHello, ConnectionID: connectionID, HeartbeatSec: heartbeatSec}
}

type PongFrame struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
}

func NewPongFrame(nonce string) PongFrame {
	return PongFrame{Type: FramePong, Nonce: nonce}
}

// ServerEventStatus values on event frames.
const (
	EventStatusOK     = "ok"
	EventStatusUpdate = "update"
	EventStatusFinal  = "final"
)

type EventFrame struct {
	Type         string `json:"type"`
	Event        string `json:"event"`
	Status       string `json:"status"`
	Payload      any    `json:"payload"`
	RequestID    string `json:"request_id,omitempty"`
	Tick         *int64 `json:"tick,omitempty"`
	StateVersion *int64 `json:"state_version,omitempty"`
}

type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorFrame struct {
	Type      string   `json:"type"`
	Error     ErrorDTO `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

func NewErrorFrame(code, message, requestID string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Error: ErrorDTO{Code: code, Message: message}, RequestID: requestID}
}

// BroadcastFrame wraps a domain event fanned out to every session:
// {type:"event", topic:<routing_key>, payload:<body>}.
type BroadcastFrame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func NewBroadcastFrame(topic string, payload json.RawMessage) BroadcastFrame {
	return BroadcastFrame{Type: FrameEvent, Topic: topic, Payload: payload}
}
