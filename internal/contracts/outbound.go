package contracts

import "encoding/json"

// Recipient selects the target session of an outbound frame. ConnectionID
// takes priority; AccountID addresses whichever connection of the account is
// local to this gateway instance.
type Recipient struct {
	AccountID    int64  `json:"account_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// OutboundEnvelope is the message shape backends put on the shared outbound
// queue for delivery to a connected client.
type OutboundEnvelope struct {
	Event     string          `json:"event" validate:"required"`
	Status    string          `json:"status" validate:"required,oneof=ok update error"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Recipient *Recipient      `json:"recipient,omitempty"`
	Final     bool            `json:"final,omitempty"`
	Error     *ErrorDTO       `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`

	Tick         *int64 `json:"tick,omitempty"`
	StateVersion *int64 `json:"state_version,omitempty"`
}

// Frame renders the envelope into the server -> client frame: error status
// becomes an error frame, everything else an event frame with the backend
// status mapped to the client-facing one (ok -> ok, update -> update,
// final=true -> final).
func (e OutboundEnvelope) Frame() any {
	if e.Status == "error" {
		err := ErrorDTO{Code: "common.internal_error", Message: "unhandled backend error"}
		if e.Error != nil {
			err = *e.Error
		}
		return ErrorFrame{Type: FrameError, Error: err, RequestID: e.RequestID}
	}

	status := EventStatusOK
	if e.Status == "update" {
		status = EventStatusUpdate
	}
	if e.Final {
		status = EventStatusFinal
	}
	var payload any
	if len(e.Payload) > 0 {
		payload = e.Payload
	} else {
		payload = map[string]any{}
	}
	return EventFrame{
		Type:         FrameEvent,
		Event:        e.Event,
		Status:       status,
		Payload:      payload,
		RequestID:    e.RequestID,
		Tick:         e.Tick,
		StateVersion: e.StateVersion,
	}
}
