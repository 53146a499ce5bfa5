package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/domain"
)

// RPCHandlerFunc runs the domain logic for one RPC operation. It receives
// the extracted payload and returns either a data value or a domain error;
// the adapter turns both into the response envelope.
type RPCHandlerFunc func(ctx context.Context, payload []byte, correlationID string) (any, *domain.Error)

// replyPublisher is the slice of the bus the adapter needs for responses.
type replyPublisher interface {
	PublishRPCResponse(ctx context.Context, replyTo string, correlationID string, body any) error
}

// NewRPCHandler adapts a typed handler into a listener MessageHandler:
// extract the payload (unwrapping an envelope "payload" field when present),
// run the handler, normalize the result into the RPC response envelope and
// publish it to reply_to. Fire-and-forget requests (no reply_to) get their
// reply dropped. Retryable errors propagate so the listener rejects the
// delivery into the broker cycle instead of replying.
func NewRPCHandler(pub replyPublisher, fn RPCHandlerFunc, lg zerolog.Logger) MessageHandler {
	return func(ctx context.Context, body []byte, meta MessageMeta) error {
		payload := ExtractPayload(body)

		data, derr := fn(ctx, payload, meta.CorrelationID)
		if derr != nil && derr.Retryable() {
			return derr
		}

		var resp contracts.RPCResponse
		if derr != nil {
			resp = contracts.Fail(derr.Code, derr.Message, meta.CorrelationID)
		} else {
			resp = contracts.OK(data, meta.CorrelationID)
		}

		if meta.ReplyTo == "" {
			lg.Debug().Str("correlation_id", meta.CorrelationID).Msg("no reply_to; dropping RPC response")
			return nil
		}
		if err := pub.PublishRPCResponse(ctx, meta.ReplyTo, meta.CorrelationID, resp); err != nil {
			// Let the broker re-deliver; the handler is expected to be
			// idempotent at the domain level or fail terminally on replay.
			return err
		}
		return nil
	}
}

// ExtractPayload unwraps {"payload": {...}} envelopes; any other shape is
// treated as the payload itself.
func ExtractPayload(body []byte) []byte {
	var wrapper struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Payload) > 0 {
		return wrapper.Payload
	}
	return body
}

// ParseRPCResponse decodes a raw reply into the envelope; empty or
// malformed replies map to rpc.bad_response.
func ParseRPCResponse(raw []byte) (contracts.RPCResponse, error) {
	if len(raw) == 0 {
		return contracts.RPCResponse{}, domain.ErrRPCBadResponse(nil)
	}
	var resp contracts.RPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return contracts.RPCResponse{}, domain.ErrRPCBadResponse(err)
	}
	return resp, nil
}
