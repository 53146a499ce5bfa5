package ws

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/contracts"
	"github.com/codexdlc/gatewaykit/internal/messaging/rabbitmq"
)

const dispatcherPrefetch = 64

// dispatcherBus is the slice of the bus the dispatcher consumes through.
type dispatcherBus interface {
	Consume(ctx context.Context, queue string, prefetch int, fn rabbitmq.DeliveryHandler) error
}

// Dispatcher consumes the shared outbound queue and routes each envelope to
// its target session. Delivery is best-effort at the WS boundary: broker
// durability stops at the queue, so every delivery is acked regardless of
// whether a local session accepted the frame (another instance may own the
// session).
type Dispatcher struct {
	bus dispatcherBus
	reg *Registry
	lg  zerolog.Logger
}

func NewDispatcher(bus dispatcherBus, reg *Registry, lg zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		bus: bus,
		reg: reg,
		lg:  lg.With().Str("component", "outbound_dispatcher").Logger(),
	}
}

// Start subscribes to the outbound queue.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.bus.Consume(ctx, rabbitmq.QueueGatewayOutbound, dispatcherPrefetch, d.onDelivery)
}

func (d *Dispatcher) onDelivery(_ context.Context, del amqp.Delivery) {
	d.Dispatch(del.Body, del.CorrelationId)
	_ = del.Ack(false)
}

// Dispatch renders and delivers one outbound envelope. Exposed for tests.
func (d *Dispatcher) Dispatch(body []byte, correlationID string) {
	var env contracts.OutboundEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		d.lg.Warn().Err(err).Str("correlation_id", correlationID).Msg("invalid outbound envelope; dropped")
		return
	}
	if derr := contracts.Validate(&env); derr != nil {
		d.lg.Warn().Err(derr).Str("correlation_id", correlationID).Msg("outbound envelope failed validation; dropped")
		return
	}

	frame, err := json.Marshal(env.Frame())
	if err != nil {
		d.lg.Error().Err(err).Msg("outbound frame marshal failed")
		return
	}

	if env.Recipient == nil || (env.Recipient.ConnectionID == "" && env.Recipient.AccountID == 0) {
		d.lg.Info().Str("event", env.Event).Str("request_id", env.RequestID).Msg("outbound envelope without recipient; dropped")
		return
	}

	delivered := false
	if env.Recipient.ConnectionID != "" {
		delivered = d.reg.Send(env.Recipient.ConnectionID, frame)
	} else {
		delivered = d.reg.SendToAccount(env.Recipient.AccountID, frame)
	}
	if !delivered {
		// No live session here; another instance may own it.
		d.lg.Debug().
			Str("event", env.Event).
			Str("connection_id", env.Recipient.ConnectionID).
			Int64("account_id", env.Recipient.AccountID).
			Msg("no local session for outbound frame")
	}
}
