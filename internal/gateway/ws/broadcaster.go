package ws

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/contracts"
)

const broadcasterPrefetch = 32

// Broadcaster consumes this instance's exclusive broadcast queue (bound to
// the events topic with "#") and fans every event out to the local sessions.
// Cross-instance coverage falls out of each instance owning its own bound
// queue.
type Broadcaster struct {
	bus   dispatcherBus
	reg   *Registry
	queue string
	lg    zerolog.Logger
}

func NewBroadcaster(bus dispatcherBus, reg *Registry, queue string, lg zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		bus:   bus,
		reg:   reg,
		queue: queue,
		lg:    lg.With().Str("component", "event_broadcaster").Str("queue", queue).Logger(),
	}
}

func (b *Broadcaster) Start(ctx context.Context) error {
	return b.bus.Consume(ctx, b.queue, broadcasterPrefetch, b.onDelivery)
}

func (b *Broadcaster) onDelivery(_ context.Context, del amqp.Delivery) {
	b.Fanout(del.RoutingKey, del.Body)
	_ = del.Ack(false)
}

// Fanout wraps the payload as {type:"event", topic, payload} and sends it to
// every session. Exposed for tests.
func (b *Broadcaster) Fanout(topic string, payload []byte) int {
	if !json.Valid(payload) {
		b.lg.Warn().Str("topic", topic).Msg("non-JSON event payload; dropped")
		return 0
	}
	frame, err := json.Marshal(contracts.NewBroadcastFrame(topic, json.RawMessage(payload)))
	if err != nil {
		b.lg.Error().Err(err).Msg("broadcast frame marshal failed")
		return 0
	}
	sent := b.reg.Broadcast(topic, frame)
	b.lg.Debug().Str("topic", topic).Int("sessions", sent).Msg("event fanned out")
	return sent
}
