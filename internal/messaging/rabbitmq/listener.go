package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/metrics"
)

// MessageMeta is the AMQP metadata handed to message handlers.
type MessageMeta struct {
	MessageID     string
	CorrelationID string
	ReplyTo       string
	RoutingKey    string
	Exchange      string
	Redelivered   bool
	Headers       amqp.Table
}

// MessageHandler processes one validated delivery. A returned error rejects
// the delivery into the broker retry cycle.
type MessageHandler func(ctx context.Context, body []byte, meta MessageMeta) error

// listenerBus is the slice of the bus the listener needs; narrowed for
// tests.
type listenerBus interface {
	Consume(ctx context.Context, queue string, prefetch int, fn DeliveryHandler) error
	Publish(ctx context.Context, opts PublishOptions, body any) error
}

// ListenerConfig tunes one queue consumer.
type ListenerConfig struct {
	Name       string
	Queue      string
	Prefetch   int // 1 for RPC queues, higher for broadcast-style consumers
	Consumers  int
	MaxRetries int
	// Validate rejects structurally invalid envelopes before the handler
	// runs; failures are terminal (straight to the DLQ, no retries).
	Validate func(body []byte) error
}

// Listener consumes a queue and resolves every delivery in exactly one of
// {ack, DLQ-then-ack, reject-no-requeue}. Retries are driven by the broker
// clock through the DLX/retry cycle, never by in-process sleeps; the
// x-death count is the authoritative retry counter.
type Listener struct {
	cfg     ListenerConfig
	bus     listenerBus
	handler MessageHandler
	lg      zerolog.Logger
}

func NewListener(cfg ListenerConfig, bus listenerBus, handler MessageHandler, lg zerolog.Logger) *Listener {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = 1
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Queue
	}
	return &Listener{
		cfg:     cfg,
		bus:     bus,
		handler: handler,
		lg:      lg.With().Str("component", "listener").Str("queue", cfg.Queue).Logger(),
	}
}

// Start registers the consumer workers.
func (l *Listener) Start(ctx context.Context) error {
	for i := 0; i < l.cfg.Consumers; i++ {
		if err := l.bus.Consume(ctx, l.cfg.Queue, l.cfg.Prefetch, l.onDelivery); err != nil {
			return err
		}
	}
	l.lg.Info().
		Int("prefetch", l.cfg.Prefetch).
		Int("consumers", l.cfg.Consumers).
		Int("max_retries", l.cfg.MaxRetries).
		Msg("listener started")
	return nil
}

func (l *Listener) onDelivery(ctx context.Context, d amqp.Delivery) {
	n := DeathCount(d.Headers)
	// MaxRetries=0 still grants the first attempt; its rejection comes back
	// with n=1 and lands here.
	exhausted := n >= int64(l.cfg.MaxRetries)
	if l.cfg.MaxRetries <= 0 {
		exhausted = n > 0
	}
	if exhausted {
		l.lg.Error().
			Int64("retries", n).
			Str("message_id", d.MessageId).
			Msg("retry budget exhausted; moving to DLQ")
		l.moveToDLQ(ctx, d)
		return
	}

	if !json.Valid(d.Body) {
		l.lg.Warn().Str("message_id", d.MessageId).Msg("non-JSON body; moving to DLQ")
		l.moveToDLQ(ctx, d)
		return
	}
	if l.cfg.Validate != nil {
		if err := l.cfg.Validate(d.Body); err != nil {
			l.lg.Warn().Err(err).Str("message_id", d.MessageId).Msg("envelope validation failed; moving to DLQ")
			l.moveToDLQ(ctx, d)
			return
		}
	}

	meta := MessageMeta{
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		RoutingKey:    d.RoutingKey,
		Exchange:      d.Exchange,
		Redelivered:   d.Redelivered,
		Headers:       d.Headers,
	}

	if err := l.handler(ctx, d.Body, meta); err != nil {
		// Reject without requeue: the broker dead-letters into the retry
		// queue and re-delivers after its TTL.
		l.lg.Warn().Err(err).Str("message_id", d.MessageId).Int64("attempt", n).Msg("handler failed; rejecting into retry cycle")
		_ = d.Reject(false)
		metrics.Deliveries.WithLabelValues(l.cfg.Queue, "reject").Inc()
		return
	}

	_ = d.Ack(false)
	metrics.Deliveries.WithLabelValues(l.cfg.Queue, "ack").Inc()
}

// moveToDLQ republishes the original body to the DLX with the queue's DLQ
// routing key, then acks the delivery. If the republish itself fails the
// delivery is rejected into the retry cycle instead of being lost.
func (l *Listener) moveToDLQ(ctx context.Context, d amqp.Delivery) {
	err := l.bus.Publish(ctx, PublishOptions{
		Exchange:      ExchangeDLX,
		RoutingKey:    DLQName(l.cfg.Queue),
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		Persistent:    true,
	}, json.RawMessage(d.Body))
	if err != nil {
		l.lg.Error().Err(err).Msg("DLQ republish failed; rejecting delivery")
		_ = d.Reject(false)
		metrics.Deliveries.WithLabelValues(l.cfg.Queue, "reject").Inc()
		return
	}
	_ = d.Ack(false)
	metrics.Deliveries.WithLabelValues(l.cfg.Queue, "dlq").Inc()
}

// DeathCount reads the broker-stamped retry counter: x-death[0].count.
// Returns 0 when the delivery has not cycled through a dead-letter exchange.
func DeathCount(h amqp.Table) int64 {
	if h == nil {
		return 0
	}
	deaths, ok := h["x-death"].([]any)
	if !ok || len(deaths) == 0 {
		return 0
	}
	first, ok := deaths[0].(amqp.Table)
	if !ok {
		return 0
	}
	switch c := first["count"].(type) {
	case int64:
		return c
	case int32:
		return int64(c)
	case int:
		return int64(c)
	case float64:
		return int64(c)
	default:
		return 0
	}
}
