package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/metrics"
)

const (
	// Reconnect backoff bounds for the supervisor loop.
	reconnectBackoffMin = 1 * time.Second
	reconnectBackoffMax = 30 * time.Second

	// Window to observe a publisher confirm (or a mandatory return) before a
	// publish is treated as failed.
	publishConfirmWait = 2 * time.Second
)

// ErrUnroutable is surfaced when a mandatory publish is returned by the
// broker because no queue is bound to the routing key.
var ErrUnroutable = errors.New("publish returned: no route")

// DeliveryHandler receives raw broker deliveries; ack/nack is the handler's
// responsibility (the listener framework decides the outcome).
type DeliveryHandler func(ctx context.Context, d amqp.Delivery)

// PublishOptions carries the AMQP properties of one publish.
type PublishOptions struct {
	Exchange      string
	RoutingKey    string
	MessageID     string
	CorrelationID string
	ReplyTo       string
	Headers       amqp.Table
	Persistent    bool
	Mandatory     bool
}

// Config tunes the bus.
type Config struct {
	DSN            string
	ConnectTimeout time.Duration
	RPCTimeout     time.Duration
}

type consumerSpec struct {
	queue    string
	prefetch int
	fn       DeliveryHandler
}

// Bus is the AMQP client shared by every service: publisher confirms on the
// publish channel, topology declaration, JSON publish/consume and direct
// reply-to RPC. A supervisor goroutine re-establishes the connection, the
// reply consumer and every registered consumer after a broker outage.
type Bus struct {
	cfg Config
	lg  zerolog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
	connClose chan *amqp.Error
	ready     bool
	closing   bool

	pending *pendingCalls

	cmu       sync.Mutex
	consumers []consumerSpec

	// redeclare is invoked after every reconnect, before consumers are
	// re-subscribed, so ephemeral topology (exclusive broadcast queues) can
	// be rebuilt.
	redeclare func(ctx context.Context) error

	done chan struct{}
	wg   sync.WaitGroup
}

func NewBus(cfg Config, lg zerolog.Logger) *Bus {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 5 * time.Second
	}
	return &Bus{
		cfg:     cfg,
		lg:      lg.With().Str("component", "message_bus").Logger(),
		pending: newPendingCalls(),
		done:    make(chan struct{}),
	}
}

// SetReconnectHook registers the topology re-declaration callback. Must be
// set before Connect.
func (b *Bus) SetReconnectHook(fn func(ctx context.Context) error) {
	b.redeclare = fn
}

// Connect dials the broker with bounded backoff and fails once the connect
// deadline passes. On success the publish channel is put in confirm mode and
// the direct reply-to consumer is started.
func (b *Bus) Connect(ctx context.Context) error {
	deadline := time.Now().Add(b.cfg.ConnectTimeout)
	backoff := reconnectBackoffMin
	attempt := 0
	for {
		attempt++
		err := b.setup(ctx)
		if err == nil {
			b.lg.Info().Int("attempt", attempt).Msg("connected to broker")
			b.wg.Add(1)
			go b.supervise(ctx)
			return nil
		}
		if time.Now().After(deadline) {
			return domain.ErrBusUnavailable(fmt.Errorf("connect timeout after %d attempts: %w", attempt, err))
		}
		b.lg.Warn().Err(err).Dur("backoff", backoff).Msg("broker connect failed; retrying")
		select {
		case <-ctx.Done():
			return domain.ErrBusUnavailable(ctx.Err())
		case <-time.After(backoff):
		}
		backoff = minDur(backoff*2, reconnectBackoffMax)
	}
}

// setup opens the connection, the confirm-mode publish channel and the reply
// consumer.
func (b *Bus) setup(ctx context.Context) error {
	conn, err := amqp.Dial(b.cfg.DSN)
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("publish channel: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	replyCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("reply channel: %w", err)
	}
	// The pseudo-queue requires auto-ack and must not be declared.
	replies, err := replyCh.Consume(replyToPseudoQueue, "", true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("reply consume: %w", err)
	}

	connClose := make(chan *amqp.Error, 1)
	conn.NotifyClose(connClose)

	b.mu.Lock()
	b.conn = conn
	b.pubCh = pubCh
	b.confirmCh = pubCh.NotifyPublish(make(chan amqp.Confirmation, 32))
	b.returnCh = pubCh.NotifyReturn(make(chan amqp.Return, 32))
	b.connClose = connClose
	b.ready = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.handleReplies(replies)
	return nil
}

// supervise watches for unexpected connection loss and drives reconnection,
// topology re-declaration and consumer re-subscription.
func (b *Bus) supervise(ctx context.Context) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		connClose := b.connClose
		b.mu.Unlock()

		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		case amqpErr, ok := <-connClose:
			if !ok || b.isClosing() {
				return
			}
			b.lg.Warn().Err(amqpErr).Msg("broker connection lost; reconnecting")
			b.markDown()
			if !b.reconnect(ctx) {
				return
			}
		}
	}
}

func (b *Bus) reconnect(ctx context.Context) bool {
	backoff := reconnectBackoffMin
	for {
		if b.isClosing() {
			return false
		}
		select {
		case <-b.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if err := b.setup(ctx); err != nil {
			b.lg.Warn().Err(err).Dur("backoff", backoff).Msg("reconnect failed")
			backoff = minDur(backoff*2, reconnectBackoffMax)
			continue
		}
		if b.redeclare != nil {
			if err := b.redeclare(ctx); err != nil {
				b.lg.Error().Err(err).Msg("topology re-declaration failed after reconnect")
			}
		}
		b.resubscribe(ctx)
		b.lg.Info().Msg("broker connection re-established")
		return true
	}
}

// markDown flags the bus unavailable and fails every in-flight RPC future;
// their replies can never arrive on the dead reply channel.
func (b *Bus) markDown() {
	b.mu.Lock()
	b.ready = false
	b.mu.Unlock()
	b.pending.failAll()
}

func (b *Bus) isClosing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closing
}

// IsReady reports connection state for readiness probes.
func (b *Bus) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready && !b.closing
}

// Close stops the supervisor, fails in-flight RPC callers and closes the
// connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil
	}
	b.closing = true
	b.ready = false
	conn := b.conn
	b.mu.Unlock()

	close(b.done)
	b.pending.failAll()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	b.wg.Wait()
	return err
}

// handleReplies routes direct reply-to deliveries to their pending futures.
// Replies with unknown correlation ids are logged and dropped.
func (b *Bus) handleReplies(replies <-chan amqp.Delivery) {
	defer b.wg.Done()
	for d := range replies {
		if d.CorrelationId == "" {
			b.lg.Warn().Msg("RPC reply without correlation id; dropped")
			continue
		}
		if !b.pending.resolve(d.CorrelationId, d.Body) {
			b.lg.Warn().Str("correlation_id", d.CorrelationId).Msg("RPC reply for unknown correlation id; dropped")
		}
	}
}

// ---- topology ----

// DeclareExchange is idempotent.
func (b *Bus) DeclareExchange(name, kind string, durable bool) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(name, kind, durable, false, false, false, nil); err != nil {
		return domain.ErrBusUnavailable(fmt.Errorf("exchange declare %s: %w", name, err))
	}
	return nil
}

// DeclareQueue is idempotent; args support the dead-letter and TTL keys.
func (b *Bus) DeclareQueue(name string, durable, exclusive, autoDelete bool, args amqp.Table) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(name, durable, autoDelete, exclusive, false, args); err != nil {
		return domain.ErrBusUnavailable(fmt.Errorf("queue declare %s: %w", name, err))
	}
	return nil
}

// BindQueue is idempotent.
func (b *Bus) BindQueue(queue, exchange, routingKey string) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return domain.ErrBusUnavailable(fmt.Errorf("queue bind %s -> %s (%s): %w", queue, exchange, routingKey, err))
	}
	return nil
}

func (b *Bus) channel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready || b.pubCh == nil {
		return nil, domain.ErrBusUnavailable(errors.New("not connected"))
	}
	return b.pubCh, nil
}

// ---- publish ----

// Publish serializes body as JSON and publishes it, blocking until the
// broker confirms acceptance or returns the message. One publish at a time
// holds the channel so confirms pair with their publish.
func (b *Bus) Publish(ctx context.Context, opts PublishOptions, body any) error {
	raw, err := marshalBody(body)
	if err != nil {
		return domain.ErrInternal(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready || b.pubCh == nil {
		return domain.ErrBusUnavailable(errors.New("not connected"))
	}

	mode := amqp.Transient
	if opts.Persistent {
		mode = amqp.Persistent
	}
	pub := amqp.Publishing{
		ContentType:   "application/json",
		Body:          raw,
		DeliveryMode:  mode,
		Timestamp:     time.Now().UTC(),
		MessageId:     opts.MessageID,
		CorrelationId: opts.CorrelationID,
		ReplyTo:       opts.ReplyTo,
		Headers:       opts.Headers,
	}

	if err := b.pubCh.PublishWithContext(ctx, opts.Exchange, opts.RoutingKey, opts.Mandatory, false, pub); err != nil {
		metrics.BusPublishFailures.Inc()
		return domain.ErrBusUnavailable(err)
	}

	if err := b.waitConfirm(ctx, opts); err != nil {
		metrics.BusPublishFailures.Inc()
		return err
	}
	metrics.BusPublished.WithLabelValues(opts.Exchange).Inc()
	return nil
}

// waitConfirm blocks until the broker acks the publish, returns it
// (mandatory, no route) or the window expires. Caller holds b.mu, so
// confirms observed here belong to the publish just issued.
func (b *Bus) waitConfirm(ctx context.Context, opts PublishOptions) error {
	timer := time.NewTimer(publishConfirmWait)
	defer timer.Stop()

	for {
		select {
		case ret := <-b.returnCh:
			b.lg.Warn().
				Str("exchange", ret.Exchange).
				Str("routing_key", ret.RoutingKey).
				Uint16("code", ret.ReplyCode).
				Str("reason", ret.ReplyText).
				Msg("publish returned by broker")
			return ErrUnroutable

		case c := <-b.confirmCh:
			if !c.Ack {
				return domain.ErrBusUnavailable(fmt.Errorf("publish nacked (exchange=%q rk=%q)", opts.Exchange, opts.RoutingKey))
			}
			return nil

		case <-timer.C:
			return domain.ErrBusUnavailable(errors.New("publish confirm timeout"))

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PublishRPCResponse sends a non-persistent reply to the default exchange
// with the correlation id echoed.
func (b *Bus) PublishRPCResponse(ctx context.Context, replyTo string, correlationID string, body any) error {
	return b.Publish(ctx, PublishOptions{
		Exchange:      "",
		RoutingKey:    replyTo,
		CorrelationID: correlationID,
		Persistent:    false,
		Mandatory:     false,
	}, body)
}

// ---- RPC ----

// CallRPC publishes a request with reply_to set to the direct reply-to
// pseudo-queue and waits for the correlated reply. A missing correlation id
// is minted. The pending future is always removed on the way out.
func (b *Bus) CallRPC(ctx context.Context, exchange, routingKey string, payload any, correlationID string) ([]byte, error) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	reply := b.pending.register(correlationID)
	defer b.pending.remove(correlationID)

	err := b.Publish(ctx, PublishOptions{
		Exchange:      exchange,
		RoutingKey:    routingKey,
		MessageID:     uuid.NewString(),
		CorrelationID: correlationID,
		ReplyTo:       replyToPseudoQueue,
		Persistent:    true,
		Mandatory:     true,
	}, payload)
	if err != nil {
		if errors.Is(err, ErrUnroutable) {
			metrics.RPCClientCalls.WithLabelValues("timeout").Inc()
			return nil, domain.ErrRPCTimeout()
		}
		metrics.RPCClientCalls.WithLabelValues("error").Inc()
		return nil, err
	}

	timer := time.NewTimer(b.cfg.RPCTimeout)
	defer timer.Stop()

	select {
	case body, ok := <-reply:
		if !ok {
			// bus went down while waiting
			metrics.RPCClientCalls.WithLabelValues("timeout").Inc()
			return nil, domain.ErrRPCTimeout()
		}
		metrics.RPCClientCalls.WithLabelValues("ok").Inc()
		return body, nil
	case <-timer.C:
		metrics.RPCClientCalls.WithLabelValues("timeout").Inc()
		return nil, domain.ErrRPCTimeout()
	case <-ctx.Done():
		metrics.RPCClientCalls.WithLabelValues("timeout").Inc()
		return nil, domain.ErrRPCTimeout()
	}
}

// PendingRPCCount reports in-flight RPC futures (tests, diagnostics).
func (b *Bus) PendingRPCCount() int { return b.pending.size() }

// ---- consume ----

// Consume registers a manual-ack consumer with its own channel and QoS. The
// registration survives reconnects.
func (b *Bus) Consume(ctx context.Context, queue string, prefetch int, fn DeliveryHandler) error {
	spec := consumerSpec{queue: queue, prefetch: prefetch, fn: fn}
	if err := b.startConsumer(ctx, spec); err != nil {
		return err
	}
	b.cmu.Lock()
	b.consumers = append(b.consumers, spec)
	b.cmu.Unlock()
	return nil
}

func (b *Bus) startConsumer(ctx context.Context, spec consumerSpec) error {
	b.mu.Lock()
	conn := b.conn
	ready := b.ready
	b.mu.Unlock()
	if !ready || conn == nil {
		return domain.ErrBusUnavailable(errors.New("not connected"))
	}

	ch, err := conn.Channel()
	if err != nil {
		return domain.ErrBusUnavailable(err)
	}
	if spec.prefetch > 0 {
		if err := ch.Qos(spec.prefetch, 0, false); err != nil {
			_ = ch.Close()
			return domain.ErrBusUnavailable(err)
		}
	}
	deliveries, err := ch.Consume(spec.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return domain.ErrBusUnavailable(fmt.Errorf("consume %s: %w", spec.queue, err))
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for d := range deliveries {
			spec.fn(ctx, d)
		}
		b.lg.Debug().Str("queue", spec.queue).Msg("consumer deliveries closed")
	}()
	return nil
}

func (b *Bus) resubscribe(ctx context.Context) {
	b.cmu.Lock()
	specs := make([]consumerSpec, len(b.consumers))
	copy(specs, b.consumers)
	b.cmu.Unlock()

	for _, spec := range specs {
		if err := b.startConsumer(ctx, spec); err != nil {
			b.lg.Error().Err(err).Str("queue", spec.queue).Msg("consumer re-subscribe failed")
		}
	}
}

func marshalBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
