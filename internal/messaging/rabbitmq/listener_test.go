package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// fakeAcker records the single outcome of a delivery.
type fakeAcker struct {
	mu       sync.Mutex
	acks     int
	rejects  int
	requeues int
}

func (f *fakeAcker) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	return f.Reject(0, requeue)
}

func (f *fakeAcker) Reject(_ uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	if requeue {
		f.requeues++
	}
	return nil
}

// fakeBus records publishes and consume registrations.
type fakeBus struct {
	mu         sync.Mutex
	published  []PublishOptions
	bodies     [][]byte
	publishErr error
	consumed   []string
}

func (f *fakeBus) Consume(_ context.Context, queue string, _ int, _ DeliveryHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, queue)
	return nil
}

func (f *fakeBus) Publish(_ context.Context, opts PublishOptions, body any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, opts)
	if raw, ok := body.([]byte); ok {
		f.bodies = append(f.bodies, raw)
	} else if raw, ok := body.(interface{ MarshalJSON() ([]byte, error) }); ok {
		b, _ := raw.MarshalJSON()
		f.bodies = append(f.bodies, b)
	}
	return nil
}

func deathHeaders(count int64) amqp.Table {
	return amqp.Table{
		"x-death": []any{
			amqp.Table{"count": count, "queue": "q", "reason": "rejected"},
		},
	}
}

func newTestListener(bus *fakeBus, maxRetries int, handler MessageHandler) *Listener {
	return NewListener(ListenerConfig{
		Queue:      "core.auth.rpc.issue_token.v1",
		MaxRetries: maxRetries,
	}, bus, handler, zerolog.Nop())
}

func TestDeathCount(t *testing.T) {
	cases := []struct {
		name string
		h    amqp.Table
		want int64
	}{
		{"nil headers", nil, 0},
		{"no x-death", amqp.Table{}, 0},
		{"count int64", deathHeaders(3), 3},
		{"count int32", amqp.Table{"x-death": []any{amqp.Table{"count": int32(2)}}}, 2},
		{"malformed entry", amqp.Table{"x-death": []any{"garbage"}}, 0},
		{"empty list", amqp.Table{"x-death": []any{}}, 0},
	}
	for _, tc := range cases {
		if got := DeathCount(tc.h); got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestListener_SuccessAcks(t *testing.T) {
	bus := &fakeBus{}
	handled := 0
	l := newTestListener(bus, 3, func(context.Context, []byte, MessageMeta) error {
		handled++
		return nil
	})

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		Body:         []byte(`{"username":"alice"}`),
	})

	if handled != 1 {
		t.Fatalf("handler not invoked")
	}
	if acker.acks != 1 || acker.rejects != 0 {
		t.Fatalf("expected exactly one ack, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if len(bus.published) != 0 {
		t.Fatalf("no publish expected on success")
	}
}

func TestListener_HandlerErrorRejectsNoRequeue(t *testing.T) {
	bus := &fakeBus{}
	l := newTestListener(bus, 3, func(context.Context, []byte, MessageMeta) error {
		return errors.New("transient db blip")
	})

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		Body:         []byte(`{}`),
	})

	if acker.rejects != 1 || acker.acks != 0 {
		t.Fatalf("expected exactly one reject, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if acker.requeues != 0 {
		t.Fatalf("reject must not requeue; broker cycle owns the retry")
	}
}

func TestListener_BudgetExhaustedGoesToDLQ(t *testing.T) {
	bus := &fakeBus{}
	l := newTestListener(bus, 3, func(context.Context, []byte, MessageMeta) error {
		t.Fatalf("handler must not run once the budget is exhausted")
		return nil
	})

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger:  acker,
		Body:          []byte(`{}`),
		CorrelationId: "c-9",
		Headers:       deathHeaders(3),
	})

	if acker.acks != 1 || acker.rejects != 0 {
		t.Fatalf("DLQ path must ack the original, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one DLQ publish")
	}
	pub := bus.published[0]
	if pub.Exchange != ExchangeDLX {
		t.Fatalf("DLQ publish must target the DLX, got %q", pub.Exchange)
	}
	if pub.RoutingKey != "core.auth.rpc.issue_token.v1.dlq" {
		t.Fatalf("unexpected DLQ routing key %q", pub.RoutingKey)
	}
	if pub.CorrelationID != "c-9" {
		t.Fatalf("correlation id must survive the DLQ hop")
	}
}

func TestListener_BelowBudgetRunsHandler(t *testing.T) {
	bus := &fakeBus{}
	handled := 0
	l := newTestListener(bus, 3, func(context.Context, []byte, MessageMeta) error {
		handled++
		return nil
	})

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		Body:         []byte(`{}`),
		Headers:      deathHeaders(2),
	})

	if handled != 1 {
		t.Fatalf("two cycles with budget three must still run the handler")
	}
}

func TestListener_ZeroRetriesFirstAttemptStillRuns(t *testing.T) {
	bus := &fakeBus{}
	handled := 0
	l := newTestListener(bus, 0, func(context.Context, []byte, MessageMeta) error {
		handled++
		return errors.New("boom")
	})

	// Fresh delivery: attempted, failure rejected into the cycle.
	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{Acknowledger: acker, Body: []byte(`{}`)})
	if handled != 1 || acker.rejects != 1 {
		t.Fatalf("first attempt must run and reject, handled=%d rejects=%d", handled, acker.rejects)
	}

	// First redelivery (x-death=1): straight to DLQ.
	acker2 := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker2,
		Body:         []byte(`{}`),
		Headers:      deathHeaders(1),
	})
	if handled != 1 {
		t.Fatalf("redelivery with zero budget must not run the handler")
	}
	if acker2.acks != 1 || len(bus.published) != 1 {
		t.Fatalf("redelivery must be DLQ-forwarded and acked")
	}
}

func TestListener_InvalidJSONGoesToDLQ(t *testing.T) {
	bus := &fakeBus{}
	l := newTestListener(bus, 3, func(context.Context, []byte, MessageMeta) error {
		t.Fatalf("handler must not see invalid JSON")
		return nil
	})

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		Body:         []byte(`{not json`),
	})

	if acker.acks != 1 || len(bus.published) != 1 {
		t.Fatalf("invalid body must be DLQ-forwarded and acked, acks=%d publishes=%d", acker.acks, len(bus.published))
	}
}

func TestListener_ValidateFailureGoesToDLQ(t *testing.T) {
	bus := &fakeBus{}
	l := NewListener(ListenerConfig{
		Queue:      "q1",
		MaxRetries: 3,
		Validate: func([]byte) error {
			return domain.ErrValidationFailed("missing field")
		},
	}, bus, func(context.Context, []byte, MessageMeta) error {
		t.Fatalf("handler must not run on validation failure")
		return nil
	}, zerolog.Nop())

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		Body:         []byte(`{}`),
	})

	if acker.acks != 1 || len(bus.published) != 1 {
		t.Fatalf("schema-invalid message must be DLQ-forwarded, never retried")
	}
	if bus.published[0].RoutingKey != "q1.dlq" {
		t.Fatalf("unexpected DLQ routing key %q", bus.published[0].RoutingKey)
	}
}

func TestListener_DLQPublishFailureRejects(t *testing.T) {
	bus := &fakeBus{publishErr: errors.New("broker down")}
	l := newTestListener(bus, 3, nil)

	acker := &fakeAcker{}
	l.onDelivery(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		Body:         []byte(`{}`),
		Headers:      deathHeaders(5),
	})

	if acker.rejects != 1 || acker.acks != 0 {
		t.Fatalf("failed DLQ publish must fall back to reject, acks=%d rejects=%d", acker.acks, acker.rejects)
	}
}

func TestListener_StartRegistersConsumers(t *testing.T) {
	bus := &fakeBus{}
	l := NewListener(ListenerConfig{Queue: "q", Consumers: 3},
		bus, func(context.Context, []byte, MessageMeta) error { return nil }, zerolog.Nop())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.consumed) != 3 {
		t.Fatalf("expected 3 consumer registrations, got %d", len(bus.consumed))
	}
}
