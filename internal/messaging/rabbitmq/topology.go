package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// declarer is the slice of the bus the topology code needs.
type declarer interface {
	DeclareExchange(name, kind string, durable bool) error
	DeclareQueue(name string, durable, exclusive, autoDelete bool, args amqp.Table) error
	BindQueue(queue, exchange, routingKey string) error
}

// DeclareCoreExchanges declares the three shared exchanges. Idempotent.
func DeclareCoreExchanges(bus declarer) error {
	if err := bus.DeclareExchange(ExchangeRPC, "direct", true); err != nil {
		return err
	}
	if err := bus.DeclareExchange(ExchangeEvents, "topic", true); err != nil {
		return err
	}
	return bus.DeclareExchange(ExchangeDLX, "direct", true)
}

// DeclareRPCQueueWithRetry declares the retry triad for one RPC base queue:
//
//	Q.dlq   <- DLX (rk Q.dlq)
//	Q.retry <- DLX (rk Q.retry), TTL retryDelay, dead-letters back to RPC/Q
//	Q       <- RPC (rk Q), dead-letters to DLX/Q.retry
//
// A rejected message on Q cycles Q -> Q.retry -> (TTL) -> Q, with the broker
// stamping x-death on each pass.
func DeclareRPCQueueWithRetry(bus declarer, base string, retryDelay time.Duration) error {
	retryQueue := RetryQueueName(base)
	dlq := DLQName(base)

	if err := bus.DeclareQueue(dlq, true, false, false, nil); err != nil {
		return err
	}
	if err := bus.BindQueue(dlq, ExchangeDLX, dlq); err != nil {
		return err
	}

	if err := bus.DeclareQueue(retryQueue, true, false, false, amqp.Table{
		"x-message-ttl":             retryDelay.Milliseconds(),
		"x-dead-letter-exchange":    ExchangeRPC,
		"x-dead-letter-routing-key": base,
	}); err != nil {
		return err
	}
	if err := bus.BindQueue(retryQueue, ExchangeDLX, retryQueue); err != nil {
		return err
	}

	if err := bus.DeclareQueue(base, true, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLX,
		"x-dead-letter-routing-key": retryQueue,
	}); err != nil {
		return err
	}
	return bus.BindQueue(base, ExchangeRPC, base)
}

// AuthRPCQueues lists the queues the auth service consumes.
func AuthRPCQueues() []string {
	return []string{
		QueueAuthIssueToken,
		QueueAuthValidateToken,
		QueueAuthRegister,
		QueueAuthRefreshToken,
		QueueAuthLogout,
	}
}

// DeclareAuthTopology declares everything the auth service needs.
func DeclareAuthTopology(bus declarer, retryDelay time.Duration) error {
	if err := DeclareCoreExchanges(bus); err != nil {
		return err
	}
	for _, q := range AuthRPCQueues() {
		if err := DeclareRPCQueueWithRetry(bus, q, retryDelay); err != nil {
			return err
		}
	}
	return nil
}

// DeclareGatewayTopology declares the gateway's durable outbound queue plus
// its exclusive per-instance broadcast queue bound to the events topic with
// pattern "#". The broadcast queue name must be re-minted per declaration
// round since the queue auto-deletes with its connection. The command
// exchange is declared here too; backend workers bind their own queues to
// it with cmd.<domain>.<command> patterns.
func DeclareGatewayTopology(bus declarer, broadcastQueue string) error {
	if err := DeclareCoreExchanges(bus); err != nil {
		return err
	}
	if err := bus.DeclareExchange(ExchangeCommands, "topic", true); err != nil {
		return err
	}
	if err := bus.DeclareQueue(QueueGatewayOutbound, true, false, false, nil); err != nil {
		return err
	}
	if err := bus.DeclareQueue(broadcastQueue, false, true, true, nil); err != nil {
		return err
	}
	return bus.BindQueue(broadcastQueue, ExchangeEvents, "#")
}
