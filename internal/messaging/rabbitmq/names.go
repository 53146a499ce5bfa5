package rabbitmq

import (
	"crypto/rand"
	"encoding/hex"
)

// Exchange and queue names are part of the wire contract shared with every
// backend; change them only with a version bump.
const (
	ExchangeRPC      = "core.rpc.v1"
	ExchangeEvents   = "core.events.v1"
	ExchangeDLX      = "core.dlx.v1"
	ExchangeCommands = "core.commands.v1"

	QueueAuthIssueToken    = "core.auth.rpc.issue_token.v1"
	QueueAuthValidateToken = "core.auth.rpc.validate_token.v1"
	QueueAuthRegister      = "core.auth.rpc.register.v1"
	QueueAuthRefreshToken  = "core.auth.rpc.refresh_token.v1"
	QueueAuthLogout        = "core.auth.rpc.logout.v1"

	QueueGatewayOutbound = "core.gateway.queue.ws_outbound.v1"

	broadcastQueuePrefix = "gateway.events.broadcast."

	// replyToPseudoQueue is the broker-provided direct reply-to pseudo-queue.
	// Consuming it requires auto-ack and no declaration.
	replyToPseudoQueue = "amq.rabbitmq.reply-to"
)

// RetryQueueName derives the delayed-retry queue of an RPC base queue.
func RetryQueueName(base string) string { return base + ".retry" }

// DLQName derives the dead-letter queue of an RPC base queue.
func DLQName(base string) string { return base + ".dlq" }

// BroadcastQueueName mints the per-instance broadcast queue name.
func BroadcastQueueName() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return broadcastQueuePrefix + hex.EncodeToString(b)
}
