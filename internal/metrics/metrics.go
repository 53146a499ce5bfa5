package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewaykit_bus_published_total",
		Help: "Messages published to the broker by exchange.",
	}, []string{"exchange"})

	BusPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gatewaykit_bus_publish_failures_total",
		Help: "Publishes that failed confirm or were returned unroutable.",
	})

	RPCClientCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewaykit_rpc_client_calls_total",
		Help: "RPC calls issued over the bus by outcome (ok, timeout, error).",
	}, []string{"outcome"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewaykit_deliveries_total",
		Help: "Broker deliveries by queue and outcome (ack, dlq, reject).",
	}, []string{"queue", "outcome"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gatewaykit_ws_sessions",
		Help: "Live WebSocket sessions on this instance.",
	})

	WSFramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatewaykit_ws_frames_sent_total",
		Help: "Frames sent to WebSocket clients by kind.",
	}, []string{"kind"})
)
