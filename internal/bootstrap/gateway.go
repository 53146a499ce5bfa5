package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/codexdlc/gatewaykit/internal/config"
	"github.com/codexdlc/gatewaykit/internal/gateway/httpapi"
	"github.com/codexdlc/gatewaykit/internal/gateway/ws"
	"github.com/codexdlc/gatewaykit/internal/health"
	"github.com/codexdlc/gatewaykit/internal/logger"
	"github.com/codexdlc/gatewaykit/internal/messaging/rabbitmq"
)

// RunGateway starts the edge service and blocks until ctx is cancelled.
// Startup order: bus, topology, registry + consumers, background tasks,
// HTTP server. Shutdown cancels background tasks, drains HTTP, then closes
// the bus.
func RunGateway(ctx context.Context, cfg *config.Config) error {
	lg := logger.For("gateway")

	bus := rabbitmq.NewBus(rabbitmq.Config{
		DSN:            cfg.Broker.DSN,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		RPCTimeout:     cfg.Broker.RPCTimeout,
	}, logger.Logger)

	broadcastQueue := rabbitmq.BroadcastQueueName()
	bus.SetReconnectHook(func(context.Context) error {
		// The exclusive broadcast queue died with the old connection.
		return rabbitmq.DeclareGatewayTopology(bus, broadcastQueue)
	})
	if err := bus.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	if err := rabbitmq.DeclareGatewayTopology(bus, broadcastQueue); err != nil {
		return err
	}

	registry := ws.NewRegistry(logger.Logger)

	dispatcher := ws.NewDispatcher(bus, registry, logger.Logger)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	broadcaster := ws.NewBroadcaster(bus, registry, broadcastQueue, logger.Logger)
	if err := broadcaster.Start(ctx); err != nil {
		return err
	}

	// Background tasks
	bgCtx, cancelBG := context.WithCancel(ctx)
	defer cancelBG()
	sweeper := ws.NewSweeper(registry, cfg.Gateway.PingInterval, cfg.Gateway.IdleTimeout, logger.Logger)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(bgCtx)
	}()

	// HTTP surface
	probes := health.NewHandler()
	probes.AddProbe("bus", func(context.Context) error {
		if !bus.IsReady() {
			return errors.New("bus not connected")
		}
		return nil
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:   httpapi.NewAuthHandlers(bus, logger.Logger),
		Health: probes,
		WS:     ws.NewHandler(bus, registry, cfg.Gateway.PingInterval, logger.Logger),
		Lg:     logger.Logger,
	})

	srv := &http.Server{
		Addr:         cfg.Gateway.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", cfg.Gateway.HTTPAddr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info().Msg("gateway stopping")
	cancelBG()
	<-sweeperDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
