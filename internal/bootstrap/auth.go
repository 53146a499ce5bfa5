// Package bootstrap wires each binary's dependencies with explicit
// constructors and runs the ordered startup/shutdown sequence.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codexdlc/gatewaykit/internal/application/auth"
	"github.com/codexdlc/gatewaykit/internal/config"
	"github.com/codexdlc/gatewaykit/internal/health"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/postgres"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/redis"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/security"
	"github.com/codexdlc/gatewaykit/internal/logger"
	"github.com/codexdlc/gatewaykit/internal/messaging/rabbitmq"
	transport "github.com/codexdlc/gatewaykit/internal/transport/rpc"
)

// RunAuthService starts the auth service and blocks until ctx is cancelled.
// Startup order: container (bus + DB + Redis), topology, listeners.
// Shutdown runs in reverse.
func RunAuthService(ctx context.Context, cfg *config.Config) error {
	lg := logger.For("auth_service")

	if err := cfg.RequireAuth(); err != nil {
		return err
	}

	// 1. Container
	db, err := postgres.Open(cfg.DB.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rds, err := redis.NewClient(redis.Options{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rds.Close() }()
	if err := rds.Ping(ctx); err != nil {
		return err
	}

	bus := rabbitmq.NewBus(rabbitmq.Config{
		DSN:            cfg.Broker.DSN,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		RPCTimeout:     cfg.Broker.RPCTimeout,
	}, logger.Logger)
	bus.SetReconnectHook(func(context.Context) error {
		return rabbitmq.DeclareAuthTopology(bus, cfg.Broker.RPCRetryDelay)
	})
	if err := bus.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	// 2. Topology
	if err := rabbitmq.DeclareAuthTopology(bus, cfg.Broker.RPCRetryDelay); err != nil {
		return err
	}

	// 3. Domain wiring
	slots := security.NewHashSlots(runtime.NumCPU())
	defer slots.Stop()

	hasher := security.NewBcryptHasher(12, slots)
	tokens := security.NewTokenManager(security.TokenManagerConfig{
		Secret:          cfg.JWT.Secret,
		Issuer:          cfg.JWT.Issuer,
		Audience:        cfg.JWT.Audience,
		AccessTTL:       cfg.JWT.AccessTTL,
		RefreshTTL:      cfg.JWT.RefreshTTL,
		AcceptLegacyAud: cfg.JWT.AcceptLegacyAud,
	})
	guard := redis.NewLoginGuard(rds, cfg.Redis.LoginMaxAttempts, cfg.Redis.LoginWindowTTL, cfg.Redis.LoginBanTTL)

	svc := auth.NewService(
		postgres.NewAccountRepo(db, cfg.DB.Schema),
		postgres.NewRefreshTokenRepo(db, cfg.DB.Schema),
		guard,
		hasher,
		tokens,
		logger.Logger,
	)

	// 4. Listeners, one per RPC queue
	routes := []struct {
		queue   string
		handler rabbitmq.RPCHandlerFunc
	}{
		{rabbitmq.QueueAuthRegister, transport.Register(svc)},
		{rabbitmq.QueueAuthIssueToken, transport.IssueToken(svc)},
		{rabbitmq.QueueAuthRefreshToken, transport.RefreshToken(svc)},
		{rabbitmq.QueueAuthLogout, transport.Logout(svc)},
		{rabbitmq.QueueAuthValidateToken, transport.ValidateToken(svc)},
	}
	for _, route := range routes {
		listener := rabbitmq.NewListener(rabbitmq.ListenerConfig{
			Queue:      route.queue,
			Prefetch:   1,
			Consumers:  1,
			MaxRetries: cfg.Broker.RPCMaxRetries,
		}, bus, rabbitmq.NewRPCHandler(bus, route.handler, logger.Logger), logger.Logger)
		if err := listener.Start(ctx); err != nil {
			return err
		}
	}

	// 5. Health surface: readiness reflects bus, DB and Redis state.
	probes := health.NewHandler()
	probes.AddProbe("bus", func(context.Context) error {
		if !bus.IsReady() {
			return errors.New("bus not connected")
		}
		return nil
	})
	probes.AddProbe("db", func(ctx context.Context) error { return db.PingContext(ctx) })
	probes.AddProbe("redis", rds.Ping)

	mux := chi.NewRouter()
	mux.Get("/healthz", probes.Live)
	mux.Get("/readyz", probes.Ready)
	mux.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{Addr: cfg.Gateway.HTTPAddr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Warn().Err(err).Msg("health listener stopped")
		}
	}()

	lg.Info().Msg("auth service started")
	<-ctx.Done()
	lg.Info().Msg("auth service stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	return nil
}
