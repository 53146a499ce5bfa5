package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/codexdlc/gatewaykit/internal/bootstrap"
	"github.com/codexdlc/gatewaykit/internal/config"
	"github.com/codexdlc/gatewaykit/internal/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.RunGateway(ctx, cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("gateway exited with error")
	}
}
