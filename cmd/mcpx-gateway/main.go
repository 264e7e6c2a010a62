package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kwonye/mcpx/pkg/gatewayhttp"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
)

func main() {
	configPath := flag.String("config", os.Getenv("MCPX_CONFIG"), "path to the gateway JSON configuration file")
	flag.Parse()
	if *configPath == "" {
		*configPath = "mcpx.json"
	}

	level := slog.LevelInfo
	if os.Getenv("MCPX_GATEWAY_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := mcpxconfig.NewFileSource(*configPath)
	front := gatewayhttp.New(source, mcpxconfig.MapStore{}, logger)

	logger.Info("starting mcpx gateway", "config", *configPath)
	if err := front.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}
