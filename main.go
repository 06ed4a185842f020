package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/grabtube/grabtube/server"
	"github.com/grabtube/grabtube/server/config"
	"github.com/joho/godotenv"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "conf", "./config.yml", "Config file path")
	flag.Parse()

	// optional .env overlay for ${VAR} references in the config file
	godotenv.Load()

	cfg := config.Instance()
	if err := cfg.Load(configFile); err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	if cfg.Downloads.Concurrency <= 0 {
		cfg.Downloads.Concurrency = 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.Int("concurrency", cfg.Downloads.Concurrency),
	)

	if err := server.Run(ctx); err != nil {
		slog.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	slog.Info("server exited cleanly")
}
