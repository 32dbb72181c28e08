package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/config"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Listen address")
	flag.StringVar(&cfg.Storage.DataFile, "data", cfg.Storage.DataFile, "Path of the bookmark JSON file")
	flag.StringVar(&cfg.Storage.SeedFile, "seed", cfg.Storage.SeedFile, "Seed file (JSON, YAML or TOML) used when the data file is missing")
	flag.BoolVar(&cfg.Storage.Watch, "watch", cfg.Storage.Watch, "Watch the data file for external edits")
	flag.BoolVar(&cfg.Storage.ReloadOnExternalChange, "reload", cfg.Storage.ReloadOnExternalChange, "Adopt external edits instead of restoring the file")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development mode (colored debug logs)")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level: debug, info, warn, error")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" && !cfg.Logging.Development {
		logCfg.Level = cfg.Logging.Level
	}
	logCfg.File = cfg.Logging.File

	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
