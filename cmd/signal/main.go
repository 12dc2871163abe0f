package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"streamhub/pkg/config"
	"streamhub/pkg/logger"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/streamhub/config.yaml",
		"config.yaml",
	}
	if p := os.Getenv("STREAMHUB_CONFIG"); p != "" {
		configPaths = append([]string{p}, configPaths...)
	}

	cfg, path, err := config.LoadFirst(configPaths...)
	if err != nil {
		logger.New("info").Sugar().Fatalw("Invalid configuration", "path", path, "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if path == "" {
		log.Info("No config file found, using defaults")
	} else {
		log.Infow("Loaded config", "path", path)
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to build server", "error", err)
	}
	if err := srv.run(ctx); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Signaling server stopped")
}
