package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clts "predictor/clients"
	"predictor/config"
	"predictor/internal/app"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Environment variables, overlaid by CONFIG_FILE when set
	configPath := config.FilePath()
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", configPath), zap.Error(err))
	}
	logger.Info("starting predictor", zap.Bool("isProd", cfg.IsProd), zap.String("configFile", configPath))

	if result := cfg.Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid config", zap.String("field", e.Field), zap.String("error", e.Message))
		}
		logger.Fatal("config validation failed", zap.Error(cfg.Err()))
	}

	liveConfig := config.NewLiveConfig(cfg)

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	// SIGHUP re-reads the config file
	if configPath != "" {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-hup:
					if err := liveConfig.Reload(configPath); err != nil {
						logger.Warn("config reload rejected", zap.String("path", configPath), zap.Error(err))
					} else {
						logger.Info("config reloaded", zap.String("path", configPath))
					}
				}
			}
		}()
	}

	runner := app.NewRunner(clients, liveConfig)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
