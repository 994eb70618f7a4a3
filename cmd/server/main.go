package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/Tyrowin/rtchat/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "rtchat: %v\n", err)
		os.Exit(2)
	}

	logger, level, err := server.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtchat: %v\n", err)
		os.Exit(2)
	}

	runtime.GOMAXPROCS(cfg.Workers)

	if err := server.WatchConfig(cfg.ConfigFile, level, logger); err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}

	logger.Info("starting rtchat",
		zap.String("addr", cfg.Port),
		zap.Int("workers", cfg.Workers),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(cfg, logger).Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}
