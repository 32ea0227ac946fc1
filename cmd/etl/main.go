package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sheets-etl/internal/app"
	"github.com/noah-isme/sheets-etl/pkg/config"
	appErrors "github.com/noah-isme/sheets-etl/pkg/errors"
	"github.com/noah-isme/sheets-etl/pkg/logger"
)

// Process exit codes.
const (
	exitOK           = 0
	exitTableFailure = 1
	exitFatal        = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return exitFatal
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return exitFatal
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Pipeline.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
		defer cancel()
	}

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Error("startup failed", zap.String("error_code", appErrors.FromError(err).Code), zap.Error(err))
		return exitFatal
	}
	defer a.Close()

	summary, err := a.Pipeline.Run(ctx)

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if pushErr := a.Metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); pushErr != nil {
		logr.Warn("metrics not pushed", zap.Error(pushErr))
	}

	switch {
	case err != nil:
		logr.Error("run aborted", zap.String("error_code", appErrors.FromError(err).Code), zap.Error(err))
		return exitFatal
	case !summary.Succeeded():
		return exitTableFailure
	default:
		return exitOK
	}
}
