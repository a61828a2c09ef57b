package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/wheelsched/internal/api"
	"github.com/SirClappington/wheelsched/internal/app"
	"github.com/SirClappington/wheelsched/internal/config"
	"github.com/SirClappington/wheelsched/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()

	handler := api.New(rt.Scheduler, logger, api.WithSubmitRate(cfg.SubmitRate, cfg.SubmitBurst))
	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return rt.Run(ctx, func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			logger.Info("http listening", zap.String("addr", cfg.APIAddr), zap.String("env", cfg.AppEnv))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "http server")
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("http shutting down")
			return srv.Shutdown(shutdownCtx)
		}
	})
}
