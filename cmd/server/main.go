package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quotebroker/internal/api"
	"quotebroker/internal/app"
	"quotebroker/internal/config"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv("CONFIG_FILE")); err != nil {
		logger.GetLogger().WithComponent("server").WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := logger.GetLogger().Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	metrics.Init()
	log := logger.GetLogger().WithComponent("server")

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := a.Scheduler(ctx)
	if err := sched.Register(); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := newHTTPServer(cfg, api.NewServer(a.Quotes, a.Growth, a.Store, api.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}).Router())

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logger.Fields{"port": cfg.Server.Port, "storage": cfg.Storage.Driver}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	write := cfg.RequestTimeout() + 5*time.Second
	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       60 * time.Second,
	}
}
