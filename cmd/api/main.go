package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"equity-backtest/internal/api"
	"equity-backtest/internal/api/handlers"
	"equity-backtest/internal/config"
	"equity-backtest/internal/data"
	"equity-backtest/internal/logging"
	"equity-backtest/internal/metrics"
	"equity-backtest/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	sessionIdle     = 30 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	srv := config.LoadEnv(os.Getenv("BT_ENV_FILE"))

	var (
		logger *zap.Logger
		err    error
	)
	if srv.LogFile != "" {
		logger, err = logging.NewWithFile(srv.LogLevel, srv.LogFile)
	} else {
		logger, err = logging.New(srv.LogLevel)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(srv, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(srv config.Server, logger *zap.Logger) error {
	if srv.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(filepath.Dir(srv.DBPath), 0o755); err != nil {
		return err
	}
	store, err := storage.Open(srv.DBPath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()

	cache := data.NewDatasetCache(srv.CacheTTL)
	defer cache.Close()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	datasets := handlers.NewDatasetHandler(srv.DataDir, cache)
	sessions := handlers.NewSessionHandler(datasets, recorder, logger)
	defaults := config.Config{InitialCash: config.DefaultInitialCash, Workers: srv.Workers}

	router := api.NewRouter(api.Deps{
		Logger:       logger,
		Datasets:     datasets,
		Sessions:     sessions,
		Backtests:    handlers.NewBacktestHandler(datasets, store, recorder, logger, defaults),
		Strategies:   handlers.NewStrategyHandler(),
		Metrics:      metrics.Handler(prometheus.DefaultGatherer),
		AllowOrigins: srv.AllowOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, sessions, logger)

	httpServer := &http.Server{
		Addr:              ":" + srv.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server",
			zap.String("addr", httpServer.Addr),
			zap.String("env", srv.Env),
			zap.String("data_dir", srv.DataDir),
			zap.String("db", srv.DBPath))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func sweepSessions(ctx context.Context, sessions *handlers.SessionHandler, logger *zap.Logger) {
	t := time.NewTicker(sessionIdle / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := sessions.Sweep(sessionIdle); n > 0 {
				logger.Info("closed idle sessions", zap.Int("count", n))
			}
		}
	}
}
