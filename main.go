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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/runview/internal/config"
	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/hub"
	"github.com/xiaot623/runview/internal/logging"
	"github.com/xiaot623/runview/internal/repository"
	"github.com/xiaot623/runview/internal/service"
	"github.com/xiaot623/runview/internal/statestore"
	"github.com/xiaot623/runview/internal/stream"
	transporthttp "github.com/xiaot623/runview/internal/transport/http"
	"github.com/xiaot623/runview/internal/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "runview: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting runview",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("state_dir", cfg.StateDir),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("archive", cfg.DatabaseURL != ""),
	)

	// Initialize archive
	var archive repository.Store
	if cfg.DatabaseURL != "" {
		db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		defer db.Close()
		archive = db
	}

	// Initialize hub and service
	h := hub.NewHub(cfg.WSSendBuffer, logger)
	svc := service.New(statestore.NewReader(cfg.StateDir), h, archive, service.Options{
		Source:     domain.SnapshotSource{StateDir: cfg.StateDir, Live: cfg.StateLive},
		EventLimit: cfg.SnapshotEventLimit,
		Stream: stream.Config{
			MaxQueue:           cfg.StreamMaxQueue,
			MaxSeen:            cfg.StreamMaxSeen,
			MaxEmitPerSnapshot: cfg.StreamMaxEmitPerSnapshot,
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.PollOnce(ctx); err != nil {
		logger.Warn("initial poll failed", zap.Error(err))
	}

	wsServer := ws.NewServer(ws.Config{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, h, svc, logger)
	e := transporthttp.NewServer(svc, wsServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		svc.RunPoller(gctx, cfg.PollInterval)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.Addr()))
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		h.CloseAll()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("runview stopped")
	return nil
}
