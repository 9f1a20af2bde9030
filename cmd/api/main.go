package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aidqr/aidqr/internal/api"
	"github.com/aidqr/aidqr/internal/config"
	"github.com/aidqr/aidqr/internal/qrcode"
	"github.com/aidqr/aidqr/internal/quota"
	"github.com/aidqr/aidqr/internal/server"
	"github.com/aidqr/aidqr/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("aidqr stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	loc, err := cfg.Ledger.Location()
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	renderer, err := qrcode.NewPNGRenderer(cfg.QR.Size, cfg.QR.Level)
	if err != nil {
		return fmt.Errorf("creating qr renderer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", cfg.Storage.Driver, err)
	}
	defer backend.Close()

	// Ledger: a failed load is logged, the service starts empty and saves
	// are held until the first new record.
	ledger := quota.NewLedger(backend)
	_ = ledger.Load(ctx)

	svc := quota.NewService(ledger, renderer, quota.Config{
		KeyTTL:   cfg.Ledger.KeyTTL,
		Location: loc,
	})
	handler := quota.NewHandler(svc)
	scheduler := quota.NewScheduler(ledger, cfg.Ledger.ResetInterval, svc.Now)

	// Router
	router := api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		StorageName:        backend.Driver,
		StorageReady:       backend.Ping,
	}, api.HandlerSet{
		IssueWater:  handler.IssueWater,
		IssueMeals:  handler.IssueMeals,
		Scan:        handler.Scan,
		QuotaStatus: handler.Status,
	})

	srv := server.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	runErr := g.Wait()

	// Final flush so the last acknowledged state is stored.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ledger.Persist(flushCtx); err == nil {
		slog.Info("ledger flushed", "records", ledger.Len())
	}

	if runErr != nil {
		return fmt.Errorf("serving: %w", runErr)
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
