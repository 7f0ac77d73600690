package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/flashdeck/internal/config"
	"github.com/conorfennell/flashdeck/internal/fsrs"
	"github.com/conorfennell/flashdeck/internal/logging"
	"github.com/conorfennell/flashdeck/internal/seed"
	"github.com/conorfennell/flashdeck/internal/storage"
	"github.com/conorfennell/flashdeck/internal/study"
	"github.com/conorfennell/flashdeck/internal/sync"
	"github.com/conorfennell/flashdeck/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened successfully", "path", cfg.DB)

	syncer := sync.NewSyncer(db, cfg.Sync.ReposDir, cfg.Sync.FetchLimit, logger)
	if cfg.Command == "sync" {
		report, err := syncer.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d sources: %d cards added, %d removed, %d errors.\n",
			report.Sources, report.Inserted, report.Orphaned, report.Errors)
		return nil
	}

	if cfg.Demo.Seed {
		var guard seed.Guard
		created, err := seed.EnsureDemoDeck(ctx, &guard, db, time.Now().UTC())
		if err != nil {
			return err
		}
		if created {
			logger.Info("Created demo deck")
		}
	}

	params, err := cfg.SchedulerParams()
	if err != nil {
		return err
	}
	scheduler, err := fsrs.NewScheduler(params, cfg.Rand())
	if err != nil {
		return err
	}
	sampler := study.NewSampler(cfg.SamplerWeights(), cfg.Rand())
	svc := study.NewService(db, scheduler, sampler, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           web.NewServer(db, svc, syncer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
