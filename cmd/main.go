package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chainpulse/blockwatch/client/evmrpc"
	"github.com/chainpulse/blockwatch/client/pool"
	"github.com/chainpulse/blockwatch/client/restapi"
	"github.com/chainpulse/blockwatch/client/tendermint"
	"github.com/chainpulse/blockwatch/config"
	"github.com/chainpulse/blockwatch/delivery"
	"github.com/chainpulse/blockwatch/estimation"
	"github.com/chainpulse/blockwatch/scheduler"
	"github.com/chainpulse/blockwatch/server"
	"github.com/chainpulse/blockwatch/store/postgres"
)

func init() {
	// always use UTC
	time.Local = time.UTC
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.Parse()
	if err != nil {
		logger.Error("Failed to parse config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.New(postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	wrkPool, err := pool.NewWorkerPool(cfg.MaxConcurrentRequests)
	if err != nil {
		logger.Error("Failed to create worker pool", "error", err)
		os.Exit(1)
	}
	defer wrkPool.Release()

	httpClient := pool.NewHTTPClient(logger, cfg.SourceTimeout)
	aggregator := estimation.NewAggregator(
		logger,
		cfg.Endpoints(),
		evmrpc.New(logger, httpClient, wrkPool),
		tendermint.New(logger, httpClient, wrkPool),
		restapi.New(logger, httpClient, wrkPool),
		cfg.SourceTimeout,
	)
	estimator := estimation.NewService(logger, aggregator)

	sched := scheduler.New(
		logger,
		estimator,
		postgres.NewWatchRepo(db),
		postgres.NewNotificationRepo(db),
		delivery.NewWebhookSender(logger, cfg.WebhookTimeout),
		db,
		scheduler.Config{SubscribeTimeout: cfg.SubscribeTimeout},
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(logger, estimator, sched, cfg.CycleToken).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if cfg.CycleInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runCycleLoop(ctx, logger, sched, cfg.CycleInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting HTTP server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	// handle Interrupt (ctrl-c) and Term, used by `kill` et al
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	s := <-quit
	logger.Warn("Caught UNIX signal", "signal", s)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	// wait for all goroutines to finish
	wg.Wait()
}

// runCycleLoop drives unattended processing cycles. Cycles run strictly in
// sequence: the ticker fires, one cycle completes, then the loop waits for
// the next tick.
func runCycleLoop(ctx context.Context, logger *slog.Logger, sched *scheduler.Scheduler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cycle loop stopping")
			return
		case <-ticker.C:
			results, err := sched.RunCycle(ctx)
			if err != nil {
				if errors.Is(err, scheduler.ErrCycleBusy) {
					logger.Warn("Skipping cycle, lock is held elsewhere")
					continue
				}
				logger.Error("Cycle failed", "error", err)
				continue
			}
			if len(results) > 0 {
				logger.Info("Cycle processed items", "count", len(results))
			}
		}
	}
}
