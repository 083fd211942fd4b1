// Command reconcile periodically re-unlocks collection entries for owned
// creatures whose unlock was lost after a partial failure.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/hatchery/internal/bootstrap"
	"example.com/hatchery/internal/config"
	"example.com/hatchery/internal/domain"
)

func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "hatchery-reconcile")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	cat, err := bootstrap.LoadCatalog(ctx, cfg.CatalogPath, store, logger)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	coordinator := domain.NewCoordinator(cat, domain.Stores{
		Inventory:  store,
		Collection: store,
		Ownership:  store,
	}, domain.WithLogger(logger))

	pass := func() {
		repaired, err := coordinator.Reconcile(ctx)
		if err != nil {
			logger.Error("reconcile pass failed", "error", err)
			return
		}
		logger.Info("reconcile pass finished", "unlocked", repaired)
	}

	pass()
	if *once {
		return
	}

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}
