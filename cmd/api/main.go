package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"example.com/hatchery/internal/api"
	"example.com/hatchery/internal/auth"
	"example.com/hatchery/internal/bootstrap"
	"example.com/hatchery/internal/config"
	"example.com/hatchery/internal/domain"
	"example.com/hatchery/internal/outbox"
	"example.com/hatchery/internal/telemetry"
	httptransport "example.com/hatchery/internal/transport/http"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "hatchery-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, "hatchery-api", version, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("failed to init telemetry: %v", err)
	}

	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	cat, err := bootstrap.LoadCatalog(ctx, cfg.CatalogPath, store, logger)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var publisher domain.EventPublisher = domain.NoopPublisher{}
	var dispatcher *outbox.Dispatcher
	if cfg.PublishingEnabled() {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, 10*time.Second)
		defer producer.Close()
		if err := producer.EnsureTopic(ctx, cfg.EventTopic, 3); err != nil {
			logger.Warn("could not ensure event topic", "topic", cfg.EventTopic, "error", err)
		}
		dispatcher = outbox.NewDispatcher(producer, cfg.EventTopic, cfg.PublishQueueSize, cfg.PublishWorkers, logger)
		publisher = dispatcher
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	}

	coordinator := domain.NewCoordinator(cat, domain.Stores{
		Inventory:  store,
		Collection: store,
		Ownership:  store,
	}, domain.WithLogger(logger), domain.WithPublisher(publisher))
	service := domain.NewService(coordinator, store, store)

	mux := http.NewServeMux()
	api.NewHandler(service, logger).RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	root := http.NewServeMux()
	root.Handle("/", authMiddleware.Wrap(mux))

	servers := []*http.Server{}
	timeouts := httptransport.ServerConfig{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsAddress == "" {
		root.Handle("GET /metrics", promhttp.Handler())
	} else {
		metricsCfg := timeouts
		metricsCfg.Address = cfg.MetricsAddress
		servers = append(servers, httptransport.NewServer(metricsCfg, promhttp.Handler()))
	}
	apiCfg := timeouts
	apiCfg.Address = cfg.HTTPAddress
	servers = append(servers, httptransport.NewServer(apiCfg, httptransport.Chain(root, logger, cfg.CORSOrigin)))

	for _, srv := range servers {
		g.Go(func() error {
			log.Printf("hatchery-api listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("graceful shutdown failed (%s): %v", srv.Addr, err)
			}
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server error: %v", err)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
