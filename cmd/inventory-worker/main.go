package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"stockpile/internal/pkg/config"
	"stockpile/internal/pkg/httpclient"
	"stockpile/internal/pkg/mq"
	"stockpile/internal/pkg/tracing"
	"stockpile/internal/pkg/zklock"
	"stockpile/internal/service/inventory/application"
	"stockpile/internal/service/inventory/infrastructure/adapter"
	"stockpile/internal/service/inventory/infrastructure/gormstore"
	"stockpile/internal/service/inventory/infrastructure/redisq"
	"stockpile/internal/service/inventory/infrastructure/rule"
	"stockpile/internal/service/inventory/port"
)

const serviceName = "inventory-service"

// main is the composition root: it builds every collaborator, wires the
// worker, and owns graceful shutdown.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Each worker gets a random identity for log and trace correlation.
	instance := uuid.New().String()
	zerolog.DurationFieldUnit = time.Millisecond
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().
		Str("service", serviceName).Str("instance", instance).Logger()

	log.Info().Str("redis", cfg.RedisAddr).Str("queue", cfg.QueueKey()).Msg("starting worker")

	tp, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := gormstore.Open(cfg.MySQL.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open inventory store")
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate inventory schema")
	}
	if err := seedInventory(ctx, cfg, store); err != nil {
		log.Fatal().Err(err).Msg("failed to seed inventory")
	}
	available, err := store.Available(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read inventory")
	}
	log.Info().Int64("tokens_available", available).Msg("inventory ready")

	transport := redisq.New(cfg.RedisAddr)
	defer transport.Close()
	if err := transport.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	events := adapter.NewEventKafkaAdapter(mq.NewKafkaWriter(cfg.KafkaBrokers, cfg.EventsTopic))
	defer events.Close()

	tracer := otel.Tracer(serviceName)
	notifier := adapter.NewStatusHTTPAdapter(httpclient.NewClient(tracer), cfg.OrderStatusURL)

	var fault port.FaultInjector
	if cfg.FaultRule != "" {
		injector, err := rule.NewCELFaultInjector(cfg.FaultRule)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid fault rule")
		}
		fault = injector
		log.Warn().Str("rule", cfg.FaultRule).Msg("fault injection enabled")
	}

	worker := application.NewWorker(application.Params{
		QueueKey:       cfg.QueueKey(),
		StatusChannel:  cfg.StatusChannel(),
		DeliveryQueue:  cfg.DeliveryQueue,
		PaymentQueue:   cfg.PaymentQueue,
		DequeueTimeout: cfg.DequeueTimeout,
		CallTimeout:    cfg.CallTimeout,
		Store:          store,
		Transport:      transport,
		Notifier:       notifier,
		Events:         events,
		Fault:          fault,
		Tracer:         tracer,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// A worker that cannot read the counter cannot process tasks.
		if _, err := store.Available(r.Context()); err != nil {
			http.Error(w, "inventory store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Returns on context cancellation or poison pill; either way the
		// rest of the process should come down with it.
		defer cancel()
		return worker.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			cancel()
		case <-gctx.Done():
		}
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker exited with error")
	}

	flushCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := tp.Shutdown(flushCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}
	log.Info().Msg("shutdown completed")
}

// seedInventory populates the counter once. With multiple workers starting
// at the same time the ZooKeeper lock serializes them so only the first one
// finds an empty table.
func seedInventory(ctx context.Context, cfg *config.Config, store *gormstore.Store) error {
	if len(cfg.ZkServers) > 0 {
		conn, err := zklock.Connect(cfg.ZkServers)
		if err != nil {
			return err
		}
		defer conn.Close()

		lock, err := zklock.New(conn, "inventory-seed")
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Warn().Err(err).Msg("failed to release seed lock")
			}
		}()
	}
	return store.Seed(ctx, cfg.InitialTokens)
}
