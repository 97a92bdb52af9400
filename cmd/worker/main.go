// Package main provides the entrypoint for the SafeRoute feedback worker.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/community"
	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/store"
	"github.com/saferoute/saferoute/internal/telemetry"
	"github.com/saferoute/saferoute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "saferoute-worker"

	replayPath := flag.String("replay", "", "apply newline-delimited feedback messages from `file` and exit")
	flag.Parse()

	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = log.Level(cfg.Logging.ZerologLevel())

	log.Info().
		Str("build_time", BuildTime).
		Str("store", cfg.Store.Driver).
		Msg("starting SafeRoute worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	repo, closeStore, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open feedback store")
		return
	}
	defer closeStore()

	registry := resilience.NewRegistry()
	communityService := community.NewService(community.ServiceConfig{
		Repository: repo,
		Logger:     log,
		Timeout:    cfg.Store.Timeout,
		Cooldown:   cfg.Store.Cooldown,
		Registry:   registry,
		Tracer:     tp.Tracer,
		Meter:      tp.Meter,
	})

	consumerCfg := worker.DefaultConsumerConfig()
	consumerCfg.ProjectID = cfg.PubSub.ProjectID
	consumerCfg.Subscription = cfg.PubSub.Subscription

	processor := worker.NewProcessor(communityService, consumerCfg.Timeout, log)

	if *replayPath != "" {
		if err := replay(ctx, processor, *replayPath, consumerCfg.Concurrency); err != nil {
			log.Error().Err(err).Str("file", *replayPath).Msg("replay failed")
		}
		return
	}

	// Cloud Run needs a listening port; serve the ops probes on it.
	router := chi.NewRouter()
	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Store:     communityService,
		Health:    registry,
		Logger:    log,
	})
	router.Get("/v1/ops/health", ops.HealthCheck)
	router.Get("/v1/ops/ready", ops.ReadinessCheck)
	router.Get("/v1/ops/status", ops.SystemStatus)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server error")
			cancel()
		}
	}()

	if cfg.PubSub.ProjectID == "" {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set, serving probes only")
		<-ctx.Done()
	} else {
		consumer, err := worker.NewFeedbackConsumer(ctx, consumerCfg, processor, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to create feedback consumer")
			cancel()
		} else {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("feedback consumer stopped")
			}
			if err := consumer.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close pubsub client")
			}
		}
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	stats := processor.Stats()
	log.Info().
		Int64("applied", stats.Applied).
		Int64("cooldown", stats.Cooldown).
		Int64("dropped", stats.Dropped).
		Int64("retried", stats.Retried).
		Msg("worker stopped")
}

func replay(ctx context.Context, p *worker.Processor, path string, concurrency int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = p.Replay(ctx, f, concurrency)
	return err
}
