package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/config"
	"github.com/book-expert/tts-bridge/internal/core"
	"github.com/book-expert/tts-bridge/internal/objectstore"
	"github.com/book-expert/tts-bridge/internal/policy"
	"github.com/book-expert/tts-bridge/internal/tts"
	"github.com/book-expert/tts-bridge/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	metricsShutdownTimeout = 5 * time.Second
	metricsReadTimeout     = 10 * time.Second
)

// ErrNATSURLEmpty indicates that serve was started without a NATS URL.
var ErrNATSURLEmpty = errors.New("nats.url must be configured to serve")

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Listen for host reply and command events over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, log, err := bootstrap(flags)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	if cfg.NATS.URL == "" {
		log.Error("%v", ErrNATSURLEmpty)

		return ErrNATSURLEmpty
	}

	store, err := tts.NewDirStore(cfg.Paths.ScratchDir, log)
	if err != nil {
		log.Error("Failed to prepare scratch directory: %v", err)

		return err
	}

	scheduler := tts.NewCleanupScheduler(store, cfg.CleanupInterval(), log)
	scheduler.Start(ctx)

	synth := tts.NewSynthesizer(cfg, tts.NewHTTPClient(cfg.RequestTimeout(), log), store, log)
	handler := policy.NewHandler(cfg, synth, log)

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsConnection.Close()

	mirror, err := newMirror(natsConnection, cfg)
	if err != nil {
		log.Error("Failed to prepare audio object store: %v", err)

		return err
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection, cfg.NATS.ReplySubject, cfg.NATS.CommandSubject, handler, mirror, log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	stopMetrics := startMetrics(cfg.Metrics.ListenAddr, log)
	defer stopMetrics()

	log.System(
		"TTS-Bridge successfully initialized. Listening on subjects: %s, %s",
		cfg.NATS.ReplySubject, cfg.NATS.CommandSubject,
	)

	err = natsWorker.Run(ctx)
	if err != nil {
		log.Error("Worker stopped with error: %v", err)

		return fmt.Errorf("worker stopped: %w", err)
	}

	<-scheduler.Done()

	return nil
}

// newMirror returns nil when no bucket is configured.
func newMirror(natsConnection *nats.Conn, cfg *config.Config) (core.ObjectStore, error) {
	if cfg.NATS.AudioObjectStoreBucket == "" {
		return nil, nil
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket, cfg.CleanupInterval())
	if err != nil {
		return nil, err
	}

	return store, nil
}

// startMetrics serves /metrics when addr is set and returns a stop function.
func startMetrics(addr string, log *logger.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		listenErr := server.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", listenErr)
		}
	}()

	log.Info("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(ctx)
		if shutdownErr != nil {
			log.Warn("Metrics server shutdown failed: %v", shutdownErr)
		}
	}
}
