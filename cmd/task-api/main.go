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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire/internal/app/reminder"
	"github.com/taskwire/taskwire/internal/app/tasks"
	"github.com/taskwire/taskwire/internal/events"
	"github.com/taskwire/taskwire/internal/platform/dbpool"
	"github.com/taskwire/taskwire/internal/platform/env"
	"github.com/taskwire/taskwire/internal/platform/logging"
	"github.com/taskwire/taskwire/internal/platform/metrics"
	"github.com/taskwire/taskwire/internal/platform/natsutil"
	"github.com/taskwire/taskwire/internal/transport"
)

func main() {
	env.Load()
	log := logging.New("task-api")

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("TASK_API_ADDR", env.DefaultTaskAPIAddr)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal().Err(err).Msg("create database pool")
	}
	defer pool.Close()

	repo := tasks.NewPostgresRepository(pool)
	if err := waitForTaskSchema(runCtx, repo, log, 30*time.Second); err != nil {
		log.Fatal().Err(err).Msg("task schema not ready")
	}

	useSidecar := env.Bool("USE_SIDECAR", true)
	var tr transport.Transport
	var natsClient *natsutil.Client
	if useSidecar {
		tr = transport.NewSidecar(
			env.String("SIDECAR_BASE_URL", env.DefaultSidecarBaseURL),
			env.String("PUBSUB_NAME", env.DefaultPubsubName),
			nil,
		)
	} else {
		natsClient, err = natsutil.ConnectJetStreamWithRetry(env.String("NATS_URL", env.DefaultNATSURL), 20*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("connect jetstream")
		}
		defer natsClient.Close()
		tr = transport.NewDirect(natsClient, nil)
	}
	log.Info().Str("binding", tr.Name()).Msg("transport binding selected")

	emitter := events.NewEmitter(tr, log)
	service := tasks.NewService(repo, emitter)
	scheduler := reminder.NewScheduler(reminder.NewPostgresRepository(pool), emitter, log)
	handler := tasks.NewHandler(service, scheduler)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, natsClient); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("task API listening")
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server failed")
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func waitForTaskSchema(ctx context.Context, repo *tasks.PostgresRepository, log zerolog.Logger, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).Msg("waiting for task schema readiness")
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, client *natsutil.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if client != nil && client.Conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", client.Conn.Status().String())
	}
	return nil
}
