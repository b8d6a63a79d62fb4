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
	"github.com/taskwire/taskwire/internal/app/audit"
	"github.com/taskwire/taskwire/internal/consumer"
	"github.com/taskwire/taskwire/internal/messaging"
	"github.com/taskwire/taskwire/internal/platform/dbpool"
	"github.com/taskwire/taskwire/internal/platform/env"
	"github.com/taskwire/taskwire/internal/platform/logging"
	"github.com/taskwire/taskwire/internal/platform/natsutil"
)

const serviceName = "audit-consumer"

func main() {
	env.Load()
	log := logging.New(serviceName)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("AUDIT_ADDR", ":8093")
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	pubsub := env.String("PUBSUB_NAME", env.DefaultPubsubName)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal().Err(err).Msg("create database pool")
	}
	defer pool.Close()

	repo := audit.NewPostgresRepository(pool)
	if err := waitForAuditSchema(runCtx, repo, log, 30*time.Second); err != nil {
		log.Fatal().Err(err).Msg("audit schema not ready")
	}

	handler := audit.NewHandler(repo, log)

	// Audit trails every topic.
	rt := consumer.New(serviceName, pubsub, log)
	rt.Subscribe(messaging.TopicTaskEvents, "/task-events", handler.Handle)
	rt.Subscribe(messaging.TopicReminders, "/reminders", handler.Handle)

	useSidecar := env.Bool("USE_SIDECAR", true)
	var natsClient *natsutil.Client
	if !useSidecar {
		natsClient, err = natsutil.ConnectJetStreamWithRetry(env.String("NATS_URL", env.DefaultNATSURL), 20*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("connect jetstream")
		}
		defer natsClient.Close()
		if err := rt.RunDirect(runCtx, natsClient); err != nil {
			log.Fatal().Err(err).Msg("start direct consume loops")
		}
	}

	rt.Ready = func(ctx context.Context) error {
		return checkReadiness(ctx, pool, natsClient)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           rt.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("audit consumer listening")
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

func waitForAuditSchema(ctx context.Context, repo *audit.PostgresRepository, log zerolog.Logger, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = repo.EnsureSchema(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).Msg("waiting for audit schema readiness")
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
