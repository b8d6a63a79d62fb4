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
	"github.com/taskwire/taskwire/internal/app/notification"
	"github.com/taskwire/taskwire/internal/consumer"
	"github.com/taskwire/taskwire/internal/messaging"
	"github.com/taskwire/taskwire/internal/platform/dbpool"
	"github.com/taskwire/taskwire/internal/platform/env"
	"github.com/taskwire/taskwire/internal/platform/logging"
	"github.com/taskwire/taskwire/internal/platform/natsutil"
)

const serviceName = "notification-consumer"

func main() {
	env.Load()
	log := logging.New(serviceName)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("NOTIFICATION_ADDR", ":8092")
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	pubsub := env.String("PUBSUB_NAME", env.DefaultPubsubName)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal().Err(err).Msg("create database pool")
	}
	defer pool.Close()
	if err := dbpool.Wait(runCtx, pool, 30*time.Second); err != nil {
		log.Fatal().Err(err).Msg("postgres not ready")
	}

	handler := notification.NewHandler(
		notification.NewPostgresRepository(pool),
		notification.LogNotifier{Log: log},
		log,
	)

	rt := consumer.New(serviceName, pubsub, log)
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

	log.Info().Str("addr", addr).Msg("notification consumer listening")
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
