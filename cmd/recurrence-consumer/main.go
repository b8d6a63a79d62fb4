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
	"github.com/taskwire/taskwire/internal/app/recurrence"
	"github.com/taskwire/taskwire/internal/consumer"
	"github.com/taskwire/taskwire/internal/events"
	"github.com/taskwire/taskwire/internal/messaging"
	"github.com/taskwire/taskwire/internal/platform/dbpool"
	"github.com/taskwire/taskwire/internal/platform/env"
	"github.com/taskwire/taskwire/internal/platform/logging"
	"github.com/taskwire/taskwire/internal/platform/natsutil"
	"github.com/taskwire/taskwire/internal/transport"
)

const serviceName = "recurrence-consumer"

func main() {
	env.Load()
	log := logging.New(serviceName)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("RECURRENCE_ADDR", ":8091")
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

	subs := []transport.Descriptor{
		{PubsubName: pubsub, Topic: messaging.TopicTaskEvents, Route: "/task-events"},
	}

	useSidecar := env.Bool("USE_SIDECAR", true)
	var tr transport.Transport
	var natsClient *natsutil.Client
	if useSidecar {
		tr = transport.NewSidecar(env.String("SIDECAR_BASE_URL", env.DefaultSidecarBaseURL), pubsub, subs)
	} else {
		natsClient, err = natsutil.ConnectJetStreamWithRetry(env.String("NATS_URL", env.DefaultNATSURL), 20*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("connect jetstream")
		}
		defer natsClient.Close()
		tr = transport.NewDirect(natsClient, subs)
	}
	log.Info().Str("binding", tr.Name()).Msg("transport binding selected")

	// The recurrence handler re-enters the pipeline: creating the next
	// occurrence emits task.created through the same transport.
	emitter := events.NewEmitter(tr, log)
	handler := recurrence.NewHandler(recurrence.NewPostgresRepository(pool), emitter, log)

	rt := consumer.New(serviceName, pubsub, log)
	rt.Subscribe(messaging.TopicTaskEvents, "/task-events", handler.Handle)
	rt.Ready = func(ctx context.Context) error {
		return checkReadiness(ctx, pool, natsClient)
	}

	if !useSidecar {
		if err := rt.RunDirect(runCtx, natsClient); err != nil {
			log.Fatal().Err(err).Msg("start direct consume loops")
		}
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           rt.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("recurrence consumer listening")
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
