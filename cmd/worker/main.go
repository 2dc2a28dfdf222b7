package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/common/otel"
	"basegraph.app/docwatch/core/config"
	"basegraph.app/docwatch/internal/queue"
	"basegraph.app/docwatch/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	runErr := run(ctx, cfg)
	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
		cancel()
	}
	if runErr != nil {
		slog.ErrorContext(ctx, "docwatch worker failed", "error", runErr)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	slog.InfoContext(ctx, "docwatch worker starting",
		"env", cfg.Env,
		"stream", cfg.Redis.Stream,
		"consumer_group", cfg.Redis.Group,
		"consumer_name", cfg.Redis.Consumer)

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.Stream,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		RequeueDelay: cfg.Delivery.RequeueDelay,
	})
	if err != nil {
		return err
	}

	transport := worker.NewWebhookTransport(worker.WebhookConfig{
		DefaultURL: cfg.Delivery.WebhookURL,
		Secret:     cfg.Delivery.WebhookSecret,
		Timeout:    cfg.Delivery.Timeout,
	}, nil)

	w := worker.New(consumer, transport, worker.Config{MaxAttempts: cfg.Delivery.MaxAttempts})
	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Redis.Stream,
		Group:     cfg.Redis.Group,
		Consumer:  cfg.Redis.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w.Handle)

	workerErr := make(chan error, 1)
	go func() { workerErr <- w.Run(ctx) }()
	go reclaimer.Run(ctx)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	slog.InfoContext(ctx, "shutting down worker")

	// Stop waits for the current message to settle; Block bounds how long
	// an idle read keeps it waiting.
	done := make(chan struct{})
	go func() {
		reclaimer.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return errors.New("shutdown timed out")
	}

	if err := <-workerErr; err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	slog.InfoContext(ctx, "worker shutdown complete")
	return nil
}

const banner = `
 ____   ___   ____ __        ___  _____ ____ _   _  __        _____  ____  _  _______ ____
|  _ \ / _ \ / ___|\ \      / / \|_   _/ ___| | | | \ \      / / _ \|  _ \| |/ / ____|  _ \
| | | | | | | |     \ \ /\ / / _ \ | || |   | |_| |  \ \ /\ / / | | | |_) | ' /|  _| | |_) |
| |_| | |_| | |___   \ V  V / ___ \| || |___|  _  |   \ V  V /| |_| |  _ <| . \| |___|  _ <
|____/ \___/ \____|   \_/\_/_/   \_\_| \____|_| |_|    \_/\_/  \___/|_| \_\_|\_\_____|_| \_\
`
