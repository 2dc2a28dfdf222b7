package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/docwatch/common/id"
	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/common/otel"
	"basegraph.app/docwatch/core/config"
	"basegraph.app/docwatch/core/db"
	"basegraph.app/docwatch/internal/http/middleware"
	httprouter "basegraph.app/docwatch/internal/http/router"
	"basegraph.app/docwatch/internal/metadata"
	"basegraph.app/docwatch/internal/poller"
	"basegraph.app/docwatch/internal/queue"
	"basegraph.app/docwatch/internal/service"
	"basegraph.app/docwatch/internal/store"
)

const notificationStreamMaxLen = 100_000

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	if err := run(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "docwatch server failed", "error", err)
		shutdownTelemetry(ctx, telemetry)
		os.Exit(1)
	}
	shutdownTelemetry(ctx, telemetry)
}

func run(ctx context.Context, cfg config.Config) error {
	slog.InfoContext(ctx, "docwatch server starting",
		"env", cfg.Env,
		"service", cfg.OTel.ServiceName,
		"otel", cfg.OTel.Enabled())

	if err := id.Init(cfg.NodeID); err != nil {
		return err
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	slog.InfoContext(ctx, "database ready")

	redisClient, err := connectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	producer := queue.NewNotificationProducer(redisClient, cfg.Redis.Stream, notificationStreamMaxLen)

	source, err := newMetadataSource(cfg)
	if err != nil {
		return fmt.Errorf("configuring metadata source: %w", err)
	}

	clock := clockwork.NewRealClock()
	fetcher := metadata.NewClient(
		source,
		metadata.NewLRUCache(cfg.Metadata.CacheSize, cfg.Metadata.CacheTTL),
		clock,
		metadata.Config{
			CallTimeout:   cfg.Metadata.CallTimeout,
			MaxRetries:    cfg.Metadata.MaxRetries,
			BaseBackoff:   cfg.Metadata.BaseBackoff,
			RatePerSecond: cfg.Metadata.RatePerSecond,
		},
	)

	stores := store.NewStores(database)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := poller.New(pollerConfig(cfg.Poller), poller.Deps{
		Fetcher:  fetcher,
		Store:    stores.Poll(),
		Notifier: producer,
		Clock:    clock,
		Locker:   stores.CycleLock(),
		Recorder: poller.NewPrometheusRecorder(registry),
	})

	services := service.NewServices(stores, fetcher, p, producer)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, services, registry),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "http server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	p.Start(ctx)
	slog.InfoContext(ctx, "poller started",
		"interval", cfg.Poller.Interval,
		"batch_size", cfg.Poller.BatchSize,
		"workers", cfg.Poller.Workers)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		slog.InfoContext(ctx, "shutdown signal received")
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// In-flight documents finish; undispatched ones wait for the next start.
	p.Stop()

	slog.InfoContext(ctx, "shutdown complete")
	return runErr
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func pollerConfig(c config.PollerConfig) poller.Config {
	return poller.Config{
		Interval:           c.Interval,
		BatchSize:          c.BatchSize,
		Workers:            c.Workers,
		DebounceWindow:     c.DebounceWindow,
		NotifyTimeout:      c.NotifyTimeout,
		AutoPauseThreshold: c.AutoPauseThreshold,
		DegradedErrorRate:  c.DegradedErrorRate,
		UnhealthyErrorRate: c.UnhealthyErrorRate,
	}
}

func shutdownTelemetry(ctx context.Context, telemetry *otel.Telemetry) {
	if telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := telemetry.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "otel shutdown error", "error", err)
	}
}

// newMetadataSource routes "gitlab:" tokens to GitLab and everything else to
// Lark. Either source may be disabled, but not both.
func newMetadataSource(cfg config.Config) (metadata.Source, error) {
	var fallback metadata.Source
	if cfg.Lark.Enabled() {
		fallback = metadata.NewLarkSource(metadata.LarkConfig{
			BaseURL:        cfg.Lark.BaseURL,
			AppID:          cfg.Lark.AppID,
			AppSecret:      cfg.Lark.AppSecret,
			DefaultDocType: cfg.Metadata.DefaultDocType,
		}, &http.Client{Timeout: cfg.Metadata.CallTimeout}, nil)
	}

	mux := metadata.NewMux(fallback)
	if cfg.GitLab.Enabled() {
		gl, err := metadata.NewGitLabSource(cfg.GitLab.BaseURL, cfg.GitLab.Token)
		if err != nil {
			return nil, err
		}
		mux.Handle(metadata.GitLabScheme, gl)
	}
	return mux, nil
}

func setupRouter(cfg config.Config, services *service.Services, registry *prometheus.Registry) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		Gatherer: registry,
	})

	return router
}

const banner = `
 ____   ___   ____ __        ___  _____ ____ _   _
|  _ \ / _ \ / ___|\ \      / / \|_   _/ ___| | | |
| | | | | | | |     \ \ /\ / / _ \ | || |   | |_| |
| |_| | |_| | |___   \ V  V / ___ \| || |___|  _  |
|____/ \___/ \____|   \_/\_/_/   \_\_| \____|_| |_|
`
