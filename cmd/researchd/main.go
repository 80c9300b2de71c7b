package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/handler"
	idxcache "github.com/Adithya-Monish-Kumar-K/deepresearch/internal/index/cache"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting research service", "port", cfg.Server.Port, "workspace_base", cfg.Server.WorkspaceBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	indexCache := idxcache.New(cfg.Index.CacheSize)
	checker.Register("index_cache", func(context.Context) health.ComponentHealth {
		hits, misses := indexCache.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d workspaces cached, %d hits, %d misses", indexCache.Len(), hits, misses),
		}
	})

	var reportCache *cache.ReportCache
	var redisPing func(context.Context) error
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, report caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			reportCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			redisPing = redisClient.Ping
			slog.Info("report cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	checker.Register("redis", health.PingCheck(redisPing, false))

	var reports store.Store = store.NewMemory()
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect report store", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("failed to migrate report store", "error", err)
			os.Exit(1)
		}
		reports = pg
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		slog.Info("report store enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	opts := []research.Option{
		research.WithIndexCache(indexCache),
		research.WithMetrics(m),
		research.WithWorkspaceConfig(cfg.Workspace),
		research.WithIndexConfig(cfg.Index),
		research.WithObserver(store.NewRecorder(reports)),
	}
	aggregator := events.NewAggregator()
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ResearchEvents)
		defer producer.Close()
		breaker := resilience.NewCircuitBreaker("kafka-events", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		collector := events.NewCollector(producer, cfg.Kafka.BufferSize, breaker)
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, research.WithObserver(collector))
		checker.Register("kafka", health.PingCheck(producer.Ping, false))

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ResearchEvents, aggregator.HandleMessage)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("run events consumer error", "error", err)
			}
		}()
		slog.Info("run events enabled", "topic", producer.Topic(), "group", cfg.Kafka.ConsumerGroup)
	} else {
		opts = append(opts, research.WithObserver(aggregator))
	}
	runner := research.NewRunner(opts...)

	h := handler.New(runner, reportCache, reports, handler.Options{
		Defaults:  cfg.Research,
		Workspace: cfg.Workspace,
		BaseDir:   cfg.Server.WorkspaceBase,
	})
	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /api/v1/analytics", aggregator.StatsHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.ResearchPerMinute > 0 {
		limiter := middleware.NewLimiter(cfg.Server.ResearchPerMinute, cfg.Server.ResearchBurst)
		limiter.Start(ctx)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("research service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	// in-flight runs notify the collector, so it closes only after they drain
	<-shutdownDone
	slog.Info("research service stopped")
}
