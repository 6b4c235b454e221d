package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/redis"
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
	slog.Info("starting verse recommender", "port", cfg.Server.Port, "corpus_source", cfg.Corpus.Source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	opts, err := indexer.OptionsFromConfig(cfg.Indexer, cfg.Tracing.Enabled)
	if err != nil {
		slog.Error("invalid indexer configuration", "error", err)
		os.Exit(1)
	}
	src, closeSource, err := corpus.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	provider := indexer.NewProvider(func(ctx context.Context) (*indexer.Index, error) {
		return indexer.BuildFromSource(ctx, src, corpus.Books(), opts)
	})
	go func() {
		ix, err := provider.Get(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("index build failed, exiting", "error", err, "build_fault", errors.Is(err, apperrors.ErrBuildFault))
			os.Exit(1)
		}
		recordIndexMetrics(m, ix.Stats())
	}()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
			if m != nil {
				go watchBreaker(ctx, m, queryCache)
			}
		}
	}

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		slog.Info("query events publishing enabled", "topic", cfg.Kafka.QueryTopic)
	}
	collector := analytics.NewCollector(publisher, aggregator, cfg.Kafka)
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		if !provider.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not built"}
		}
		ix, _ := provider.Current()
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", ix.Len())}
	})
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
			}
			return health.Ping(redisClient.Ping, health.StatusDegraded)(ctx)
		})
	}

	res := resolver.New(provider, cfg.Search.MaxResults)
	h := handler.New(provider, res, queryCache, collector, m, cfg.Search)
	analyticsH := analytics.NewHandler(aggregator, collector)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer limiter.Close()
		chain = middleware.RateLimit(limiter, "/health/")(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	if m != nil {
		routes := append([]string{"/api/v1/analytics/stats", "/health/live", "/health/ready"}, handler.Routes...)
		chain = middleware.Metrics(m, routes)(chain)
	}
	chain = middleware.RequestID(chain)
	chain = middleware.Recover(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("verse recommender listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("verse recommender stopped")
}

func recordIndexMetrics(m *metrics.Metrics, stats indexer.Stats) {
	slog.Info("index ready",
		"documents", stats.Documents,
		"vocabulary", stats.Vocabulary,
		"dropped_rows", stats.Dropped,
		"build_duration", stats.BuildDuration,
	)
	if m == nil {
		return
	}
	m.CorpusDocuments.Set(float64(stats.Documents))
	m.VocabularySize.Set(float64(stats.Vocabulary))
	m.DroppedRows.Set(float64(stats.Dropped))
	for stage, d := range stats.Stages {
		m.BuildStageDuration.WithLabelValues(stage).Set(d.Seconds())
	}
	m.IndexReady.Set(1)
}

func watchBreaker(ctx context.Context, m *metrics.Metrics, qc *cache.QueryCache) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		m.CircuitBreakerState.WithLabelValues("redis").Set(float64(qc.BreakerState()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
