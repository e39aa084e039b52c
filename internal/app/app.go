// Package app wires the price pipeline from configuration. Every binary
// builds the same graph so a warm pass, an HTTP request and an MCP tool call
// share cache keys and upstream behaviour.
package app

import (
	"context"

	"crypto-price-service/internal/cache"
	"crypto-price-service/internal/catalog"
	"crypto-price-service/internal/config"
	"crypto-price-service/internal/db"
	"crypto-price-service/internal/job"
	"crypto-price-service/internal/metrics"
	"crypto-price-service/internal/provider"
	"crypto-price-service/internal/repository"
	"crypto-price-service/internal/service"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	initRedisFunc    = cache.InitRedis
	initPostgresFunc = db.InitPostgres
	closePostgres    = db.Close
)

// App is the assembled pipeline.
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Prices  *service.PriceService
	Warmer  *job.CacheWarmer

	closers []func()
}

// Backend is the shared store picked from configuration, plus an optional
// purger for stores that do not expire keys on their own.
type Backend struct {
	Store  cache.Store
	Purger job.Purger
	Close  func()
}

// OpenBackend connects the configured store. Connection failures are fatal,
// matching the rest of the startup path.
func OpenBackend(ctx context.Context, cfg *config.Config, tracer trace.Tracer, logger *zap.Logger) Backend {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		initPostgresFunc(ctx, cfg.DatabaseURL)
		if db.Pool != nil {
			store := repository.NewPostgresStore(db.Pool, tracer)
			logger.Info("using postgres cache backend")
			return Backend{Store: store, Purger: store, Close: closePostgres}
		}
		logger.Warn("postgres unavailable, falling back to redis")
		fallthrough
	case config.StoreRedis:
		initRedisFunc(ctx, cfg.RedisURL)
		if cache.Client != nil {
			client := cache.Client
			logger.Info("using redis cache backend")
			return Backend{Store: cache.NewRedisStore(client), Close: func() { _ = client.Close() }}
		}
		logger.Warn("redis unavailable, using in-process cache")
	}
	return Backend{Store: cache.NewMemoryStore(), Close: func() {}}
}

// Build assembles providers, caches, the price service and the warmer.
func Build(cfg *config.Config, backend Backend, tracer trace.Tracer, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New()

	retry := provider.RetryPolicy{
		Initial:  cfg.RetryInitial(),
		Max:      cfg.RetryMax(),
		MaxTries: uint(cfg.RetryMaxTries),
	}
	coingecko := provider.NewCoinGeckoProvider(tracer,
		provider.WithCoinGeckoBaseURL(cfg.CoinGeckoBaseURL),
		provider.WithCoinGeckoAPIKey(cfg.CoinGeckoAPIKey),
		provider.WithCoinGeckoTimeout(cfg.UpstreamTimeout()),
		provider.WithPriceRetry(retry),
		provider.WithCoinGeckoMetrics(m),
		provider.WithCoinGeckoLogger(logger),
	)
	messari := provider.NewMessariProvider(tracer,
		provider.WithMessariBaseURL(cfg.MessariBaseURL),
		provider.WithMessariAPIKey(cfg.MessariAPIKey),
		provider.WithMessariTimeout(cfg.FallbackTimeout()),
		provider.WithMessariMetrics(m),
	)

	coins := catalog.New(coingecko, backend.Store, cfg.CatalogTTL(), tracer, logger)
	prices := service.NewPriceService(tracer,
		cache.NewPriceCache(backend.Store, cfg.PriceTTL()),
		coins,
		coingecko,
		messari,
		service.WithLogger(logger),
		service.WithMetrics(m),
	)

	warmOpts := []job.WarmerOption{job.WithWarmerMetrics(m), job.WithWarmerLogger(logger)}
	if backend.Purger != nil {
		warmOpts = append(warmOpts, job.WithExpiredPurge(backend.Purger))
	}
	warmer := job.NewCacheWarmer(tracer, prices, cfg.WarmUniverse, cfg.WarmChunks, cfg.WarmPause(), warmOpts...)

	a := &App{Config: cfg, Metrics: m, Prices: prices, Warmer: warmer}
	if backend.Close != nil {
		a.closers = append(a.closers, backend.Close)
	}
	return a
}

// Close releases store connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
