package config

import (
	"testing"
	"time"

	"crypto-price-service/internal/domain"
)

var allKeys = []string{
	"HTTP_ADDR", "REDIS_URL", "DATABASE_URL", "STORE_BACKEND",
	"COINGECKO_BASE_URL", "COINGECKO_API_KEY", "MESSARI_BASE_URL", "MESSARI_API_KEY",
	"PRICE_TTL_SECS", "CATALOG_TTL_SECS", "UPSTREAM_TIMEOUT_SECS", "FALLBACK_TIMEOUT_SECS",
	"RETRY_INITIAL_MS", "RETRY_MAX_MS", "RETRY_MAX_TRIES",
	"WARM_ENABLED", "WARM_CRON", "WARM_CHUNKS", "WARM_PAUSE_MS", "WARM_UNIVERSE",
	"API_KEY", "RATE_LIMIT_PER_SEC", "RATE_LIMIT_BURST", "TELEGRAM_BOT_TOKEN",
	"MCP_TRANSPORT", "MCP_HTTP_BIND", "MCP_HTTP_PORT", "LOG_LEVEL", "LOG_JSON",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.StoreBackend != StoreRedis {
		t.Fatalf("expected redis backend, got %s", cfg.StoreBackend)
	}
	if cfg.PriceTTL() != 360*time.Second {
		t.Fatalf("expected 360s price ttl, got %v", cfg.PriceTTL())
	}
	if cfg.CatalogTTL() != time.Hour {
		t.Fatalf("expected 1h catalog ttl, got %v", cfg.CatalogTTL())
	}
	if cfg.RetryInitial() != 5*time.Second || cfg.RetryMax() != 160*time.Second || cfg.RetryMaxTries != 10 {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.WarmChunks != 5 || cfg.WarmPause() != 1200*time.Millisecond || cfg.WarmCron != "*/3 * * * *" {
		t.Fatalf("unexpected warm defaults: %+v", cfg)
	}
	if len(cfg.WarmUniverse) != len(domain.DefaultUniverse) {
		t.Fatalf("expected default universe, got %d assets", len(cfg.WarmUniverse))
	}
	if !cfg.WarmEnabled || !cfg.LogJSON {
		t.Fatal("expected warm and json logging enabled by default")
	}
	if cfg.MCPTransport != "stdio" || cfg.MCPHTTPPort != 8090 {
		t.Fatalf("unexpected mcp defaults: %s %d", cfg.MCPTransport, cfg.MCPHTTPPort)
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("COINGECKO_BASE_URL", "http://cg.local/")
	t.Setenv("PRICE_TTL_SECS", "60")
	t.Setenv("WARM_UNIVERSE", "eth, btc ,,sol")
	t.Setenv("WARM_ENABLED", "false")
	t.Setenv("RATE_LIMIT_PER_SEC", "2.5")

	cfg := Load()
	if cfg.RedisURL != "redis:6379" || cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.StoreBackend != StorePostgres {
		t.Fatalf("expected postgres backend, got %s", cfg.StoreBackend)
	}
	if cfg.CoinGeckoBaseURL != "http://cg.local" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.CoinGeckoBaseURL)
	}
	if cfg.PriceTTLSecs != 60 {
		t.Fatalf("expected ttl 60, got %d", cfg.PriceTTLSecs)
	}
	if len(cfg.WarmUniverse) != 3 || cfg.WarmUniverse[1] != "btc" {
		t.Fatalf("unexpected universe: %v", cfg.WarmUniverse)
	}
	if cfg.WarmEnabled {
		t.Fatal("expected warm disabled")
	}
	if cfg.RateLimitPerSec != 2.5 {
		t.Fatalf("expected 2.5 rps, got %v", cfg.RateLimitPerSec)
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRICE_TTL_SECS", "bad")
	t.Setenv("WARM_CHUNKS", "-3")
	t.Setenv("STORE_BACKEND", "dynamo")
	t.Setenv("MCP_TRANSPORT", "grpc")
	t.Setenv("RETRY_INITIAL_MS", "9000")
	t.Setenv("RETRY_MAX_MS", "100")

	cfg := Load()
	if cfg.PriceTTLSecs != 360 {
		t.Fatalf("invalid ttl should fall back to default, got %d", cfg.PriceTTLSecs)
	}
	if cfg.WarmChunks != 5 {
		t.Fatalf("negative chunks should fall back to default, got %d", cfg.WarmChunks)
	}
	if cfg.StoreBackend != StoreRedis {
		t.Fatalf("unknown backend should fall back to redis, got %s", cfg.StoreBackend)
	}
	if cfg.MCPTransport != "stdio" {
		t.Fatalf("unknown transport should fall back to stdio, got %s", cfg.MCPTransport)
	}
	if cfg.RetryMaxMS != 9000 {
		t.Fatalf("max delay should be raised to initial, got %d", cfg.RetryMaxMS)
	}
}

func TestPostgresWithoutURLFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")

	cfg := Load()
	if cfg.StoreBackend != StoreRedis {
		t.Fatalf("expected redis fallback, got %s", cfg.StoreBackend)
	}
}
