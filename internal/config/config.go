package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"crypto-price-service/internal/domain"

	"github.com/spf13/viper"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr     string
	RedisURL     string
	DatabaseURL  string
	StoreBackend string

	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	MessariBaseURL   string
	MessariAPIKey    string

	PriceTTLSecs        int
	CatalogTTLSecs      int
	UpstreamTimeoutSecs int
	FallbackTimeoutSecs int
	RetryInitialMS      int
	RetryMaxMS          int
	RetryMaxTries       int

	WarmEnabled  bool
	WarmCron     string
	WarmChunks   int
	WarmPauseMS  int
	WarmUniverse []string

	APIKey          string
	RateLimitPerSec float64
	RateLimitBurst  int

	TelegramBotToken string

	MCPTransport string
	MCPHTTPBind  string
	MCPHTTPPort  int

	LogLevel string
	LogJSON  bool
}

var defaults = map[string]any{
	"HTTP_ADDR":             ":8080",
	"REDIS_URL":             "localhost:6379",
	"STORE_BACKEND":         StoreRedis,
	"COINGECKO_BASE_URL":    "https://api.coingecko.com/api/v3",
	"MESSARI_BASE_URL":      "https://data.messari.io",
	"PRICE_TTL_SECS":        360,
	"CATALOG_TTL_SECS":      3600,
	"UPSTREAM_TIMEOUT_SECS": 10,
	"FALLBACK_TIMEOUT_SECS": 10,
	"RETRY_INITIAL_MS":      5000,
	"RETRY_MAX_MS":          160000,
	"RETRY_MAX_TRIES":       10,
	"WARM_ENABLED":          true,
	"WARM_CRON":             "*/3 * * * *",
	"WARM_CHUNKS":           5,
	"WARM_PAUSE_MS":         1200,
	"RATE_LIMIT_PER_SEC":    10.0,
	"RATE_LIMIT_BURST":      20,
	"MCP_TRANSPORT":         "stdio",
	"MCP_HTTP_BIND":         "127.0.0.1",
	"MCP_HTTP_PORT":         8090,
	"LOG_LEVEL":             "info",
	"LOG_JSON":              true,
}

// Load reads configuration from the environment, with an optional
// config.yaml in the working directory underneath it.
func Load() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("Warning: failed to read config file: %v", err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:         strings.TrimSpace(v.GetString("HTTP_ADDR")),
		RedisURL:         strings.TrimSpace(v.GetString("REDIS_URL")),
		DatabaseURL:      strings.TrimSpace(v.GetString("DATABASE_URL")),
		CoinGeckoBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("COINGECKO_BASE_URL")), "/"),
		CoinGeckoAPIKey:  strings.TrimSpace(v.GetString("COINGECKO_API_KEY")),
		MessariBaseURL:   strings.TrimRight(strings.TrimSpace(v.GetString("MESSARI_BASE_URL")), "/"),
		MessariAPIKey:    strings.TrimSpace(v.GetString("MESSARI_API_KEY")),
		WarmEnabled:      v.GetBool("WARM_ENABLED"),
		WarmCron:         strings.TrimSpace(v.GetString("WARM_CRON")),
		APIKey:           strings.TrimSpace(v.GetString("API_KEY")),
		TelegramBotToken: strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
		MCPHTTPBind:      strings.TrimSpace(v.GetString("MCP_HTTP_BIND")),
		LogLevel:         strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogJSON:          v.GetBool("LOG_JSON"),
	}

	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND")))
	switch cfg.StoreBackend {
	case StoreRedis, StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			log.Println("Warning: STORE_BACKEND=postgres but DATABASE_URL not set, defaulting to redis")
			cfg.StoreBackend = StoreRedis
		}
	default:
		log.Printf("Warning: unsupported STORE_BACKEND=%q, defaulting to redis", cfg.StoreBackend)
		cfg.StoreBackend = StoreRedis
	}

	cfg.PriceTTLSecs = positiveInt(v, "PRICE_TTL_SECS")
	cfg.CatalogTTLSecs = positiveInt(v, "CATALOG_TTL_SECS")
	cfg.UpstreamTimeoutSecs = positiveInt(v, "UPSTREAM_TIMEOUT_SECS")
	cfg.FallbackTimeoutSecs = positiveInt(v, "FALLBACK_TIMEOUT_SECS")
	cfg.RetryInitialMS = positiveInt(v, "RETRY_INITIAL_MS")
	cfg.RetryMaxMS = positiveInt(v, "RETRY_MAX_MS")
	cfg.RetryMaxTries = positiveInt(v, "RETRY_MAX_TRIES")
	cfg.WarmChunks = positiveInt(v, "WARM_CHUNKS")
	cfg.RateLimitBurst = positiveInt(v, "RATE_LIMIT_BURST")
	cfg.MCPHTTPPort = positiveInt(v, "MCP_HTTP_PORT")

	if cfg.RetryMaxMS < cfg.RetryInitialMS {
		log.Printf("Warning: RETRY_MAX_MS=%d below RETRY_INITIAL_MS=%d, using initial as max", cfg.RetryMaxMS, cfg.RetryInitialMS)
		cfg.RetryMaxMS = cfg.RetryInitialMS
	}

	cfg.WarmPauseMS = v.GetInt("WARM_PAUSE_MS")
	if cfg.WarmPauseMS < 0 {
		log.Printf("Warning: invalid WARM_PAUSE_MS, using %v", defaults["WARM_PAUSE_MS"])
		cfg.WarmPauseMS = defaults["WARM_PAUSE_MS"].(int)
	}

	cfg.RateLimitPerSec = v.GetFloat64("RATE_LIMIT_PER_SEC")
	if cfg.RateLimitPerSec <= 0 {
		log.Printf("Warning: invalid RATE_LIMIT_PER_SEC, using %v", defaults["RATE_LIMIT_PER_SEC"])
		cfg.RateLimitPerSec = defaults["RATE_LIMIT_PER_SEC"].(float64)
	}

	if cfg.WarmCron == "" {
		cfg.WarmCron = defaults["WARM_CRON"].(string)
	}

	cfg.WarmUniverse = parseList(v.GetString("WARM_UNIVERSE"))
	if len(cfg.WarmUniverse) == 0 {
		cfg.WarmUniverse = append([]string(nil), domain.DefaultUniverse...)
	}

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(v.GetString("MCP_TRANSPORT")))
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Printf("Warning: unsupported MCP_TRANSPORT=%q, defaulting to stdio", cfg.MCPTransport)
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}

	return cfg
}

func (c *Config) PriceTTL() time.Duration   { return time.Duration(c.PriceTTLSecs) * time.Second }
func (c *Config) CatalogTTL() time.Duration { return time.Duration(c.CatalogTTLSecs) * time.Second }
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSecs) * time.Second
}
func (c *Config) FallbackTimeout() time.Duration {
	return time.Duration(c.FallbackTimeoutSecs) * time.Second
}

func (c *Config) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMS) * time.Millisecond
}

func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMS) * time.Millisecond
}

func (c *Config) WarmPause() time.Duration {
	return time.Duration(c.WarmPauseMS) * time.Millisecond
}

// positiveInt falls back to the default when the value is missing,
// unparsable or not positive.
func positiveInt(v *viper.Viper, key string) int {
	n := v.GetInt(key)
	if n > 0 {
		return n
	}
	def := defaults[key].(int)
	log.Printf("Warning: invalid %s, using %d", key, def)
	return def
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
