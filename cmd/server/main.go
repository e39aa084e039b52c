package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-price-service/internal/app"
	"crypto-price-service/internal/bot"
	"crypto-price-service/internal/config"
	"crypto-price-service/internal/handler"
	"crypto-price-service/internal/job"
	"crypto-price-service/pkg/logger"
	"crypto-price-service/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "crypto-price-service/docs"
)

const serviceName = "crypto-price-service"

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	newLoggerFunc          = logger.New
	openBackendFunc        = app.OpenBackend
	buildAppFunc           = app.Build
	startSchedulerFunc     = func(s *job.Scheduler, ctx context.Context) { go s.Start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Crypto Price Service API
// @version         1.0
// @description     Resolves crypto asset keys to USD price, 24h volume and market cap.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	zl, err := newLoggerFunc(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	backend := openBackendFunc(ctx, cfg, tracer, zl)
	a := buildAppFunc(cfg, backend, tracer, zl)
	defer a.Close()

	// Keep the cache warm for the configured universe
	if cfg.WarmEnabled {
		scheduler, err := job.NewScheduler(a.Warmer, cfg.WarmCron, a.Metrics, zl)
		if err != nil {
			log.Fatalf("failed to create cache warm scheduler: %v", err)
		}
		startSchedulerFunc(scheduler, ctx)
	}

	startTelegramBotFunc(ctx, cfg.TelegramBotToken, a.Prices)

	h := handler.New(tracer, a.Prices, a.Metrics)
	limiter := handler.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)

	r := newRouterFunc()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(handler.RequestID())
	r.Use(handler.RequestMetrics(a.Metrics))

	h.RegisterRoutes(r, limiter.Middleware(), handler.APIKeyAuth(cfg.APIKey))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	zl.Info("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	zl.Info("server exiting")
}
