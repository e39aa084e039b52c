package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"crypto-price-service/internal/app"
	"crypto-price-service/internal/bot"
	"crypto-price-service/internal/cache"
	"crypto-price-service/internal/config"
	"crypto-price-service/internal/job"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	var served *http.Server
	servedCh := make(chan *http.Server, 1)
	schedulerStarted := false
	startSchedulerFunc = func(*job.Scheduler, context.Context) { schedulerStarted = true }
	startHTTPServerFunc = func(srv *http.Server) error {
		servedCh <- srv
		return http.ErrServerClosed
	}
	waitForSignalFunc = func(<-chan os.Signal) {
		select {
		case served = <-servedCh:
		case <-time.After(time.Second):
		}
	}

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}

	if !schedulerStarted {
		t.Fatal("expected warm scheduler to start")
	}
	if served == nil {
		t.Fatal("expected http server to start")
	}

	rec := httptest.NewRecorder()
	served.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	served.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/price/eth", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected API key enforcement, got %d", rec.Code)
	}
}

func stubServerDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origNewLogger := newLoggerFunc
	origOpenBackend := openBackendFunc
	origStartScheduler := startSchedulerFunc
	origStartTelegram := startTelegramBotFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			HTTPAddr:        ":0",
			StoreBackend:    config.StoreMemory,
			PriceTTLSecs:    360,
			CatalogTTLSecs:  3600,
			RetryMaxTries:   1,
			WarmEnabled:     true,
			WarmCron:        "*/3 * * * *",
			WarmChunks:      1,
			APIKey:          "secret",
			RateLimitPerSec: 10,
			RateLimitBurst:  10,
			LogLevel:        "info",
		}
	}
	initTracerFunc = func(ctx context.Context, service string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newLoggerFunc = func(string, bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	openBackendFunc = func(context.Context, *config.Config, trace.Tracer, *zap.Logger) app.Backend {
		return app.Backend{Store: cache.NewMemoryStore()}
	}
	startSchedulerFunc = func(*job.Scheduler, context.Context) {}
	startTelegramBotFunc = func(context.Context, string, bot.PriceResolver) {}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		newLoggerFunc = origNewLogger
		openBackendFunc = origOpenBackend
		startSchedulerFunc = origStartScheduler
		startTelegramBotFunc = origStartTelegram
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
