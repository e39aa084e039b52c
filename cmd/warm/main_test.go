package main

import (
	"context"
	"os"
	"testing"

	"crypto-price-service/internal/app"
	"crypto-price-service/internal/cache"
	"crypto-price-service/internal/config"
	"crypto-price-service/internal/job"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		res  job.WarmResult
		want int
	}{
		{"all good", job.WarmResult{Succeeded: 3}, 0},
		{"partial", job.WarmResult{Succeeded: 2, Failed: 1}, 0},
		{"nothing resolved", job.WarmResult{Failed: 3}, 1},
		{"cancelled", job.WarmResult{Succeeded: 1, Skipped: 2}, 2},
		{"empty universe", job.WarmResult{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.res); got != tt.want {
				t.Fatalf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMainRunsOnePass(t *testing.T) {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origNewLogger := newLoggerFunc
	origOpenBackend := openBackendFunc
	origRunWarm := runWarmFunc
	origNotify := notifyContext
	origExit := exitFunc
	defer func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		newLoggerFunc = origNewLogger
		openBackendFunc = origOpenBackend
		runWarmFunc = origRunWarm
		notifyContext = origNotify
		exitFunc = origExit
	}()

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{StoreBackend: config.StoreMemory, RetryMaxTries: 1, WarmChunks: 2, WarmUniverse: []string{"eth", "btc"}}
	}
	initTracerFunc = func(ctx context.Context, service string) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newLoggerFunc = func(string, bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	openBackendFunc = func(context.Context, *config.Config, trace.Tracer, *zap.Logger) app.Backend {
		return app.Backend{Store: cache.NewMemoryStore()}
	}
	notifyContext = func(parent context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(parent)
	}

	runs := 0
	runWarmFunc = func(ctx context.Context, w *job.CacheWarmer) job.WarmResult {
		runs++
		if w == nil {
			t.Error("expected a warmer")
		}
		return job.WarmResult{Failed: 2}
	}
	code := -1
	exitFunc = func(c int) { code = c }

	main()

	if runs != 1 {
		t.Fatalf("expected one pass, got %d", runs)
	}
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
