// Command warm runs a single cache warm pass and exits. It is meant for
// external schedulers; the server runs the same pass on its own cron.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"crypto-price-service/internal/app"
	"crypto-price-service/internal/config"
	"crypto-price-service/internal/job"
	"crypto-price-service/pkg/logger"
	"crypto-price-service/pkg/tracing"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "crypto-price-warm"

var (
	loadEnvFunc     = godotenv.Load
	loadConfigFunc  = config.Load
	initTracerFunc  = tracing.InitTracer
	newLoggerFunc   = logger.New
	openBackendFunc = app.OpenBackend
	buildAppFunc    = app.Build
	runWarmFunc     = func(ctx context.Context, w *job.CacheWarmer) job.WarmResult { return w.RunOnce(ctx) }
	notifyContext   = signal.NotifyContext
	exitFunc        = os.Exit
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	zl, err := newLoggerFunc(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, tracer, err := initTracerFunc(ctx, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}

	a := buildAppFunc(cfg, openBackendFunc(ctx, cfg, tracer, zl), tracer, zl)
	res := runWarmFunc(ctx, a.Warmer)
	a.Close()

	if err := tp.Shutdown(context.Background()); err != nil {
		log.Printf("error shutting down tracer provider: %v", err)
	}

	zl.Info("warm pass complete",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("chunk_errors", res.ChunkErrors),
	)
	_ = zl.Sync()

	exitFunc(exitCode(res))
}

// exitCode is non-zero when the pass resolved nothing or was cut short.
func exitCode(res job.WarmResult) int {
	if res.Skipped > 0 {
		return 2
	}
	if res.Succeeded == 0 && res.Failed > 0 {
		return 1
	}
	return 0
}
