package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"crypto-price-service/internal/app"
	"crypto-price-service/internal/cache"
	"crypto-price-service/internal/config"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestMainRunsStdio(t *testing.T) {
	restore := stubDeps("stdio")
	defer restore()

	ran := false
	runStdioFunc = func(ctx context.Context, s *mcp.Server) error {
		ran = s != nil
		return nil
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
	if !ran {
		t.Fatal("expected stdio transport to run")
	}
}

func TestServeHTTPStopsOnCancel(t *testing.T) {
	orig := startHTTPFunc
	defer func() { startHTTPFunc = orig }()

	var addr string
	startHTTPFunc = func(srv *http.Server) error {
		addr = srv.Addr
		return srv.ListenAndServe()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := &config.Config{MCPTransport: "http", MCPHTTPBind: "127.0.0.1", MCPHTTPPort: 0}
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "test"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, cfg, server, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
	if addr != "127.0.0.1:0" {
		t.Fatalf("unexpected listen address %q", addr)
	}
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	cfg := &config.Config{MCPTransport: "carrier-pigeon"}
	if err := serve(context.Background(), cfg, nil, zap.NewNop()); err == nil {
		t.Fatal("expected error")
	}
}

func stubDeps(transport string) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origNewLogger := newLoggerFunc
	origOpenBackend := openBackendFunc
	origRunStdio := runStdioFunc
	origNotify := notifyContext

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{StoreBackend: config.StoreMemory, MCPTransport: transport, RetryMaxTries: 1, WarmChunks: 1}
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

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		newLoggerFunc = origNewLogger
		openBackendFunc = origOpenBackend
		runStdioFunc = origRunStdio
		notifyContext = origNotify
	}
}
