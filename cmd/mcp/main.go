package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"crypto-price-service/internal/app"
	"crypto-price-service/internal/config"
	"crypto-price-service/internal/mcptools"
	"crypto-price-service/pkg/logger"
	"crypto-price-service/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const serviceName = "crypto-price-mcp"

var (
	loadEnvFunc     = godotenv.Load
	loadConfigFunc  = config.Load
	initTracerFunc  = tracing.InitTracer
	newLoggerFunc   = logger.New
	openBackendFunc = app.OpenBackend
	buildAppFunc    = app.Build
	runStdioFunc    = func(ctx context.Context, s *mcp.Server) error { return s.Run(ctx, &mcp.StdioTransport{}) }
	startHTTPFunc   = func(srv *http.Server) error { return srv.ListenAndServe() }
	notifyContext   = signal.NotifyContext
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	zl, err := newLoggerFunc(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, tracer, err := initTracerFunc(ctx, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	a := buildAppFunc(cfg, openBackendFunc(ctx, cfg, tracer, zl), tracer, zl)
	defer a.Close()

	server := mcptools.NewServer(a.Prices, tracing.ServiceVersion)
	if err := serve(ctx, cfg, server, zl); err != nil {
		log.Fatalf("mcp server: %v", err)
	}
}

func serve(ctx context.Context, cfg *config.Config, server *mcp.Server, zl *zap.Logger) error {
	switch cfg.MCPTransport {
	case "", "stdio":
		zl.Info("mcp server on stdio")
		if err := runStdioFunc(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case "http":
		addr := net.JoinHostPort(cfg.MCPHTTPBind, strconv.Itoa(cfg.MCPHTTPPort))
		srv := &http.Server{
			Addr: addr,
			Handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
				return server
			}, nil),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			zl.Info("mcp server listening", zap.String("addr", addr))
			errCh <- startHTTPFunc(srv)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	default:
		return fmt.Errorf("unknown MCP_TRANSPORT %q", cfg.MCPTransport)
	}
}
