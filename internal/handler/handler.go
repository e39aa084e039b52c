package handler

import (
	"context"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type PriceResolver interface {
	Resolve(ctx context.Context, asset string) domain.Resolution
	ResolveMany(ctx context.Context, assets []string) domain.BatchResult
}

type Handler struct {
	tracer  trace.Tracer
	prices  PriceResolver
	metrics *metrics.Metrics
}

func New(tracer trace.Tracer, prices PriceResolver, m *metrics.Metrics) *Handler {
	return &Handler{
		tracer:  tracer,
		prices:  prices,
		metrics: m,
	}
}

// RegisterRoutes mounts the probes and metrics on r, and the price API
// behind the given middleware.
func (h *Handler) RegisterRoutes(r *gin.Engine, api ...gin.HandlerFunc) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	g := r.Group("/", api...)
	g.GET("/price/:asset", h.GetPrice)
	g.GET("/prices", h.GetPrices)
	g.GET("/transform-asset", h.TransformAsset)
}
