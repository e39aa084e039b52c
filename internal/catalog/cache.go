// Package catalog keeps the upstream coin catalog and resolves asset keys
// to catalog ids.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"crypto-price-service/internal/cache"
	"crypto-price-service/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StoreKey is where the serialized catalog is shared between instances.
const StoreKey = "coingecko:coin_list"

const refreshKey = "catalog"

type Fetcher interface {
	FetchCatalog(ctx context.Context) ([]domain.CatalogEntry, error)
}

type envelope struct {
	FetchedAt time.Time             `json:"fetched_at"`
	Entries   []domain.CatalogEntry `json:"entries"`
}

// Cache serves the catalog from memory, then from the shared store, then
// from the upstream. Only one refresh runs at a time; concurrent callers
// share its result.
type Cache struct {
	fetcher Fetcher
	store   cache.Store
	window  time.Duration
	tracer  trace.Tracer
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	entries   []domain.CatalogEntry
	fetchedAt time.Time
}

// New builds a catalog cache. store may be nil, in which case only the
// in-process snapshot is kept.
func New(fetcher Fetcher, store cache.Store, window time.Duration, tracer trace.Tracer, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		store:   store,
		window:  window,
		tracer:  tracer,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock swaps the time source used for freshness checks.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Entries returns the current catalog snapshot. The returned slice must
// not be modified.
func (c *Cache) Entries(ctx context.Context) ([]domain.CatalogEntry, error) {
	if entries, ok := c.snapshot(); ok {
		return entries, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.CatalogEntry), nil
	}
}

func (c *Cache) snapshot() ([]domain.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entries == nil || c.now().Sub(c.fetchedAt) >= c.window {
		return nil, false
	}
	return c.entries, true
}

func (c *Cache) replace(entries []domain.CatalogEntry, fetchedAt time.Time) {
	c.mu.Lock()
	c.entries = entries
	c.fetchedAt = fetchedAt
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context) ([]domain.CatalogEntry, error) {
	ctx, span := c.tracer.Start(ctx, "catalog.refresh")
	defer span.End()

	// A caller that queued behind a finished refresh may land here.
	if entries, ok := c.snapshot(); ok {
		return entries, nil
	}

	if env, ok := c.loadStored(ctx); ok {
		span.SetAttributes(attribute.String("catalog.source", "store"))
		c.replace(env.Entries, env.FetchedAt)
		return env.Entries, nil
	}

	entries, err := c.fetcher.FetchCatalog(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("refresh catalog: %w", err)
	}
	if entries == nil {
		entries = []domain.CatalogEntry{}
	}
	fetchedAt := c.now().UTC()
	c.replace(entries, fetchedAt)
	span.SetAttributes(attribute.String("catalog.source", "upstream"), attribute.Int("catalog.size", len(entries)))
	c.logger.Info("catalog refreshed", zap.Int("entries", len(entries)))

	c.persist(ctx, envelope{FetchedAt: fetchedAt, Entries: entries})
	return entries, nil
}

func (c *Cache) loadStored(ctx context.Context) (envelope, bool) {
	if c.store == nil {
		return envelope{}, false
	}
	raw, err := c.store.Get(ctx, StoreKey)
	if err != nil {
		c.logger.Warn("catalog store read failed", zap.Error(err))
		return envelope{}, false
	}
	if raw == nil {
		return envelope{}, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("catalog store entry undecodable", zap.Error(err))
		return envelope{}, false
	}
	if env.Entries == nil || c.now().Sub(env.FetchedAt) >= c.window {
		return envelope{}, false
	}
	return env, true
}

func (c *Cache) persist(ctx context.Context, env envelope) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("catalog encode failed", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, StoreKey, raw, c.window); err != nil {
		c.logger.Warn("catalog store write failed", zap.Error(err))
	}
}
