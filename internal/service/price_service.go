package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-price-service/internal/catalog"
	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/metrics"
	"crypto-price-service/internal/symbols"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultReadConcurrency = 8

type PriceCache interface {
	Get(ctx context.Context, asset string) (*domain.PriceRecord, error)
	Put(ctx context.Context, asset string, q domain.Quote) (domain.PriceRecord, error)
}

type CatalogSource interface {
	Entries(ctx context.Context) ([]domain.CatalogEntry, error)
}

// PrimaryProvider looks quotes up by catalog id.
type PrimaryProvider interface {
	FetchOne(ctx context.Context, id string) (*domain.Quote, error)
	FetchMany(ctx context.Context, ids []string) (map[string]domain.Quote, error)
}

// FallbackProvider looks a quote up by the caller's asset key.
type FallbackProvider interface {
	FetchOne(ctx context.Context, asset string) (*domain.Quote, error)
}

// PriceService resolves asset keys to price records: cache first, then the
// primary provider through the catalog, then the fallback provider.
type PriceService struct {
	tracer          trace.Tracer
	cache           PriceCache
	catalog         CatalogSource
	primary         PrimaryProvider
	fallback        FallbackProvider
	metrics         *metrics.Metrics
	logger          *zap.Logger
	readConcurrency int
	now             func() time.Time
}

type Option func(*PriceService)

func WithLogger(l *zap.Logger) Option {
	return func(s *PriceService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PriceService) { s.metrics = m }
}

// WithReadConcurrency bounds the parallel cache reads of a batch.
func WithReadConcurrency(n int) Option {
	return func(s *PriceService) {
		if n > 0 {
			s.readConcurrency = n
		}
	}
}

func NewPriceService(
	tracer trace.Tracer,
	cache PriceCache,
	catalog CatalogSource,
	primary PrimaryProvider,
	fallback FallbackProvider,
	opts ...Option,
) *PriceService {
	s := &PriceService{
		tracer:          tracer,
		cache:           cache,
		catalog:         catalog,
		primary:         primary,
		fallback:        fallback,
		logger:          zap.NewNop(),
		readConcurrency: defaultReadConcurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the price record for a single asset. It never panics and
// never returns an error; failures are reported through the resolution.
func (s *PriceService) Resolve(ctx context.Context, asset string) (res domain.Resolution) {
	ctx, span := s.tracer.Start(ctx, "price-service.resolve")
	defer span.End()

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic resolving asset", zap.String("asset", asset), zap.Any("panic", r))
			res = domain.NotFound(domain.ReasonInternal, fmt.Sprint(r))
		}
		span.SetAttributes(attribute.String("resolution.status", string(res.Status)))
		s.observeRequest(start)
	}()

	asset = strings.TrimSpace(asset)
	span.SetAttributes(attribute.String("asset", asset))
	if asset == "" {
		return domain.NotFound(domain.ReasonInvalidInput, "asset must not be empty")
	}

	if rec := s.cached(ctx, asset); rec != nil {
		return domain.Resolved(*rec, domain.SourceCache)
	}

	var primaryErr error
	normalized := symbols.Normalize(asset)
	entries, err := s.catalog.Entries(ctx)
	if err != nil {
		s.logger.Warn("catalog unavailable, using fallback", zap.String("asset", asset), zap.Error(err))
		primaryErr = err
	} else if id, ok := catalog.FindID(entries, normalized); ok {
		q, err := s.primary.FetchOne(ctx, id)
		switch {
		case err != nil:
			s.logger.Warn("primary provider failed", zap.String("asset", asset), zap.String("id", id), zap.Error(err))
			primaryErr = err
		case q != nil:
			return domain.Resolved(s.store(ctx, asset, *q), domain.SourcePrimary)
		}
	}

	if ctx.Err() != nil {
		return domain.NotFound(domain.ReasonCancelled, ctx.Err().Error())
	}

	return s.resolveFallback(ctx, asset, primaryErr)
}

// ResolveMany resolves a batch. Duplicate keys are resolved once, keys that
// map to the same catalog id share one upstream lookup, and every key ends
// up either in Prices or in Failures.
func (s *PriceService) ResolveMany(ctx context.Context, assets []string) (result domain.BatchResult) {
	ctx, span := s.tracer.Start(ctx, "price-service.resolve-many")
	defer span.End()

	start := s.now()
	result = domain.BatchResult{Prices: make(map[string]domain.PriceRecord)}
	keys, blanks := dedupe(assets)
	for i := 0; i < blanks; i++ {
		result.Failures = append(result.Failures, domain.Failure{Reason: domain.ReasonInvalidInput, Detail: "asset must not be empty"})
	}
	span.SetAttributes(attribute.Int("assets.count", len(keys)))

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic resolving batch", zap.Any("panic", r))
			failUndecided(&result, keys, domain.ReasonInternal, fmt.Sprint(r))
		}
		if len(keys) > 0 && len(result.Prices) == 0 {
			if s.metrics != nil {
				s.metrics.BatchFailures.WithLabelValues("all_apis").Inc()
			}
			s.logger.Error("complete batch failure", zap.Strings("assets", keys), zap.Int("failures", len(result.Failures)))
		}
		span.SetAttributes(
			attribute.Int("prices.count", len(result.Prices)),
			attribute.Int("failures.count", len(result.Failures)),
		)
		s.observeRequest(start)
	}()

	if len(keys) == 0 {
		return result
	}

	misses := s.readCached(ctx, keys, result.Prices)
	if len(misses) == 0 {
		return result
	}

	fallback, primaryErrs := s.resolvePrimary(ctx, misses, result.Prices)

	for i, asset := range fallback {
		if ctx.Err() != nil {
			for _, rest := range fallback[i:] {
				result.Failures = append(result.Failures, domain.Failure{Asset: rest, Reason: domain.ReasonCancelled, Detail: ctx.Err().Error()})
			}
			break
		}
		res := s.resolveFallback(ctx, asset, primaryErrs[asset])
		if res.OK() {
			result.Prices[asset] = res.Record
			continue
		}
		result.Failures = append(result.Failures, domain.Failure{Asset: asset, Reason: res.Reason, Detail: res.Detail})
	}
	return result
}

// readCached fills prices from the cache and returns the missed keys in
// request order. Reads run concurrently; results are gathered by index.
func (s *PriceService) readCached(ctx context.Context, keys []string, prices map[string]domain.PriceRecord) []string {
	hits := make([]*domain.PriceRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.readConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic reading price cache", zap.String("asset", key), zap.Any("panic", r))
				}
			}()
			hits[i] = s.cached(gctx, key)
			return nil
		})
	}
	_ = g.Wait()

	var misses []string
	for i, key := range keys {
		if hits[i] != nil {
			prices[key] = *hits[i]
			continue
		}
		misses = append(misses, key)
	}
	return misses
}

// resolvePrimary resolves misses through the catalog and a single batch
// call. It returns the keys left for the fallback, in request order, and
// the primary error to report for each of them, if any.
func (s *PriceService) resolvePrimary(ctx context.Context, misses []string, prices map[string]domain.PriceRecord) ([]string, map[string]error) {
	primaryErrs := make(map[string]error)

	entries, err := s.catalog.Entries(ctx)
	if err != nil {
		s.logger.Warn("catalog unavailable, using fallback for batch", zap.Int("assets", len(misses)), zap.Error(err))
		for _, key := range misses {
			primaryErrs[key] = err
		}
		return misses, primaryErrs
	}

	// One catalog id may serve several caller keys, e.g. weth and eth.
	keysByID := make(map[string][]string)
	var ids []string
	for _, key := range misses {
		id, ok := catalog.FindID(entries, symbols.Normalize(key))
		if !ok {
			continue
		}
		if _, seen := keysByID[id]; !seen {
			ids = append(ids, id)
		}
		keysByID[id] = append(keysByID[id], key)
	}

	if len(ids) > 0 {
		quotes, err := s.primary.FetchMany(ctx, ids)
		if err != nil {
			s.logger.Warn("primary batch failed", zap.Strings("ids", ids), zap.Error(err))
			for _, id := range ids {
				for _, key := range keysByID[id] {
					primaryErrs[key] = err
				}
			}
		} else {
			for _, id := range ids {
				q, ok := quotes[id]
				if !ok {
					continue
				}
				for _, key := range keysByID[id] {
					prices[key] = s.store(ctx, key, q)
				}
			}
		}
	}

	var fallback []string
	for _, key := range misses {
		if _, ok := prices[key]; !ok {
			fallback = append(fallback, key)
		}
	}
	return fallback, primaryErrs
}

func (s *PriceService) resolveFallback(ctx context.Context, asset string, primaryErr error) domain.Resolution {
	q, err := s.fallback.FetchOne(ctx, asset)
	if err != nil {
		s.logger.Warn("fallback provider failed", zap.String("asset", asset), zap.Error(err))
		return domain.NotFound(domain.ReasonUpstreamError, err.Error())
	}
	if q != nil {
		return domain.Resolved(s.store(ctx, asset, *q), domain.SourceFallback)
	}
	if primaryErr != nil {
		return domain.NotFound(domain.ReasonUpstreamError, primaryErr.Error())
	}
	return domain.NotFound(domain.ReasonNotFound, fmt.Sprintf("both providers could not find %s", asset))
}

// cached treats read errors as a miss.
func (s *PriceService) cached(ctx context.Context, asset string) *domain.PriceRecord {
	rec, err := s.cache.Get(ctx, asset)
	if err != nil {
		s.logger.Warn("price cache read failed", zap.String("asset", asset), zap.Error(err))
		return nil
	}
	return rec
}

// store writes through to the cache. A rejected or failed write is logged
// and the quote is still returned to the caller.
func (s *PriceService) store(ctx context.Context, asset string, q domain.Quote) domain.PriceRecord {
	rec, err := s.cache.Put(ctx, asset, q)
	if err == nil {
		return rec
	}
	if errors.Is(err, domain.ErrCacheWriteRejected) {
		if s.metrics != nil {
			s.metrics.CacheWriteRejects.Inc()
		}
		s.logger.Warn("price rejected by cache", zap.String("asset", asset), zap.Error(err))
	} else {
		s.logger.Warn("price cache write failed", zap.String("asset", asset), zap.Error(err))
	}
	return domain.NewPriceRecord(asset, q, s.now().UTC())
}

func (s *PriceService) observeRequest(start time.Time) {
	if s.metrics != nil {
		s.metrics.ServiceRequestTime.Observe(s.now().Sub(start).Seconds())
	}
}

// dedupe trims keys and drops repeats, keeping first occurrences in order.
// Blank keys are counted, not returned.
func dedupe(assets []string) ([]string, int) {
	seen := make(map[string]struct{}, len(assets))
	keys := make([]string, 0, len(assets))
	blanks := 0
	for _, a := range assets {
		a = strings.TrimSpace(a)
		if a == "" {
			blanks++
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		keys = append(keys, a)
	}
	return keys, blanks
}

func failUndecided(result *domain.BatchResult, keys []string, reason domain.FailureReason, detail string) {
	failed := make(map[string]struct{}, len(result.Failures))
	for _, f := range result.Failures {
		failed[f.Asset] = struct{}{}
	}
	for _, key := range keys {
		if _, ok := result.Prices[key]; ok {
			continue
		}
		if _, ok := failed[key]; ok {
			continue
		}
		result.Failures = append(result.Failures, domain.Failure{Asset: key, Reason: reason, Detail: detail})
	}
}
