package job

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BatchResolver interface {
	ResolveMany(ctx context.Context, assets []string) domain.BatchResult
}

// Purger drops expired rows from stores without native key expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// WarmResult aggregates one pass over the universe.
type WarmResult struct {
	Chunks      int
	Succeeded   int
	Failed      int
	Skipped     int
	ChunkErrors int
	Purged      int64
	Duration    time.Duration
}

// CacheWarmer keeps the price cache populated for a fixed asset universe.
// The universe is resolved in chunks with a pause between them to stay
// under upstream rate limits.
type CacheWarmer struct {
	tracer   trace.Tracer
	resolver BatchResolver
	universe []string
	chunks   int
	pause    time.Duration
	purger   Purger
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type WarmerOption func(*CacheWarmer)

func WithWarmerMetrics(m *metrics.Metrics) WarmerOption {
	return func(w *CacheWarmer) { w.metrics = m }
}

// WithExpiredPurge runs p after every completed pass.
func WithExpiredPurge(p Purger) WarmerOption {
	return func(w *CacheWarmer) { w.purger = p }
}

func WithWarmerLogger(l *zap.Logger) WarmerOption {
	return func(w *CacheWarmer) {
		if l != nil {
			w.logger = l
		}
	}
}

func NewCacheWarmer(tracer trace.Tracer, resolver BatchResolver, universe []string, chunks int, pause time.Duration, opts ...WarmerOption) *CacheWarmer {
	if chunks <= 0 {
		chunks = 1
	}
	w := &CacheWarmer{
		tracer:   tracer,
		resolver: resolver,
		universe: append([]string(nil), universe...),
		chunks:   chunks,
		pause:    pause,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce resolves the whole universe once, chunk by chunk. A failing chunk
// is counted and the remaining chunks still run. Cancellation stops the
// pass between chunks; unprocessed assets are reported as skipped.
func (w *CacheWarmer) RunOnce(ctx context.Context) WarmResult {
	ctx, span := w.tracer.Start(ctx, "cache-warmer.run-once")
	defer span.End()

	start := time.Now()
	chunks := splitChunks(w.universe, w.chunks)
	result := WarmResult{Chunks: len(chunks)}

	w.logger.Info("cache warm starting", zap.Int("assets", len(w.universe)), zap.Int("chunks", len(chunks)))

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			result.Skipped += countAssets(chunks[i:])
			break
		}

		succeeded, failed, err := w.runChunk(ctx, chunk)
		result.Succeeded += succeeded
		result.Failed += failed
		label := strconv.Itoa(i + 1)
		if w.metrics != nil {
			w.metrics.ChunkSuccess.WithLabelValues(label).Add(float64(succeeded))
		}
		if err != nil {
			result.ChunkErrors++
			kind := classify(err)
			w.logger.Error("cache warm chunk failed",
				zap.Int("chunk", i+1),
				zap.String("error_type", kind),
				zap.Strings("assets", chunk),
				zap.Error(err),
			)
			if w.metrics != nil {
				w.metrics.ChunkErrors.WithLabelValues(label, kind).Inc()
			}
		}

		if i < len(chunks)-1 && !sleepCtx(ctx, w.pause) {
			result.Skipped += countAssets(chunks[i+1:])
			break
		}
	}

	if w.purger != nil && ctx.Err() == nil {
		n, err := w.purger.PurgeExpired(ctx)
		if err != nil {
			w.logger.Warn("purging expired cache rows failed", zap.Error(err))
		}
		result.Purged = n
	}

	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("warm.succeeded", result.Succeeded),
		attribute.Int("warm.failed", result.Failed),
		attribute.Int("warm.skipped", result.Skipped),
	)
	if w.metrics != nil {
		w.metrics.AssetsProcessed.Set(float64(result.Succeeded))
		w.metrics.FailedAssets.Set(float64(result.Failed))
		w.metrics.CacheUpdateDuration.Set(result.Duration.Seconds())
	}
	w.logger.Info("cache warm finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("chunk_errors", result.ChunkErrors),
		zap.Int64("purged", result.Purged),
		zap.Duration("duration", result.Duration),
	)
	return result
}

var errChunkFailed = errors.New("no asset in chunk resolved")

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (w *CacheWarmer) runChunk(ctx context.Context, chunk []string) (succeeded, failed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			succeeded, failed, err = 0, len(chunk), panicError{value: r}
		}
	}()

	res := w.resolver.ResolveMany(ctx, chunk)
	succeeded = len(res.Prices)
	failed = len(res.Failures)
	if ctx.Err() != nil {
		return succeeded, failed, ctx.Err()
	}
	if succeeded == 0 && len(chunk) > 0 {
		return succeeded, failed, errChunkFailed
	}
	return succeeded, failed, nil
}

func classify(err error) string {
	var p panicError
	switch {
	case errors.As(err, &p):
		return "panic"
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, errChunkFailed):
		return "all_failed"
	default:
		return "unknown"
	}
}

// splitChunks divides assets into at most n chunks whose sizes differ by
// at most one, earlier chunks taking the remainder.
func splitChunks(assets []string, n int) [][]string {
	if len(assets) == 0 {
		return nil
	}
	if n > len(assets) {
		n = len(assets)
	}
	size, rem := len(assets)/n, len(assets)%n

	chunks := make([][]string, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		chunks = append(chunks, assets[start:end])
		start = end
	}
	return chunks
}

func countAssets(chunks [][]string) int {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	return total
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
