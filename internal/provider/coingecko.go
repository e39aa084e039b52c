package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/metrics"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// RetryPolicy bounds the exponential backoff applied to transient failures.
// The delay starts at Initial, doubles per attempt and is capped at Max.
type RetryPolicy struct {
	Initial  time.Duration
	Max      time.Duration
	MaxTries uint
}

var (
	DefaultPriceRetry   = RetryPolicy{Initial: 5 * time.Second, Max: 160 * time.Second, MaxTries: 10}
	DefaultCatalogRetry = RetryPolicy{Initial: 2 * time.Second, Max: 60 * time.Second, MaxTries: 10}
)

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.Max,
	}
}

// CoinGeckoProvider reads the coin catalog and batch USD quotes from CoinGecko.
type CoinGeckoProvider struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	tracer       trace.Tracer
	limiter      *RateLimiter
	priceRetry   RetryPolicy
	catalogRetry RetryPolicy
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

type CoinGeckoOption func(*CoinGeckoProvider)

func WithCoinGeckoBaseURL(u string) CoinGeckoOption {
	return func(p *CoinGeckoProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithCoinGeckoAPIKey(key string) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.apiKey = key }
}

func WithCoinGeckoTimeout(d time.Duration) CoinGeckoOption {
	return func(p *CoinGeckoProvider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

func WithCoinGeckoHTTPClient(c *http.Client) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.client = c }
}

func WithCoinGeckoLimiter(l *RateLimiter) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.limiter = l }
}

func WithPriceRetry(r RetryPolicy) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.priceRetry = r }
}

func WithCatalogRetry(r RetryPolicy) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.catalogRetry = r }
}

func WithCoinGeckoMetrics(m *metrics.Metrics) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.metrics = m }
}

func WithCoinGeckoLogger(l *zap.Logger) CoinGeckoOption {
	return func(p *CoinGeckoProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewCoinGeckoProvider creates a provider rate limited to 30 requests per
// minute (one token every 2 seconds, bursts of 10).
func NewCoinGeckoProvider(tracer trace.Tracer, opts ...CoinGeckoOption) *CoinGeckoProvider {
	p := &CoinGeckoProvider{
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      coingeckoBaseURL,
		tracer:       tracer,
		limiter:      NewRateLimiter(10, 2*time.Second),
		priceRetry:   DefaultPriceRetry,
		catalogRetry: DefaultCatalogRetry,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchCatalog returns the full coin list in upstream order.
func (p *CoinGeckoProvider) FetchCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-catalog")
	defer span.End()

	entries, err := retryFetch(ctx, p, "catalog", p.catalogRetry, p.baseURL+"/coins/list", parseCatalog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	span.SetAttributes(attribute.Int("catalog.size", len(entries)))
	return entries, nil
}

// FetchOne returns the quote for a single catalog id, or nil when the
// upstream has no complete quote for it.
func (p *CoinGeckoProvider) FetchOne(ctx context.Context, id string) (*domain.Quote, error) {
	quotes, err := p.fetchQuotes(ctx, "single", []string{id})
	if err != nil {
		return nil, err
	}
	q, ok := quotes[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

// FetchMany returns quotes for ids in one round trip. Ids the upstream
// omits, or reports with a null field, are absent from the map.
func (p *CoinGeckoProvider) FetchMany(ctx context.Context, ids []string) (map[string]domain.Quote, error) {
	return p.fetchQuotes(ctx, "batch", ids)
}

func (p *CoinGeckoProvider) fetchQuotes(ctx context.Context, callType string, ids []string) (map[string]domain.Quote, error) {
	ids = uniqueSorted(ids)
	if len(ids) == 0 {
		return map[string]domain.Quote{}, nil
	}

	ctx, span := p.tracer.Start(ctx, "coingecko.fetch-prices")
	defer span.End()
	span.SetAttributes(attribute.Int("ids.count", len(ids)), attribute.String("call.type", callType))

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")
	endpoint := p.baseURL + "/simple/price?" + q.Encode()

	quotes, err := retryFetch(ctx, p, callType, p.priceRetry, endpoint, parseSimplePrice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	return quotes, nil
}

// retryFetch runs request and parse as one attempt so a malformed body
// stops the loop and a transient failure backs off.
func retryFetch[T any](ctx context.Context, p *CoinGeckoProvider, callType string, policy RetryPolicy, endpoint string, parse func([]byte) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		var zero T
		start := time.Now()

		body, err := p.doRequest(ctx, endpoint)
		if err == nil {
			var out T
			out, err = parse(body)
			if err == nil {
				p.observe(callType, start, nil)
				return out, nil
			}
		}
		p.observe(callType, start, err)
		return zero, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("coingecko request failed, retrying",
				zap.String("type", callType),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
}

func (p *CoinGeckoProvider) observe(callType string, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.ObserveCoinGecko(callType, start, err)
	}
}

func (p *CoinGeckoProvider) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("coingecko API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamTransient, statusErr)
		}
		return nil, backoff.Permanent(statusErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstreamTransient, err)
	}
	return body, nil
}

func parseCatalog(body []byte) ([]domain.CatalogEntry, error) {
	var entries []domain.CatalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: parse catalog: %v", domain.ErrUpstreamMalformed, err))
	}
	return entries, nil
}

// Response shape: {"ethereum": {"usd": 3000, "usd_market_cap": 3.6e11, "usd_24h_vol": 1.2e10}, ...}
func parseSimplePrice(body []byte) (map[string]domain.Quote, error) {
	var raw map[string]map[string]*float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: parse prices: %v", domain.ErrUpstreamMalformed, err))
	}

	quotes := make(map[string]domain.Quote, len(raw))
	for id, data := range raw {
		price, vol, mcap := data["usd"], data["usd_24h_vol"], data["usd_market_cap"]
		if price == nil || vol == nil || mcap == nil {
			continue
		}
		quotes[id] = domain.Quote{PriceUSD: *price, Volume24hUSD: *vol, MarketCapUSD: *mcap}
	}
	return quotes, nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrUpstreamTransient)
}
