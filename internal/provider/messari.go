package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/metrics"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	messariBaseURL = "https://data.messari.io"
	messariFields  = "id,symbol,market_data/price_usd,market_data/real_volume_last_24_hours,market_data/volume_last_24_hours,marketcap/current_marketcap_usd"
)

// MessariProvider reads single-asset metrics from Messari. Calls are made
// once, without retry.
type MessariProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

type MessariOption func(*MessariProvider)

func WithMessariBaseURL(u string) MessariOption {
	return func(p *MessariProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithMessariAPIKey(key string) MessariOption {
	return func(p *MessariProvider) { p.apiKey = key }
}

func WithMessariTimeout(d time.Duration) MessariOption {
	return func(p *MessariProvider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

func WithMessariHTTPClient(c *http.Client) MessariOption {
	return func(p *MessariProvider) { p.client = c }
}

func WithMessariMetrics(m *metrics.Metrics) MessariOption {
	return func(p *MessariProvider) { p.metrics = m }
}

func NewMessariProvider(tracer trace.Tracer, opts ...MessariOption) *MessariProvider {
	p := &MessariProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: messariBaseURL,
		tracer:  tracer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchOne returns the quote for asset, or nil when Messari does not know
// the asset or reports any of the three values as null.
func (p *MessariProvider) FetchOne(ctx context.Context, asset string) (q *domain.Quote, err error) {
	ctx, span := p.tracer.Start(ctx, "messari.fetch-metrics")
	defer span.End()
	span.SetAttributes(attribute.String("asset", asset))

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			if err == nil && q == nil {
				p.metrics.ObserveMessari(start, domain.ErrNotFound)
			} else {
				p.metrics.ObserveMessari(start, err)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	endpoint := fmt.Sprintf("%s/api/v1/assets/%s/metrics?fields=%s", p.baseURL, url.PathEscape(asset), messariFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-messari-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messari %s: %w: %v", asset, domain.ErrUpstreamTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("messari %s: %w: status %d", asset, domain.ErrUpstreamTransient, resp.StatusCode)
		}
		return nil, fmt.Errorf("messari API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("messari %s: read body: %w", asset, err)
	}
	return parseMessariMetrics(body)
}

func parseMessariMetrics(body []byte) (*domain.Quote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: messari body is not JSON", domain.ErrUpstreamMalformed)
	}

	fields := gjson.GetManyBytes(body,
		"data.market_data.price_usd",
		"data.market_data.volume_last_24_hours",
		"data.marketcap.current_marketcap_usd",
	)
	for _, f := range fields {
		if f.Type != gjson.Number {
			return nil, nil
		}
	}
	return &domain.Quote{
		PriceUSD:     fields[0].Float(),
		Volume24hUSD: fields[1].Float(),
		MarketCapUSD: fields[2].Float(),
	}, nil
}
