package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crypto-price-service/internal/domain"
)

const (
	priceKeyPrefix = "price:"

	fieldPrice     = "price"
	fieldVolume    = "volume"
	fieldMarketCap = "marketcap"
	fieldTimestamp = "timestamp"
)

// PriceCache maps caller-facing asset keys to the last observed quote.
// Records at or past the freshness window are never returned.
type PriceCache struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

func NewPriceCache(store Store, window time.Duration) *PriceCache {
	return &PriceCache{store: store, window: window, now: time.Now}
}

// WithClock swaps the time source used for stamping and freshness checks.
func (c *PriceCache) WithClock(now func() time.Time) *PriceCache {
	c.now = now
	return c
}

// Window is the freshness window records are checked against.
func (c *PriceCache) Window() time.Duration {
	return c.window
}

func priceKey(asset string) string {
	return priceKeyPrefix + asset
}

// Get returns the cached record for asset, or nil when it was never
// written, has expired or is incomplete.
func (c *PriceCache) Get(ctx context.Context, asset string) (*domain.PriceRecord, error) {
	if strings.TrimSpace(asset) == "" {
		return nil, nil
	}

	fields, err := c.store.HGetAll(ctx, priceKey(asset))
	if err != nil {
		return nil, fmt.Errorf("price cache get %s: %w", asset, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	record, ok := decodeRecord(asset, fields)
	if !ok || !record.FreshAt(c.now(), c.window) {
		return nil, nil
	}
	return &record, nil
}

// Put validates and stores a quote for asset, stamped with the current time.
func (c *PriceCache) Put(ctx context.Context, asset string, q domain.Quote) (domain.PriceRecord, error) {
	record := domain.NewPriceRecord(asset, q, c.now().UTC())
	if err := record.Validate(); err != nil {
		return domain.PriceRecord{}, err
	}

	if err := c.store.HSetWithTTL(ctx, priceKey(asset), encodeRecord(record), c.window); err != nil {
		return domain.PriceRecord{}, fmt.Errorf("price cache put %s: %w", asset, err)
	}
	return record, nil
}

// PutBatch stores each quote independently. The returned map holds the
// error for every asset that was not written.
func (c *PriceCache) PutBatch(ctx context.Context, quotes map[string]domain.Quote) map[string]error {
	failed := make(map[string]error)
	for asset, q := range quotes {
		if _, err := c.Put(ctx, asset, q); err != nil {
			failed[asset] = err
		}
	}
	return failed
}

func encodeRecord(r domain.PriceRecord) map[string]string {
	return map[string]string{
		fieldPrice:     strconv.FormatFloat(r.PriceUSD, 'g', -1, 64),
		fieldVolume:    strconv.FormatFloat(r.Volume24hUSD, 'g', -1, 64),
		fieldMarketCap: strconv.FormatFloat(r.MarketCapUSD, 'g', -1, 64),
		fieldTimestamp: r.ObservedAt.Format(time.RFC3339Nano),
	}
}

func decodeRecord(asset string, fields map[string]string) (domain.PriceRecord, bool) {
	var q domain.Quote
	for name, dst := range map[string]*float64{
		fieldPrice:     &q.PriceUSD,
		fieldVolume:    &q.Volume24hUSD,
		fieldMarketCap: &q.MarketCapUSD,
	} {
		raw, ok := fields[name]
		if !ok {
			return domain.PriceRecord{}, false
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.PriceRecord{}, false
		}
		*dst = v
	}

	observedAt, err := time.Parse(time.RFC3339Nano, fields[fieldTimestamp])
	if err != nil {
		return domain.PriceRecord{}, false
	}
	return domain.NewPriceRecord(asset, q, observedAt), true
}
