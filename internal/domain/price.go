package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CatalogEntry is one coin from the upstream catalog.
type CatalogEntry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Quote is a USD price, 24h volume and market cap triple as parsed from an upstream.
type Quote struct {
	PriceUSD     float64 `json:"usd_price"`
	Volume24hUSD float64 `json:"volume_last_24_hours"`
	MarketCapUSD float64 `json:"current_marketcap_usd"`
}

// Validate rejects negative, NaN and infinite values.
func (q Quote) Validate() error {
	for name, v := range map[string]float64{
		"price":     q.PriceUSD,
		"volume":    q.Volume24hUSD,
		"marketcap": q.MarketCapUSD,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrCacheWriteRejected, name, v)
		}
	}
	return nil
}

// PriceRecord is a quote for the asset key exactly as the caller supplied it.
type PriceRecord struct {
	Asset        string    `json:"asset"`
	PriceUSD     float64   `json:"usd_price"`
	Volume24hUSD float64   `json:"volume_last_24_hours"`
	MarketCapUSD float64   `json:"current_marketcap_usd"`
	ObservedAt   time.Time `json:"observed_at"`
}

// NewPriceRecord stamps a quote for asset at observedAt.
func NewPriceRecord(asset string, q Quote, observedAt time.Time) PriceRecord {
	return PriceRecord{
		Asset:        asset,
		PriceUSD:     q.PriceUSD,
		Volume24hUSD: q.Volume24hUSD,
		MarketCapUSD: q.MarketCapUSD,
		ObservedAt:   observedAt,
	}
}

// Quote returns the numeric triple of the record.
func (r PriceRecord) Quote() Quote {
	return Quote{PriceUSD: r.PriceUSD, Volume24hUSD: r.Volume24hUSD, MarketCapUSD: r.MarketCapUSD}
}

// Validate checks the record can be cached.
func (r PriceRecord) Validate() error {
	if strings.TrimSpace(r.Asset) == "" {
		return fmt.Errorf("%w: empty asset key", ErrCacheWriteRejected)
	}
	return r.Quote().Validate()
}

// FreshAt reports whether the record is younger than window at now.
func (r PriceRecord) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(r.ObservedAt) < window
}

// DefaultUniverse is the asset list the cache warmer keeps populated.
var DefaultUniverse = []string{
	"1inch", "aave", "airswap", "alcx", "alink", "alpha-finance", "audio", "bal", "bdp",
	"big-data-protocol", "conic-finance", "convex-finance", "crv", "curve-dao-token", "cvxcrv",
	"dai", "degen", "dopex-rebate-token", "dpx", "eth", "ethereum", "fctr", "fpis", "ftm", "fxs",
	"gearbox", "grail", "havven", "hegic", "hop", "ilv", "immutable-x", "jpeg-d", "kyber-network",
	"link", "lrc", "lyra-finance", "magic", "matic", "mav", "mirror-protocol", "mln", "nftx",
	"omg", "op", "perp", "pls", "plutusdao", "premia", "radar", "rbn", "rdpx", "rgt", "rook",
	"rpl", "silo-finance", "spa", "spell", "stake-dao", "susd", "thales", "the-graph", "tokemak",
	"trove", "tusd", "uniswap", "usd-coin", "usdc", "vision", "weth", "wrapped-bitcoin", "xsushi",
	"yfi",
}
