package mcptools

import (
	"context"
	"fmt"
	"strings"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/symbols"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const maxBatchAssets = 100

type PriceResolver interface {
	Resolve(ctx context.Context, asset string) domain.Resolution
	ResolveMany(ctx context.Context, assets []string) domain.BatchResult
}

type PriceInput struct {
	Asset string `json:"asset" jsonschema:"asset key such as eth, btc or a coingecko id"`
}

type PriceOutput struct {
	Asset        string  `json:"asset"`
	PriceUSD     float64 `json:"usd_price"`
	Volume24hUSD float64 `json:"volume_last_24_hours"`
	MarketCapUSD float64 `json:"current_marketcap_usd"`
	Source       string  `json:"source"`
}

type PricesInput struct {
	Assets []string `json:"assets" jsonschema:"asset keys to resolve"`
}

type PricesOutput struct {
	Prices []PriceOutput    `json:"prices"`
	Failed []domain.Failure `json:"failed"`
}

type TransformInput struct {
	Asset string `json:"asset" jsonschema:"asset key to normalize"`
}

type TransformOutput struct {
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
}

// NewServer builds an MCP server exposing the price tools.
func NewServer(prices PriceResolver, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "crypto-price-service", Version: version}, nil)
	t := &tools{prices: prices}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_price",
		Description: "Resolve the USD price, 24h volume and market cap of one crypto asset.",
	}, t.getPrice)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_prices",
		Description: "Resolve USD prices for several crypto assets at once.",
	}, t.getPrices)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "transform_asset",
		Description: "Show the canonical key an asset alias resolves to.",
	}, t.transformAsset)

	return server
}

type tools struct {
	prices PriceResolver
}

func (t *tools) getPrice(ctx context.Context, _ *mcp.CallToolRequest, in PriceInput) (*mcp.CallToolResult, PriceOutput, error) {
	asset := strings.TrimSpace(in.Asset)
	if asset == "" {
		return nil, PriceOutput{}, fmt.Errorf("asset is required")
	}
	res := t.prices.Resolve(ctx, asset)
	if !res.OK() {
		return nil, PriceOutput{}, fmt.Errorf("no price for %s: %s", asset, res.Reason)
	}
	return nil, toOutput(res.Record, res.Source), nil
}

func (t *tools) getPrices(ctx context.Context, _ *mcp.CallToolRequest, in PricesInput) (*mcp.CallToolResult, PricesOutput, error) {
	if len(in.Assets) == 0 {
		return nil, PricesOutput{}, fmt.Errorf("assets is required")
	}
	if len(in.Assets) > maxBatchAssets {
		return nil, PricesOutput{}, fmt.Errorf("at most %d assets per call", maxBatchAssets)
	}

	result := t.prices.ResolveMany(ctx, in.Assets)
	out := PricesOutput{Prices: []PriceOutput{}, Failed: []domain.Failure{}}
	seen := make(map[string]struct{}, len(in.Assets))
	for _, a := range in.Assets {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if rec, ok := result.Prices[a]; ok {
			out.Prices = append(out.Prices, toOutput(rec, ""))
		}
	}
	out.Failed = append(out.Failed, result.Failures...)
	return nil, out, nil
}

func (t *tools) transformAsset(_ context.Context, _ *mcp.CallToolRequest, in TransformInput) (*mcp.CallToolResult, TransformOutput, error) {
	asset := strings.TrimSpace(in.Asset)
	if asset == "" {
		return nil, TransformOutput{}, fmt.Errorf("asset is required")
	}
	return nil, TransformOutput{Input: asset, Canonical: symbols.Normalize(asset)}, nil
}

func toOutput(r domain.PriceRecord, src domain.Source) PriceOutput {
	return PriceOutput{
		Asset:        r.Asset,
		PriceUSD:     r.PriceUSD,
		Volume24hUSD: r.Volume24hUSD,
		MarketCapUSD: r.MarketCapUSD,
		Source:       string(src),
	}
}
