package handler

import (
	"net/http"
	"strings"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/symbols"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// PriceResponse is the wire shape of one resolved asset.
type PriceResponse struct {
	Asset               string  `json:"asset"`
	USDPrice            float64 `json:"usd_price"`
	VolumeLast24Hours   float64 `json:"volume_last_24_hours"`
	CurrentMarketcapUSD float64 `json:"current_marketcap_usd"`
}

// PricesResponse lists resolved assets in request order and the failures.
type PricesResponse struct {
	Prices []PriceResponse  `json:"prices"`
	Failed []domain.Failure `json:"failed"`
}

// TransformResponse shows how an asset key is normalized.
type TransformResponse struct {
	InitialAsset     string `json:"initial_asset"`
	TransformedAsset string `json:"transformed_asset"`
}

func toResponse(r domain.PriceRecord) PriceResponse {
	return PriceResponse{
		Asset:               r.Asset,
		USDPrice:            r.PriceUSD,
		VolumeLast24Hours:   r.Volume24hUSD,
		CurrentMarketcapUSD: r.MarketCapUSD,
	}
}

// GetPrice godoc
// @Summary      Get current price for a crypto asset
// @Description  Returns USD price, 24h volume and market cap, served from cache when fresh
// @Tags         prices
// @Produce      json
// @Param        asset  path  string  true  "Asset key (e.g. eth, weth, bitcoin)"
// @Success      200  {object}  PriceResponse
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      429  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /price/{asset} [get]
func (h *Handler) GetPrice(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price")
	defer span.End()

	asset := strings.TrimSpace(c.Param("asset"))
	span.SetAttributes(attribute.String("asset", asset))
	if asset == "" {
		h.countError(c, "invalid_input")
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset is required"})
		return
	}

	res := h.prices.Resolve(ctx, asset)
	switch {
	case res.OK():
		c.JSON(http.StatusOK, toResponse(res.Record))
	case res.Reason == domain.ReasonInvalidInput:
		h.countError(c, "invalid_input")
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Detail})
	default:
		h.countError(c, "not_found")
		c.JSON(http.StatusNotFound, gin.H{
			"error":  "price not available for " + asset,
			"reason": res.Reason,
		})
	}
}

// GetPrices godoc
// @Summary      Get current prices for several assets
// @Description  Resolves a comma-separated asset list in one batch; unresolved assets are listed under failed
// @Tags         prices
// @Produce      json
// @Param        assets  query  string  true  "Comma-separated asset keys"
// @Success      200  {object}  PricesResponse
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /prices [get]
func (h *Handler) GetPrices(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-prices")
	defer span.End()

	assets := splitAssets(c.Query("assets"))
	span.SetAttributes(attribute.Int("assets.count", len(assets)))
	if len(assets) == 0 {
		h.countError(c, "invalid_input")
		c.JSON(http.StatusBadRequest, gin.H{"error": "assets query parameter is required"})
		return
	}

	result := h.prices.ResolveMany(ctx, assets)

	resp := PricesResponse{
		Prices: make([]PriceResponse, 0, len(result.Prices)),
		Failed: result.Failures,
	}
	if resp.Failed == nil {
		resp.Failed = []domain.Failure{}
	}
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if rec, ok := result.Prices[a]; ok {
			resp.Prices = append(resp.Prices, toResponse(rec))
		}
	}
	c.JSON(http.StatusOK, resp)
}

// TransformAsset godoc
// @Summary      Show asset normalization
// @Description  Returns the catalog key an asset alias resolves to
// @Tags         prices
// @Produce      json
// @Param        asset  query  string  true  "Asset key"
// @Success      200  {object}  TransformResponse
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /transform-asset [get]
func (h *Handler) TransformAsset(c *gin.Context) {
	asset := strings.TrimSpace(c.Query("asset"))
	if asset == "" {
		h.countError(c, "invalid_input")
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset query parameter is required"})
		return
	}
	c.JSON(http.StatusOK, TransformResponse{
		InitialAsset:     asset,
		TransformedAsset: symbols.Normalize(asset),
	})
}

func splitAssets(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) countError(c *gin.Context, kind string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(c.FullPath(), kind).Inc()
	}
}
