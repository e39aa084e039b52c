package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"crypto-price-service/internal/domain"
	"crypto-price-service/internal/symbols"

	tele "gopkg.in/telebot.v3"
)

const maxBatchAssets = 20

type PriceResolver interface {
	Resolve(ctx context.Context, asset string) domain.Resolution
	ResolveMany(ctx context.Context, assets []string) domain.BatchResult
}

// StartTelegramBot serves /price, /prices and /alias until ctx is done.
// It is a no-op without a token.
func StartTelegramBot(ctx context.Context, token string, prices PriceResolver) {
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/price", priceHandler(ctx, prices))
	b.Handle("/prices", pricesHandler(ctx, prices))
	b.Handle("/alias", aliasHandler)

	log.Println("Telegram bot started")
	go b.Start()
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
}

func priceHandler(ctx context.Context, prices PriceResolver) tele.HandlerFunc {
	return func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /price eth")
		}
		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		asset := strings.TrimSpace(args[0])
		res := prices.Resolve(reqCtx, asset)
		if !res.OK() {
			return c.Send(fmt.Sprintf("No price for %s (%s)", asset, res.Reason))
		}
		return c.Send(formatRecord(res.Record))
	}
}

func pricesHandler(ctx context.Context, prices PriceResolver) tele.HandlerFunc {
	return func(c tele.Context) error {
		var assets []string
		for _, arg := range c.Args() {
			for _, part := range strings.Split(arg, ",") {
				if s := strings.TrimSpace(part); s != "" {
					assets = append(assets, s)
				}
			}
		}
		if len(assets) == 0 {
			return c.Send("Usage: /prices eth btc sol")
		}
		if len(assets) > maxBatchAssets {
			return c.Send(fmt.Sprintf("At most %d assets per request", maxBatchAssets))
		}
		reqCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		return c.Send(formatBatch(assets, prices.ResolveMany(reqCtx, assets)))
	}
}

func aliasHandler(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /alias weth")
	}
	asset := strings.TrimSpace(args[0])
	return c.Send(fmt.Sprintf("%s -> %s", asset, symbols.Normalize(asset)))
}

func formatRecord(r domain.PriceRecord) string {
	return fmt.Sprintf(
		"%s\nPrice: $%s\n24h Volume: $%.0f\nMarket Cap: $%.0f",
		r.Asset, formatUSD(r.PriceUSD), r.Volume24hUSD, r.MarketCapUSD,
	)
}

func formatBatch(assets []string, result domain.BatchResult) string {
	var sb strings.Builder
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if rec, ok := result.Prices[a]; ok {
			fmt.Fprintf(&sb, "%s: $%s\n", a, formatUSD(rec.PriceUSD))
		}
	}
	for _, f := range result.Failures {
		fmt.Fprintf(&sb, "%s: %s\n", f.Asset, f.Reason)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatUSD keeps sub-cent prices readable.
func formatUSD(v float64) string {
	if v != 0 && v < 0.01 {
		return fmt.Sprintf("%.6f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
