package bot

import (
	"context"
	"strings"
	"testing"

	"crypto-price-service/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type fakeContext struct {
	tele.Context
	args []string
	sent []string
}

func (f *fakeContext) Args() []string { return f.args }

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, what.(string))
	return nil
}

type stubResolver struct {
	batch []string
}

func (s *stubResolver) Resolve(ctx context.Context, asset string) domain.Resolution {
	if asset == "eth" {
		return domain.Resolved(domain.PriceRecord{Asset: "eth", PriceUSD: 2500, Volume24hUSD: 1e6, MarketCapUSD: 3e8}, domain.SourceCache)
	}
	return domain.NotFound(domain.ReasonNotFound, "")
}

func (s *stubResolver) ResolveMany(ctx context.Context, assets []string) domain.BatchResult {
	s.batch = assets
	return domain.BatchResult{
		Prices:   map[string]domain.PriceRecord{"eth": {Asset: "eth", PriceUSD: 2500}, "shib": {Asset: "shib", PriceUSD: 0.00001234}},
		Failures: []domain.Failure{{Asset: "nope", Reason: domain.ReasonNotFound}},
	}
}

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	StartTelegramBot(context.Background(), "", nil)
}

func TestPriceHandler(t *testing.T) {
	h := priceHandler(context.Background(), &stubResolver{})

	c := &fakeContext{args: []string{"eth"}}
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.sent[0], "Price: $2500.00") || !strings.Contains(c.sent[0], "Market Cap: $300000000") {
		t.Fatalf("unexpected message: %q", c.sent[0])
	}

	c = &fakeContext{args: []string{"nope"}}
	_ = h(c)
	if c.sent[0] != "No price for nope (not found)" {
		t.Fatalf("unexpected message: %q", c.sent[0])
	}

	c = &fakeContext{}
	_ = h(c)
	if !strings.HasPrefix(c.sent[0], "Usage") {
		t.Fatalf("expected usage, got %q", c.sent[0])
	}
}

func TestPricesHandler(t *testing.T) {
	stub := &stubResolver{}
	h := pricesHandler(context.Background(), stub)

	c := &fakeContext{args: []string{"eth,shib", "nope"}}
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(stub.batch, " ") != "eth shib nope" {
		t.Fatalf("unexpected batch: %v", stub.batch)
	}
	want := "eth: $2500.00\nshib: $0.000012\nnope: not found"
	if c.sent[0] != want {
		t.Fatalf("unexpected message:\n%s\nwant:\n%s", c.sent[0], want)
	}
}

func TestPricesHandlerLimitsBatch(t *testing.T) {
	stub := &stubResolver{}
	h := pricesHandler(context.Background(), stub)

	c := &fakeContext{args: []string{strings.Repeat("a,", maxBatchAssets+1)}}
	_ = h(c)
	if stub.batch != nil {
		t.Fatal("oversized batch must not be resolved")
	}
	if !strings.HasPrefix(c.sent[0], "At most") {
		t.Fatalf("unexpected message: %q", c.sent[0])
	}
}

func TestAliasHandler(t *testing.T) {
	c := &fakeContext{args: []string{"wbtc"}}
	_ = aliasHandler(c)
	if c.sent[0] != "wbtc -> wrapped-bitcoin" {
		t.Fatalf("unexpected message: %q", c.sent[0])
	}
}
