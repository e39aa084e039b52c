package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crypto-price-service/internal/cache"
	"crypto-price-service/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeFetcher struct {
	calls   int32
	entries []domain.CatalogEntry
	err     error
	gate    chan struct{}
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context) ([]domain.CatalogEntry, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}
	return f.entries, f.err
}

type failingStore struct {
	cache.Store
}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("store down")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

var sample = []domain.CatalogEntry{
	{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestEntriesFetchesOnceWithinWindow(t *testing.T) {
	fetcher := &fakeFetcher{entries: sample}
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(fetcher, nil, time.Hour, testTracer, nil).WithClock(clk.Now)

	for i := 0; i < 3; i++ {
		got, err := c.Entries(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("unexpected entries: %+v", got)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one fetch, got %d", fetcher.calls)
	}

	clk.now = clk.now.Add(time.Hour)
	if _, err := c.Entries(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected refresh after window, got %d fetches", fetcher.calls)
	}
}

func TestEntriesSingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{entries: sample, gate: make(chan struct{})}
	c := New(fetcher, nil, time.Hour, testTracer, nil)

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Entries(context.Background())
			errs <- err
		}()
	}

	// Let the callers pile up behind the first fetch.
	time.Sleep(20 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected a single outstanding fetch, got %d", fetcher.calls)
	}
}

func TestEntriesPropagatesFetchError(t *testing.T) {
	boom := errors.New("upstream down")
	c := New(&fakeFetcher{err: boom}, nil, time.Hour, testTracer, nil)

	if _, err := c.Entries(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestEntriesPersistsAndSharesViaStore(t *testing.T) {
	store := cache.NewMemoryStore()
	first := &fakeFetcher{entries: sample}
	if _, err := New(first, store, time.Hour, testTracer, nil).Entries(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, _ := store.Get(context.Background(), StoreKey)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Entries) != 2 {
		t.Fatalf("expected persisted catalog, got %s (%v)", raw, err)
	}

	second := &fakeFetcher{entries: []domain.CatalogEntry{{ID: "other"}}}
	got, err := New(second, store, time.Hour, testTracer, nil).Entries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.calls != 0 {
		t.Fatalf("second instance should read the shared copy, fetched %d times", second.calls)
	}
	if got[0].ID != "ethereum" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestEntriesIgnoresStaleStoredCopy(t *testing.T) {
	store := cache.NewMemoryStore()
	stale, _ := json.Marshal(envelope{FetchedAt: time.Now().Add(-2 * time.Hour), Entries: []domain.CatalogEntry{{ID: "old"}}})
	_ = store.Set(context.Background(), StoreKey, stale, 0)

	fetcher := &fakeFetcher{entries: sample}
	got, err := New(fetcher, store, time.Hour, testTracer, nil).Entries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetcher.calls != 1 || got[0].ID != "ethereum" {
		t.Fatalf("expected upstream fetch, got %d calls and %+v", fetcher.calls, got)
	}
}

func TestEntriesToleratesStoreErrors(t *testing.T) {
	fetcher := &fakeFetcher{entries: sample}
	got, err := New(fetcher, failingStore{}, time.Hour, testTracer, nil).Entries(context.Background())
	if err != nil {
		t.Fatalf("store errors must not fail the refresh: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestEntriesHonorsCallerContext(t *testing.T) {
	fetcher := &fakeFetcher{entries: sample, gate: make(chan struct{})}
	defer close(fetcher.gate)
	c := New(fetcher, nil, time.Hour, testTracer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Entries(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
