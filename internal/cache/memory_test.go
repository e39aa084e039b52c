package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = store.HSetWithTTL(ctx, "h", map[string]string{"a": "1"}, time.Minute)
	_ = store.Set(ctx, "b", []byte("x"), time.Minute)
	_ = store.Set(ctx, "forever", []byte("y"), 0)

	now = now.Add(59 * time.Second)
	if fields, _ := store.HGetAll(ctx, "h"); fields["a"] != "1" {
		t.Fatalf("expected live hash, got %v", fields)
	}

	now = now.Add(time.Second)
	if fields, _ := store.HGetAll(ctx, "h"); len(fields) != 0 {
		t.Fatalf("expected expired hash, got %v", fields)
	}
	if blob, _ := store.Get(ctx, "b"); blob != nil {
		t.Fatalf("expected expired blob, got %s", blob)
	}
	if blob, _ := store.Get(ctx, "forever"); string(blob) != "y" {
		t.Fatalf("expected blob without ttl to survive, got %s", blob)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	fields := map[string]string{"a": "1"}
	_ = store.HSetWithTTL(ctx, "h", fields, 0)
	fields["a"] = "2"

	got, _ := store.HGetAll(ctx, "h")
	if got["a"] != "1" {
		t.Fatalf("store should not alias caller map, got %v", got)
	}
}
