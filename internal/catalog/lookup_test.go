package catalog

import (
	"testing"

	"crypto-price-service/internal/domain"
)

func TestFindID(t *testing.T) {
	entries := []domain.CatalogEntry{
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
		{ID: "ethereum-wormhole", Symbol: "eth", Name: "Ethereum (Wormhole)"},
		{ID: "magic-internet-money", Symbol: "mim", Name: "magic"},
		{ID: "magic-token", Symbol: "magic", Name: "MagicToken"},
		{ID: "magic", Symbol: "magic", Name: "Magic"},
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
	}

	tests := []struct {
		name   string
		key    string
		wantID string
		wantOK bool
	}{
		{"by id", "bitcoin", "bitcoin", true},
		{"by symbol takes first in order", "eth", "ethereum", true},
		{"by name", "Ethereum (Wormhole)", "ethereum-wormhole", true},
		{"case sensitive", "Bitcoin", "bitcoin", true},
		{"case sensitive miss", "BTC", "", false},
		{"magic matches id only", "magic", "magic", true},
		{"unknown", "dogecoin", "", false},
		{"empty", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := FindID(entries, tc.key)
			if id != tc.wantID || ok != tc.wantOK {
				t.Fatalf("FindID(%q) = %q, %v; want %q, %v", tc.key, id, ok, tc.wantID, tc.wantOK)
			}
		})
	}
}

func TestFindIDMagicWithoutExactID(t *testing.T) {
	entries := []domain.CatalogEntry{
		{ID: "magic-token", Symbol: "magic", Name: "magic"},
	}
	if id, ok := FindID(entries, "magic"); ok {
		t.Fatalf("expected no match, got %q", id)
	}
}
