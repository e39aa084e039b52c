package catalog

import "crypto-price-service/internal/domain"

// magicID is the one key matched on id alone. Several catalog entries carry
// "magic" as a name or symbol, and only the coin whose id is "magic" is wanted.
const magicID = "magic"

// FindID returns the id of the first entry, in catalog order, whose name,
// symbol or id equals key. Matching is case-sensitive.
func FindID(entries []domain.CatalogEntry, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	for _, e := range entries {
		if key == magicID {
			if e.ID == magicID {
				return e.ID, true
			}
			continue
		}
		if e.Name == key || e.Symbol == key || e.ID == key {
			return e.ID, true
		}
	}
	return "", false
}
