package pipeline

import (
	"sort"

	"sjsage522/stockscraper/internal/model"
)

// Dedupe drops items whose identity key was already seen. The first
// occurrence wins and order is preserved.
func Dedupe(items []model.Item) (kept []model.Item, dropped int) {
	seen := make(map[string]struct{}, len(items))
	kept = make([]model.Item, 0, len(items))
	for _, item := range items {
		key := item.Key()
		if _, ok := seen[key]; ok {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, item)
	}
	return kept, dropped
}

// SortNewestFirst orders items by descending publication time. Items without
// a timestamp sort last and keep their relative order.
func SortNewestFirst(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.HasTimestamp() {
			return false
		}
		if !b.HasTimestamp() {
			return true
		}
		return a.PublishedTime.After(b.PublishedTime)
	})
}
