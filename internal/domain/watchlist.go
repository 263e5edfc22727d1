package domain

import (
	"sort"
	"time"
)

// WatchItem is one product entry in a watchlist. Presence is binary, so
// there is no quantity.
type WatchItem struct {
	ID      string    `json:"id"`
	Product Product   `json:"product"`
	AddedAt time.Time `json:"added_at"`
}

// Watchlist is a point-in-time copy of a watchlist.
type Watchlist struct {
	Items []WatchItem `json:"items"`
}

// ItemCount returns the number of watched products.
func (w Watchlist) ItemCount() int {
	return len(w.Items)
}

// FindItemIndex returns the index of the entry for productID, or -1.
func (w Watchlist) FindItemIndex(productID string) int {
	for i := range w.Items {
		if w.Items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// Contains reports whether productID is watched.
func (w Watchlist) Contains(productID string) bool {
	return w.FindItemIndex(productID) >= 0
}

// NormalizeWatchItems repairs a watchlist read from storage: entries without
// a product id are dropped and only the first entry per product is kept.
func NormalizeWatchItems(items []WatchItem) []WatchItem {
	out := make([]WatchItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Product.ID == "" {
			continue
		}
		if _, ok := seen[item.Product.ID]; ok {
			continue
		}
		seen[item.Product.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// CloneWatchItems copies items so callers cannot alias a manager's list.
func CloneWatchItems(items []WatchItem) []WatchItem {
	out := make([]WatchItem, len(items))
	copy(out, items)
	return out
}

// SortWatchItemsRecent returns a copy of items ordered newest AddedAt first.
func SortWatchItemsRecent(items []WatchItem) []WatchItem {
	out := CloneWatchItems(items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out
}
