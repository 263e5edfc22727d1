package domain

import (
	"math"
	"sort"
	"time"
)

// CartItem is one product entry in a cart. ID identifies the entry itself
// and is unrelated to Product.ID.
type CartItem struct {
	ID       string    `json:"id"`
	Product  Product   `json:"product"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}

// Subtotal is price × quantity for this entry, clamped to the int64 range.
func (i CartItem) Subtotal() int64 {
	return mulAmount(i.Product.Price, int64(i.Quantity))
}

// Cart is a point-in-time copy of a cart's line items. Totals are computed
// from Items on every call and are never stored.
type Cart struct {
	Items []CartItem `json:"items"`
}

// TotalAmount calculates the total price of all items in the cart (in cents).
func (c Cart) TotalAmount() int64 {
	var total int64
	for _, item := range c.Items {
		total = addAmount(total, item.Subtotal())
	}
	return total
}

// ItemCount returns the sum of all quantities in the cart.
func (c Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count = AddQuantity(count, item.Quantity)
	}
	return count
}

// FindItemIndex returns the index of the entry for productID, or -1.
func (c Cart) FindItemIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// Quantity returns the quantity held for productID, 0 when absent.
func (c Cart) Quantity(productID string) int {
	if i := c.FindItemIndex(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// AddQuantity returns a+b for non-negative quantities, saturating at
// math.MaxInt instead of wrapping.
func AddQuantity(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func addAmount(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}

// mulAmount multiplies a price by a non-negative quantity, clamping on
// overflow.
func mulAmount(price, qty int64) int64 {
	if price == 0 || qty <= 0 {
		return 0
	}
	if price > 0 && price > math.MaxInt64/qty {
		return math.MaxInt64
	}
	if price < 0 && price < math.MinInt64/qty {
		return math.MinInt64
	}
	return price * qty
}

// NormalizeCartItems repairs a cart read from storage written by another
// process. Entries without a product id or with a quantity below 1 are
// dropped, and repeated products merge into their first entry.
func NormalizeCartItems(items []CartItem) []CartItem {
	out := make([]CartItem, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, item := range items {
		if item.Product.ID == "" || item.Quantity < 1 {
			continue
		}
		if i, ok := seen[item.Product.ID]; ok {
			out[i].Quantity = AddQuantity(out[i].Quantity, item.Quantity)
			continue
		}
		seen[item.Product.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// IsEmpty reports whether the cart has no entries.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// CloneCartItems copies items so callers cannot alias a manager's list.
func CloneCartItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}

// SortCartItemsRecent returns a copy of items ordered newest AddedAt first.
func SortCartItemsRecent(items []CartItem) []CartItem {
	out := CloneCartItems(items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out
}
