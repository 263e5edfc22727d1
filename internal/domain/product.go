package domain

import (
	"slices"
	"time"
)

// Seller is the seller summary embedded in a product snapshot.
type Seller struct {
	ID     string  `json:"id,omitempty"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// Product is a denormalized snapshot of a catalog entry, taken when the
// product is added to a cart or watchlist. It is never refreshed from the
// catalog, so a line item keeps rendering after the listing changes or is
// deleted. Prices are in minor units (cents).
type Product struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Price         int64     `json:"price"`
	OriginalPrice *int64    `json:"original_price,omitempty"`
	Images        []string  `json:"images"`
	Location      string    `json:"location,omitempty"`
	Seller        Seller    `json:"seller"`
	Features      []string  `json:"features"`
	Tags          []string  `json:"tags"`
	IsFeatured    bool      `json:"is_featured"`
	IsNew         bool      `json:"is_new"`
	CreatedAt     time.Time `json:"created_at"`
}

// Snapshot returns the copy a cart or watchlist keeps. It shares no slices or
// pointers with p, and CreatedAt is in UTC so the copy reads back from
// storage unchanged.
func (p Product) Snapshot() Product {
	out := p
	out.Images = slices.Clone(p.Images)
	out.Features = slices.Clone(p.Features)
	out.Tags = slices.Clone(p.Tags)
	if p.OriginalPrice != nil {
		price := *p.OriginalPrice
		out.OriginalPrice = &price
	}
	out.CreatedAt = p.CreatedAt.UTC()
	return out
}

// PrimaryImage returns the first image URL, or "" when the product has none.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
