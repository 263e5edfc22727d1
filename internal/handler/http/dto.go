package http

import (
	"time"

	"github.com/utafrali/marketplace/internal/domain"
)

// --- Request DTOs ---

// SellerRequest is the seller part of a product snapshot.
type SellerRequest struct {
	ID     string  `json:"id" validate:"omitempty,max=128"`
	Name   string  `json:"name" validate:"max=200"`
	Rating float64 `json:"rating" validate:"gte=0,lte=5"`
}

// ProductRequest is the product snapshot a client sends when adding to the
// cart or watchlist.
type ProductRequest struct {
	ID            string        `json:"id" validate:"required,max=128"`
	Title         string        `json:"title" validate:"required,max=500"`
	Price         int64         `json:"price" validate:"gte=0"`
	OriginalPrice *int64        `json:"original_price" validate:"omitempty,gte=0"`
	Images        []string      `json:"images" validate:"max=20,dive,required"`
	Location      string        `json:"location" validate:"max=200"`
	Seller        SellerRequest `json:"seller"`
	Features      []string      `json:"features" validate:"max=50"`
	Tags          []string      `json:"tags" validate:"max=50"`
	IsFeatured    bool          `json:"is_featured"`
	IsNew         bool          `json:"is_new"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (p ProductRequest) toDomain() domain.Product {
	return domain.Product{
		ID:            p.ID,
		Title:         p.Title,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Images:        p.Images,
		Location:      p.Location,
		Seller: domain.Seller{
			ID:     p.Seller.ID,
			Name:   p.Seller.Name,
			Rating: p.Seller.Rating,
		},
		Features:   p.Features,
		Tags:       p.Tags,
		IsFeatured: p.IsFeatured,
		IsNew:      p.IsNew,
		CreatedAt:  p.CreatedAt,
	}
}

// AddCartItemRequest is the body of POST /api/v1/cart/items. A quantity
// below 1 adds one unit.
type AddCartItemRequest struct {
	Product  ProductRequest `json:"product"`
	Quantity int            `json:"quantity"`
}

// UpdateQuantityRequest is the body of PUT /api/v1/cart/items/{productId}.
// Zero or less removes the item.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// AddWatchItemRequest is the body of POST /api/v1/watchlist/items.
type AddWatchItemRequest struct {
	Product ProductRequest `json:"product"`
}

// --- Response DTOs ---

// CartResponse is a cart with its derived values.
type CartResponse struct {
	Items       []domain.CartItem `json:"items"`
	TotalAmount int64             `json:"total_amount"`
	ItemCount   int               `json:"item_count"`
}

func newCartResponse(cart domain.Cart, recent bool) CartResponse {
	items := cart.Items
	if recent {
		items = domain.SortCartItemsRecent(items)
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponse{
		Items:       items,
		TotalAmount: cart.TotalAmount(),
		ItemCount:   cart.ItemCount(),
	}
}

// CartItemStatus answers "is this product in the cart, and how many".
type CartItemStatus struct {
	ProductID string `json:"product_id"`
	InCart    bool   `json:"in_cart"`
	Quantity  int    `json:"quantity"`
}

// WatchlistResponse is a watchlist with its item count.
type WatchlistResponse struct {
	Items     []domain.WatchItem `json:"items"`
	ItemCount int                `json:"item_count"`
}

func newWatchlistResponse(w domain.Watchlist, recent bool) WatchlistResponse {
	items := w.Items
	if recent {
		items = domain.SortWatchItemsRecent(items)
	}
	if items == nil {
		items = []domain.WatchItem{}
	}
	return WatchlistResponse{Items: items, ItemCount: w.ItemCount()}
}

// WatchItemStatus answers "is this product watched".
type WatchItemStatus struct {
	ProductID string `json:"product_id"`
	Watched   bool   `json:"watched"`
}
