// Package checkout turns a cart snapshot into an order and hands it to the
// order backend. The cart is cleared only after the backend accepts it.
package checkout

import (
	"context"
	"time"

	"github.com/utafrali/marketplace/internal/domain"
)

// DefaultCurrency is used when the checkout input leaves currency empty.
const DefaultCurrency = "USD"

// Order statuses.
const (
	StatusPending = "pending"
)

// Address is the shipping destination.
type Address struct {
	FullName    string `json:"full_name" validate:"required,max=200"`
	AddressLine string `json:"address_line" validate:"required,max=500"`
	City        string `json:"city" validate:"required,max=100"`
	PostalCode  string `json:"postal_code" validate:"required,max=20"`
	Country     string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// Input is what the buyer submits at checkout.
type Input struct {
	BuyerID         string  `json:"buyer_id" validate:"required,max=128"`
	Currency        string  `json:"currency" validate:"omitempty,iso4217"`
	ShippingAddress Address `json:"shipping_address"`
	PaymentMethod   string  `json:"payment_method" validate:"required,oneof=card cash_on_delivery bank_transfer"`
}

// OrderLine is one cart line frozen into an order.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

// Order is the payload handed to an OrderPlacer. Amounts are minor units.
type Order struct {
	ID              string      `json:"id"`
	BuyerID         string      `json:"buyer_id"`
	Status          string      `json:"status"`
	Lines           []OrderLine `json:"lines"`
	TotalAmount     int64       `json:"total_amount"`
	Currency        string      `json:"currency"`
	ShippingAddress Address     `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"`
	CreatedAt       time.Time   `json:"created_at"`
}

// OrderPlacer persists or forwards an order. A nil error means the order was
// accepted and the cart may be cleared.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order *Order) error
}

// BuildOrder converts a cart snapshot into a pending order.
func BuildOrder(buyerID string, cart domain.Cart, input Input, now time.Time, id string) *Order {
	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	lines := make([]OrderLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, OrderLine{
			ProductID: item.Product.ID,
			Title:     item.Product.Title,
			Image:     item.Product.PrimaryImage(),
			Quantity:  item.Quantity,
			UnitPrice: item.Product.Price,
			Subtotal:  item.Subtotal(),
		})
	}

	return &Order{
		ID:              id,
		BuyerID:         buyerID,
		Status:          StatusPending,
		Lines:           lines,
		TotalAmount:     cart.TotalAmount(),
		Currency:        currency,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		CreatedAt:       now.UTC(),
	}
}

// Quantities returns the ordered units per product id.
func (o *Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		out[l.ProductID] = domain.AddQuantity(out[l.ProductID], l.Quantity)
	}
	return out
}
