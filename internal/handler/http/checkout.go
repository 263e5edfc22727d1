package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/marketplace/internal/checkout"
	"github.com/utafrali/marketplace/pkg/httputil"
	"github.com/utafrali/marketplace/pkg/validator"
)

// Checkouter places an order from a cart. *checkout.Service implements it.
type Checkouter interface {
	Checkout(ctx context.Context, cart checkout.CartSource, input checkout.Input) (*checkout.Order, error)
}

// CheckoutHandler handles POST /api/v1/checkout.
type CheckoutHandler struct {
	service Checkouter
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc Checkouter, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// Checkout places an order for the profile's cart. The cart is cleared only
// when the order backend accepts the order.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var input checkout.Input
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	order, err := h.service.Checkout(r.Context(), s.Cart, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, order)
}
