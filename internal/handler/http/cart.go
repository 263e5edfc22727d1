package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/httputil"
	"github.com/utafrali/marketplace/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	httputil.WriteData(w, http.StatusOK, newCartResponse(s.Cart.Cart(), sortRecent(r)))
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.Cart.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddCartItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	if err := s.Cart.AddItem(r.Context(), req.Product.toDomain(), req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, newCartResponse(s.Cart.Cart(), false))
}

// GetItem handles GET /api/v1/cart/items/{productId}
func (h *CartHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	s := sessionFromContext(r.Context())

	httputil.WriteData(w, http.StatusOK, CartItemStatus{
		ProductID: productID,
		InCart:    s.Cart.IsInCart(productID),
		Quantity:  s.Cart.GetItemQuantity(productID),
	})
}

// UpdateQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	s.Cart.UpdateQuantity(r.Context(), productID, *req.Quantity)

	httputil.WriteData(w, http.StatusOK, newCartResponse(s.Cart.Cart(), false))
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	s.Cart.RemoveItem(r.Context(), productID)

	httputil.WriteData(w, http.StatusOK, newCartResponse(s.Cart.Cart(), false))
}

func sortRecent(r *http.Request) bool {
	return r.URL.Query().Get("sort") == "recent"
}
