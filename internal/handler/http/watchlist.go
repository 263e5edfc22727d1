package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/marketplace/pkg/httputil"
	"github.com/utafrali/marketplace/pkg/validator"
)

// WatchlistHandler handles HTTP requests for watchlist endpoints.
type WatchlistHandler struct {
	logger *slog.Logger
}

// NewWatchlistHandler creates a new watchlist HTTP handler.
func NewWatchlistHandler(logger *slog.Logger) *WatchlistHandler {
	return &WatchlistHandler{logger: logger}
}

// GetWatchlist handles GET /api/v1/watchlist
func (h *WatchlistHandler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	httputil.WriteData(w, http.StatusOK, newWatchlistResponse(s.Watchlist.Watchlist(), sortRecent(r)))
}

// ClearWatchlist handles DELETE /api/v1/watchlist
func (h *WatchlistHandler) ClearWatchlist(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.Watchlist.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /api/v1/watchlist/items. Adding a watched product
// again leaves the list unchanged.
func (h *WatchlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddWatchItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	s := sessionFromContext(r.Context())
	if err := s.Watchlist.AddItem(r.Context(), req.Product.toDomain()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, newWatchlistResponse(s.Watchlist.Watchlist(), false))
}

// GetItem handles GET /api/v1/watchlist/items/{productId}
func (h *WatchlistHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	s := sessionFromContext(r.Context())

	httputil.WriteData(w, http.StatusOK, WatchItemStatus{
		ProductID: productID,
		Watched:   s.Watchlist.IsWatched(productID),
	})
}

// RemoveItem handles DELETE /api/v1/watchlist/items/{productId}
func (h *WatchlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.Watchlist.RemoveItem(r.Context(), chi.URLParam(r, "productId"))

	httputil.WriteData(w, http.StatusOK, newWatchlistResponse(s.Watchlist.Watchlist(), false))
}
