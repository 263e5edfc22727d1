package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/marketplace/internal/engine"
)

// ChangedEvent is the payload of a "changed" server-sent event. Clients
// re-fetch whatever they render; the counts let a badge update without it.
type ChangedEvent struct {
	CartItemCount      int   `json:"cart_item_count"`
	CartTotalAmount    int64 `json:"cart_total_amount"`
	WatchlistItemCount int   `json:"watchlist_item_count"`
}

// EventsHandler streams change notifications for one profile.
type EventsHandler struct {
	heartbeat time.Duration
	done      <-chan struct{}
	logger    *slog.Logger
}

// NewEventsHandler creates the event stream handler. A heartbeat of zero
// disables keep-alive comments; closing done ends all streams.
func NewEventsHandler(heartbeat time.Duration, done <-chan struct{}, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{heartbeat: heartbeat, done: done, logger: logger}
}

// Stream handles GET /api/v1/events. It sends one "changed" event on
// connect and another after every mutation or reload of the profile's cart
// or watchlist. Bursts of changes are coalesced.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	s := sessionFromContext(r.Context())

	// Observers run on the mutating goroutine and must not block it.
	changed := make(chan struct{}, 1)
	cancel := s.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := h.send(w, rc, s); err != nil {
		h.logger.WarnContext(r.Context(), "failed to start event stream",
			slog.String("namespace", s.Namespace),
			slog.String("error", err.Error()),
		)
		return
	}

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-changed:
			if err := h.send(w, rc, s); err != nil {
				h.logger.DebugContext(r.Context(), "event stream closed",
					slog.String("namespace", s.Namespace),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-tick:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) send(w http.ResponseWriter, rc *http.ResponseController, s *engine.Session) error {
	cart := s.Cart.Cart()
	payload, err := json.Marshal(ChangedEvent{
		CartItemCount:      cart.ItemCount(),
		CartTotalAmount:    cart.TotalAmount(),
		WatchlistItemCount: s.Watchlist.ItemCount(),
	})
	if err != nil {
		return fmt.Errorf("marshal changed event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: changed\ndata: %s\n\n", payload); err != nil {
		return fmt.Errorf("write changed event: %w", err)
	}
	return rc.Flush()
}
