package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/marketplace/pkg/health"
	"github.com/utafrali/marketplace/pkg/middleware"
)

// RouterConfig holds the router settings that come from configuration.
type RouterConfig struct {
	ServiceName    string
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	RequestTimeout time.Duration
	// RateLimiter throttles API calls per profile when set.
	RateLimiter *middleware.RateLimiter
	// Heartbeat is the idle interval between keep-alive comments on the
	// event stream.
	Heartbeat time.Duration
	// StreamsDone ends every open event stream when closed. Server.Shutdown
	// does not wait for them otherwise.
	StreamsDone <-chan struct{}
}

// DefaultRouterConfig returns the settings used when nothing is configured.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ServiceName:    "storefront",
		CORS:           middleware.DefaultCORSConfig(),
		RequestTimeout: 30 * time.Second,
		Heartbeat:      25 * time.Second,
	}
}

// NewRouter creates a chi router with the storefront API, health checks and
// metrics registered.
func NewRouter(
	sessions SessionProvider,
	checkoutSvc Checkouter,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cart := NewCartHandler(logger)
	watchlist := NewWatchlistHandler(logger)
	orders := NewCheckoutHandler(checkoutSvc, logger)
	events := NewEventsHandler(cfg.Heartbeat, cfg.StreamsDone, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Profile)
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}
		r.Use(middleware.RequestLogger(logger))
		r.Use(middleware.NoStore)
		r.Use(WithSession(sessions, logger))

		// The event stream outlives any request timeout.
		r.Get("/events", events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.RequestTimeout))
			r.Use(ContentTypeJSON)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cart.GetCart)
				r.Delete("/", cart.ClearCart)
				r.Post("/items", cart.AddItem)
				r.Get("/items/{productId}", cart.GetItem)
				r.Put("/items/{productId}", cart.UpdateQuantity)
				r.Delete("/items/{productId}", cart.RemoveItem)
			})

			r.Route("/watchlist", func(r chi.Router) {
				r.Get("/", watchlist.GetWatchlist)
				r.Delete("/", watchlist.ClearWatchlist)
				r.Post("/items", watchlist.AddItem)
				r.Get("/items/{productId}", watchlist.GetItem)
				r.Delete("/items/{productId}", watchlist.RemoveItem)
			})

			r.Post("/checkout", orders.Checkout)
		})
	})

	return r
}
