package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	engineCart      = "cart"
	engineWatchlist = "watchlist"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_engine_mutations_total",
			Help: "Mutations applied by cart and watchlist managers.",
		},
		[]string{"engine", "operation"},
	)

	persistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_engine_persist_failures_total",
			Help: "Mutations whose write to storage failed. The in-memory state was kept.",
		},
		[]string{"engine", "operation"},
	)

	reloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_engine_reloads_total",
			Help: "Reloads triggered by storage change notifications.",
		},
		[]string{"engine"},
	)
)
