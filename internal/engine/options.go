// Package engine holds the per-tab state managers for the cart and the
// watchlist. A manager owns an in-memory list, persists every mutation and
// reloads whenever another writer changes its storage key.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/marketplace/internal/domain"
	"github.com/utafrali/marketplace/internal/notifier"
	"github.com/utafrali/marketplace/internal/repository"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/logger"
)

// Policy decides which list a mutation is applied to.
type Policy int

const (
	// PolicyLastWriteWins applies mutations to the in-memory list. A tab
	// that missed another tab's write overwrites it on its next save.
	PolicyLastWriteWins Policy = iota
	// PolicyReadMergeWrite re-reads storage before every mutation so
	// interleaved writers do not lose each other's changes.
	PolicyReadMergeWrite
)

// String returns the configuration spelling of p.
func (p Policy) String() string {
	switch p {
	case PolicyReadMergeWrite:
		return "read-merge-write"
	default:
		return "last-write-wins"
	}
}

// ParsePolicy parses a CONFLICT_POLICY value. An empty string selects
// PolicyLastWriteWins.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last-write-wins", "lww":
		return PolicyLastWriteWins, nil
	case "read-merge-write", "rmw":
		return PolicyReadMergeWrite, nil
	default:
		return 0, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// EventPublisher receives domain events after successful mutations.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, namespace string, cart domain.Cart) error
	PublishCartCleared(ctx context.Context, namespace string) error
	PublishWatchlistUpdated(ctx context.Context, namespace string, watchlist domain.Watchlist) error
	PublishWatchlistCleared(ctx context.Context, namespace string) error
}

// Options configures a manager. Namespace and Store are required.
type Options struct {
	// Namespace prefixes the storage keys, e.g. "shop" gives "shop-cart".
	Namespace string
	Store     repository.KVStore
	Notifier  notifier.Notifier
	Policy    Policy
	// Events is optional.
	Events EventPublisher
	Logger *slog.Logger
	Clock  func() time.Time
	IDs    func() string
}

func (o Options) withDefaults() (Options, error) {
	if o.Namespace == "" {
		return o, apperrors.InvalidInput("namespace is required")
	}
	if o.Store == nil {
		return o, apperrors.InvalidInput("storage backend is required")
	}
	if o.Notifier == nil {
		o.Notifier = notifier.Nop{}
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.IDs == nil {
		o.IDs = uuid.NewString
	}
	return o, nil
}
