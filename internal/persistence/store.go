// Package persistence maps cart and watchlist item lists onto a raw
// key/value backend and announces every write through a notifier.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/marketplace/internal/notifier"
	"github.com/utafrali/marketplace/internal/repository"
	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/tracing"
)

const tracerName = "github.com/utafrali/marketplace/internal/persistence"

// SchemaVersion is the envelope version written by Save.
const SchemaVersion = 1

var (
	// ErrCorrupt means the stored value could not be decoded.
	ErrCorrupt = errors.New("stored list is corrupt")
	// ErrUnavailable means the backend refused the operation.
	ErrUnavailable = errors.New("storage unavailable")
)

// CartKey is the storage key of the cart list for namespace.
func CartKey(namespace string) string {
	return namespace + "-cart"
}

// WatchlistKey is the storage key of the watchlist for namespace.
func WatchlistKey(namespace string) string {
	return namespace + "-watchlist"
}

type envelope[T any] struct {
	Version int `json:"version"`
	Items   []T `json:"items"`
}

// ListStore persists one list of T under a single key.
type ListStore[T any] struct {
	kv       repository.KVStore
	key      string
	notifier notifier.Notifier
	origin   string
	logger   *slog.Logger

	normalize func([]T) []T
}

// NewListStore creates a store for key. origin identifies the writer in the
// changes it publishes.
func NewListStore[T any](kv repository.KVStore, key string, n notifier.Notifier, origin string, logger *slog.Logger) *ListStore[T] {
	if n == nil {
		n = notifier.Nop{}
	}
	return &ListStore[T]{
		kv:       kv,
		key:      key,
		notifier: n,
		origin:   origin,
		logger:   logger,
	}
}

// WithNormalizer makes Load pass every decoded list through fn, so data
// written by another process still satisfies the list's invariants.
func (s *ListStore[T]) WithNormalizer(fn func([]T) []T) *ListStore[T] {
	s.normalize = fn
	return s
}

// Key returns the storage key.
func (s *ListStore[T]) Key() string {
	return s.key
}

// Load reads the list. A missing key yields an empty list. On failure the
// list is empty and the error matches ErrCorrupt or ErrUnavailable.
func (s *ListStore[T]) Load(ctx context.Context) (items []T, err error) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "persistence.load", attribute.String("storage.key", s.key))
	defer func() { end(err) }()

	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []T{}, nil
		}
		return []T{}, fmt.Errorf("load %s: %w: %w", s.key, ErrUnavailable, err)
	}

	items, err = decode[T](raw)
	if err != nil {
		return []T{}, fmt.Errorf("load %s: %w: %w", s.key, ErrCorrupt, err)
	}
	if s.normalize != nil {
		repaired := s.normalize(items)
		if len(repaired) != len(items) {
			s.logger.WarnContext(ctx, "repaired stored list",
				slog.String("key", s.key),
				slog.Int("stored", len(items)),
				slog.Int("kept", len(repaired)),
			)
		}
		items = repaired
	}
	return items, nil
}

// Save overwrites the stored list and then publishes a change. Nothing is
// published when the write fails.
func (s *ListStore[T]) Save(ctx context.Context, items []T) (err error) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "persistence.save",
		attribute.String("storage.key", s.key),
		attribute.Int("storage.items", len(items)),
	)
	defer func() { end(err) }()

	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(envelope[T]{Version: SchemaVersion, Items: items})
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}

	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("save %s: %w: %w", s.key, ErrUnavailable, err)
	}

	s.publish(ctx, notifier.Change{Key: s.key, Value: raw})
	return nil
}

// Clear removes the stored list and publishes a deletion.
func (s *ListStore[T]) Clear(ctx context.Context) (err error) {
	ctx, end := tracing.StartSpan(ctx, tracerName, "persistence.clear", attribute.String("storage.key", s.key))
	defer func() { end(err) }()

	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear %s: %w: %w", s.key, ErrUnavailable, err)
	}

	s.publish(ctx, notifier.Change{Key: s.key, Deleted: true})
	return nil
}

func (s *ListStore[T]) publish(ctx context.Context, change notifier.Change) {
	change.Origin = s.origin
	change.Timestamp = time.Now().UTC()
	if err := s.notifier.Publish(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "failed to announce storage change",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
	}
}

// decode accepts the versioned envelope and the bare array written before
// versioning was introduced. JSON null reads as an empty list.
func decode[T any](raw []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, err
		}
		if env.Version < 0 || env.Version > SchemaVersion {
			return nil, fmt.Errorf("unsupported schema version %d", env.Version)
		}
		if env.Items == nil {
			return []T{}, nil
		}
		return env.Items, nil
	}

	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return []T{}, nil
	}
	return items, nil
}
