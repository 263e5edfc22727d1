package notifier

import (
	"context"
	"time"
)

// Change signals that the stored value under Key was rewritten. Value is the
// serialized list that was written and is advisory only: listeners reload
// through the persistence layer instead of decoding it.
type Change struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives changes. It must not block for long; the in-process bus
// calls it on the publisher's goroutine.
type Listener func(Change)

// Notifier broadcasts storage changes to every subscribed manager,
// the publishing one included.
type Notifier interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(fn Listener) (unsubscribe func())
}

// Nop drops every change. A manager wired to it never hears about writes
// from other tabs.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(context.Context, Change) error { return nil }

// Subscribe implements Notifier.
func (Nop) Subscribe(Listener) func() { return func() {} }
