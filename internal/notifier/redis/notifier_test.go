package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/marketplace/internal/notifier"
	"github.com/utafrali/marketplace/pkg/logger"
)

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// startNotifier runs n until the test ends and waits for its subscription.
func startNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-n.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not subscribe")
	}
}

func receive(t *testing.T, ch <-chan notifier.Change) notifier.Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
		return notifier.Change{}
	}
}

func TestNotifier_PublishReachesOwnSubscribers(t *testing.T) {
	client, _ := setupTestRedis(t)
	n := New(client, "", logger.Discard())
	startNotifier(t, n)

	got := make(chan notifier.Change, 1)
	n.Subscribe(func(c notifier.Change) { got <- c })

	require.NoError(t, n.Publish(context.Background(), notifier.Change{
		Key:    "shop-cart",
		Value:  []byte(`{"version":1,"items":[]}`),
		Origin: "tab-1",
	}))

	c := receive(t, got)
	assert.Equal(t, "shop-cart", c.Key)
	assert.Equal(t, "tab-1", c.Origin)
	assert.JSONEq(t, `{"version":1,"items":[]}`, string(c.Value))
	assert.False(t, c.Timestamp.IsZero())
}

func TestNotifier_ChangesCrossProcesses(t *testing.T) {
	client, _ := setupTestRedis(t)
	a := New(client, "changes", logger.Discard())
	b := New(client, "changes", logger.Discard())
	startNotifier(t, a)
	startNotifier(t, b)

	got := make(chan notifier.Change, 1)
	b.Subscribe(func(c notifier.Change) { got <- c })

	require.NoError(t, a.Publish(context.Background(), notifier.Change{Key: "shop-watchlist", Deleted: true}))

	c := receive(t, got)
	assert.Equal(t, "shop-watchlist", c.Key)
	assert.True(t, c.Deleted)
}

func TestNotifier_DropsMalformedPayloads(t *testing.T) {
	client, _ := setupTestRedis(t)
	n := New(client, "changes", logger.Discard())
	startNotifier(t, n)

	got := make(chan notifier.Change, 2)
	n.Subscribe(func(c notifier.Change) { got <- c })

	require.NoError(t, client.Publish(context.Background(), "changes", "not json").Err())
	require.NoError(t, client.Publish(context.Background(), "changes", `{"deleted":true}`).Err())
	require.NoError(t, n.Publish(context.Background(), notifier.Change{Key: "after"}))

	assert.Equal(t, "after", receive(t, got).Key)
	assert.Empty(t, got)
}

func TestNotifier_UnsubscribedListenerIsSkipped(t *testing.T) {
	client, _ := setupTestRedis(t)
	n := New(client, "changes", logger.Discard())
	startNotifier(t, n)

	stale := make(chan notifier.Change, 1)
	live := make(chan notifier.Change, 1)
	unsubscribe := n.Subscribe(func(c notifier.Change) { stale <- c })
	n.Subscribe(func(c notifier.Change) { live <- c })
	unsubscribe()

	require.NoError(t, n.Publish(context.Background(), notifier.Change{Key: "k"}))

	receive(t, live)
	assert.Empty(t, stale)
}

func TestNotifier_RunTwiceFails(t *testing.T) {
	client, _ := setupTestRedis(t)
	n := New(client, "changes", logger.Discard())
	startNotifier(t, n)

	err := n.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestNotifier_PublishFailsWhenRedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	n := New(client, "changes", logger.Discard())
	mr.Close()

	err := n.Publish(context.Background(), notifier.Change{Key: "k"})
	require.Error(t, err)
}
