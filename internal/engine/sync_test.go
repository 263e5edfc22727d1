package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/marketplace/internal/notifier"
)

// ---------------------------------------------------------------------------
// Cross-tab propagation
// ---------------------------------------------------------------------------

func TestSync_WriteInOneTabReachesTheOther(t *testing.T) {
	f := newFixture(t)
	tabA := f.cart(t)
	tabB := f.cart(t)
	ctx := context.Background()

	require.NoError(t, tabA.AddItem(ctx, product("p1", 100), 2))
	assert.Equal(t, 2, tabB.GetItemQuantity("p1"))

	tabB.UpdateQuantity(ctx, "p1", 5)
	assert.Equal(t, 5, tabA.GetItemQuantity("p1"))

	tabA.Clear(ctx)
	assert.True(t, tabB.Cart().IsEmpty())
}

func TestSync_WatchlistPropagates(t *testing.T) {
	f := newFixture(t)
	tabA := f.watchlist(t)
	tabB := f.watchlist(t)

	require.NoError(t, tabA.AddItem(context.Background(), product("p1", 100)))

	assert.True(t, tabB.IsWatched("p1"))
}

func TestSync_OriginReloadsOnItsOwnChange(t *testing.T) {
	f := newFixture(t)
	m := f.cart(t)
	reloads := testutil.ToFloat64(reloadsTotal.WithLabelValues(engineCart))

	require.NoError(t, m.AddItem(context.Background(), product("p1", 100), 1))

	assert.InDelta(t, reloads+1, testutil.ToFloat64(reloadsTotal.WithLabelValues(engineCart)), 0.001)
	assert.Equal(t, 1, m.GetItemQuantity("p1"))
}

func TestSync_ObserversFireOnReload(t *testing.T) {
	f := newFixture(t)
	tabA := f.cart(t)
	tabB := f.cart(t)

	fired := 0
	tabB.OnChange(func() { fired++ })

	require.NoError(t, tabA.AddItem(context.Background(), product("p1", 100), 1))

	assert.Equal(t, 1, fired)
}

func TestSync_OtherKeysAreIgnored(t *testing.T) {
	f := newFixture(t)
	cart := f.cart(t)
	fired := 0
	cart.OnChange(func() { fired++ })

	require.NoError(t, f.bus.Publish(context.Background(), notifier.Change{Key: "shop-watchlist"}))
	require.NoError(t, f.bus.Publish(context.Background(), notifier.Change{Key: "other-cart"}))

	assert.Equal(t, 0, fired)
}

func TestSync_PayloadIsNotTrusted(t *testing.T) {
	f := newFixture(t)
	m := f.cart(t)
	require.NoError(t, m.AddItem(context.Background(), product("p1", 100), 1))

	require.NoError(t, f.bus.Publish(context.Background(), notifier.Change{
		Key:   "shop-cart",
		Value: []byte(`{"version":1,"items":[]}`),
	}))

	assert.Equal(t, 1, m.GetItemQuantity("p1"))
}

func TestSync_ReloadOfCorruptDataResets(t *testing.T) {
	f := newFixture(t)
	m := f.cart(t)
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, product("p1", 100), 1))

	require.NoError(t, f.kv.Set(ctx, "shop-cart", []byte("garbage")))
	require.NoError(t, f.bus.Publish(ctx, notifier.Change{Key: "shop-cart"}))

	assert.True(t, m.Cart().IsEmpty())
}

func TestSync_ReloadWhileUnavailableKeepsList(t *testing.T) {
	f := newFixture(t)
	m := f.cart(t)
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, product("p1", 100), 1))

	f.kv.Disable()
	require.NoError(t, f.bus.Publish(ctx, notifier.Change{Key: "shop-cart"}))

	assert.Equal(t, 1, m.GetItemQuantity("p1"))
}

func TestSync_ClosedManagerStopsListening(t *testing.T) {
	f := newFixture(t)
	tabA := f.cart(t)
	tabB := f.cart(t)
	tabB.Close()
	tabB.Close()

	require.NoError(t, tabA.AddItem(context.Background(), product("p1", 100), 1))

	assert.False(t, tabB.IsInCart("p1"))
	assert.Equal(t, 1, f.bus.Len())
}

// ---------------------------------------------------------------------------
// Conflict policy
// ---------------------------------------------------------------------------

// staleTabs returns two tabs over one store; tabB never hears about writes.
func staleTabs(t *testing.T, policy Policy) (*fixture, *CartManager, *CartManager) {
	t.Helper()
	f := newFixture(t)
	f.opts.Policy = policy
	ctx := context.Background()

	seed := f.cart(t)
	require.NoError(t, seed.AddItem(ctx, product("p1", 100), 1))
	seed.Close()

	tabA := f.cart(t)
	staleOpts := f.opts
	staleOpts.Notifier = notifier.Nop{}
	tabB, err := NewCartManager(ctx, staleOpts)
	require.NoError(t, err)
	t.Cleanup(tabB.Close)
	return f, tabA, tabB
}

func storedProducts(t *testing.T, f *fixture) []string {
	t.Helper()
	fresh, err := NewCartManager(context.Background(), Options{Namespace: "shop", Store: f.kv})
	require.NoError(t, err)
	defer fresh.Close()
	return cartIDs(fresh.Cart())
}

func TestPolicy_LastWriteWinsLosesConcurrentAdd(t *testing.T) {
	f, tabA, tabB := staleTabs(t, PolicyLastWriteWins)
	ctx := context.Background()

	require.NoError(t, tabA.AddItem(ctx, product("p2", 100), 1))
	require.NoError(t, tabB.AddItem(ctx, product("p3", 100), 1))

	assert.Equal(t, []string{"p1", "p3"}, storedProducts(t, f))
	assert.Equal(t, []string{"p1", "p2"}, cartIDs(tabA.Cart()), "tab A never heard about the overwrite")
}

func TestPolicy_ReadMergeWriteKeepsBothAdds(t *testing.T) {
	f, tabA, tabB := staleTabs(t, PolicyReadMergeWrite)
	ctx := context.Background()

	require.NoError(t, tabA.AddItem(ctx, product("p2", 100), 1))
	require.NoError(t, tabB.AddItem(ctx, product("p3", 100), 1))

	assert.Equal(t, []string{"p1", "p2", "p3"}, storedProducts(t, f))
	assert.Equal(t, []string{"p1", "p2", "p3"}, cartIDs(tabB.Cart()))
}

func TestPolicy_ReadMergeWriteFallsBackToMemory(t *testing.T) {
	f := newFixture(t)
	f.opts.Policy = PolicyReadMergeWrite
	m := f.cart(t)
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, product("p1", 100), 1))

	f.kv.Disable()
	require.NoError(t, m.AddItem(ctx, product("p2", 100), 1))

	assert.Equal(t, []string{"p1", "p2"}, cartIDs(m.Cart()))
}

func TestPolicy_ReadMergeWriteDropsCorruptStore(t *testing.T) {
	f := newFixture(t)
	f.opts.Policy = PolicyReadMergeWrite
	f.opts.Notifier = notifier.Nop{}
	m := f.cart(t)
	ctx := context.Background()
	require.NoError(t, m.AddItem(ctx, product("p1", 100), 1))

	require.NoError(t, f.kv.Set(ctx, "shop-cart", []byte("###")))
	require.NoError(t, m.AddItem(ctx, product("p2", 100), 1))

	assert.Equal(t, []string{"p2"}, cartIDs(m.Cart()))
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyLastWriteWins, false},
		{"last-write-wins", PolicyLastWriteWins, false},
		{"READ-MERGE-WRITE", PolicyReadMergeWrite, false},
		{"rmw", PolicyReadMergeWrite, false},
		{"optimistic", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Policy {
	t.Helper()
	p, err := ParsePolicy(s)
	require.NoError(t, err)
	return p
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	m := f.cart(t)
	other := f.cart(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.AddItem(ctx, product("p1", 100), 1)
			_ = m.ItemCount()
			_ = other.Cart()
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, m.GetItemQuantity("p1"))
	assert.Equal(t, workers, other.GetItemQuantity("p1"))
	assert.Equal(t, int64(workers*100), m.Total())
}
