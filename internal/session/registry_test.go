package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRegistry(t *testing.T, opts Options) (*Registry, *storage.Memory) {
	backend := storage.NewMemory()
	reg := NewRegistry(backend, opts, zap.NewNop())
	t.Cleanup(reg.Close)
	return reg, backend
}

func line(id string, maxStock int) domain.CartLine {
	return domain.CartLine{ID: id, ProductID: 1, Name: id, Price: decimal.NewFromInt(3), MaxStock: &maxStock}
}

func TestRegistry_GetReturnsSameSession(t *testing.T) {
	reg, _ := setupRegistry(t, Options{})
	ctx := context.Background()

	a := reg.Get(ctx, "s1", "/om")
	b := reg.Get(ctx, "s1", "/sa")
	c := reg.Get(ctx, "s2", "/om")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_ConcurrentFirstRequestsShareOneSession(t *testing.T) {
	reg, _ := setupRegistry(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Session, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = reg.Get(ctx, "same", "/om")
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_SessionsAreIsolated(t *testing.T) {
	reg, backend := setupRegistry(t, Options{})
	ctx := context.Background()

	a := reg.Get(ctx, "a", "/om")
	a.Store.Navigate(ctx, "/om")
	a.Store.AddItem(ctx, line("x", 5), 2)

	b := reg.Get(ctx, "b", "/om")
	b.Store.Navigate(ctx, "/om")
	assert.Empty(t, b.Store.Snapshot().Items)

	_, err := backend.Get(ctx, storage.SessionPrefix("a")+domain.CartKey(domain.RegionOman))
	assert.NoError(t, err)
}

func TestRegistry_RunsLegacyMigrationPerSession(t *testing.T) {
	reg, backend := setupRegistry(t, Options{})
	ctx := context.Background()
	prefix := storage.SessionPrefix("legacy")
	require.NoError(t, backend.Set(ctx, prefix+domain.LegacyCartKey,
		[]byte(`[{"id":"9","productId":9,"name":"Old","price":2,"image":"","quantity":3}]`)))

	sess := reg.Get(ctx, "legacy", "/sa/cart")
	sess.Store.Navigate(ctx, "/sa/cart")

	snap := sess.Store.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 3, snap.TotalItems)

	_, err := backend.Get(ctx, prefix+domain.MigrationMarker)
	assert.NoError(t, err)
}

// ctxStorage refuses to work once the caller's context is done, like the
// network backends do.
type ctxStorage struct {
	storage.Storage
}

func (c ctxStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Storage.Get(ctx, key)
}

func (c ctxStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Storage.Set(ctx, key, value)
}

func TestRegistry_MigrationSurvivesCancelledRequest(t *testing.T) {
	backend := storage.NewMemory()
	reg := NewRegistry(ctxStorage{backend}, Options{}, zap.NewNop())
	t.Cleanup(reg.Close)

	prefix := storage.SessionPrefix("late")
	require.NoError(t, backend.Set(context.Background(), prefix+domain.LegacyCartKey,
		[]byte(`[{"id":"1-null","productId":1,"name":"Old","price":"2","image":"","quantity":2}]`)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.Get(ctx, "late", "/om")

	_, err := backend.Get(context.Background(), prefix+domain.MigrationMarker)
	require.NoError(t, err)
	migrated, err := backend.Get(context.Background(), prefix+domain.CartKey(domain.RegionOman))
	require.NoError(t, err)
	assert.Contains(t, string(migrated), "1-null")
}

func TestRegistry_GetRefreshesSessionBeforeEviction(t *testing.T) {
	reg, _ := setupRegistry(t, Options{IdleTTL: time.Minute, CleanupInterval: time.Hour})
	ctx := context.Background()

	sess := reg.Get(ctx, "s", "/om")
	reg.evictIdle(time.Now())
	assert.Equal(t, 1, reg.Len(), "a new session is not idle")

	sess.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())
	again := reg.Get(ctx, "s", "/om")
	reg.evictIdle(time.Now())
	assert.Same(t, sess, again)
	assert.Equal(t, 1, reg.Len())

	reg.evictIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_NoticesReachInbox(t *testing.T) {
	reg, _ := setupRegistry(t, Options{})
	ctx := context.Background()

	sess := reg.Get(ctx, "n", "/om")
	sess.Store.AddItem(ctx, line("x", 1), 4)

	var notices []domain.Notice
	require.Eventually(t, func() bool {
		notices = append(notices, sess.Inbox.Drain()...)
		return len(notices) == 1
	}, time.Second, 5*time.Millisecond, "notice was not delivered")
	assert.Equal(t, "Only 1 available", notices[0].Message)
}

func TestRegistry_EvictsIdleSessions(t *testing.T) {
	reg, backend := setupRegistry(t, Options{
		IdleTTL:         20 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	})
	ctx := context.Background()

	sess := reg.Get(ctx, "idle", "/om")
	sess.Store.AddItem(ctx, line("x", 5), 2)

	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, time.Second, 5*time.Millisecond, "idle session was not evicted")

	// the cart survives eviction
	again := reg.Get(ctx, "idle", "/om")
	assert.NotSame(t, sess, again)
	assert.Equal(t, 2, again.Store.TotalItems())
	assert.Equal(t, 1, backend.Keys())
}

func TestRegistry_ClearRegion_LiveSession(t *testing.T) {
	reg, _ := setupRegistry(t, Options{})
	ctx := context.Background()

	sess := reg.Get(ctx, "live", "/sa")
	sess.Store.Navigate(ctx, "/sa")
	sess.Store.AddItem(ctx, line("x", 5), 2)

	require.NoError(t, reg.ClearRegion(ctx, "live", domain.RegionSaudi))
	assert.Empty(t, sess.Store.Snapshot().Items)
}

func TestRegistry_ClearRegion_UnknownSession(t *testing.T) {
	reg, backend := setupRegistry(t, Options{})
	ctx := context.Background()
	key := storage.SessionPrefix("gone") + domain.CartKey(domain.RegionOman)
	require.NoError(t, backend.Set(ctx, key, []byte(`[]`)))

	require.NoError(t, reg.ClearRegion(ctx, "gone", domain.RegionOman))

	_, err := backend.Get(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_CloseIsIdempotent(t *testing.T) {
	reg, _ := setupRegistry(t, Options{})
	reg.Get(context.Background(), "x", "/om")

	reg.Close()
	reg.Close()
	assert.Equal(t, 0, reg.Len())
}
