package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type report struct {
	Name  string `json:"name"`
	Total string `json:"total"`
}

func newTestCache(t *testing.T) (*JSONCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewJSONCache(client, time.Minute), srv
}

func TestNewPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()

	client, err := New(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	srv.Close()
	_, err = New(context.Background(), addr)
	require.Error(t, err)
}

func TestJSONCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var got report
	hit, err := c.Get(ctx, "ledger:tb:1:2026-03-15:false", &got)
	require.NoError(t, err)
	require.False(t, hit)

	want := report{Name: "trial balance", Total: "640.00"}
	require.NoError(t, c.Set(ctx, "ledger:tb:1:2026-03-15:false", want))

	hit, err = c.Get(ctx, "ledger:tb:1:2026-03-15:false", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, want, got)
}

func TestJSONCacheEntriesExpire(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ledger:tb:1:2026-03-15:false", report{Name: "tb"}))
	srv.FastForward(2 * time.Minute)

	var got report
	hit, err := c.Get(ctx, "ledger:tb:1:2026-03-15:false", &got)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestJSONCacheInvalidateMatchesPattern(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ledger:tb:1:2026-03-15:false", report{Name: "a"}))
	require.NoError(t, c.Set(ctx, "ledger:tb:1:2026-03-16:true", report{Name: "b"}))
	require.NoError(t, c.Set(ctx, "ledger:tb:2:2026-03-15:false", report{Name: "c"}))

	require.NoError(t, c.Invalidate(ctx, "ledger:tb:1:*"))

	var got report
	hit, err := c.Get(ctx, "ledger:tb:1:2026-03-15:false", &got)
	require.NoError(t, err)
	require.False(t, hit)

	hit, err = c.Get(ctx, "ledger:tb:2:2026-03-15:false", &got)
	require.NoError(t, err)
	require.True(t, hit)
}

func TestNilCacheIsNoOp(t *testing.T) {
	var c *JSONCache
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", report{}))
	require.NoError(t, c.Invalidate(ctx, "k*"))

	var got report
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, hit)
}
