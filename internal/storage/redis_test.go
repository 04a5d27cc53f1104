package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "fleetbot/pkg/logx"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := Open(Config{Driver: "redis", Addr: mr.Addr(), Key: "test:subs"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return mr, st
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t)

	require.NoError(t, st.Save(ctx, []int64{3, 1, 2, 2}))
	assert.Equal(t, []int64{1, 2, 3}, st.Load(ctx))

	members, err := mr.Members("test:subs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2", "3"}, members)

	require.NoError(t, st.Save(ctx, nil))
	assert.Empty(t, st.Load(ctx))
	assert.False(t, mr.Exists("test:subs"))
}

func TestRedisSubscribers(t *testing.T) {
	ctx := context.Background()
	_, st := newRedisStore(t)
	subs := NewSubscribers(st, logx.Nop())

	added, err := subs.Subscribe(ctx, 100)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = subs.Subscribe(ctx, 100)
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := subs.Unsubscribe(ctx, 200)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []int64{100}, subs.Load(ctx))
}

func TestRedisLoadFailsSoft(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t)

	mr.SetError("ERR injected failure")
	assert.Empty(t, st.Load(ctx))
	mr.SetError("")

	// Wrong type under the key is another read error, still soft.
	mr.Set("test:subs", "oops")
	assert.Empty(t, st.Load(ctx))
}

func TestRedisOpenRequiresAddr(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}
