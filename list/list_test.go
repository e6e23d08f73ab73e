package list

import (
	"context"
	"math"
	"testing"

	"github.com/luxfi/collections/cache/cachemetrics"
	"github.com/luxfi/collections/config"
	"github.com/luxfi/collections/internal/memstore"
	"github.com/stretchr/testify/require"
)

func newTestList(t *testing.T, width int) (*List[int64], *memstore.Store) {
	t.Helper()
	s := memstore.New()
	cfg := config.DefaultListConfig(s, 8)
	cfg.Width = width
	l, err := New[int64](context.Background(), cfg, NewCBORValueCodec[int64](8), nil)
	require.NoError(t, err)
	return l, s
}

func TestPushAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestList(t, 3)

	const n = 13
	for i := int64(0); i < n; i++ {
		require.NoError(t, l.Push(ctx, i*10))
	}

	length, err := l.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, n, length)

	for i := int64(0); i < n; i++ {
		v, ok, err := l.Get(ctx, uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i*10, v)
	}

	_, ok, err := l.Get(ctx, n)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPushGrowsHeight(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	cfg := config.DefaultListConfig(s, 8)
	cfg.Width = 3
	metrics, err := cachemetrics.New(nil, "list_height_test")
	require.NoError(t, err)
	l, err := New[int64](ctx, cfg, NewCBORValueCodec[int64](8), metrics)
	require.NoError(t, err)

	// width 3: height 0 holds <=3, height 1 holds <=9, height 2 needed at 10.
	for i := int64(0); i < 13; i++ {
		require.NoError(t, l.Push(ctx, i))
	}

	root, err := l.cache.Get(ctx, l.Root(), l.pin)
	require.NoError(t, err)
	require.EqualValues(t, 2, root.height)
}

func TestFromMatchesIncrementalPush(t *testing.T) {
	ctx := context.Background()
	values := make([]int64, 0, 13)
	for i := int64(0); i < 13; i++ {
		values = append(values, i)
	}

	sFrom := memstore.New()
	cfgFrom := config.DefaultListConfig(sFrom, 8)
	cfgFrom.Width = 3
	lFrom, err := From[int64](ctx, cfgFrom, NewCBORValueCodec[int64](8), values, nil)
	require.NoError(t, err)

	sPush := memstore.New()
	cfgPush := config.DefaultListConfig(sPush, 8)
	cfgPush.Width = 3
	lPush, err := New[int64](ctx, cfgPush, NewCBORValueCodec[int64](8), nil)
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, lPush.Push(ctx, v))
	}

	require.True(t, lFrom.Root().Equals(lPush.Root()))
}

func TestFromEmptyMatchesNew(t *testing.T) {
	ctx := context.Background()

	s1 := memstore.New()
	cfg1 := config.DefaultListConfig(s1, 8)
	cfg1.Width = 3
	lNew, err := New[int64](ctx, cfg1, NewCBORValueCodec[int64](8), nil)
	require.NoError(t, err)

	s2 := memstore.New()
	cfg2 := config.DefaultListConfig(s2, 8)
	cfg2.Width = 3
	lFrom, err := From[int64](ctx, cfg2, NewCBORValueCodec[int64](8), nil, nil)
	require.NoError(t, err)

	require.True(t, lNew.Root().Equals(lFrom.Root()))
}

func TestFlushAndReopen(t *testing.T) {
	ctx := context.Background()
	l, s := newTestList(t, 3)

	for i := int64(0); i < 7; i++ {
		require.NoError(t, l.Push(ctx, i*2))
	}
	require.NoError(t, l.Flush(ctx, "head"))

	rootID, err := s.ResolveAlias(ctx, "head")
	require.NoError(t, err)
	require.True(t, rootID.Equals(l.Root()))

	cfg := config.DefaultListConfig(s, 8)
	cfg.Width = 3
	reopened, err := Open[int64](ctx, cfg, NewCBORValueCodec[int64](8), rootID, nil)
	require.NoError(t, err)

	length, err := reopened.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 7, length)

	for i := int64(0); i < 7; i++ {
		v, ok, err := reopened.Get(ctx, uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i*2, v)
	}
}

func TestGetOnEmptyList(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestList(t, 3)

	_, ok, err := l.Get(ctx, 0)
	require.NoError(t, err)
	require.False(t, ok)

	empty, err := l.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestGetMaxUint64DoesNotOverflow(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestList(t, 3)
	require.NoError(t, l.Push(ctx, 42))

	_, ok, err := l.Get(ctx, math.MaxUint64)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPopAndSetAreUnimplemented(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestList(t, 3)
	require.NoError(t, l.Push(ctx, 1))

	_, err := l.Pop(ctx)
	require.ErrorIs(t, err, ErrUnimplemented)

	err = l.Set(ctx, 0, 99)
	require.ErrorIs(t, err, ErrUnimplemented)

	v, ok, err := l.Get(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, v)
}

func TestPowOverflow(t *testing.T) {
	r, overflowed := powOverflow(2, 10)
	require.False(t, overflowed)
	require.EqualValues(t, 1024, r)

	_, overflowed = powOverflow(2, 64)
	require.True(t, overflowed)

	r, overflowed = powOverflow(5, 0)
	require.False(t, overflowed)
	require.EqualValues(t, 1, r)
}
