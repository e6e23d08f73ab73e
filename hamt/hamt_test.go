package hamt

import (
	"context"
	"testing"

	"github.com/luxfi/collections/config"
	"github.com/luxfi/collections/internal/memstore"
	"github.com/stretchr/testify/require"
)

func newTestHamt(t *testing.T) *Hamt[int64] {
	t.Helper()
	s := memstore.New()
	cfg := config.DefaultHamtConfig(s)
	cfg.Hash = "identity"
	cfg.BucketSize = 3
	h, err := New[int64](context.Background(), cfg, NewCBORValueCodec[int64](8), nil)
	require.NoError(t, err)
	return h
}

func TestGetAbsentKeyOnEmptyHamt(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)

	_, ok, err := h.Get(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)

	require.NoError(t, h.Insert(ctx, []byte{0, 0, 0}, 100))

	v, ok, err := h.Get(ctx, []byte{0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100, v)
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)

	require.NoError(t, h.Insert(ctx, []byte{5, 5, 5}, 1))
	require.NoError(t, h.Insert(ctx, []byte{5, 5, 5}, 2))

	v, ok, err := h.Get(ctx, []byte{5, 5, 5})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, v)
}

// TestBucketOverflow exercises spec scenario 3: inserting four keys
// that share the 2-byte prefix [0,0] into a Hamt with bucket_size 3
// overflows the bucket at that prefix into a HashNode.
func TestBucketOverflow(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)

	keys := [][]byte{{0, 0, 0}, {0, 0, 1}, {0, 0, 2}, {0, 0, 3}}
	for _, k := range keys {
		require.NoError(t, h.Insert(ctx, k, 0))
	}

	v, ok, err := h.Get(ctx, []byte{0, 0, 3})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, v)

	root, err := h.cache.Get(ctx, h.Root(), h.pin)
	require.NoError(t, err)
	require.True(t, root.bitSet(0))
	el := root.data[root.index(0)]
	require.True(t, el.isHashNode, "the bucket shared by all four [0,0,*] keys should have overflowed into a HashNode")
}

// TestRemoveCollapse exercises spec scenario 4: removing three of the
// four overflowed keys collapses the subtree back to the root CID of
// a fresh Hamt containing only the surviving key.
func TestRemoveCollapse(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)

	keys := [][]byte{{0, 0, 0}, {0, 0, 1}, {0, 0, 2}, {0, 0, 3}}
	for _, k := range keys {
		require.NoError(t, h.Insert(ctx, k, 0))
	}

	require.NoError(t, h.Remove(ctx, []byte{0, 0, 1}))
	require.NoError(t, h.Remove(ctx, []byte{0, 0, 2}))
	require.NoError(t, h.Remove(ctx, []byte{0, 0, 3}))

	fresh := newTestHamt(t)
	require.NoError(t, fresh.Insert(ctx, []byte{0, 0, 0}, 0))

	require.True(t, h.Root().Equals(fresh.Root()))
}

func TestRemoveAbsentKeyIsNoOp(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)
	require.NoError(t, h.Insert(ctx, []byte{9, 9, 9}, 7))

	before := h.Root()
	require.NoError(t, h.Remove(ctx, []byte{1, 1, 1}))
	require.True(t, before.Equals(h.Root()))
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newTestHamt(t)
	require.NoError(t, h.Insert(ctx, []byte{9, 9, 9}, 7))
	require.NoError(t, h.Insert(ctx, []byte{1, 2, 3}, 8))

	require.NoError(t, h.Remove(ctx, []byte{9, 9, 9}))
	once := h.Root()
	require.NoError(t, h.Remove(ctx, []byte{9, 9, 9}))
	require.True(t, once.Equals(h.Root()))
}

// TestInsertPermutationDeterminism exercises spec scenario 5: any
// permutation of the same (key, value) set yields the same root.
func TestInsertPermutationDeterminism(t *testing.T) {
	ctx := context.Background()
	pairs := []Pair[int64]{
		{Key: []byte{0, 0, 0}, Value: 1},
		{Key: []byte{0, 0, 1}, Value: 2},
		{Key: []byte{1, 2, 3}, Value: 3},
		{Key: []byte{0, 0, 2}, Value: 4},
	}

	h1 := newTestHamt(t)
	for _, p := range pairs {
		require.NoError(t, h1.Insert(ctx, p.Key, p.Value))
	}

	reversed := make([]Pair[int64], len(pairs))
	for i, p := range pairs {
		reversed[len(pairs)-1-i] = p
	}
	h2 := newTestHamt(t)
	for _, p := range reversed {
		require.NoError(t, h2.Insert(ctx, p.Key, p.Value))
	}

	require.True(t, h1.Root().Equals(h2.Root()))
}

func TestFlushAndReopen(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	cfg := config.DefaultHamtConfig(s)
	cfg.Hash = "identity"
	cfg.BucketSize = 3
	h, err := New[int64](ctx, cfg, NewCBORValueCodec[int64](8), nil)
	require.NoError(t, err)

	require.NoError(t, h.Insert(ctx, []byte{1, 1, 1}, 10))
	require.NoError(t, h.Insert(ctx, []byte{2, 2, 2}, 20))
	require.NoError(t, h.Flush(ctx, "head"))

	rootID, err := s.ResolveAlias(ctx, "head")
	require.NoError(t, err)
	require.True(t, rootID.Equals(h.Root()))

	reopened, err := Open[int64](ctx, cfg, NewCBORValueCodec[int64](8), rootID, nil)
	require.NoError(t, err)

	v, ok, err := reopened.Get(ctx, []byte{1, 1, 1})
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 10, v)
}

func TestFromBuildsSameRootAsRepeatedInsert(t *testing.T) {
	ctx := context.Background()
	pairs := []Pair[int64]{
		{Key: []byte{0, 0, 0}, Value: 1},
		{Key: []byte{0, 0, 1}, Value: 2},
		{Key: []byte{3, 4, 5}, Value: 3},
	}

	s1 := memstore.New()
	cfg1 := config.DefaultHamtConfig(s1)
	cfg1.Hash = "identity"
	cfg1.BucketSize = 3
	hFrom, err := From[int64](ctx, cfg1, NewCBORValueCodec[int64](8), pairs, nil)
	require.NoError(t, err)

	hIncr := newTestHamt(t)
	for _, p := range pairs {
		require.NoError(t, hIncr.Insert(ctx, p.Key, p.Value))
	}

	require.True(t, hFrom.Root().Equals(hIncr.Root()))
}
