package memstore_test

import (
	"context"
	"testing"

	"github.com/luxfi/collections/internal/memstore"
	"github.com/luxfi/collections/store"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	id, err := s.Insert(ctx, []byte("hello"), "sha2-256", nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestInsertIsDeterministic(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	a, err := s.Insert(ctx, []byte("same bytes"), "sha2-256", nil)
	require.NoError(t, err)
	b, err := s.Insert(ctx, []byte("same bytes"), "sha2-256", nil)
	require.NoError(t, err)
	require.True(t, a.Equals(b))
}

func TestGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	missing, err := s.Insert(ctx, []byte("x"), "sha2-256", nil)
	require.NoError(t, err)
	_, err = (memstore.New()).Get(ctx, missing)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAliasResolve(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	id, err := s.Insert(ctx, []byte("root"), "sha2-256", nil)
	require.NoError(t, err)

	require.NoError(t, s.Alias(ctx, "main", &id))
	got, err := s.ResolveAlias(ctx, "main")
	require.NoError(t, err)
	require.True(t, id.Equals(got))

	require.NoError(t, s.Alias(ctx, "main", nil))
	_, err = s.ResolveAlias(ctx, "main")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPinLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	pin, err := s.TempPin(ctx)
	require.NoError(t, err)

	id, err := s.Insert(ctx, []byte("pinned"), "sha2-256", pin)
	require.NoError(t, err)

	_, err = s.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, pin.Release(ctx))
	// Releasing a pin twice must not panic or error.
	require.NoError(t, pin.Release(ctx))
}

func TestDatabaseView(t *testing.T) {
	s := memstore.New()
	db := s.AsDatabase()

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	has, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, has)

	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	batch := db.NewBatch()
	require.NoError(t, batch.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, batch.Delete([]byte("k")))
	require.Equal(t, 2, batch.Size())
	require.NoError(t, batch.Write())

	has, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, has)

	v2, err := db.Get([]byte("k2"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v2)
}
