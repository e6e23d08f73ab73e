package cid_test

import (
	"crypto/sha256"
	"testing"

	"github.com/luxfi/collections/cid"
	"github.com/stretchr/testify/require"
)

func TestFromHashDeterministic(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	a, err := cid.FromHash("sha2-256", sum[:])
	require.NoError(t, err)
	b, err := cid.FromHash("sha2-256", sum[:])
	require.NoError(t, err)
	require.True(t, a.Equals(b))
}

func TestFromHashDifferentBytesDifferentID(t *testing.T) {
	a, err := cid.FromHash("sha2-256", sha256.New().Sum([]byte("a")))
	require.NoError(t, err)
	b, err := cid.FromHash("sha2-256", sha256.New().Sum([]byte("b")))
	require.NoError(t, err)
	require.False(t, a.Equals(b))
}

func TestFromHashUnknownAlgorithm(t *testing.T) {
	_, err := cid.FromHash("not-a-real-algorithm", []byte{1, 2, 3})
	require.Error(t, err)
}

func TestUndefIsNotDefined(t *testing.T) {
	require.False(t, cid.Defined(cid.Undef))
}

func TestLessTotalOrder(t *testing.T) {
	sumA := sha256.Sum256([]byte("a"))
	sumB := sha256.Sum256([]byte("b"))
	a, err := cid.FromHash("sha2-256", sumA[:])
	require.NoError(t, err)
	b, err := cid.FromHash("sha2-256", sumB[:])
	require.NoError(t, err)

	if cid.Less(a, b) {
		require.False(t, cid.Less(b, a))
	} else {
		require.True(t, a.Equals(b) || cid.Less(b, a))
	}
}
