// Package store defines the BlockStore contract the cache package is
// built on (spec §6). The concrete persistent layout, on-disk indexes,
// and GC policy of a BlockStore are out of scope for this module
// (spec §1); store only fixes the interface collections depend on.
package store

import (
	"context"
	"errors"

	"github.com/luxfi/collections/cid"
)

// ErrNotFound is returned by Get when the requested CID is not
// present in the store.
var ErrNotFound = errors.New("store: block not found")

// Pin is a handle returned by TempPin. While held, blocks registered
// with it (via Insert) are guaranteed not to be garbage-collected.
// Release drops the guarantee; blocks that were never aliased may then
// be reclaimed on the store's next GC pass (spec §3, §5).
type Pin interface {
	// Register records id as kept alive by this pin. Insert calls it
	// automatically for the pin passed to Insert; it is exported so a
	// caller can also pin a CID it did not itself just write.
	Register(id cid.ID)

	// Release drops the pin. It is idempotent.
	Release(ctx context.Context) error
}

// BlockStore persists immutable, content-addressed blocks (spec §6).
type BlockStore interface {
	// Get returns the bytes of the block named by id, or ErrNotFound.
	Get(ctx context.Context, id cid.ID) ([]byte, error)

	// Insert writes bytes under the digest of hashAlg, returning the
	// resulting CID. Insert is idempotent: the same (bytes, hashAlg)
	// always yields the same CID, and re-inserting already-stored
	// bytes is a no-op beyond returning that CID. If pin is non-nil,
	// the written block is registered with it.
	Insert(ctx context.Context, bytes []byte, hashAlg string, pin Pin) (cid.ID, error)

	// Alias durably names id under name. Passing a nil id clears the
	// alias. Aliased CIDs are reachable roots independent of any pin.
	Alias(ctx context.Context, name string, id *cid.ID) error

	// ResolveAlias returns the CID last aliased under name, or
	// ErrNotFound if the name has never been aliased (or was cleared).
	ResolveAlias(ctx context.Context, name string) (cid.ID, error)

	// TempPin returns a fresh pin handle.
	TempPin(ctx context.Context) (Pin, error)

	// Flush ensures all inserts and alias updates issued so far are
	// durable.
	Flush(ctx context.Context) error

	// MaxBlockSize is the upper bound on the byte size of any single
	// block this store will accept.
	MaxBlockSize() int
}
