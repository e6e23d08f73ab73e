// Package cache provides BlockCache, the typed, LRU-cached,
// read-through view of a BlockStore that List and Hamt are built on
// (spec §4.1).
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/luxfi/collections/cache/cachemetrics"
	"github.com/luxfi/collections/cid"
	"github.com/luxfi/collections/store"
	"github.com/luxfi/log"
	"golang.org/x/sync/singleflight"
)

// Codec encodes and decodes a cached node type N to/from canonical
// bytes (spec §4.1: "insert(X) is deterministic").
type Codec[N any] interface {
	Encode(n N) ([]byte, error)
	Decode(b []byte) (N, error)
}

// BlockCache is a typed, LRU-cached, read-through view of a single
// BlockStore for one codec and one node type N.
type BlockCache[N any] struct {
	store   store.BlockStore
	codec   Codec[N]
	hashAlg string
	log     log.Logger
	metrics *cachemetrics.Metrics

	lru    *lru.Cache[cid.ID, N]
	single singleflight.Group
}

// New builds a BlockCache over store for node type N, keeping up to
// cacheSize decoded nodes resident (spec §4.4: "cache_size: positive
// integer; size of the LRU in node-entries").
func New[N any](s store.BlockStore, c Codec[N], hashAlg string, cacheSize int, logger log.Logger, metrics *cachemetrics.Metrics) (*BlockCache[N], error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	l, err := lru.NewWithEvict[cid.ID, N](cacheSize, func(cid.ID, N) {
		metrics.Eviction()
	})
	if err != nil {
		return nil, fmt.Errorf("cache: building lru: %w", err)
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &BlockCache[N]{
		store:   s,
		codec:   c,
		hashAlg: hashAlg,
		log:     logger,
		metrics: metrics,
		lru:     l,
	}, nil
}

// Get returns the decoded node named by id. On a cache miss it fetches
// the bytes from the store, decodes them, and installs the result into
// the LRU. If pin is non-nil the CID is registered with it. Concurrent
// Get calls for the same id share one decode (spec §4.1).
func (c *BlockCache[N]) Get(ctx context.Context, id cid.ID, pin store.Pin) (N, error) {
	if n, ok := c.lru.Get(id); ok {
		c.metrics.Hit()
		if pin != nil {
			pin.Register(id)
		}
		return n, nil
	}
	c.metrics.Miss()

	v, err, _ := c.single.Do(id.KeyString(), func() (any, error) {
		raw, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("cache: get %s: %w", id, err)
		}
		n, err := c.codec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("cache: decode %s: %w", id, err)
		}
		c.lru.Add(id, n)
		return n, nil
	})
	if err != nil {
		var zero N
		return zero, err
	}
	if pin != nil {
		pin.Register(id)
	}
	return v.(N), nil
}

// Insert canonically encodes n, writes it to the store if its CID is
// not already present, installs it into the LRU, and returns its CID.
// If pin is non-nil the new CID is registered with it.
func (c *BlockCache[N]) Insert(ctx context.Context, n N, pin store.Pin) (cid.ID, error) {
	raw, err := c.codec.Encode(n)
	if err != nil {
		return cid.Undef, fmt.Errorf("cache: encode: %w", err)
	}
	if max := c.store.MaxBlockSize(); max > 0 && len(raw) > max {
		return cid.Undef, fmt.Errorf("cache: encoded block of %d bytes exceeds store max %d", len(raw), max)
	}
	id, err := c.store.Insert(ctx, raw, c.hashAlg, pin)
	if err != nil {
		return cid.Undef, fmt.Errorf("cache: insert: %w", err)
	}
	c.lru.Add(id, n)
	return id, nil
}

// Alias durably names id under name (or clears it, when id is nil).
func (c *BlockCache[N]) Alias(ctx context.Context, name string, id *cid.ID) error {
	return c.store.Alias(ctx, name, id)
}

// ResolveAlias returns the CID currently named by name.
func (c *BlockCache[N]) ResolveAlias(ctx context.Context, name string) (cid.ID, error) {
	return c.store.ResolveAlias(ctx, name)
}

// TempPin returns a fresh pin handle from the underlying store.
func (c *BlockCache[N]) TempPin(ctx context.Context) (store.Pin, error) {
	return c.store.TempPin(ctx)
}

// Flush ensures all inserts and alias updates issued so far through
// this cache are durable in the store.
func (c *BlockCache[N]) Flush(ctx context.Context) error {
	return c.store.Flush(ctx)
}

// MaxBlockSize exposes the backing store's block size ceiling, used by
// config to derive a List's default width (spec §4.4).
func (c *BlockCache[N]) MaxBlockSize() int {
	return c.store.MaxBlockSize()
}
