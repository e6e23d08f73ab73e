// Package hamt implements Hamt, a persistent hash-array-mapped trie
// mapping opaque byte-string keys to codec-encodable values, backed by
// a content-addressed block store (spec §4.3).
package hamt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/collections/cache"
	"github.com/luxfi/collections/cache/cachemetrics"
	"github.com/luxfi/collections/cid"
	"github.com/luxfi/collections/config"
	"github.com/luxfi/collections/internal/hashalg"
	"github.com/luxfi/collections/store"
	"github.com/luxfi/log"
)

// Errors surfaced by Hamt operations (spec §7).
var (
	ErrCollisionDepthExceeded = errCollisionDepthExceeded
	ErrNotFound               = errors.New("hamt: key not found")
)

// Hamt is a persistent map from opaque byte-string keys to values of
// type T.
type Hamt[T any] struct {
	mu    sync.Mutex
	cfg   *config.HamtConfig
	cache *cache.BlockCache[*node[T]]
	log   log.Logger
	pin   store.Pin
	root  cid.ID
}

func buildCache[T any](cfg *config.HamtConfig, vc ValueCodec[T], metrics *cachemetrics.Metrics) (*cache.BlockCache[*node[T]], error) {
	return cache.New[*node[T]](cfg.Store, nodeCodec[T]{values: vc}, cfg.Hash, cfg.CacheSize, cfg.Log, metrics)
}

// New returns an empty Hamt (spec §4.3: "root is a node with
// zero-bitmap and empty data").
func New[T any](ctx context.Context, cfg *config.HamtConfig, vc ValueCodec[T], metrics *cachemetrics.Metrics) (*Hamt[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := buildCache(cfg, vc, metrics)
	if err != nil {
		return nil, err
	}
	pin, err := c.TempPin(ctx)
	if err != nil {
		return nil, fmt.Errorf("hamt: temp pin: %w", err)
	}
	rootID, err := c.Insert(ctx, emptyNode[T](), pin)
	if err != nil {
		return nil, fmt.Errorf("hamt: insert empty root: %w", err)
	}
	return &Hamt[T]{cfg: cfg, cache: c, log: cfg.Log, pin: pin, root: rootID}, nil
}

// Open loads an existing Hamt from rootID, warming the cache by
// fetching the root (spec §4.3).
func Open[T any](ctx context.Context, cfg *config.HamtConfig, vc ValueCodec[T], rootID cid.ID, metrics *cachemetrics.Metrics) (*Hamt[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := buildCache(cfg, vc, metrics)
	if err != nil {
		return nil, err
	}
	pin, err := c.TempPin(ctx)
	if err != nil {
		return nil, fmt.Errorf("hamt: temp pin: %w", err)
	}
	if _, err := c.Get(ctx, rootID, pin); err != nil {
		return nil, fmt.Errorf("hamt: open root %s: %w", rootID, err)
	}
	return &Hamt[T]{cfg: cfg, cache: c, log: cfg.Log, pin: pin, root: rootID}, nil
}

// Pair is one (key, value) input to From.
type Pair[T any] struct {
	Key   []byte
	Value T
}

// From bulk-builds a Hamt by repeated insertion (spec §4.3).
func From[T any](ctx context.Context, cfg *config.HamtConfig, vc ValueCodec[T], pairs []Pair[T], metrics *cachemetrics.Metrics) (*Hamt[T], error) {
	h, err := New[T](ctx, cfg, vc, metrics)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if err := h.Insert(ctx, p.Key, p.Value); err != nil {
			return nil, fmt.Errorf("hamt: from: insert %x: %w", p.Key, err)
		}
	}
	return h, nil
}

// Root returns the Hamt's current root CID.
func (h *Hamt[T]) Root() cid.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.root
}

// hashKey hashes key under the Hamt's configured algorithm, producing
// the radix path consumed one byte per level (spec §4.3).
func (h *Hamt[T]) hashKey(key []byte) ([]byte, error) {
	return hashalg.Sum(h.cfg.Hash, key)
}

// Get returns the value for key, or ok=false if absent (spec §4.3's
// Get protocol).
func (h *Hamt[T]) Get(ctx context.Context, key []byte) (value T, ok bool, err error) {
	digest, err := h.hashKey(key)
	if err != nil {
		return value, false, err
	}
	cur, err := h.cache.Get(ctx, h.Root(), h.pin)
	if err != nil {
		return value, false, fmt.Errorf("hamt: get: fetch root: %w", err)
	}

	for level := 0; level < len(digest); level++ {
		b := digest[level]
		if !cur.bitSet(b) {
			return value, false, nil
		}
		el := cur.data[cur.index(b)]
		if el.isHashNode {
			child, err := h.cache.Get(ctx, el.hashNode, h.pin)
			if err != nil {
				return value, false, fmt.Errorf("hamt: get: fetch node at level %d: %w", level+1, err)
			}
			cur = child
			continue
		}
		i := findInBucket(el.bucket, key)
		if i < 0 {
			return value, false, nil
		}
		return el.bucket[i].value, true, nil
	}
	return value, false, nil
}

// keyedEntry is one entry paired with its full key digest, threaded
// through the insert descent so an arriving entry is hashed only once.
// Entries already stored in an overflowing bucket carry no digest and
// are rehashed when the bucket splits.
type keyedEntry[T any] struct {
	entry[T]
	digest []byte
}

// Insert adds or overwrites key→value (spec §4.3's Insert protocol).
//
// The protocol is expressed here as one recursive descent per trie
// level rather than spec §9's explicit descent-queue: that design note
// exists to avoid awkward, costly futures-recursion in an async
// runtime, a concern that doesn't apply to Go's plain call stack.
// Termination is identical either way: strictly increasing level,
// bounded by the digest length.
func (h *Hamt[T]) Insert(ctx context.Context, key []byte, value T) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	digest, err := h.hashKey(key)
	if err != nil {
		return err
	}
	root, err := h.cache.Get(ctx, h.root, h.pin)
	if err != nil {
		return fmt.Errorf("hamt: insert: fetch root: %w", err)
	}

	newRoot, err := h.insertInto(ctx, root.clone(), 0, []keyedEntry[T]{{entry: entry[T]{key: key, value: value}, digest: digest}})
	if err != nil {
		return err
	}
	rootID, err := h.cache.Insert(ctx, newRoot, h.pin)
	if err != nil {
		return fmt.Errorf("hamt: insert: write root: %w", err)
	}
	h.root = rootID
	return nil
}

// insertInto places every entry in entries into n at the given trie
// level, descending into (and writing through the cache) whatever
// child subtrees overflow requires, and returns n mutated in place.
// Every entry in entries has already consumed digest bytes [0, level).
func (h *Hamt[T]) insertInto(ctx context.Context, n *node[T], level int, entries []keyedEntry[T]) (*node[T], error) {
	groups := make(map[byte][]keyedEntry[T])
	order := make([]byte, 0, len(entries))
	for _, e := range entries {
		if level >= len(e.digest) {
			return nil, ErrCollisionDepthExceeded
		}
		b := e.digest[level]
		if _, seen := groups[b]; !seen {
			order = append(order, b)
		}
		groups[b] = append(groups[b], e)
	}

	for _, b := range order {
		group := groups[b]
		if err := h.insertGroup(ctx, n, level, b, group); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// insertGroup resolves every entry in group, all of which share radix
// digit b at level, against node n.
func (h *Hamt[T]) insertGroup(ctx context.Context, n *node[T], level int, b byte, group []keyedEntry[T]) error {
	bucketSize := h.cfg.BucketSize

	if !n.bitSet(b) {
		if len(group) <= bucketSize {
			bucket := make([]entry[T], len(group))
			for i, e := range group {
				bucket[i] = e.entry
			}
			sortBucket(bucket)
			n.insertElementAt(b, n.index(b), bucketElement(bucket))
			return nil
		}
		childID, err := h.buildSubtree(ctx, level+1, group)
		if err != nil {
			return err
		}
		n.insertElementAt(b, n.index(b), hashNodeElement[T](childID))
		return nil
	}

	i := n.index(b)
	el := n.data[i]

	if el.isHashNode {
		child, err := h.cache.Get(ctx, el.hashNode, h.pin)
		if err != nil {
			return fmt.Errorf("hamt: insert: fetch node at level %d: %w", level+1, err)
		}
		newChild, err := h.insertInto(ctx, child.clone(), level+1, group)
		if err != nil {
			return err
		}
		childID, err := h.cache.Insert(ctx, newChild, h.pin)
		if err != nil {
			return fmt.Errorf("hamt: insert: write node at level %d: %w", level+1, err)
		}
		n.data[i] = hashNodeElement[T](childID)
		return nil
	}

	// Bucket slot: overwrite matching keys in place, collect the rest
	// as pending additions.
	merged := make([]entry[T], len(el.bucket))
	copy(merged, el.bucket)
	var toAdd []keyedEntry[T]
	for _, e := range group {
		if j := findInBucket(merged, e.key); j >= 0 {
			merged[j].value = e.value
			continue
		}
		toAdd = append(toAdd, e)
	}

	if len(merged)+len(toAdd) <= bucketSize {
		for _, e := range toAdd {
			merged = append(merged, e.entry)
		}
		sortBucket(merged)
		n.data[i] = bucketElement(merged)
		return nil
	}

	// Overflow: the existing bucket plus the new arrivals no longer
	// fit; split into a fresh HashNode one level deeper (spec §4.3).
	all := make([]keyedEntry[T], 0, len(merged)+len(toAdd))
	for _, oe := range merged {
		od, err := h.hashKey(oe.key)
		if err != nil {
			return err
		}
		all = append(all, keyedEntry[T]{entry: oe, digest: od})
	}
	all = append(all, toAdd...)

	childID, err := h.buildSubtree(ctx, level+1, all)
	if err != nil {
		return err
	}
	n.data[i] = hashNodeElement[T](childID)
	return nil
}

// buildSubtree inserts entries into a fresh empty node at level and
// writes it through the cache, returning its CID.
func (h *Hamt[T]) buildSubtree(ctx context.Context, level int, entries []keyedEntry[T]) (cid.ID, error) {
	child, err := h.insertInto(ctx, emptyNode[T](), level, entries)
	if err != nil {
		return cid.Undef, err
	}
	return h.cache.Insert(ctx, child, h.pin)
}

// Remove deletes key if present, applying the collapse rule so the
// resulting root CID only ever reflects the surviving entries (spec
// §4.3's Remove protocol). Removing an absent key is a no-op that
// leaves the root unchanged.
func (h *Hamt[T]) Remove(ctx context.Context, key []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	digest, err := h.hashKey(key)
	if err != nil {
		return err
	}
	root, err := h.cache.Get(ctx, h.root, h.pin)
	if err != nil {
		return fmt.Errorf("hamt: remove: fetch root: %w", err)
	}

	newRoot, removed, err := h.removeFrom(ctx, root.clone(), 0, key, digest)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	rootID, err := h.cache.Insert(ctx, newRoot, h.pin)
	if err != nil {
		return fmt.Errorf("hamt: remove: write root: %w", err)
	}
	h.root = rootID
	return nil
}

// removeFrom deletes key from n (at the given level), collapsing the
// child subtree into n directly when the collapse predicate holds
// (spec §4.3).
func (h *Hamt[T]) removeFrom(ctx context.Context, n *node[T], level int, key, digest []byte) (*node[T], bool, error) {
	if level >= len(digest) {
		return n, false, nil
	}
	b := digest[level]
	if !n.bitSet(b) {
		return n, false, nil
	}
	i := n.index(b)
	el := n.data[i]

	if el.isHashNode {
		child, err := h.cache.Get(ctx, el.hashNode, h.pin)
		if err != nil {
			return nil, false, fmt.Errorf("hamt: remove: fetch node at level %d: %w", level+1, err)
		}
		newChild, removed, err := h.removeFrom(ctx, child.clone(), level+1, key, digest)
		if err != nil {
			return nil, false, err
		}
		if !removed {
			return n, false, nil
		}
		if combined, ok := tryCollapse(newChild, h.cfg.BucketSize); ok {
			n.data[i] = bucketElement(combined)
			return n, true, nil
		}
		childID, err := h.cache.Insert(ctx, newChild, h.pin)
		if err != nil {
			return nil, false, fmt.Errorf("hamt: remove: write node at level %d: %w", level+1, err)
		}
		n.data[i] = hashNodeElement[T](childID)
		return n, true, nil
	}

	j := findInBucket(el.bucket, key)
	if j < 0 {
		return n, false, nil
	}
	newBucket := make([]entry[T], 0, len(el.bucket)-1)
	newBucket = append(newBucket, el.bucket[:j]...)
	newBucket = append(newBucket, el.bucket[j+1:]...)
	if len(newBucket) == 0 {
		n.removeElementAt(b, i)
	} else {
		n.data[i] = bucketElement(newBucket)
	}
	return n, true, nil
}

// tryCollapse reports whether n qualifies for collapse into its
// parent: every child is a Bucket (no HashNode survives) and their
// combined entries fit in one bucket (spec §4.3). On success it
// returns the single combined, canonically sorted bucket.
func tryCollapse[T any](n *node[T], bucketSize int) ([]entry[T], bool) {
	var combined []entry[T]
	for _, el := range n.data {
		if el.isHashNode {
			return nil, false
		}
		combined = append(combined, el.bucket...)
	}
	if len(combined) == 0 || len(combined) > bucketSize {
		return nil, false
	}
	sortBucket(combined)
	return combined, true
}

// Flush aliases the current root under name, refreshes the temp-pin,
// and flushes the cache (spec §4.3, §5).
func (h *Hamt[T]) Flush(ctx context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	root := h.root
	if err := h.cache.Alias(ctx, name, &root); err != nil {
		return fmt.Errorf("hamt: flush: alias: %w", err)
	}
	newPin, err := h.cache.TempPin(ctx)
	if err != nil {
		return fmt.Errorf("hamt: flush: temp pin: %w", err)
	}
	if err := h.cache.Flush(ctx); err != nil {
		return fmt.Errorf("hamt: flush: %w", err)
	}
	oldPin := h.pin
	h.pin = newPin
	if oldPin != nil {
		_ = oldPin.Release(ctx)
	}
	return nil
}
