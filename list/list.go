// Package list implements List, a persistent, right-growing n-ary
// vector backed by a content-addressed block store (spec §4.2).
package list

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/collections/cache"
	"github.com/luxfi/collections/cache/cachemetrics"
	"github.com/luxfi/collections/cid"
	icodec "github.com/luxfi/collections/internal/codec"
	"github.com/luxfi/collections/config"
	"github.com/luxfi/collections/store"
	"github.com/luxfi/log"
)

// ValueCodec encodes and decodes the values stored in a List's leaves.
type ValueCodec[T any] = icodec.ValueCodec[T]

// NewCBORValueCodec returns the default canonical-CBOR ValueCodec.
func NewCBORValueCodec[T any](sizeHint int) ValueCodec[T] {
	return icodec.NewCBORValueCodec[T](sizeHint)
}

// Errors surfaced by List operations (spec §7).
var (
	ErrInvalidArgument = errors.New("list: invalid argument")
	ErrUnimplemented   = errors.New("list: not implemented")
)

// List is a persistent, append-oriented ordered sequence of values of
// type T (spec §4.2).
type List[T any] struct {
	mu    sync.Mutex
	cfg   *config.ListConfig
	cache *cache.BlockCache[*node[T]]
	log   log.Logger
	pin   store.Pin
	root  cid.ID
}

func buildCache[T any](cfg *config.ListConfig, vc ValueCodec[T], metrics *cachemetrics.Metrics) (*cache.BlockCache[*node[T]], error) {
	return cache.New[*node[T]](cfg.Store, nodeCodec[T]{values: vc}, cfg.Hash, cfg.CacheSize, cfg.Log, metrics)
}

func emptyRootNode[T any](width uint32) *node[T] {
	return &node[T]{width: width, height: 0, data: nil}
}

// New returns an empty List (spec §4.2: "root is a single height-0
// node with empty data slice").
func New[T any](ctx context.Context, cfg *config.ListConfig, vc ValueCodec[T], metrics *cachemetrics.Metrics) (*List[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := buildCache(cfg, vc, metrics)
	if err != nil {
		return nil, err
	}
	pin, err := c.TempPin(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: temp pin: %w", err)
	}
	rootID, err := c.Insert(ctx, emptyRootNode[T](uint32(cfg.Width)), pin)
	if err != nil {
		return nil, fmt.Errorf("list: insert empty root: %w", err)
	}
	return &List[T]{cfg: cfg, cache: c, log: cfg.Log, pin: pin, root: rootID}, nil
}

// Open loads an existing List from rootID, warming the cache by
// fetching the root (spec §4.2).
func Open[T any](ctx context.Context, cfg *config.ListConfig, vc ValueCodec[T], rootID cid.ID, metrics *cachemetrics.Metrics) (*List[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := buildCache(cfg, vc, metrics)
	if err != nil {
		return nil, err
	}
	pin, err := c.TempPin(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: temp pin: %w", err)
	}
	if _, err := c.Get(ctx, rootID, pin); err != nil {
		return nil, fmt.Errorf("list: open root %s: %w", rootID, err)
	}
	return &List[T]{cfg: cfg, cache: c, log: cfg.Log, pin: pin, root: rootID}, nil
}

// From bulk-builds a List from values, chunking bottom-up into
// height-0 nodes of width cfg.Width, then chunking the resulting CIDs
// by width repeatedly until one node remains — the root (spec §4.2).
// An empty values slice yields the same List as New (see spec §9's
// Open Question on List.From(empty_iter)).
func From[T any](ctx context.Context, cfg *config.ListConfig, vc ValueCodec[T], values []T, metrics *cachemetrics.Metrics) (*List[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := buildCache(cfg, vc, metrics)
	if err != nil {
		return nil, err
	}
	pin, err := c.TempPin(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: temp pin: %w", err)
	}
	l := &List[T]{cfg: cfg, cache: c, log: cfg.Log, pin: pin}

	if len(values) == 0 {
		rootID, err := c.Insert(ctx, emptyRootNode[T](uint32(cfg.Width)), pin)
		if err != nil {
			return nil, fmt.Errorf("list: insert empty root: %w", err)
		}
		l.root = rootID
		return l, nil
	}

	width := uint32(cfg.Width)
	links := make([]cid.ID, 0, (len(values)+int(width)-1)/int(width))
	for i := 0; i < len(values); i += int(width) {
		end := i + int(width)
		if end > len(values) {
			end = len(values)
		}
		data := make([]slot[T], end-i)
		for j, v := range values[i:end] {
			data[j] = valueSlot(v)
		}
		id, err := c.Insert(ctx, &node[T]{width: width, height: 0, data: data}, pin)
		if err != nil {
			return nil, fmt.Errorf("list: insert leaf chunk: %w", err)
		}
		links = append(links, id)
	}

	height := uint32(0)
	for len(links) > 1 {
		height++
		next := make([]cid.ID, 0, (len(links)+int(width)-1)/int(width))
		for i := 0; i < len(links); i += int(width) {
			end := i + int(width)
			if end > len(links) {
				end = len(links)
			}
			data := make([]slot[T], end-i)
			for j, childID := range links[i:end] {
				data[j] = linkSlot[T](childID)
			}
			id, err := c.Insert(ctx, &node[T]{width: width, height: height, data: data}, pin)
			if err != nil {
				return nil, fmt.Errorf("list: insert internal chunk: %w", err)
			}
			next = append(next, id)
		}
		links = next
	}
	l.root = links[0]
	return l, nil
}

// Push appends value to the end of the List, following the push
// protocol in spec §4.2 exactly: descend the rightmost spine, then
// walk it bottom-up rewriting (or growing) each level, finally growing
// the tree's height when the root itself is full.
func (l *List[T]) Push(ctx context.Context, value T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	root, err := l.cache.Get(ctx, l.root, l.pin)
	if err != nil {
		return fmt.Errorf("list: push: fetch root: %w", err)
	}
	width := root.width
	height := root.height

	chain := make([]*node[T], height+1)
	chain[height] = root
	cur := root
	for h := int(height); h > 0; h-- {
		if len(cur.data) == 0 {
			return fmt.Errorf("list: push: internal node at height %d has no children", h)
		}
		last := cur.data[len(cur.data)-1]
		if !last.isLink {
			return fmt.Errorf("list: push: expected link at height %d, got value", h)
		}
		child, err := l.cache.Get(ctx, last.link, l.pin)
		if err != nil {
			return fmt.Errorf("list: push: fetch child at height %d: %w", h-1, err)
		}
		chain[h-1] = child
		cur = child
	}

	carry := valueSlot(value)
	mutated := false
	oldRootID := l.root

	for h := 0; h <= int(height); h++ {
		n := chain[h]

		// Once mutated, every ancestor above is only ever updating the
		// CID of its existing last child, never growing in size — that
		// replacement is valid whether or not the node happens to
		// already be at capacity (spec §4.2's push protocol).
		if mutated {
			newData := make([]slot[T], len(n.data))
			copy(newData, n.data)
			newData[len(newData)-1] = carry
			id, err := l.cache.Insert(ctx, &node[T]{width: width, height: n.height, data: newData}, l.pin)
			if err != nil {
				return fmt.Errorf("list: push: write node at height %d: %w", h, err)
			}
			carry = linkSlot[T](id)
			continue
		}

		if uint32(len(n.data)) < width {
			newData := make([]slot[T], len(n.data), len(n.data)+1)
			copy(newData, n.data)
			newData = append(newData, carry)
			id, err := l.cache.Insert(ctx, &node[T]{width: width, height: n.height, data: newData}, l.pin)
			if err != nil {
				return fmt.Errorf("list: push: write node at height %d: %w", h, err)
			}
			carry = linkSlot[T](id)
			mutated = true
			continue
		}

		id, err := l.cache.Insert(ctx, &node[T]{width: width, height: n.height, data: []slot[T]{carry}}, l.pin)
		if err != nil {
			return fmt.Errorf("list: push: write fresh node at height %d: %w", h, err)
		}
		carry = linkSlot[T](id)
	}

	var newRootID cid.ID
	if mutated {
		newRootID = carry.link
	} else {
		newRootData := []slot[T]{linkSlot[T](oldRootID), carry}
		id, err := l.cache.Insert(ctx, &node[T]{width: width, height: height + 1, data: newRootData}, l.pin)
		if err != nil {
			return fmt.Errorf("list: push: write new root: %w", err)
		}
		newRootID = id
	}

	l.root = newRootID
	return nil
}

// Get returns the value at index, or ok=false if index is past the
// rightmost element (spec §4.2). The out-of-range bound check is a
// pure computation against the root alone; it cannot overflow even
// for index == math.MaxUint64 (spec §8's boundary behaviors).
func (l *List[T]) Get(ctx context.Context, index uint64) (value T, ok bool, err error) {
	root, err := l.cache.Get(ctx, l.root, l.pin)
	if err != nil {
		return value, false, fmt.Errorf("list: get: fetch root: %w", err)
	}
	width := uint64(root.width)
	height := root.height

	capacity, overflowed := powOverflow(width, uint64(height)+1)
	if !overflowed && index >= capacity {
		return value, false, nil
	}

	cur := root
	remaining := index
	for h := int(height); h > 0; h-- {
		stride, _ := powOverflow(width, uint64(h))
		childIdx := remaining / stride
		remaining = remaining % stride
		if childIdx >= uint64(len(cur.data)) {
			return value, false, nil
		}
		s := cur.data[childIdx]
		if !s.isLink {
			return value, false, fmt.Errorf("list: get: expected link at height %d, got value", h)
		}
		child, err := l.cache.Get(ctx, s.link, l.pin)
		if err != nil {
			return value, false, fmt.Errorf("list: get: fetch child at height %d: %w", h-1, err)
		}
		cur = child
	}
	if remaining >= uint64(len(cur.data)) {
		return value, false, nil
	}
	return cur.data[remaining].value, true, nil
}

// Len returns the number of values pushed so far, computed by walking
// the rightmost spine once (spec §4.2).
func (l *List[T]) Len(ctx context.Context) (uint64, error) {
	root, err := l.cache.Get(ctx, l.root, l.pin)
	if err != nil {
		return 0, fmt.Errorf("list: len: fetch root: %w", err)
	}
	width := uint64(root.width)
	height := root.height

	total, overflowed := powOverflow(width, uint64(height)+1)
	if overflowed {
		return 0, fmt.Errorf("list: len: capacity exceeds uint64 range")
	}

	cur := root
	for h := int(height); h >= 0; h-- {
		levelMult, _ := powOverflow(width, uint64(h))
		missing := width - uint64(len(cur.data))
		total -= missing * levelMult
		if h == 0 {
			break
		}
		last := cur.data[len(cur.data)-1]
		child, err := l.cache.Get(ctx, last.link, l.pin)
		if err != nil {
			return 0, fmt.Errorf("list: len: fetch child at height %d: %w", h-1, err)
		}
		cur = child
	}
	return total, nil
}

// IsEmpty reports whether the List holds zero values.
func (l *List[T]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := l.Len(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Root returns the List's current root CID. It is pure (spec §5: not
// a suspension point).
func (l *List[T]) Root() cid.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root
}

// Flush aliases the current root under name, refreshes the temp-pin,
// and flushes the cache (spec §4.2, §5).
func (l *List[T]) Flush(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	root := l.root
	if err := l.cache.Alias(ctx, name, &root); err != nil {
		return fmt.Errorf("list: flush: alias: %w", err)
	}
	newPin, err := l.cache.TempPin(ctx)
	if err != nil {
		return fmt.Errorf("list: flush: temp pin: %w", err)
	}
	if err := l.cache.Flush(ctx); err != nil {
		return fmt.Errorf("list: flush: %w", err)
	}
	oldPin := l.pin
	l.pin = newPin
	if oldPin != nil {
		_ = oldPin.Release(ctx)
	}
	return nil
}

// Pop is reserved (spec §4.2, §9): implementations MUST accept the
// call and MAY return Unimplemented without corrupting state.
func (l *List[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	return zero, ErrUnimplemented
}

// Set is reserved (spec §4.2, §9): implementations MUST accept the
// call and MAY return Unimplemented without corrupting state.
func (l *List[T]) Set(ctx context.Context, index uint64, value T) error {
	return ErrUnimplemented
}

// powOverflow computes base^exp, reporting overflow instead of
// wrapping, so List.Get/Len can bound-check index == math.MaxUint64
// without ever computing a wrong finite answer (spec §4.2, §8).
func powOverflow(base, exp uint64) (result uint64, overflowed bool) {
	result = 1
	if base == 0 {
		return 0, false
	}
	for i := uint64(0); i < exp; i++ {
		if base != 1 && result > (^uint64(0))/base {
			return 0, true
		}
		result *= base
	}
	return result, false
}
