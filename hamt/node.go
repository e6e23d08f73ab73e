package hamt

import (
	"bytes"
	"fmt"
	"math/bits"
	"sort"

	"github.com/luxfi/collections/cid"
	icodec "github.com/luxfi/collections/internal/codec"
)

// bitWidth is the radix digit size in bits: each level of the trie
// consumes one byte of hash(key) (spec §3: "bit_width = 8").
const bitWidth = 8

// mapBytes is the fixed byte length of a node's bitmap: 2^bitWidth
// bits packed eight to a byte (spec §3).
const mapBytes = (1 << bitWidth) / 8

// errCollisionDepthExceeded is returned by insert once the trie level
// reaches the length of a key's hash digest (exported as
// ErrCollisionDepthExceeded).
var errCollisionDepthExceeded = fmt.Errorf("hamt: collision depth exceeded")

// entry is a single key/value pair stored in a bucket (spec §3).
type entry[T any] struct {
	key   []byte
	value T
}

// element is the tagged union HashNode(CID) | Bucket([]entry) (spec §3).
type element[T any] struct {
	isHashNode bool
	hashNode   cid.ID
	bucket     []entry[T]
}

func hashNodeElement[T any](id cid.ID) element[T] {
	return element[T]{isHashNode: true, hashNode: id}
}

func bucketElement[T any](entries []entry[T]) element[T] {
	return element[T]{bucket: entries}
}

// node is a bitmap + dense-array Hamt node (spec §3).
type node[T any] struct {
	bitmap [mapBytes]byte
	data   []element[T]
}

func emptyNode[T any]() *node[T] {
	return &node[T]{}
}

// bitSet reports whether radix digit b has a child.
func (n *node[T]) bitSet(b byte) bool {
	return n.bitmap[b/8]&(1<<(b%8)) != 0
}

// setBit sets radix digit b's presence bit.
func (n *node[T]) setBit(b byte) {
	n.bitmap[b/8] |= 1 << (b % 8)
}

// clearBit clears radix digit b's presence bit.
func (n *node[T]) clearBit(b byte) {
	n.bitmap[b/8] &^= 1 << (b % 8)
}

// index returns the dense data-array index for radix digit b: the
// popcount of every set bit strictly below b (spec §3/§4.3).
func (n *node[T]) index(b byte) int {
	count := 0
	for i := 0; i < int(b)/8; i++ {
		count += bits.OnesCount8(n.bitmap[i])
	}
	mask := byte(1<<(b%8)) - 1
	count += bits.OnesCount8(n.bitmap[b/8] & mask)
	return count
}

// clone returns a shallow copy of n with its own data slice, so
// mutation of the copy never touches a node that may still be
// referenced by a previously written block.
func (n *node[T]) clone() *node[T] {
	c := &node[T]{bitmap: n.bitmap, data: make([]element[T], len(n.data))}
	copy(c.data, n.data)
	return c
}

// insertElementAt inserts el at dense index i, setting bit b.
func (n *node[T]) insertElementAt(b byte, i int, el element[T]) {
	n.setBit(b)
	n.data = append(n.data, element[T]{})
	copy(n.data[i+1:], n.data[i:])
	n.data[i] = el
}

// removeElementAt clears bit b and removes the element at dense
// index i.
func (n *node[T]) removeElementAt(b byte, i int) {
	n.clearBit(b)
	n.data = append(n.data[:i], n.data[i+1:]...)
}

// sortBucket puts entries in the canonical order required for
// deterministic encoding (spec §4.3: "sorted by key bytes").
func sortBucket[T any](entries []entry[T]) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
}

// findInBucket returns the index of the entry with the given key, or
// -1 if absent.
func findInBucket[T any](entries []entry[T], key []byte) int {
	for i, e := range entries {
		if bytes.Equal(e.key, key) {
			return i
		}
	}
	return -1
}

// --- canonical CBOR wire envelope (spec §6's Hamt node block layout) -------

type wireEntry struct {
	Key   []byte `cbor:"key"`
	Value []byte `cbor:"value"`
}

type wireElement struct {
	IsHashNode bool        `cbor:"hash_node"`
	Link       []byte      `cbor:"link"`
	Bucket     []wireEntry `cbor:"bucket"`
}

type wireNode struct {
	Map  []byte        `cbor:"map"`
	Data []wireElement `cbor:"data"`
}

// ValueCodec encodes and decodes the values stored in Hamt entries.
type ValueCodec[T any] = icodec.ValueCodec[T]

// NewCBORValueCodec returns the default canonical-CBOR ValueCodec.
func NewCBORValueCodec[T any](sizeHint int) ValueCodec[T] {
	return icodec.NewCBORValueCodec[T](sizeHint)
}

// nodeCodec adapts a ValueCodec[T] into the cache.Codec[*node[T]]
// BlockCache needs.
type nodeCodec[T any] struct {
	values ValueCodec[T]
}

func (c nodeCodec[T]) Encode(n *node[T]) ([]byte, error) {
	w := wireNode{Map: n.bitmap[:], Data: make([]wireElement, len(n.data))}
	for i, el := range n.data {
		if el.isHashNode {
			w.Data[i] = wireElement{IsHashNode: true, Link: el.hashNode.Bytes()}
			continue
		}
		entries := make([]wireEntry, len(el.bucket))
		for j, e := range el.bucket {
			vb, err := c.values.Encode(e.value)
			if err != nil {
				return nil, fmt.Errorf("hamt: encode value at element %d entry %d: %w", i, j, err)
			}
			entries[j] = wireEntry{Key: e.key, Value: vb}
		}
		w.Data[i] = wireElement{Bucket: entries}
	}
	return icodec.Marshal(w)
}

func (c nodeCodec[T]) Decode(b []byte) (*node[T], error) {
	var w wireNode
	if err := icodec.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	if len(w.Map) != mapBytes {
		return nil, fmt.Errorf("hamt: decode: bitmap has %d bytes, want %d", len(w.Map), mapBytes)
	}
	n := &node[T]{data: make([]element[T], len(w.Data))}
	copy(n.bitmap[:], w.Map)

	want := 0
	for i := 0; i < mapBytes; i++ {
		want += bits.OnesCount8(n.bitmap[i])
	}
	if want != len(w.Data) {
		return nil, fmt.Errorf("hamt: decode: popcount(map)=%d but len(data)=%d", want, len(w.Data))
	}

	for i, we := range w.Data {
		if we.IsHashNode {
			id, err := cid.Cast(we.Link)
			if err != nil {
				return nil, fmt.Errorf("hamt: decode link at element %d: %w", i, err)
			}
			n.data[i] = hashNodeElement[T](id)
			continue
		}
		entries := make([]entry[T], len(we.Bucket))
		for j, wen := range we.Bucket {
			v, err := c.values.Decode(wen.Value)
			if err != nil {
				return nil, fmt.Errorf("hamt: decode value at element %d entry %d: %w", i, j, err)
			}
			entries[j] = entry[T]{key: wen.Key, value: v}
		}
		n.data[i] = bucketElement(entries)
	}
	return n, nil
}
