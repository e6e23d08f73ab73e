package list

import (
	"fmt"

	"github.com/luxfi/collections/cid"
	icodec "github.com/luxfi/collections/internal/codec"
)

// node is a List node (spec §3): a height-0 node holds only values, a
// height>0 node holds only links to children one level below.
type node[T any] struct {
	width  uint32
	height uint32
	data   []slot[T]
}

// slot is the tagged union Value(T) | Link(CID) (spec §3).
type slot[T any] struct {
	isLink bool
	link   cid.ID
	value  T
}

func linkSlot[T any](id cid.ID) slot[T] {
	return slot[T]{isLink: true, link: id}
}

func valueSlot[T any](v T) slot[T] {
	return slot[T]{value: v}
}

// wireSlot/wireNode are the canonical CBOR envelope for node (spec
// §6's List node block layout).
type wireSlot struct {
	Link  bool   `cbor:"link"`
	Bytes []byte `cbor:"bytes"`
}

type wireNode struct {
	Width  uint32     `cbor:"width"`
	Height uint32     `cbor:"height"`
	Data   []wireSlot `cbor:"data"`
}

// nodeCodec adapts a ValueCodec[T] into the cache.Codec[*node[T]]
// BlockCache needs, by encoding each Slot as either the CID bytes of a
// Link or the ValueCodec-encoded bytes of a Value.
type nodeCodec[T any] struct {
	values ValueCodec[T]
}

func (c nodeCodec[T]) Encode(n *node[T]) ([]byte, error) {
	w := wireNode{Width: n.width, Height: n.height, Data: make([]wireSlot, len(n.data))}
	for i, s := range n.data {
		if s.isLink {
			w.Data[i] = wireSlot{Link: true, Bytes: s.link.Bytes()}
			continue
		}
		b, err := c.values.Encode(s.value)
		if err != nil {
			return nil, fmt.Errorf("list: encode value at slot %d: %w", i, err)
		}
		w.Data[i] = wireSlot{Link: false, Bytes: b}
	}
	return icodec.Marshal(w)
}

func (c nodeCodec[T]) Decode(b []byte) (*node[T], error) {
	var w wireNode
	if err := icodec.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	n := &node[T]{width: w.Width, height: w.Height, data: make([]slot[T], len(w.Data))}
	for i, ws := range w.Data {
		if ws.Link {
			id, err := cid.Cast(ws.Bytes)
			if err != nil {
				return nil, fmt.Errorf("list: decode link at slot %d: %w", i, err)
			}
			n.data[i] = linkSlot[T](id)
			continue
		}
		v, err := c.values.Decode(ws.Bytes)
		if err != nil {
			return nil, fmt.Errorf("list: decode value at slot %d: %w", i, err)
		}
		n.data[i] = valueSlot(v)
	}
	return n, nil
}
