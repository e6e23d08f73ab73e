// Package codec defines the canonical encode/decode contract the List
// and Hamt node layouts are built on (spec §6: "encode/decode-to-bytes
// with canonical output"). The list and hamt packages define their own
// node envelopes and encode them with this package's Marshal/Unmarshal;
// the values inside them are encoded by a ValueCodec for the
// caller-supplied type T.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ValueCodec encodes and decodes the leaf values stored in a List or
// the values stored in a Hamt. Implementations MUST be deterministic:
// encoding the same logical value twice must produce identical bytes,
// across processes and platforms (spec §4.1, §6).
type ValueCodec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)

	// EncodedSizeHint estimates the encoded byte size of a typical
	// value of T, used only to derive a List's default width when the
	// caller does not specify one (spec §4.4). It need not be exact.
	EncodedSizeHint() int
}

// CBORValueCodec is the default ValueCodec: canonical CBOR (definite
// lengths, sorted map keys, shortest-form integers) via fxamacker/cbor,
// the concrete choice spec §6 names as canonical.
type CBORValueCodec[T any] struct {
	sizeHint int
}

// NewCBORValueCodec returns a canonical CBOR codec for T. sizeHint
// seeds EncodedSizeHint; pass 0 to use a conservative default.
func NewCBORValueCodec[T any](sizeHint int) *CBORValueCodec[T] {
	if sizeHint <= 0 {
		sizeHint = 64
	}
	return &CBORValueCodec[T]{sizeHint: sizeHint}
}

var canonicalMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical cbor mode: %v", err))
	}
	return mode
}()

func (c *CBORValueCodec[T]) Encode(v T) ([]byte, error) {
	b, err := canonicalMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return b, nil
}

func (c *CBORValueCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := cbor.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("codec: decode: %w", err)
	}
	return v, nil
}

func (c *CBORValueCodec[T]) EncodedSizeHint() int {
	return c.sizeHint
}

// Marshal and Unmarshal expose the same canonical CBOR mode for the
// List/Hamt node envelopes themselves (width/height/data and
// map/data), so node bytes and value bytes share one determinism
// guarantee.
func Marshal(v any) ([]byte, error) {
	b, err := canonicalMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal node: %w", err)
	}
	return b, nil
}

func Unmarshal(b []byte, v any) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return fmt.Errorf("codec: unmarshal node: %w", err)
	}
	return nil
}
