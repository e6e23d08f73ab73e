// Package cid defines the content identifier used to address blocks
// written by the List and Hamt collections.
//
// An ID is a thin wrapper around github.com/ipfs/go-cid's Cid: a
// multihash of a block's canonical bytes, tagged with the codec the
// block was encoded with. Two blocks with the same canonical bytes
// always produce the same ID.
package cid

import (
	"bytes"
	"fmt"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Codec is the multicodec tag stamped on every ID minted by this
// module. The collections only ever store their own node layouts, so
// a single fixed codec (raw binary, the canonical CBOR bytes the codec
// package produced) is sufficient; it is not meant to be introspected
// by unrelated IPLD tooling.
const Codec = gocid.Raw

// ID is a content identifier: a fixed-shape, comparable, totally
// ordered reference to a block's canonical bytes.
type ID = gocid.Cid

// Undef is the zero value of ID, used to mean "no block" (e.g. a List
// or Hamt that has never been flushed).
var Undef = gocid.Undef

// FromHash builds an ID from a raw digest produced under the named
// hash algorithm (as recognised by github.com/multiformats/go-multihash,
// e.g. "sha2-256" or "blake2b-256").
func FromHash(alg string, sum []byte) (ID, error) {
	code, ok := multihash.Names[alg]
	if !ok {
		return Undef, fmt.Errorf("cid: unknown hash algorithm %q", alg)
	}
	mh, err := multihash.Encode(sum, code)
	if err != nil {
		return Undef, fmt.Errorf("cid: encode multihash: %w", err)
	}
	return gocid.NewCidV1(Codec, mh), nil
}

// Parse decodes the textual representation of an ID.
func Parse(s string) (ID, error) {
	return gocid.Decode(s)
}

// Cast reconstructs an ID from its raw binary representation (the
// form stored inside a Link slot of a List or Hamt node).
func Cast(b []byte) (ID, error) {
	return gocid.Cast(b)
}

// Less gives IDs a total order over their raw bytes, so CIDs can be
// used as sort/map keys deterministically (e.g. bucket entries are
// sorted by key bytes, not by CID, but a total order over CIDs is
// useful for any caller that needs reproducible iteration over a set
// of block references).
func Less(a, b ID) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// Defined reports whether id is anything other than Undef.
func Defined(id ID) bool {
	return id.Defined()
}
