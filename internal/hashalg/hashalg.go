// Package hashalg resolves the hash algorithm identifiers carried by
// ListConfig.Hash / HamtConfig.Hash (spec.md §4.4) to concrete digest
// functions, shared by the reference block store and by the Hamt's
// own hash(key) step (spec.md §4.3) so both agree on what a name like
// "sha2-256" means.
package hashalg

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

// Sum returns the digest of data under the named algorithm. "identity"
// returns data unchanged (the multihash "identity" function, code
// 0x00): useful for tests that need a Hamt's radix path to equal a
// key's literal bytes, as spec.md's seed scenarios do.
func Sum(alg string, data []byte) ([]byte, error) {
	if alg == "identity" {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	h, err := New(alg)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// New returns a fresh hash.Hash for the named algorithm.
func New(alg string) (hash.Hash, error) {
	switch alg {
	case "sha2-256":
		return sha256.New(), nil
	case "sha2-512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("hashalg: unsupported hash algorithm %q", alg)
	}
}
