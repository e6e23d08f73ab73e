// Package config gathers the knobs List and Hamt are constructed with
// (spec §4.4), in the shape of the teacher's config.Parameters /
// config.DefaultParams / config.Validate.
package config

import (
	"errors"

	"github.com/luxfi/collections/store"
	"github.com/luxfi/log"
)

// Validation errors (spec §7: InvalidArgument).
var (
	ErrNilStore         = errors.New("config: store must not be nil")
	ErrInvalidWidth     = errors.New("config: width must be > 0")
	ErrInvalidBucket    = errors.New("config: bucket size must be > 0")
	ErrInvalidCacheSize = errors.New("config: cache size must be > 0")
	ErrInvalidHash      = errors.New("config: hash algorithm must not be empty")
)

// DefaultHashAlg is used when a caller does not choose one.
const DefaultHashAlg = "sha2-256"

// DefaultCacheSize is the node-entry LRU capacity used when a caller
// does not choose one.
const DefaultCacheSize = 1024

// DefaultBucketSize is the Hamt bucket capacity used when a caller
// does not choose one (spec §4.4).
const DefaultBucketSize = 3

// cidSize is the encoded byte size of a CID link in a node, used to
// derive a List's default width (spec §4.4).
const cidSize = 40

// ListConfig configures a List.
type ListConfig struct {
	Store     store.BlockStore
	Hash      string
	CacheSize int
	// Width is the List's branching factor. DefaultListConfig sets it
	// to MAX_BLOCK_SIZE / max(valueSizeHint, sizeof(CID)) (spec §4.4).
	// A zero Width left for Validate is derived as
	// MAX_BLOCK_SIZE / sizeof(CID); Validate has no value size hint.
	Width int
	Log   log.Logger
}

// DefaultListConfig returns a ListConfig for s with every other knob
// at its default. valueSizeHint is the ValueCodec's EncodedSizeHint
// for the List's element type, used to derive Width.
func DefaultListConfig(s store.BlockStore, valueSizeHint int) *ListConfig {
	return &ListConfig{
		Store:     s,
		Hash:      DefaultHashAlg,
		CacheSize: DefaultCacheSize,
		Width:     deriveWidth(s, valueSizeHint),
	}
}

func deriveWidth(s store.BlockStore, valueSizeHint int) int {
	slotSize := valueSizeHint
	if cidSize > slotSize {
		slotSize = cidSize
	}
	if slotSize <= 0 {
		slotSize = cidSize
	}
	maxBlock := 0
	if s != nil {
		maxBlock = s.MaxBlockSize()
	}
	if maxBlock <= 0 {
		return 256
	}
	width := maxBlock / slotSize
	if width < 1 {
		width = 1
	}
	return width
}

// Validate checks a ListConfig and fills in any zero-valued knobs with
// their defaults, returning an error only for inputs that cannot be
// defaulted.
func (c *ListConfig) Validate() error {
	if c.Store == nil {
		return ErrNilStore
	}
	if c.Hash == "" {
		c.Hash = DefaultHashAlg
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.Width <= 0 {
		c.Width = deriveWidth(c.Store, 0)
	}
	if c.Log == nil {
		c.Log = log.NewNoOpLogger()
	}
	return nil
}

// HamtConfig configures a Hamt.
type HamtConfig struct {
	Store      store.BlockStore
	Hash       string
	CacheSize  int
	BucketSize int
	Log        log.Logger
}

// DefaultHamtConfig returns a HamtConfig for s with every other knob
// at its default.
func DefaultHamtConfig(s store.BlockStore) *HamtConfig {
	return &HamtConfig{
		Store:      s,
		Hash:       DefaultHashAlg,
		CacheSize:  DefaultCacheSize,
		BucketSize: DefaultBucketSize,
	}
}

// Validate checks a HamtConfig and fills in any zero-valued knobs with
// their defaults.
func (c *HamtConfig) Validate() error {
	if c.Store == nil {
		return ErrNilStore
	}
	if c.Hash == "" {
		c.Hash = DefaultHashAlg
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.BucketSize <= 0 {
		c.BucketSize = DefaultBucketSize
	}
	if c.Log == nil {
		c.Log = log.NewNoOpLogger()
	}
	return nil
}
