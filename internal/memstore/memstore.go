// Package memstore is an in-memory BlockStore, used by the collection
// packages' own tests and usable as a BlockStore by anyone embedding
// this module without a real persistent backend. It also satisfies
// github.com/luxfi/database's Database/Batch/Reader/Writer shape
// (spec §6's BlockStore contract is a thin, content-addressed layer
// over exactly that kind of key-value store), so a disk-backed
// database.Database can be dropped in by implementing store.BlockStore
// the same way this one does, without touching cache/list/hamt.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/collections/cid"
	"github.com/luxfi/collections/internal/hashalg"
	"github.com/luxfi/collections/store"
	"github.com/luxfi/database"
)

// Store is a mutex-guarded, map-backed BlockStore.
type Store struct {
	mu         sync.RWMutex
	blocks     map[string][]byte
	aliases    map[string]cid.ID
	pins       map[int]map[string]struct{}
	nextPinID  int
	maxBlock   int
}

var (
	_ store.BlockStore  = (*Store)(nil)
	_ database.Database = (*dbView)(nil)
)

const defaultMaxBlockSize = 1 << 20 // 1 MiB

// New returns an empty in-memory BlockStore.
func New() *Store {
	return &Store{
		blocks:  make(map[string][]byte),
		aliases: make(map[string]cid.ID),
		pins:    make(map[int]map[string]struct{}),
		maxBlock: defaultMaxBlockSize,
	}
}

func (s *Store) MaxBlockSize() int { return s.maxBlock }

func (s *Store) Get(_ context.Context, id cid.ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id.KeyString()]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *Store) Insert(_ context.Context, bytes []byte, hashAlg string, pin store.Pin) (cid.ID, error) {
	if s.maxBlock > 0 && len(bytes) > s.maxBlock {
		return cid.Undef, fmt.Errorf("memstore: block of %d bytes exceeds max %d", len(bytes), s.maxBlock)
	}
	sum, err := sumFor(hashAlg, bytes)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cid.FromHash(hashAlg, sum)
	if err != nil {
		return cid.Undef, err
	}

	s.mu.Lock()
	key := id.KeyString()
	if _, exists := s.blocks[key]; !exists {
		stored := make([]byte, len(bytes))
		copy(stored, bytes)
		s.blocks[key] = stored
	}
	s.mu.Unlock()

	if pin != nil {
		pin.Register(id)
	}
	return id, nil
}

func (s *Store) Alias(_ context.Context, name string, id *cid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		delete(s.aliases, name)
		return nil
	}
	s.aliases[name] = *id
	return nil
}

func (s *Store) ResolveAlias(_ context.Context, name string) (cid.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.aliases[name]
	if !ok {
		return cid.Undef, store.ErrNotFound
	}
	return id, nil
}

// TempPin returns a handle that keeps newly inserted blocks alive
// until Release is called.
func (s *Store) TempPin(_ context.Context) (store.Pin, error) {
	s.mu.Lock()
	id := s.nextPinID
	s.nextPinID++
	s.pins[id] = make(map[string]struct{})
	s.mu.Unlock()
	return &pin{store: s, id: id}, nil
}

func (s *Store) Flush(_ context.Context) error {
	// Everything is already durable once it lands in s.blocks; the
	// seam exists purely so a disk-backed BlockStore has somewhere to
	// hook a real fsync/compaction step.
	return nil
}

// gc drops every block that no live pin has registered and no alias
// names. It is not part of store.BlockStore (spec §1 leaves GC policy
// to the store) and is unexported; no test in this module calls it.
func (s *Store) gc() {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]struct{}, len(s.aliases))
	for _, id := range s.aliases {
		live[id.KeyString()] = struct{}{}
	}
	for _, pinned := range s.pins {
		for k := range pinned {
			live[k] = struct{}{}
		}
	}
	for k := range s.blocks {
		if _, ok := live[k]; !ok {
			delete(s.blocks, k)
		}
	}
}

type pin struct {
	store    *Store
	id       int
	released bool
	mu       sync.Mutex
}

func (p *pin) Register(id cid.ID) {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	set, ok := p.store.pins[p.id]
	if !ok {
		return // released
	}
	set[id.KeyString()] = struct{}{}
}

func (p *pin) Release(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	p.released = true
	p.store.mu.Lock()
	delete(p.store.pins, p.id)
	p.store.mu.Unlock()
	return nil
}

// sumFor resolves the hash algorithm identifier chosen in
// ListConfig.Hash/HamtConfig.Hash (spec §4.4) to a concrete digest. The
// concrete hash function is an external collaborator's choice per
// spec §1; this store only needs to agree with cid.FromHash on the
// algorithm name.
func sumFor(alg string, data []byte) ([]byte, error) {
	return hashalg.Sum(alg, data)
}

// --- github.com/luxfi/database.Database shim -------------------------------
//
// AsDatabase exposes the same underlying block map through a
// database.Database view (Has/Get/Put/Delete/NewBatch/Close), keyed by
// raw bytes rather than by CID, for code written against that teacher
// interface (e.g. a ChainVM's db manager). It is a separate type
// because database.Reader's Get(key []byte) and store.BlockStore's
// Get(ctx, id) cannot both be named Get on one receiver.
func (s *Store) AsDatabase() database.Database {
	return &dbView{store: s}
}

type dbView struct {
	store *Store
}

func (d *dbView) Has(key []byte) (bool, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	_, ok := d.store.blocks[string(key)]
	return ok, nil
}

func (d *dbView) Get(key []byte) ([]byte, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	b, ok := d.store.blocks[string(key)]
	if !ok {
		return nil, fmt.Errorf("memstore: %w", store.ErrNotFound)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (d *dbView) Put(key, value []byte) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	d.store.blocks[string(key)] = stored
	return nil
}

func (d *dbView) Delete(key []byte) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	delete(d.store.blocks, string(key))
	return nil
}

func (d *dbView) NewBatch() database.Batch {
	return &batch{store: d.store}
}

func (d *dbView) Close() error { return nil }

type batchOp struct {
	key   []byte
	value []byte
	del   bool
}

type batch struct {
	store *Store
	ops   []batchOp
}

func (b *batch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), del: true})
	return nil
}

func (b *batch) Size() int { return len(b.ops) }

func (b *batch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.del {
			delete(b.store.blocks, string(op.key))
			continue
		}
		b.store.blocks[string(op.key)] = op.value
	}
	return nil
}

func (b *batch) Reset() { b.ops = b.ops[:0] }

func (b *batch) Replay(w database.Writer) error {
	for _, op := range b.ops {
		if op.del {
			if err := w.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := w.Put(op.key, op.value); err != nil {
			return err
		}
	}
	return nil
}
