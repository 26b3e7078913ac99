package inmemoryimpl

import (
	"context"
	"fmt"
	"sync"

	"social-ledger/ledger"
)

type entry struct {
	version uint64
	data    []byte
}

// InMemoryStore keeps records in a map guarded by one RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[ledger.Key]entry
}

var (
	_ ledger.Store      = (*InMemoryStore)(nil)
	_ ledger.Transactor = (*InMemoryStore)(nil)
)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[ledger.Key]entry),
	}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, key ledger.Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createLocked(s.records, s.records, key, data)
}

func (s *InMemoryStore) Read(_ context.Context, key ledger.Key) (ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[key]
	if !ok {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	return ledger.Record{Key: key, Version: e.version, Data: clone(e.data)}, nil
}

func (s *InMemoryStore) Update(_ context.Context, key ledger.Key, fn ledger.Mutator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateLocked(s.records, s.records, key, fn)
}

// InTx runs fn with the whole store locked. Writes go to an overlay that is
// copied into the store only when fn succeeds.
func (s *InMemoryStore) InTx(_ context.Context, fn func(tx ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{base: s.records, staged: make(map[ledger.Key]entry)}
	if err := fn(tx); err != nil {
		return err
	}
	for key, e := range tx.staged {
		s.records[key] = e
	}
	return nil
}

func (s *InMemoryStore) Ping(_ context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// lookup finds key in the overlay first, then in the base map.
func lookup(base, staged map[ledger.Key]entry, key ledger.Key) (entry, bool) {
	if e, ok := staged[key]; ok {
		return e, true
	}
	e, ok := base[key]
	return e, ok
}

func createLocked(base, staged map[ledger.Key]entry, key ledger.Key, data []byte) error {
	if _, ok := lookup(base, staged, key); ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, key)
	}
	staged[key] = entry{version: 1, data: clone(data)}
	return nil
}

func updateLocked(base, staged map[ledger.Key]entry, key ledger.Key, fn ledger.Mutator) error {
	e, ok := lookup(base, staged, key)
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	next, err := fn(clone(e.data))
	if err != nil {
		return err
	}
	staged[key] = entry{version: e.version + 1, data: clone(next)}
	return nil
}

// txStore is the view handed to InTx callbacks. The parent lock is already
// held, so it touches the maps directly.
type txStore struct {
	base   map[ledger.Key]entry
	staged map[ledger.Key]entry
}

func (t *txStore) CreateIfAbsent(_ context.Context, key ledger.Key, data []byte) error {
	return createLocked(t.base, t.staged, key, data)
}

func (t *txStore) Read(_ context.Context, key ledger.Key) (ledger.Record, error) {
	e, ok := lookup(t.base, t.staged, key)
	if !ok {
		return ledger.Record{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	return ledger.Record{Key: key, Version: e.version, Data: clone(e.data)}, nil
}

func (t *txStore) Update(_ context.Context, key ledger.Key, fn ledger.Mutator) error {
	return updateLocked(t.base, t.staged, key, fn)
}

func (t *txStore) Ping(_ context.Context) error { return nil }

func (t *txStore) Close() error { return nil }
