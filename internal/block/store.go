package block

import (
	"fmt"
	"path/filepath"
	"sync"

	"flowcore/internal/flowerr"
)

// Store is the per-executor directory of blocks: every FileBlock an
// executor currently holds, keyed by block id. Grounded on the
// teacher's internal/storage/memory.go JobStore — a single RWMutex
// guarding a map, no per-entry locking.
type Store struct {
	mu     sync.RWMutex
	dir    string
	serial Serializer
	blocks map[string]*FileBlock
}

// NewStore returns a Store that backs each block with a file under dir,
// encoding elements with serializer.
func NewStore(dir string, serializer Serializer) *Store {
	return &Store{
		dir:    dir,
		serial: serializer,
		blocks: make(map[string]*FileBlock),
	}
}

// Create opens a new block with the given id, failing if one already
// exists under that id.
func (s *Store) Create(id string) (*FileBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[id]; exists {
		return nil, &flowerr.BlockWriteError{BlockID: id, Err: fmt.Errorf("block already exists")}
	}
	b, err := Create(id, s.serial, filepath.Join(s.dir, id+".block"))
	if err != nil {
		return nil, err
	}
	s.blocks[id] = b
	return b, nil
}

// Get returns the block with the given id, or an error if it is not
// present in this store.
func (s *Store) Get(id string) (*FileBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	if !ok {
		return nil, &flowerr.BlockFetchError{BlockID: id, Err: fmt.Errorf("block not found")}
	}
	return b, nil
}

// Has reports whether the store currently holds a block with the given id.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[id]
	return ok
}

// Delete removes the block with the given id from the store and
// deletes its backing file. A missing id is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	b, ok := s.blocks[id]
	if ok {
		delete(s.blocks, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return b.Delete()
}

// IDs returns the ids of every block currently held by this store.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}
	return ids
}
