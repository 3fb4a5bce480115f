// Package memory provides an in-memory block store with ARC eviction.
package memory

import (
	"errors"

	"github.com/hashicorp/golang-lru/arc/v2"
)

// DefaultBlocks is the default number of blocks held by a Store.
const DefaultBlocks = 256

// Store is a cache.Store bounded by block count.
type Store struct {
	blocks *arc.ARCCache[string, []byte]
}

// New creates a Store holding at most n blocks. Values <= 0 use DefaultBlocks.
func New(n int) (*Store, error) {
	if n <= 0 {
		n = DefaultBlocks
	}
	blocks, err := arc.NewARC[string, []byte](n)
	if err != nil {
		return nil, err
	}
	return &Store{blocks: blocks}, nil
}

// Get returns the block stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	return s.blocks.Get(key)
}

// Put stores a block under key.
func (s *Store) Put(key string, data []byte) error {
	if key == "" {
		return errors.New("memory: key is empty")
	}
	s.blocks.Add(key, data)
	return nil
}

// Len returns the number of cached blocks.
func (s *Store) Len() int {
	return s.blocks.Len()
}

// Purge drops every cached block.
func (s *Store) Purge() {
	s.blocks.Purge()
}
