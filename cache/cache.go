// Package cache adds block-level caching to archive byte sources.
//
// Each archive query rescans headers from the start of the source, so the
// same header blocks are read over and over. Wrapping a remote source with
// a block cache turns those repeated reads into local hits. Blocks are keyed
// by the source's SourceID, so a changed source never serves stale blocks.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
)

// ByteSource provides random access to data for block caching.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Store holds cached blocks by key.
//
// Implementations must be safe for concurrent use and handle their own
// size limits and eviction policies.
type Store interface {
	// Get returns the block stored under key.
	Get(key string) ([]byte, bool)

	// Put stores a block under key. Put may silently drop the block.
	Put(key string, data []byte) error
}

// DefaultBlockSize is the default cached block size.
const DefaultBlockSize int64 = 64 << 10

// DefaultMaxBlocksPerRead caps cached blocks per ReadAt to avoid large sequential reads.
const DefaultMaxBlocksPerRead = 4

// WrapConfig controls block cache wrapping behavior.
type WrapConfig struct {
	BlockSize        int64
	MaxBlocksPerRead int
}

// DefaultWrapConfig returns the default block cache configuration.
func DefaultWrapConfig() WrapConfig {
	return WrapConfig{
		BlockSize:        DefaultBlockSize,
		MaxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
}

// WrapOption configures block cache wrapping behavior.
type WrapOption func(*WrapConfig)

// WithBlockSize sets the block size used for caching.
func WithBlockSize(n int64) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.BlockSize = n
	}
}

// WithMaxBlocksPerRead bypasses caching when a ReadAt spans more than n blocks.
// Values <= 0 disable the limit.
func WithMaxBlocksPerRead(n int) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.MaxBlocksPerRead = n
	}
}

var (
	errNilSource = errors.New("cache: source is nil")
	errNilStore  = errors.New("cache: store is nil")
)

// BlockKey returns the store key of block index of sourceID at blockSize.
func BlockKey(sourceID string, blockSize, index int64) string {
	hasher := sha256.New()
	_, _ = hasher.Write([]byte(sourceID)) //nolint:errcheck // hash writes never fail

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(blockSize)) //nolint:gosec // blockSize validated > 0
	binary.BigEndian.PutUint64(buf[8:], uint64(index))     //nolint:gosec // index always >= 0
	_, _ = hasher.Write(buf[:])                            //nolint:errcheck // hash writes never fail

	return hex.EncodeToString(hasher.Sum(nil))
}
