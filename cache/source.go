package cache

import (
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/sync/singleflight"
)

// Wrap returns a ByteSource that reads src in fixed-size blocks through store.
//
// Concurrent misses on the same block share one read of src. Reads spanning
// more than MaxBlocksPerRead blocks go straight to src.
func Wrap(src ByteSource, store Store, opts ...WrapOption) (ByteSource, error) {
	if src == nil {
		return nil, errNilSource
	}
	if store == nil {
		return nil, errNilStore
	}
	cfg := DefaultWrapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 {
		return nil, errors.New("cache: block size must be > 0")
	}
	if cfg.BlockSize > math.MaxInt {
		return nil, errors.New("cache: block size exceeds max int")
	}
	if cfg.MaxBlocksPerRead < 0 {
		return nil, errors.New("cache: max blocks per read must be >= 0")
	}
	sourceID := src.SourceID()
	if sourceID == "" {
		return nil, errors.New("cache: source id is empty")
	}
	return &cachedSource{
		src:              src,
		store:            store,
		sourceID:         sourceID,
		blockSize:        cfg.BlockSize,
		maxBlocksPerRead: cfg.MaxBlocksPerRead,
	}, nil
}

// cachedSource wraps a ByteSource with block-level caching.
type cachedSource struct {
	src              ByteSource
	store            Store
	sourceID         string
	blockSize        int64
	maxBlocksPerRead int
	fetchGroup       singleflight.Group
}

func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	expected := int64(len(p))
	if off+expected > size {
		expected = size - off
	}

	startBlock := off / s.blockSize
	endBlock := (off + expected - 1) / s.blockSize
	blockCount := endBlock - startBlock + 1

	if s.maxBlocksPerRead > 0 && blockCount > int64(s.maxBlocksPerRead) {
		return s.src.ReadAt(p, off)
	}

	var n int64
	for blockIndex := startBlock; blockIndex <= endBlock; blockIndex++ {
		blockStart := blockIndex * s.blockSize
		blockEnd := min(blockStart+s.blockSize, size)

		data, err := s.block(blockIndex, blockStart, blockEnd-blockStart)
		if err != nil {
			return int(n), err
		}

		copyStart := max(off, blockStart)
		copyEnd := min(off+expected, blockEnd)
		n += int64(copy(p[copyStart-off:copyEnd-off], data[copyStart-blockStart:copyEnd-blockStart]))
	}

	if expected < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

func (s *cachedSource) Size() int64 {
	return s.src.Size()
}

func (s *cachedSource) SourceID() string {
	return s.sourceID
}

// block returns the cached block, fetching it from the source on a miss.
func (s *cachedSource) block(index, off, length int64) ([]byte, error) {
	key := BlockKey(s.sourceID, s.blockSize, index)
	result, err, _ := s.fetchGroup.Do(key, func() (any, error) {
		if data, ok := s.store.Get(key); ok && int64(len(data)) == length {
			return data, nil
		}
		data, err := s.readFromSource(off, length)
		if err != nil {
			return nil, err
		}
		// Cache writes are best-effort; the read still succeeds.
		_ = s.store.Put(key, data) //nolint:errcheck // cache write is best-effort
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (s *cachedSource) readFromSource(off, length int64) ([]byte, error) {
	buf := make([]byte, int(length))
	n, err := s.src.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(n) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}
