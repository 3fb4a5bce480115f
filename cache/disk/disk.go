// Package disk provides a disk-backed block store.
//
// Blocks are stored as individual files in a directory hierarchy with
// optional sharding by key prefix. Files are written to a temporary name and
// renamed into place, so readers never observe a partial block.
package disk

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Store implements cache.Store using the local filesystem.
// It is safe for concurrent use, including by several processes sharing dir.
type Store struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64        // 0 = unlimited
	bytes          atomic.Int64 // current total size of cached blocks
	pruneMu        sync.Mutex
}

// Option configures a disk store.
type Option func(*Store)

// WithMaxBytes sets the maximum size in bytes for the store.
// Values <= 0 disable the limit.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		s.maxBytes = n
	}
}

// WithShardPrefixLen sets the number of key characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(s *Store) {
		s.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// New creates a disk-backed store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("disk: cache dir is empty")
	}
	s := &Store{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.shardPrefixLen < 0 {
		return nil, errors.New("disk: shard prefix length must be >= 0")
	}
	if s.maxBytes < 0 {
		s.maxBytes = 0
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	files, err := s.walk()
	if err != nil {
		return nil, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	s.bytes.Store(total)
	return s, nil
}

// Get returns the block stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	path, err := s.path(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the key, not user input
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores a block under key. Blocks larger than the size limit are
// dropped without error.
func (s *Store) Put(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if ok, err := s.ensureCapacity(int64(len(data))); err != nil || !ok {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "block-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	s.bytes.Add(int64(len(data)))
	return nil
}

// MaxBytes returns the configured size limit (0 = unlimited).
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// SizeBytes returns the current store size in bytes.
func (s *Store) SizeBytes() int64 {
	return s.bytes.Load()
}

// Prune removes the least recently written blocks until the store is at or
// below targetBytes. It returns the number of bytes freed.
func (s *Store) Prune(targetBytes int64) (int64, error) {
	targetBytes = max(targetBytes, 0)
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	files, err := s.walk()
	if err != nil {
		return 0, err
	}
	var remaining int64
	for _, f := range files {
		remaining += f.size
	}
	slices.SortFunc(files, func(a, b blockFile) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})

	var freed int64
	for _, f := range files {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.bytes.Store(remaining)
			return freed, err
		}
		remaining -= f.size
		freed += f.size
	}
	s.bytes.Store(remaining)
	return freed, nil
}

func (s *Store) ensureCapacity(need int64) (bool, error) {
	if s.maxBytes <= 0 {
		return true, nil
	}
	if need > s.maxBytes {
		return false, nil
	}
	if s.SizeBytes()+need <= s.maxBytes {
		return true, nil
	}
	if _, err := s.Prune(s.maxBytes - need); err != nil {
		return false, err
	}
	return s.SizeBytes()+need <= s.maxBytes, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("disk: key is empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.New("disk: invalid key")
	}
	if s.shardPrefixLen <= 0 {
		return filepath.Join(s.dir, key), nil
	}
	prefixLen := min(s.shardPrefixLen, len(key))
	return filepath.Join(s.dir, key[:prefixLen], key), nil
}

type blockFile struct {
	path    string
	size    int64
	modTime time.Time
}

// walk lists committed block files, skipping in-flight temporaries.
func (s *Store) walk() ([]blockFile, error) {
	var files []blockFile
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), "block-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, blockFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return files, err
}
