// Package index encodes and loads the sidecar lookup index of a ustar archive.
//
// The index is a FlatBuffers table of entries sorted by path, optionally
// zstd-compressed, and bound to one archive by its size and digest.
package index

//go:generate flatc --go -o .. ../../schema/index.fbs

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/ustar/internal/fb"
)

// Version is the index format version written by Build.
const Version uint32 = 1

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// ErrEmpty is returned by Load for empty input.
	ErrEmpty = errors.New("index: empty data")

	// ErrCorrupt is returned by Load when the data is not a valid index.
	ErrCorrupt = errors.New("index: corrupt data")

	// ErrVersion is returned by Load for an unsupported format version.
	ErrVersion = errors.New("index: unsupported version")
)

// Entry records where a header lives in the archive.
type Entry struct {
	Path     string
	Offset   int64
	Size     int64
	Typeflag byte
}

// Meta binds an index to a specific archive.
type Meta struct {
	ArchiveSize   int64
	ArchiveDigest digest.Digest
}

// Build encodes entries into an uncompressed index.
//
// Entries are given in archive order. Only the first entry for each path is
// kept, so indexed lookups match a front-to-back scan.
func Build(entries []Entry, meta Meta) []byte {
	seen := make(map[string]struct{}, len(entries))
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Path]; dup {
			continue
		}
		seen[e.Path] = struct{}{}
		kept = append(kept, e)
	}
	slices.SortFunc(kept, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})

	b := flatbuffers.NewBuilder(1024 + 64*len(kept))
	offsets := make([]flatbuffers.UOffsetT, len(kept))
	for i := range kept {
		path := b.CreateString(kept[i].Path)
		fb.EntryStart(b)
		fb.EntryAddPath(b, path)
		fb.EntryAddHeaderOffset(b, uint64(kept[i].Offset)) //nolint:gosec // offsets are non-negative
		fb.EntryAddSize(b, uint64(kept[i].Size))           //nolint:gosec // sizes are non-negative
		fb.EntryAddTypeflag(b, kept[i].Typeflag)
		offsets[i] = fb.EntryEnd(b)
	}

	fb.IndexStartEntriesVector(b, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	vec := b.EndVector(len(offsets))
	dgst := b.CreateString(meta.ArchiveDigest.String())

	fb.IndexStart(b)
	fb.IndexAddVersion(b, Version)
	fb.IndexAddArchiveSize(b, uint64(meta.ArchiveSize)) //nolint:gosec // sizes are non-negative
	fb.IndexAddArchiveDigest(b, dgst)
	fb.IndexAddEntries(b, vec)
	b.Finish(fb.IndexEnd(b))
	return b.FinishedBytes()
}

// Compress zstd-compresses an encoded index.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Index is a loaded sidecar index.
//
// Index is read-only after Load and safe for concurrent use.
type Index struct {
	data []byte
	root *fb.Index
}

// Load parses an index produced by Build, compressed or not.
//
// The provided data is retained; callers must not modify it afterwards.
func Load(data []byte) (idx *Index, err error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if bytes.HasPrefix(data, zstdMagic) {
		data, err = decompress(data)
		if err != nil {
			return nil, err
		}
	}
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, ErrCorrupt
	}

	// The flatbuffers accessors panic on out-of-range offsets.
	defer func() {
		if r := recover(); r != nil {
			idx, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	root := fb.GetRootAsIndex(data, 0)
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	idx = &Index{data: data, root: root}
	// Touch every entry once so later accessors cannot panic.
	var e fb.Entry
	for i := range root.EntriesLength() {
		root.Entries(&e, i)
		_ = e.Path()
		_ = e.Typeflag()
	}
	_ = root.ArchiveDigest()
	return idx, nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return out, nil
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return idx.root.EntriesLength()
}

// ArchiveSize returns the size of the archive the index was built for.
func (idx *Index) ArchiveSize() int64 {
	return int64(idx.root.ArchiveSize()) //nolint:gosec // written from an int64
}

// ArchiveDigest returns the digest of the archive the index was built for.
func (idx *Index) ArchiveDigest() digest.Digest {
	return digest.Digest(idx.root.ArchiveDigest())
}

// Lookup returns the entry for path using binary search.
func (idx *Index) Lookup(path string) (Entry, bool) {
	n := idx.root.EntriesLength()
	key := []byte(path)
	var e fb.Entry
	i := sort.Search(n, func(i int) bool {
		idx.root.Entries(&e, i)
		return bytes.Compare(e.Path(), key) >= 0
	})
	if i == n {
		return Entry{}, false
	}
	idx.root.Entries(&e, i)
	if !bytes.Equal(e.Path(), key) {
		return Entry{}, false
	}
	return toEntry(&e), true
}

// Entries returns an iterator over all entries in path order.
func (idx *Index) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		var e fb.Entry
		for i := range idx.root.EntriesLength() {
			if !idx.root.Entries(&e, i) {
				return
			}
			if !yield(toEntry(&e)) {
				return
			}
		}
	}
}

func toEntry(e *fb.Entry) Entry {
	return Entry{
		Path:     string(e.Path()),
		Offset:   int64(e.HeaderOffset()), //nolint:gosec // written from an int64
		Size:     int64(e.Size()),         //nolint:gosec // written from an int64
		Typeflag: e.Typeflag(),
	}
}
