// Package testutil builds in-memory ustar archives and byte sources for tests.
package testutil

import (
	"bytes"
	"io"
	"sync/atomic"

	"github.com/meigma/ustar/internal/header"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data  []byte
	id    string
	reads atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data, id: "mock"}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a fixed identifier.
func (m *MockByteSource) SourceID() string {
	return m.id
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Reads returns the number of ReadAt calls served.
func (m *MockByteSource) Reads() int64 {
	return m.reads.Load()
}

// TestEntry describes one archive member for Build.
type TestEntry struct {
	Name     string
	Typeflag byte
	Content  []byte
	Linkname string
	// Size overrides the declared size when non-zero (used for link entries
	// that declare a size but carry no payload).
	Size int64
	Mode int64
}

// File returns a regular file entry.
func File(name, content string) TestEntry {
	return TestEntry{Name: name, Typeflag: header.TypeflagRegular, Content: []byte(content), Mode: 0o644}
}

// Dir returns a directory entry.
func Dir(name string) TestEntry {
	return TestEntry{Name: name, Typeflag: header.TypeflagDirectory, Mode: 0o755}
}

// Symlink returns a symbolic link entry.
func Symlink(name, target string) TestEntry {
	return TestEntry{Name: name, Typeflag: header.TypeflagSymlink, Linkname: target, Mode: 0o777}
}

// Hardlink returns a hard link entry.
func Hardlink(name, target string) TestEntry {
	return TestEntry{Name: name, Typeflag: header.TypeflagHardlink, Linkname: target, Mode: 0o644}
}

// TB is the subset of testing.TB that Build needs. It is also satisfied by
// *rapid.T.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Build assembles a ustar archive holding entries in order, followed by two
// zero blocks.
func Build(tb TB, entries ...TestEntry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	for _, e := range entries {
		size := int64(len(e.Content))
		if e.Size != 0 {
			size = e.Size
		}
		h := header.Header{
			Name:     e.Name,
			Mode:     e.Mode,
			UID:      1000,
			GID:      1000,
			Size:     size,
			Typeflag: e.Typeflag,
			Linkname: e.Linkname,
			Uname:    "ustar",
			Gname:    "ustar",
		}
		block, err := h.Encode()
		if err != nil {
			tb.Fatalf("encode %q: %v", e.Name, err)
		}
		buf.Write(block[:])

		// Link entries carry no payload but still skip by their declared size.
		payload := e.Content
		if int64(len(payload)) < size {
			payload = append(append([]byte{}, payload...), make([]byte, size-int64(len(payload)))...)
		}
		buf.Write(payload)
		if pad := len(payload) % header.BlockSize; pad != 0 {
			buf.Write(make([]byte, header.BlockSize-pad))
		}
	}
	buf.Write(make([]byte, 2*header.BlockSize))
	return buf.Bytes()
}

// HeaderOffsets returns the header offset of each entry produced by Build.
func HeaderOffsets(entries ...TestEntry) []int64 {
	offsets := make([]int64, len(entries))
	var off int64
	for i, e := range entries {
		offsets[i] = off
		size := int64(len(e.Content))
		if e.Size != 0 {
			size = e.Size
		}
		off += header.BlockSize + (size+header.BlockSize-1)/header.BlockSize*header.BlockSize
	}
	return offsets
}

// Corrupt flips byte pos of the header block at off and returns data for chaining.
func Corrupt(data []byte, off int64, pos int) []byte {
	data[off+int64(pos)] ^= 0xff
	return data
}

// Resize rewrites the declared size of the header block at off, keeping the
// checksum valid, and returns data for chaining.
func Resize(tb TB, data []byte, off, size int64) []byte {
	tb.Helper()
	b := (*header.Block)(data[off : off+header.BlockSize])
	h, err := header.Decode(b)
	if err != nil {
		tb.Fatalf("decode header at %d: %v", off, err)
	}
	h.Size = size
	*b, err = h.Encode()
	if err != nil {
		tb.Fatalf("encode header at %d: %v", off, err)
	}
	return data
}
