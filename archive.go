package ustar

import (
	"errors"
	"io"
	"log/slog"

	"github.com/meigma/ustar/internal/header"
	"github.com/meigma/ustar/internal/index"
)

// Re-export types from internal/header for public API.
type (
	// Header is a decoded ustar header block.
	Header = header.Header

	// Type classifies an entry by its typeflag.
	Type = header.Type
)

// Re-export entry type constants.
const (
	TypeOther     = header.TypeOther
	TypeRegular   = header.TypeRegular
	TypeDirectory = header.TypeDirectory
	TypeSymlink   = header.TypeSymlink
	TypeHardlink  = header.TypeHardlink
)

// BlockSize is the ustar block size.
const BlockSize = header.BlockSize

// DefaultMaxLinkHops bounds link resolution, matching common tar tools.
const DefaultMaxLinkHops = 40

// ByteSource provides random access to the archive bytes.
//
// Implementations exist for local files (*os.File) and HTTP range requests.
// SourceID must return a stable identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Entry is a located header together with its position in the archive.
type Entry struct {
	Header

	// Offset is the byte offset of the entry's header block.
	Offset int64
}

// DataOffset returns the offset of the first data byte of the entry.
func (e *Entry) DataOffset() int64 {
	return e.Offset + BlockSize
}

// Archive queries a ustar archive held by a ByteSource.
//
// Every query scans headers from the start of the source unless a sidecar
// index was supplied with WithIndex. Reads are positioned, but an Archive is
// not safe for concurrent use.
type Archive struct {
	source       ByteSource
	maxLinkHops  int
	indexData    []byte
	verifyDigest bool
	idx          *index.Index
	logger       *slog.Logger
	closer       io.Closer
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// New creates an Archive reading from source.
//
// When WithIndex is given, the index is loaded and checked against the
// source before New returns.
func New(source ByteSource, opts ...Option) (*Archive, error) {
	if source == nil {
		return nil, errors.New("ustar: nil source")
	}
	a := &Archive{
		source:       source,
		maxLinkHops:  DefaultMaxLinkHops,
		verifyDigest: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.indexData != nil {
		idx, err := a.loadIndex(a.indexData)
		if err != nil {
			return nil, err
		}
		a.idx = idx
	}
	return a, nil
}

// Source returns the underlying byte source.
func (a *Archive) Source() ByteSource {
	return a.source
}

// Size returns the size of the archive in bytes.
func (a *Archive) Size() int64 {
	return a.source.Size()
}

// Indexed reports whether lookups are served by a sidecar index.
func (a *Archive) Indexed() bool {
	return a.idx != nil
}

// Close releases the file opened by OpenFile. It is a no-op for archives
// created with New.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
