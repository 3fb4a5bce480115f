// Package scan walks the header blocks of a ustar archive in block order.
package scan

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/ustar/internal/header"
	"github.com/meigma/ustar/internal/sizing"
)

// ErrSizeOverflow is returned when an entry's size pushes the cursor past
// the representable offset range.
var ErrSizeOverflow = errors.New("ustar: size overflow")

// Scanner is a forward-only cursor over header blocks.
//
// Each call to Next reads the header block at the cursor. After a header
// has been returned, the following call first advances past the header and
// its padded data. Scanning stops at the first block with an empty name.
type Scanner struct {
	src   io.ReaderAt
	off   int64 // offset of the current header
	block header.Block
	valid bool
	done  bool
	err   error
}

// New returns a Scanner that starts reading at off.
func New(src io.ReaderAt, off int64) *Scanner {
	return &Scanner{src: src, off: off}
}

// Next advances to the next header block. It returns false at the end
// marker or on error; check Err to tell them apart.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	if s.valid {
		next, err := s.skip()
		if err != nil {
			return s.fail(err)
		}
		s.off = next
		s.valid = false
	}
	if err := ReadBlock(s.src, s.off, &s.block); err != nil {
		return s.fail(err)
	}
	if s.block.IsEnd() {
		s.done = true
		return false
	}
	s.valid = true
	return true
}

// Block returns the raw block of the current header.
func (s *Scanner) Block() *header.Block {
	return &s.block
}

// Header decodes the current header block.
func (s *Scanner) Header() (header.Header, error) {
	return header.Decode(&s.block)
}

// Offset returns the byte offset of the current header block.
func (s *Scanner) Offset() int64 {
	return s.off
}

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) skip() (int64, error) {
	size, err := s.block.Size()
	if err != nil {
		return 0, fmt.Errorf("header at %d: %w", s.off, err)
	}
	return Next(s.off, size)
}

func (s *Scanner) fail(err error) bool {
	s.err = err
	s.done = true
	s.valid = false
	return false
}

// Next returns the offset of the header that follows a header at off whose
// entry declares size bytes of data.
func Next(off, size int64) (int64, error) {
	padded, ok := sizing.Padded(size, header.BlockSize)
	if !ok {
		return 0, ErrSizeOverflow
	}
	next, ok := sizing.AddInt64(off, header.BlockSize)
	if !ok {
		return 0, ErrSizeOverflow
	}
	next, ok = sizing.AddInt64(next, padded)
	if !ok {
		return 0, ErrSizeOverflow
	}
	return next, nil
}

// ReadBlock reads the header block at off into b. A source that ends before
// a full block yields io.ErrUnexpectedEOF.
func ReadBlock(src io.ReaderAt, off int64, b *header.Block) error {
	n, err := src.ReadAt(b[:], off)
	if n == len(b) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("header at %d: %w", off, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("header at %d: %w", off, err)
}
