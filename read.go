package ustar

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/ustar/internal/sizing"
)

// ReadAt copies file content of path starting at logical offset off into p.
//
// Links are followed. It returns the number of bytes copied and the number
// of bytes that remain after them; remaining == 0 means the read reached the
// end of the file. A path that is missing or resolves to something other
// than a regular file yields ErrNotFound; an offset past the end of the
// file yields ErrOffsetOutOfRange.
func (a *Archive) ReadAt(path string, p []byte, off int64) (int, int64, error) {
	e, err := a.resolveFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", path, err)
	}
	n, remaining, err := a.readEntry(&e, p, off)
	if err != nil {
		return n, remaining, fmt.Errorf("read %s: %w", path, err)
	}
	return n, remaining, nil
}

// resolveFile follows links from path and requires a regular file.
func (a *Archive) resolveFile(path string) (Entry, error) {
	e, err := a.resolve(path, nil)
	if err != nil {
		return Entry{}, err
	}
	if e.Type() != TypeRegular {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (a *Archive) readEntry(e *Entry, p []byte, off int64) (int, int64, error) {
	remaining := e.Size - off
	if off < 0 || remaining < 0 {
		return 0, 0, ErrOffsetOutOfRange
	}
	want := min(int64(len(p)), remaining)
	if want == 0 {
		return 0, remaining, nil
	}
	pos, ok := sizing.AddInt64(e.DataOffset(), off)
	if !ok {
		return 0, remaining, ErrSizeOverflow
	}

	n, err := a.source.ReadAt(p[:want], pos)
	if int64(n) == want {
		return n, remaining - want, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return n, remaining - int64(n), err
}

// dataLen returns e's size as an int after checking that its data lies
// within the source.
func (a *Archive) dataLen(e *Entry) (int, error) {
	n, err := sizing.ToInt(e.Size, ErrSizeOverflow)
	if err != nil {
		return 0, err
	}
	end, ok := sizing.AddInt64(e.DataOffset(), e.Size)
	if !ok {
		return 0, ErrSizeOverflow
	}
	if end > a.source.Size() {
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}
