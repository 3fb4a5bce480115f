package ustar

import (
	"fmt"
	"strings"

	"github.com/meigma/ustar/internal/scan"
)

// List returns the names of the direct children of the directory at path,
// in archive block order.
//
// Links are followed; a trailing "/" is added to each link target before it
// is looked up. Subdirectories are listed but their contents are skipped.
// A limit > 0 caps the result; when more children exist, the first limit
// names are returned together with ErrTooManyEntries. A path that resolves
// to neither a directory nor a link yields ErrNotDirectory.
func (a *Archive) List(path string, limit int) ([]string, error) {
	entries, err := a.ListEntries(path, limit)
	if entries == nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i := range entries {
		names[i] = entries[i].Name
	}
	return names, err
}

// ListEntries is like List but returns the children's headers.
func (a *Archive) ListEntries(path string, limit int) ([]Entry, error) {
	dir, err := a.resolve(path, dirTarget)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	if dir.Type() != TypeDirectory {
		return nil, fmt.Errorf("list %s: %w", path, ErrNotDirectory)
	}

	start, err := scan.Next(dir.Offset, dir.Size)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	prefix := dir.Name
	entries := make([]Entry, 0)
	s := scan.New(a.source, start)
	more := s.Next()
	for more && strings.HasPrefix(s.Block().Name(), prefix) {
		h, err := s.Header()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		if limit > 0 && len(entries) == limit {
			return entries, fmt.Errorf("list %s: %w", path, ErrTooManyEntries)
		}
		entries = append(entries, Entry{Header: h, Offset: s.Offset()})

		more = s.Next()
		if h.Type() == TypeDirectory {
			// Skip the subdirectory's own contents.
			for more && strings.HasPrefix(s.Block().Name(), h.Name) {
				more = s.Next()
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return entries, nil
}
