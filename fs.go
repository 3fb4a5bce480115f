package ustar

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/meigma/ustar/internal/scan"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Open implements fs.FS.
//
// Names follow fs.ValidPath: "a/b" matches the archive entry "a/b" or, for
// directories, "a/b/". The name "." is a synthetic root holding the
// top-level entries. Links are followed.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		entries, err := a.rootEntries()
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &openDir{info: rootInfo{}, entries: entries}, nil
	}

	e, err := a.resolveFS(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	info := &fileInfo{name: path.Base(name), entry: e}
	switch e.Type() {
	case TypeDirectory:
		entries, err := a.dirEntries(e)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &openDir{info: info, entries: entries}, nil
	case TypeRegular:
		return &openFile{
			info:          info,
			SectionReader: io.NewSectionReader(a.source, e.DataOffset(), e.Size),
		}, nil
	default:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return rootInfo{}, nil
	}
	e, err := a.resolveFS(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return &fileInfo{name: path.Base(name), entry: e}, nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	e, err := a.resolveFS(name)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	if e.Type() != TypeRegular {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	n, err := a.dataLen(&e)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	buf := make([]byte, n)
	if _, _, err := a.readEntry(&e, buf, 0); err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	return buf, nil
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, ok := f.(*openDir)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDirectory}
	}
	return d.ReadDir(-1)
}

// resolveFS maps an fs name to an archive entry, following links.
func (a *Archive) resolveFS(name string) (Entry, error) {
	e, err := a.resolveWith(name, a.locateAny, nil)
	if errors.Is(err, ErrNotFound) {
		return Entry{}, fs.ErrNotExist
	}
	return e, err
}

// locateAny finds name as a file entry or, failing that, a directory entry.
func (a *Archive) locateAny(name string) (Entry, bool, error) {
	name = strings.TrimSuffix(name, "/")
	e, ok, err := a.locate(name)
	if err != nil || ok {
		return e, ok, err
	}
	return a.locate(name + "/")
}

// dirEntries lists the children of dir as fs entries, following links so
// that each entry describes what Open would return.
func (a *Archive) dirEntries(dir Entry) ([]fs.DirEntry, error) {
	children, err := a.ListEntries(dir.Name, 0)
	if err != nil {
		return nil, err
	}
	return a.fsEntries(children, dir.Name)
}

// rootEntries returns the top-level entries of the archive.
func (a *Archive) rootEntries() ([]fs.DirEntry, error) {
	var top []Entry
	s := scan.New(a.source, 0)
	for s.Next() {
		name := strings.TrimSuffix(s.Block().Name(), "/")
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		h, err := s.Header()
		if err != nil {
			return nil, err
		}
		top = append(top, Entry{Header: h, Offset: s.Offset()})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return a.fsEntries(top, "")
}

func (a *Archive) fsEntries(children []Entry, prefix string) ([]fs.DirEntry, error) {
	seen := make(map[string]struct{}, len(children))
	out := make([]fs.DirEntry, 0, len(children))
	for _, c := range children {
		base := strings.TrimSuffix(strings.TrimPrefix(c.Name, prefix), "/")
		if base == "" || strings.Contains(base, "/") {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}

		target := c
		if c.Type().IsLink() {
			resolved, err := a.resolveFS(prefix + base)
			if err != nil {
				// Dangling links are omitted; Open reports them as missing.
				continue
			}
			target = resolved
		}
		if t := target.Type(); t != TypeRegular && t != TypeDirectory {
			continue
		}
		out = append(out, fs.FileInfoToDirEntry(&fileInfo{name: base, entry: target}))
	}
	slices.SortFunc(out, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return out, nil
}

// fileInfo describes an archive entry under the name it was opened by.
type fileInfo struct {
	name  string
	entry Entry
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 {
	if fi.entry.Type() == TypeDirectory {
		return 0
	}
	return fi.entry.Size
}

func (fi *fileInfo) Mode() fs.FileMode {
	mode := fs.FileMode(fi.entry.Mode) & fs.ModePerm //nolint:gosec // masked to permission bits
	if fi.entry.Type() == TypeDirectory {
		mode |= fs.ModeDir
	}
	return mode
}

func (fi *fileInfo) ModTime() time.Time { return fi.entry.ModTime }
func (fi *fileInfo) IsDir() bool        { return fi.entry.Type() == TypeDirectory }

// Sys returns the entry's *Header.
func (fi *fileInfo) Sys() any { return &fi.entry.Header }

type rootInfo struct{}

func (rootInfo) Name() string       { return "." }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() any           { return nil }

// openFile is a regular file opened through the fs.FS interface.
type openFile struct {
	*io.SectionReader
	info fs.FileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error               { return nil }

// openDir is a directory opened through the fs.FS interface.
type openDir struct {
	info    fs.FileInfo
	entries []fs.DirEntry
	pos     int
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.Name(), Err: fs.ErrInvalid}
}

// ReadDir implements fs.ReadDirFile.
func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.pos:]
	if n <= 0 {
		d.pos = len(d.entries)
		return slices.Clone(rest), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.pos += n
	return slices.Clone(rest[:n]), nil
}
