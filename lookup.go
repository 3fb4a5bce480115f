package ustar

import (
	"fmt"
	"strings"

	"github.com/meigma/ustar/internal/scan"
)

// Lookup returns the first entry whose name equals path exactly.
//
// Links are not followed. Returns ErrNotFound when the end marker is reached
// without a match.
func (a *Archive) Lookup(path string) (Entry, error) {
	e, ok, err := a.locate(path)
	if err != nil {
		return Entry{}, fmt.Errorf("lookup %s: %w", path, err)
	}
	if !ok {
		return Entry{}, fmt.Errorf("lookup %s: %w", path, ErrNotFound)
	}
	return e, nil
}

// Exists reports whether an entry named path exists and, if so, its type.
func (a *Archive) Exists(path string) (Type, bool, error) {
	e, ok, err := a.locate(path)
	if err != nil || !ok {
		return TypeOther, false, err
	}
	return e.Type(), true, nil
}

// IsDir reports whether path names a directory entry.
func (a *Archive) IsDir(path string) (bool, error) {
	return a.isType(path, func(t Type) bool { return t == TypeDirectory })
}

// IsFile reports whether path names a regular file entry (normal, legacy,
// or contiguous typeflag).
func (a *Archive) IsFile(path string) (bool, error) {
	return a.isType(path, func(t Type) bool { return t == TypeRegular })
}

// IsLink reports whether path names a symbolic or hard link entry.
func (a *Archive) IsLink(path string) (bool, error) {
	return a.isType(path, Type.IsLink)
}

func (a *Archive) isType(path string, match func(Type) bool) (bool, error) {
	t, ok, err := a.Exists(path)
	if err != nil || !ok {
		return false, err
	}
	return match(t), nil
}

// locate finds the first header named path. The empty name is the end
// marker and never matches.
func (a *Archive) locate(path string) (Entry, bool, error) {
	if path == "" {
		return Entry{}, false, nil
	}
	if a.idx != nil {
		return a.locateIndexed(path)
	}
	s := scan.New(a.source, 0)
	for s.Next() {
		if s.Block().Name() != path {
			continue
		}
		h, err := s.Header()
		if err != nil {
			return Entry{}, false, err
		}
		return Entry{Header: h, Offset: s.Offset()}, true, nil
	}
	return Entry{}, false, s.Err()
}

// resolve locates path and follows links until it reaches an entry that is
// not a link. Each link target passes through rewrite (if non-nil) before
// the next lookup. At most maxLinkHops links are followed.
func (a *Archive) resolve(path string, rewrite func(string) string) (Entry, error) {
	return a.resolveWith(path, a.locate, rewrite)
}

// resolveWith is resolve with a custom entry finder.
func (a *Archive) resolveWith(path string, find func(string) (Entry, bool, error), rewrite func(string) string) (Entry, error) {
	for hop := 0; ; hop++ {
		e, ok, err := find(path)
		if err != nil {
			return Entry{}, err
		}
		if !ok {
			return Entry{}, ErrNotFound
		}
		if !e.Type().IsLink() {
			return e, nil
		}
		if hop >= a.maxLinkHops {
			a.log().Debug("link hop limit reached", "path", path, "hops", hop)
			return Entry{}, ErrLinkLoop
		}
		target := e.Linkname
		if rewrite != nil {
			target = rewrite(target)
		}
		a.log().Debug("following link", "path", path, "target", target, "hop", hop+1)
		path = target
	}
}

// dirTarget gives a link target the trailing slash directory names carry.
func dirTarget(target string) string {
	if strings.HasSuffix(target, "/") {
		return target
	}
	return target + "/"
}
