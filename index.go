package ustar

import (
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ustar/internal/header"
	"github.com/meigma/ustar/internal/index"
	"github.com/meigma/ustar/internal/scan"
)

// BuildIndex scans the whole archive and returns a compressed sidecar index
// for use with WithIndex.
//
// The index records the first header for each name, so indexed lookups
// return the same entry a scan would. It is bound to the archive by size
// and sha256 digest.
func (a *Archive) BuildIndex() ([]byte, error) {
	var entries []index.Entry
	s := scan.New(a.source, 0)
	for s.Next() {
		h, err := s.Header()
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		entries = append(entries, index.Entry{
			Path:     h.Name,
			Offset:   s.Offset(),
			Size:     h.Size,
			Typeflag: h.Typeflag,
		})
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	dgst, err := a.digest()
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	raw := index.Build(entries, index.Meta{
		ArchiveSize:   a.source.Size(),
		ArchiveDigest: dgst,
	})
	a.log().Debug("built index", "entries", len(entries), "digest", dgst)
	return index.Compress(raw)
}

// Digest returns the sha256 digest of the archive bytes.
func (a *Archive) Digest() (digest.Digest, error) {
	return a.digest()
}

func (a *Archive) digest() (digest.Digest, error) {
	r := io.NewSectionReader(a.source, 0, a.source.Size())
	dgst, err := digest.SHA256.FromReader(r)
	if err != nil {
		return "", fmt.Errorf("digest archive: %w", err)
	}
	return dgst, nil
}

// loadIndex parses data and checks that it describes the source.
func (a *Archive) loadIndex(data []byte) (*index.Index, error) {
	idx, err := index.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if idx.ArchiveSize() != a.source.Size() {
		return nil, fmt.Errorf("load index: size %d, archive is %d: %w",
			idx.ArchiveSize(), a.source.Size(), ErrIndexMismatch)
	}
	if a.verifyDigest {
		if err := idx.ArchiveDigest().Validate(); err != nil {
			return nil, fmt.Errorf("load index: %w: %w", ErrIndexMismatch, err)
		}
		verifier := idx.ArchiveDigest().Verifier()
		if _, err := io.Copy(verifier, io.NewSectionReader(a.source, 0, a.source.Size())); err != nil {
			return nil, fmt.Errorf("load index: digest archive: %w", err)
		}
		if !verifier.Verified() {
			return nil, fmt.Errorf("load index: digest: %w", ErrIndexMismatch)
		}
	}
	a.log().Debug("loaded index", "entries", idx.Len(), "source", a.source.SourceID())
	return idx, nil
}

// locateIndexed finds path through the sidecar index and re-reads its
// header block from the source.
func (a *Archive) locateIndexed(path string) (Entry, bool, error) {
	ie, ok := a.idx.Lookup(path)
	if !ok {
		return Entry{}, false, nil
	}
	var b header.Block
	if err := scan.ReadBlock(a.source, ie.Offset, &b); err != nil {
		return Entry{}, false, err
	}
	if b.Name() != path {
		return Entry{}, false, fmt.Errorf("header at %d: %w", ie.Offset, ErrIndexMismatch)
	}
	h, err := header.Decode(&b)
	if err != nil {
		return Entry{}, false, fmt.Errorf("header at %d: %w", ie.Offset, err)
	}
	return Entry{Header: h, Offset: ie.Offset}, true, nil
}
