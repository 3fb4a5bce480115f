package ustar

import (
	"fmt"

	"github.com/meigma/ustar/internal/header"
	"github.com/meigma/ustar/internal/scan"
)

// Validate checks every header from the start of the archive up to the
// first end marker and returns how many headers it saw.
//
// Each header must carry the ustar magic, version "00", and a correct
// checksum, checked in that order. The first violation stops the scan and
// is returned as a *FormatError wrapping ErrInvalidMagic, ErrInvalidVersion,
// ErrInvalidChecksum, or ErrInvalidNumber. Validate never uses a sidecar
// index.
func (a *Archive) Validate() (int, error) {
	s := scan.New(a.source, 0)
	count := 0
	for s.Next() {
		b := s.Block()
		if err := checkBlock(b); err != nil {
			a.log().Debug("invalid header", "offset", s.Offset(), "name", b.Name(), "error", err)
			return 0, &FormatError{Offset: s.Offset(), Name: b.Name(), Err: err}
		}
		count++
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("validate: %w", err)
	}
	return count, nil
}

func checkBlock(b *header.Block) error {
	if !b.HasMagic() {
		return ErrInvalidMagic
	}
	if !b.HasVersion() {
		return ErrInvalidVersion
	}
	stored, err := b.StoredChecksum()
	if err != nil || stored != b.Checksum() {
		return ErrInvalidChecksum
	}
	// The scanner needs the size to find the next header.
	if _, err := b.Size(); err != nil {
		return err
	}
	return nil
}
