package ustar

import (
	"errors"
	"fmt"

	"github.com/meigma/ustar/internal/header"
	"github.com/meigma/ustar/internal/scan"
)

// Format errors reported by Validate.
var (
	// ErrInvalidMagic is returned when a header's magic is not "ustar\0".
	ErrInvalidMagic = errors.New("ustar: invalid magic")

	// ErrInvalidVersion is returned when a header's version is not "00".
	ErrInvalidVersion = errors.New("ustar: invalid version")

	// ErrInvalidChecksum is returned when a header's stored checksum does not
	// match the computed one.
	ErrInvalidChecksum = errors.New("ustar: invalid checksum")

	// ErrInvalidNumber is returned when a numeric header field is not octal.
	ErrInvalidNumber = header.ErrInvalidNumber
)

// Lookup and read errors.
var (
	// ErrNotFound is returned when no entry matches a path, or when the
	// matched entry cannot be read as a file.
	ErrNotFound = errors.New("ustar: entry not found")

	// ErrNotDirectory is returned when listing an entry that is neither a
	// directory nor a link.
	ErrNotDirectory = errors.New("ustar: not a directory")

	// ErrOffsetOutOfRange is returned when a read starts past the end of a file.
	ErrOffsetOutOfRange = errors.New("ustar: offset out of range")

	// ErrLinkLoop is returned when link resolution exceeds the hop limit.
	ErrLinkLoop = errors.New("ustar: too many levels of links")

	// ErrTooManyEntries is returned alongside a truncated listing when a
	// directory has more children than the requested limit.
	ErrTooManyEntries = errors.New("ustar: too many entries")

	// ErrIndexMismatch is returned when a sidecar index does not describe
	// the archive it is used with.
	ErrIndexMismatch = errors.New("ustar: index does not match archive")

	// ErrSizeOverflow is returned when sizes or offsets exceed supported limits.
	ErrSizeOverflow = scan.ErrSizeOverflow
)

// FormatError reports the first header that failed validation.
type FormatError struct {
	// Offset is the byte offset of the offending header block.
	Offset int64
	// Name is the entry name stored in the header.
	Name string
	// Err is one of ErrInvalidMagic, ErrInvalidVersion, ErrInvalidChecksum,
	// or ErrInvalidNumber.
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("header %q at offset %d: %v", e.Name, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
