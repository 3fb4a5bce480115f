// Package header decodes fixed-layout 512-byte ustar header blocks.
package header

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// BlockSize is the size of a header block and the unit of data padding.
const BlockSize = 512

// Field offsets within a ustar header block.
const (
	nameOff     = 0
	nameLen     = 100
	modeOff     = 100
	modeLen     = 8
	uidOff      = 108
	uidLen      = 8
	gidOff      = 116
	gidLen      = 8
	sizeOff     = 124
	sizeLen     = 12
	mtimeOff    = 136
	mtimeLen    = 12
	chksumOff   = 148
	chksumLen   = 8
	typeflagOff = 156
	linkOff     = 157
	linkLen     = 100
	magicOff    = 257
	magicLen    = 6
	versionOff  = 263
	versionLen  = 2
	unameOff    = 265
	unameLen    = 32
	gnameOff    = 297
	gnameLen    = 32
)

// Magic and Version identify a ustar header.
const (
	Magic   = "ustar\x00"
	Version = "00"
)

// Typeflag values recognized by the decoder.
const (
	TypeflagRegular    byte = '0'
	TypeflagRegularOld byte = 0
	TypeflagHardlink   byte = '1'
	TypeflagSymlink    byte = '2'
	TypeflagDirectory  byte = '5'
	TypeflagContiguous byte = '7'
)

// ErrInvalidNumber is returned when a numeric field contains a non-octal digit.
var ErrInvalidNumber = errors.New("ustar: invalid octal number")

// Type classifies an entry by its typeflag.
type Type uint8

const (
	TypeOther Type = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeHardlink
)

func (t Type) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeHardlink:
		return "hardlink"
	default:
		return "other"
	}
}

// IsLink reports whether t is a symbolic or hard link.
func (t Type) IsLink() bool {
	return t == TypeSymlink || t == TypeHardlink
}

// Classify maps a raw typeflag byte to a Type.
func Classify(flag byte) Type {
	switch flag {
	case TypeflagRegular, TypeflagRegularOld, TypeflagContiguous:
		return TypeRegular
	case TypeflagDirectory:
		return TypeDirectory
	case TypeflagSymlink:
		return TypeSymlink
	case TypeflagHardlink:
		return TypeHardlink
	default:
		return TypeOther
	}
}

// Block is a raw header block.
type Block [BlockSize]byte

// Name returns the NUL-terminated name field.
func (b *Block) Name() string {
	return cstring(b[nameOff : nameOff+nameLen])
}

// IsEnd reports whether the block terminates the archive (empty name).
func (b *Block) IsEnd() bool {
	return b[nameOff] == 0
}

// Magic returns the raw magic field, including its trailing NUL.
func (b *Block) Magic() []byte {
	return b[magicOff : magicOff+magicLen]
}

// Version returns the raw version field.
func (b *Block) Version() []byte {
	return b[versionOff : versionOff+versionLen]
}

// HasMagic reports whether the magic field is exactly "ustar\0".
func (b *Block) HasMagic() bool {
	return string(b.Magic()) == Magic
}

// HasVersion reports whether the version field is exactly "00".
func (b *Block) HasVersion() bool {
	return string(b.Version()) == Version
}

// Typeflag returns the raw typeflag byte.
func (b *Block) Typeflag() byte {
	return b[typeflagOff]
}

// Size parses the size field.
func (b *Block) Size() (int64, error) {
	return ParseOctal(b[sizeOff : sizeOff+sizeLen])
}

// Checksum computes the unsigned byte sum of the block with the checksum
// field counted as eight spaces.
func (b *Block) Checksum() uint32 {
	var sum uint32
	for i, c := range b {
		if i >= chksumOff && i < chksumOff+chksumLen {
			c = ' '
		}
		sum += uint32(c)
	}
	return sum
}

// StoredChecksum parses the checksum field.
func (b *Block) StoredChecksum() (uint32, error) {
	v, err := ParseOctal(b[chksumOff : chksumOff+chksumLen])
	if err != nil {
		return 0, err
	}
	if v > int64(^uint32(0)) {
		return 0, ErrInvalidNumber
	}
	return uint32(v), nil
}

// Header is a decoded header block.
type Header struct {
	Name     string
	Mode     int64
	UID      int64
	GID      int64
	Size     int64
	ModTime  time.Time
	Typeflag byte
	Linkname string
	Uname    string
	Gname    string
}

// Type classifies the header's typeflag.
func (h *Header) Type() Type {
	return Classify(h.Typeflag)
}

// Decode parses the fields of b. Magic, version, and checksum are not checked.
func Decode(b *Block) (Header, error) {
	h := Header{
		Name:     b.Name(),
		Typeflag: b.Typeflag(),
		Linkname: cstring(b[linkOff : linkOff+linkLen]),
		Uname:    cstring(b[unameOff : unameOff+unameLen]),
		Gname:    cstring(b[gnameOff : gnameOff+gnameLen]),
	}
	var mtime int64
	fields := []struct {
		name string
		dst  *int64
		raw  []byte
	}{
		{"mode", &h.Mode, b[modeOff : modeOff+modeLen]},
		{"uid", &h.UID, b[uidOff : uidOff+uidLen]},
		{"gid", &h.GID, b[gidOff : gidOff+gidLen]},
		{"size", &h.Size, b[sizeOff : sizeOff+sizeLen]},
		{"mtime", &mtime, b[mtimeOff : mtimeOff+mtimeLen]},
	}
	for _, f := range fields {
		v, err := ParseOctal(f.raw)
		if err != nil {
			return Header{}, fmt.Errorf("%s field of %q: %w", f.name, h.Name, err)
		}
		*f.dst = v
	}
	h.ModTime = time.Unix(mtime, 0)
	return h, nil
}

// Encode builds a ustar block for h with a valid checksum.
// Only used to assemble fixtures; the library never writes archives.
func (h *Header) Encode() (Block, error) {
	var b Block
	if len(h.Name) > nameLen || len(h.Linkname) > linkLen {
		return b, fmt.Errorf("encode %q: name too long", h.Name)
	}
	copy(b[nameOff:], h.Name)
	copy(b[linkOff:], h.Linkname)
	copy(b[unameOff:unameOff+unameLen], h.Uname)
	copy(b[gnameOff:gnameOff+gnameLen], h.Gname)
	b[typeflagOff] = h.Typeflag
	copy(b[magicOff:], Magic)
	copy(b[versionOff:], Version)

	var mtime int64
	if !h.ModTime.IsZero() {
		mtime = h.ModTime.Unix()
	}
	fields := []struct {
		v   int64
		dst []byte
	}{
		{h.Mode, b[modeOff : modeOff+modeLen]},
		{h.UID, b[uidOff : uidOff+uidLen]},
		{h.GID, b[gidOff : gidOff+gidLen]},
		{h.Size, b[sizeOff : sizeOff+sizeLen]},
		{mtime, b[mtimeOff : mtimeOff+mtimeLen]},
	}
	for _, f := range fields {
		if err := FormatOctal(f.dst, f.v); err != nil {
			return b, fmt.Errorf("encode %q: %w", h.Name, err)
		}
	}
	SetChecksum(&b)
	return b, nil
}

// SetChecksum recomputes and stores the checksum of b in the
// conventional "%06o\x00 " form.
func SetChecksum(b *Block) {
	field := b[chksumOff : chksumOff+chksumLen]
	_ = FormatOctal(field[:7], int64(b.Checksum())) //nolint:errcheck // a block sum always fits 6 digits
	field[7] = ' '
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
