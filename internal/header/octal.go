package header

import "fmt"

// ParseOctal parses an octal ASCII field. Leading spaces are skipped and
// parsing stops at the first NUL or space; an empty field is zero.
func ParseOctal(b []byte) (int64, error) {
	i := 0
	for i < len(b) && b[i] == ' ' {
		i++
	}
	var v int64
	for ; i < len(b); i++ {
		c := b[i]
		if c == 0 || c == ' ' {
			break
		}
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, b)
		}
		if v > (1<<63-1)>>3 {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidNumber, b)
		}
		v = v<<3 | int64(c-'0')
	}
	return v, nil
}

// MaxOctal returns the largest value FormatOctal can store in a field of
// width bytes.
func MaxOctal(width int) int64 {
	digits := width - 1
	if digits <= 0 {
		return 0
	}
	if digits >= 21 {
		return 1<<63 - 1
	}
	return 1<<(3*digits) - 1
}

// FormatOctal writes v into dst as zero-padded octal digits followed by a
// terminating NUL.
func FormatOctal(dst []byte, v int64) error {
	if v < 0 || v > MaxOctal(len(dst)) {
		return fmt.Errorf("%w: %d does not fit in %d bytes", ErrInvalidNumber, v, len(dst))
	}
	dst[len(dst)-1] = 0
	for i := len(dst) - 2; i >= 0; i-- {
		dst[i] = byte('0' + v&7)
		v >>= 3
	}
	return nil
}
