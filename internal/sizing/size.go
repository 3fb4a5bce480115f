// Package sizing provides block arithmetic and overflow-safe conversions.
package sizing

import "math"

// Padded rounds size up to the next multiple of blockSize.
// Returns (0, false) for negative sizes or on overflow.
func Padded(size, blockSize int64) (int64, bool) {
	if size < 0 || blockSize <= 0 {
		return 0, false
	}
	rem := size % blockSize
	if rem == 0 {
		return size, true
	}
	pad := blockSize - rem
	if size > math.MaxInt64-pad {
		return 0, false
	}
	return size + pad, true
}

// AddInt64 adds two non-negative int64 values, returning (0, false) on overflow.
func AddInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// ToInt converts an int64 to int, returning overflowErr if it doesn't fit.
func ToInt(size int64, overflowErr error) (int, error) {
	if size < 0 || size > int64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}
