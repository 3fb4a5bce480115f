package ustar

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used for debug output.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithMaxLinkHops limits how many links are followed when resolving a path
// for List and ReadAt. Values <= 0 restore DefaultMaxLinkHops.
func WithMaxLinkHops(n int) Option {
	return func(a *Archive) {
		if n <= 0 {
			n = DefaultMaxLinkHops
		}
		a.maxLinkHops = n
	}
}

// WithIndex serves path lookups from a sidecar index produced by
// BuildIndex. The data may be zstd-compressed or raw.
func WithIndex(data []byte) Option {
	return func(a *Archive) {
		a.indexData = data
	}
}

// WithIndexDigestCheck controls whether New hashes the whole source to
// confirm the index digest (default: true). When disabled only the
// archive size is compared, which avoids a full read of remote sources.
func WithIndexDigestCheck(enabled bool) Option {
	return func(a *Archive) {
		a.verifyDigest = enabled
	}
}
