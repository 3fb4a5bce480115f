// Package ustar queries POSIX ustar archives in place, without extracting them.
//
// An [Archive] reads header blocks directly from a random-access
// [ByteSource] (a local file, an HTTP range source, or a block-cached
// wrapper around either). It provides:
//   - Validation: magic, version, and checksum of every header ([Archive.Validate])
//   - Lookup: existence and type tests ([Archive.Exists], [Archive.IsDir], [Archive.IsFile], [Archive.IsLink])
//   - Listing: direct children of a directory in block order ([Archive.List])
//   - Reading: positioned reads of file content with link resolution ([Archive.ReadAt])
//
// Every query re-scans the archive from its first header, so results always
// reflect the bytes of the source. A sidecar index built with
// [Archive.BuildIndex] and loaded with [WithIndex] replaces the scan for
// path lookups without changing any result.
//
// # Quick Start
//
//	a, err := ustar.OpenFile("backup.tar")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	n, err := a.Validate()
//	children, err := a.List("etc/", 0)
//	buf := make([]byte, 4096)
//	n, remaining, err := a.ReadAt("etc/hosts", buf, 0)
//
// Archive also implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS.
package ustar
