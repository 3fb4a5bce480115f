package ustar

import (
	"fmt"
	"os"
	"path/filepath"
)

// fileSource wraps *os.File to implement ByteSource.
// os.File has ReadAt but not Size, so we cache the size at construction.
type fileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

// NewFileSource returns a ByteSource reading from f. The size is captured
// once; the file must not change while in use.
func NewFileSource(f *os.File) (ByteSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return &fileSource{
		file:     f,
		size:     info.Size(),
		sourceID: fileSourceID(f.Name(), info),
	}, nil
}

func (fs *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return fs.file.ReadAt(p, off)
}

func (fs *fileSource) Size() int64 {
	return fs.size
}

func (fs *fileSource) SourceID() string {
	return fs.sourceID
}

func fileSourceID(path string, info os.FileInfo) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	return fmt.Sprintf("file:%s:%d:%d", absPath, info.Size(), info.ModTime().UnixNano())
}

// OpenFile opens the archive at path for random access.
// The returned Archive must be closed to release the file.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	src, err := NewFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := New(src, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// Interface compliance for fileSource.
var _ ByteSource = (*fileSource)(nil)
