package ustar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ustar/internal/testutil"
)

func TestFileSource(t *testing.T) {
	t.Parallel()

	content := []byte("test file content")
	path := filepath.Join(t.TempDir(), "test.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	source, err := NewFileSource(f)
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), source.Size())
	assert.True(t, strings.HasPrefix(source.SourceID(), "file:"+path+":17:"), source.SourceID())

	buf := make([]byte, 4)
	n, err := source.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("file"), buf)
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	data := testutil.Build(t,
		testutil.Dir("dir/"),
		testutil.File("dir/a.txt", "content a"),
		testutil.Symlink("b.txt", "dir/a.txt"),
	)
	path := filepath.Join(t.TempDir(), "archive.tar")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	a, err := OpenFile(path)
	require.NoError(t, err)

	n, err := a.Validate()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 9)
	got, remaining, err := a.ReadAt("b.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, got)
	assert.Zero(t, remaining)
	assert.Equal(t, "content a", string(buf))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close is a no-op")
}

func TestOpenFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.tar"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "archive.tar")
	require.NoError(t, os.WriteFile(path, testutil.Build(t), 0o644))
	_, err = OpenFile(path, WithIndex([]byte("junk")))
	assert.Error(t, err)
}
