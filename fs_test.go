package ustar

import (
	"errors"
	"io"
	"io/fs"
	"runtime"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ustar/internal/testutil"
)

func TestFS_Conformance(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t,
		testutil.Dir("docs/"),
		testutil.File("docs/readme.txt", "read me"),
		testutil.Dir("docs/img/"),
		testutil.File("docs/img/logo.png", "png"),
		testutil.File("top.txt", "top"),
		testutil.Dir("empty/"),
	)
	require.NoError(t, fstest.TestFS(a,
		"docs/readme.txt",
		"docs/img/logo.png",
		"top.txt",
		"empty",
	))
}

func TestFS_Links(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t,
		testutil.Dir("docs/"),
		testutil.File("docs/readme.txt", "read me"),
		testutil.Symlink("latest", "docs/readme.txt"),
		testutil.Hardlink("copy", "docs/readme.txt"),
		testutil.Symlink("current", "docs/"),
		testutil.Symlink("broken", "nowhere"),
		testutil.TestEntry{Name: "fifo", Typeflag: '6'},
	)

	for _, name := range []string{"latest", "copy"} {
		data, err := fs.ReadFile(a, name)
		require.NoError(t, err, name)
		assert.Equal(t, "read me", string(data), name)
	}

	info, err := fs.Stat(a, "current")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "current", info.Name())

	hdr, ok := info.Sys().(*Header)
	require.True(t, ok)
	assert.Equal(t, "docs/", hdr.Name)

	entries, err := fs.ReadDir(a, ".")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	// Dangling links and special files are hidden.
	assert.Equal(t, []string{"copy", "current", "docs", "latest"}, names)

	entries, err = fs.ReadDir(a, "current")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "readme.txt", entries[0].Name())
}

func TestFS_Errors(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t,
		testutil.Dir("d/"),
		testutil.File("d/f", "x"),
		testutil.Symlink("broken", "nowhere"),
		testutil.Symlink("loop", "loop"),
	)

	tests := []struct {
		name string
		want error
	}{
		{name: "missing", want: fs.ErrNotExist},
		{name: "broken", want: fs.ErrNotExist},
		{name: "d/", want: fs.ErrInvalid},
		{name: "/d", want: fs.ErrInvalid},
		{name: "d/../d", want: fs.ErrInvalid},
		{name: "loop", want: ErrLinkLoop},
	}
	for _, tt := range tests {
		_, err := a.Open(tt.name)
		var pe *fs.PathError
		require.ErrorAs(t, err, &pe, tt.name)
		assert.Equal(t, "open", pe.Op)
		assert.ErrorIs(t, err, tt.want, tt.name)
	}

	_, err := a.ReadFile("d")
	assert.ErrorIs(t, err, fs.ErrInvalid, "directories cannot be read as files")

	_, err = a.ReadDir("d/f")
	assert.ErrorIs(t, err, ErrNotDirectory)

	f, err := a.Open("d")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Read(make([]byte, 1))
	assert.True(t, errors.Is(err, fs.ErrInvalid))
}

func TestFS_ReadDirPaging(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t,
		testutil.Dir("d/"),
		testutil.File("d/c", "3"),
		testutil.File("d/a", "1"),
		testutil.File("d/b", "2"),
	)
	f, err := a.Open("d")
	require.NoError(t, err)
	defer f.Close()

	dir, ok := f.(fs.ReadDirFile)
	require.True(t, ok)

	first, err := dir.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].Name())
	assert.Equal(t, "b", first[1].Name())

	rest, err := dir.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0].Name())

	_, err = dir.ReadDir(2)
	assert.ErrorIs(t, err, io.EOF)
}

// A header that declares more data than the archive holds is rejected
// before any buffer is sized from it.
func TestFS_ReadFileInflatedSize(t *testing.T) { //nolint:paralleltest // measures allocations
	data := testutil.Build(t, testutil.File("f", "x"))
	require.Len(t, data, 4*BlockSize)
	testutil.Resize(t, data, 0, 1<<30)
	a, err := New(testutil.NewMockByteSource(data))
	require.NoError(t, err)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = a.ReadFile("f")
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	var pe *fs.PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "read", pe.Op)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))

	// The largest size the field can hold.
	testutil.Resize(t, data, 0, 1<<33-1)
	_, err = a.ReadFile("f")
	assert.Error(t, err)
}
