package ustar

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/meigma/ustar/internal/testutil"
)

const content33 = "the quick brown fox jumps over it"

func TestReadAt(t *testing.T) {
	t.Parallel()

	require.Len(t, content33, 33)
	a, _ := newArchive(t,
		testutil.File("f", content33),
		testutil.File("empty", ""),
		testutil.Dir("d/"),
	)

	tests := []struct {
		name      string
		bufLen    int
		off       int64
		want      string
		remaining int64
		err       error
	}{
		{name: "whole file", bufLen: 33, off: 0, want: content33, remaining: 0},
		{name: "larger buffer", bufLen: 64, off: 0, want: content33, remaining: 0},
		{name: "prefix", bufLen: 9, off: 0, want: "the quick", remaining: 24},
		{name: "middle", bufLen: 5, off: 10, want: "brown", remaining: 18},
		{name: "tail", bufLen: 10, off: 30, want: " it", remaining: 0},
		{name: "at end", bufLen: 10, off: 33, want: "", remaining: 0},
		{name: "empty buffer", bufLen: 0, off: 5, want: "", remaining: 28},
		{name: "past end", bufLen: 10, off: 40, err: ErrOffsetOutOfRange},
		{name: "negative offset", bufLen: 10, off: -1, err: ErrOffsetOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := make([]byte, tt.bufLen)
			n, remaining, err := a.ReadAt("f", buf, tt.off)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(buf[:n]))
			assert.Equal(t, tt.remaining, remaining)
		})
	}

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()
		n, remaining, err := a.ReadAt("empty", make([]byte, 8), 0)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, remaining)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, _, err := a.ReadAt("d/", make([]byte, 8), 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, _, err := a.ReadAt("nope", make([]byte, 8), 0)
		assert.ErrorIs(t, err, ErrNotFound)

		// The path is resolved before the offset is checked.
		_, _, err = a.ReadAt("nope", make([]byte, 8), -1)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrOffsetOutOfRange)
	})
}

func TestReadAt_Links(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t,
		testutil.File("data/file", content33),
		testutil.Symlink("sym", "data/file"),
		testutil.Symlink("sym2", "sym"),
		testutil.Hardlink("hard", "data/file"),
		// A hard link that declares a size still reads its target.
		testutil.TestEntry{Name: "sized", Typeflag: '1', Linkname: "data/file", Size: 700},
		testutil.Symlink("after", "data/file"),
		testutil.Symlink("dangling", "nowhere"),
		testutil.Symlink("dir", "data/"),
	)

	want := make([]byte, 33)
	n, _, err := a.ReadAt("data/file", want, 0)
	require.NoError(t, err)
	require.Equal(t, 33, n)

	for _, p := range []string{"sym", "sym2", "hard", "sized", "after"} {
		got := make([]byte, 33)
		n, remaining, err := a.ReadAt(p, got, 0)
		require.NoError(t, err, p)
		assert.Equal(t, 33, n, p)
		assert.Zero(t, remaining, p)
		assert.Equal(t, want, got, p)
	}

	_, _, err = a.ReadAt("dangling", make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = a.ReadAt("dir", make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadAt_LinkLoop(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t,
		testutil.Symlink("a", "b"),
		testutil.Symlink("b", "a"),
		testutil.Symlink("self", "self"),
	)
	for _, p := range []string{"a", "self"} {
		_, _, err := a.ReadAt(p, make([]byte, 4), 0)
		assert.ErrorIs(t, err, ErrLinkLoop, p)
	}
}

func TestReadAt_MaxLinkHops(t *testing.T) {
	t.Parallel()

	data := testutil.Build(t,
		testutil.File("f", "x"),
		testutil.Symlink("l1", "f"),
		testutil.Symlink("l2", "l1"),
		testutil.Symlink("l3", "l2"),
	)

	a, err := New(testutil.NewMockByteSource(data), WithMaxLinkHops(2))
	require.NoError(t, err)
	_, _, err = a.ReadAt("l3", make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrLinkLoop)
	_, _, err = a.ReadAt("l2", make([]byte, 1), 0)
	assert.NoError(t, err)

	a, err = New(testutil.NewMockByteSource(data), WithMaxLinkHops(0))
	require.NoError(t, err)
	_, _, err = a.ReadAt("l3", make([]byte, 1), 0)
	assert.NoError(t, err, "zero restores the default limit")
}

// errSource fails every read.
type errSource struct{ *testutil.MockByteSource }

var errBoom = errors.New("boom")

func (errSource) ReadAt([]byte, int64) (int, error) { return 0, errBoom }

func TestReadAt_SourceErrors(t *testing.T) {
	t.Parallel()

	a, err := New(errSource{testutil.NewMockByteSource(make([]byte, 4*BlockSize))})
	require.NoError(t, err)
	_, _, err = a.ReadAt("f", make([]byte, 1), 0)
	assert.ErrorIs(t, err, errBoom)

	// Data cut short after the header.
	data := testutil.Build(t, testutil.File("f", content33))
	trunc, err := New(testutil.NewMockByteSource(data[:BlockSize+10]))
	require.NoError(t, err)
	_, _, err = trunc.ReadAt("f", make([]byte, 33), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// Reading a file in arbitrary chunks reassembles its content.
func TestReadAt_Chunks(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		content := rapid.SliceOfN(rapid.Byte(), 0, 3000).Draw(t, "content")
		chunk := rapid.IntRange(1, 700).Draw(t, "chunk")

		src := testutil.NewMockByteSource(testutil.Build(t,
			testutil.Dir("p/"),
			testutil.TestEntry{Name: "p/f", Typeflag: '0', Content: content},
			testutil.File("q", "trailer"),
		))
		a, err := New(src)
		if err != nil {
			t.Fatal(err)
		}

		var out bytes.Buffer
		var off int64
		for {
			buf := make([]byte, chunk)
			n, remaining, err := a.ReadAt("p/f", buf, off)
			if err != nil {
				t.Fatalf("ReadAt(%d): %v", off, err)
			}
			out.Write(buf[:n])
			off += int64(n)
			if remaining != int64(len(content))-off {
				t.Fatalf("remaining %d at %d, want %d", remaining, off, int64(len(content))-off)
			}
			if remaining == 0 {
				break
			}
		}
		if !bytes.Equal(out.Bytes(), content) {
			t.Fatalf("content mismatch")
		}
	})
}

func TestReadAt_UsesPositionedReads(t *testing.T) {
	t.Parallel()

	a, src := newArchive(t, testutil.File("f", content33))
	before := src.Reads()
	_, _, err := a.ReadAt("f", make([]byte, 33), 0)
	require.NoError(t, err)
	// One header read for the lookup and one data read.
	assert.Equal(t, int64(2), src.Reads()-before)
}
