package ustar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ustar/internal/testutil"
)

// indexedPair opens the same archive twice: once scanning, once through a
// freshly built index.
func indexedPair(t *testing.T, entries ...testutil.TestEntry) (scanned, indexed *Archive) {
	t.Helper()
	data := testutil.Build(t, entries...)
	scanned, err := New(testutil.NewMockByteSource(data))
	require.NoError(t, err)
	idx, err := scanned.BuildIndex()
	require.NoError(t, err)
	indexed, err = New(testutil.NewMockByteSource(data), WithIndex(idx))
	require.NoError(t, err)
	require.True(t, indexed.Indexed())
	return scanned, indexed
}

func TestIndex_MatchesScan(t *testing.T) {
	t.Parallel()

	entries := append(sampleEntries(),
		testutil.File("d/a", "shadowed"),
		testutil.Symlink("loop1", "loop2"),
		testutil.Symlink("loop2", "loop1"),
		testutil.Symlink("dirlink", "d"),
	)
	scanned, indexed := indexedPair(t, entries...)

	paths := []string{"d/", "d/a", "d/b", "d/c/", "d/c/x", "d/e/", "s", "h", "loop1", "dirlink", "d", "missing", ""}
	for _, p := range paths {
		st, sok, serr := scanned.Exists(p)
		it, iok, ierr := indexed.Exists(p)
		require.NoError(t, serr)
		require.NoError(t, ierr)
		assert.Equal(t, sok, iok, "Exists(%q)", p)
		assert.Equal(t, st, it, "Exists(%q)", p)

		if sok {
			se, err := scanned.Lookup(p)
			require.NoError(t, err)
			ie, err := indexed.Lookup(p)
			require.NoError(t, err)
			assert.Equal(t, se, ie, "Lookup(%q)", p)
		}

		sb := make([]byte, 64)
		ib := make([]byte, 64)
		sn, srem, serr := scanned.ReadAt(p, sb, 0)
		in, irem, ierr := indexed.ReadAt(p, ib, 0)
		assert.Equal(t, serr == nil, ierr == nil, "ReadAt(%q): %v vs %v", p, serr, ierr)
		assert.Equal(t, sb[:sn], ib[:in], "ReadAt(%q)", p)
		assert.Equal(t, srem, irem, "ReadAt(%q)", p)

		sl, serr := scanned.List(p, 0)
		il, ierr := indexed.List(p, 0)
		assert.Equal(t, serr == nil, ierr == nil, "List(%q): %v vs %v", p, serr, ierr)
		assert.Equal(t, sl, il, "List(%q)", p)
	}

	e, err := indexed.Lookup("d/a")
	require.NoError(t, err)
	assert.Equal(t, int64(len("alpha")), e.Size, "first occurrence wins")

	_, _, err = indexed.ReadAt("loop1", make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrLinkLoop)
}

func TestIndex_AvoidsScanning(t *testing.T) {
	t.Parallel()

	entries := make([]testutil.TestEntry, 0, 64)
	for i := range 64 {
		entries = append(entries, testutil.File(string(rune('A'+i%26))+string(rune('a'+i/26)), "x"))
	}
	data := testutil.Build(t, entries...)
	a, err := New(testutil.NewMockByteSource(data))
	require.NoError(t, err)
	idx, err := a.BuildIndex()
	require.NoError(t, err)

	src := testutil.NewMockByteSource(data)
	indexed, err := New(src, WithIndex(idx))
	require.NoError(t, err)

	before := src.Reads()
	_, ok, err := indexed.Exists(entries[63].Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), src.Reads()-before, "one header read per lookup")

	before = src.Reads()
	_, ok, err = indexed.Exists("absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, src.Reads()-before, "misses never touch the source")
}

func TestIndex_Mismatch(t *testing.T) {
	t.Parallel()

	data := testutil.Build(t, testutil.File("a", "hello"), testutil.File("b", "world"))
	a, err := New(testutil.NewMockByteSource(data))
	require.NoError(t, err)
	idx, err := a.BuildIndex()
	require.NoError(t, err)

	t.Run("size", func(t *testing.T) {
		t.Parallel()
		other := testutil.Build(t, testutil.File("a", "hello"))
		_, err := New(testutil.NewMockByteSource(other), WithIndex(idx))
		assert.ErrorIs(t, err, ErrIndexMismatch)
	})

	t.Run("digest", func(t *testing.T) {
		t.Parallel()
		// Same size, different content.
		other := testutil.Build(t, testutil.File("a", "HELLO"), testutil.File("b", "world"))
		_, err := New(testutil.NewMockByteSource(other), WithIndex(idx))
		assert.ErrorIs(t, err, ErrIndexMismatch)

		// Without the digest check the index is accepted.
		b, err := New(testutil.NewMockByteSource(other), WithIndex(idx), WithIndexDigestCheck(false))
		require.NoError(t, err)
		n, _, err := b.ReadAt("a", make([]byte, 5), 0)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("renamed header", func(t *testing.T) {
		t.Parallel()
		other := testutil.Build(t, testutil.File("c", "hello"), testutil.File("b", "world"))
		b, err := New(testutil.NewMockByteSource(other), WithIndex(idx), WithIndexDigestCheck(false))
		require.NoError(t, err)
		_, _, err = b.Exists("a")
		assert.ErrorIs(t, err, ErrIndexMismatch)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := New(testutil.NewMockByteSource(data), WithIndex([]byte("not an index")))
		assert.Error(t, err)
	})
}

func TestBuildIndex_InvalidArchive(t *testing.T) {
	t.Parallel()

	data := testutil.Build(t, testutil.File("a", "x"))
	a, err := New(testutil.NewMockByteSource(data[:len(data)-2*BlockSize]))
	require.NoError(t, err)
	_, err = a.BuildIndex()
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	t.Parallel()

	a, _ := newArchive(t, testutil.File("a", "x"))
	d1, err := a.Digest()
	require.NoError(t, err)
	require.NoError(t, d1.Validate())

	b, _ := newArchive(t, testutil.File("a", "y"))
	d2, err := b.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}
