package filelist

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeStat(path string) (Entry, error) {
	return Entry{Path: path, Kind: File, Mode: 0o644, Size: int64(len(path)), ModTime: time.Unix(1700000000, 5)}, nil
}

func TestInsertKeepsOrder(t *testing.T) {
	l := New()
	for _, p := range []string{"/r/c", "/r/a", "/r/b/x", "/r/b", "/r/aa"} {
		e, err := l.Insert(p, fakeStat)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, p, e.Path)
	}

	assert.Equal(t, []string{"/r/a", "/r/aa", "/r/b", "/r/b/x", "/r/c"}, l.Paths())
}

func TestInsertDuplicateIsNoop(t *testing.T) {
	l := New()
	_, err := l.Insert("/r/a", fakeStat)
	require.NoError(t, err)

	calls := 0
	e, err := l.Insert("/r/a", func(p string) (Entry, error) {
		calls++
		return fakeStat(p)
	})
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Zero(t, calls, "duplicate insert must not stat")
	assert.Equal(t, 1, l.Len())
}

func TestInsertStatFailure(t *testing.T) {
	l := New()
	statErr := errors.New("gone")
	e, err := l.Insert("/r/a", func(string) (Entry, error) { return Entry{}, statErr })
	require.ErrorIs(t, err, statErr)
	assert.Nil(t, e)
	assert.Zero(t, l.Len())
}

func TestInsertPathTooLong(t *testing.T) {
	l := New()
	long := "/" + string(make([]byte, MaxPathLen))
	_, err := l.Insert(long, fakeStat)
	require.ErrorIs(t, err, ErrPathTooLong)
}

func TestInsertEntryDuplicate(t *testing.T) {
	l := New()
	_, ok := l.InsertEntry(Entry{Path: "/r/a"})
	require.True(t, ok)
	e, ok := l.InsertEntry(Entry{Path: "/r/a", Size: 9})
	assert.False(t, ok)
	assert.Nil(t, e)
	assert.Zero(t, l.At(0).Size, "existing entry must be kept")
}

func TestAppendTail(t *testing.T) {
	l := New()
	require.NoError(t, l.AppendTail(Entry{Path: "/r/a"}))
	require.NoError(t, l.AppendTail(Entry{Path: "/r/b"}))

	err := l.AppendTail(Entry{Path: "/r/b"})
	require.ErrorIs(t, err, ErrOutOfOrder)
	err = l.AppendTail(Entry{Path: "/r/a0"})
	require.ErrorIs(t, err, ErrOutOfOrder)

	assert.Equal(t, []string{"/r/a", "/r/b"}, l.Paths())
}

func TestAppendTailCopiesEntry(t *testing.T) {
	l := New()
	e := Entry{Path: "/r/a", Size: 1}
	require.NoError(t, l.AppendTail(e))
	e.Size = 2
	assert.Equal(t, int64(1), l.At(0).Size)
}

func TestFindByRelativePath(t *testing.T) {
	dst := New()
	for _, p := range []string{"/dst/a.txt", "/dst/dir", "/dst/dir/b.txt", "/dst/dirx"} {
		_, err := dst.Insert(p, fakeStat)
		require.NoError(t, err)
	}
	srcLen, dstLen := len("/source"), len("/dst")

	got := dst.FindByRelativePath("/source/dir/b.txt", dstLen, srcLen)
	require.NotNil(t, got)
	assert.Equal(t, "/dst/dir/b.txt", got.Path)

	got = dst.FindByRelativePath("/source/dir", dstLen, srcLen)
	require.NotNil(t, got)
	assert.Equal(t, "/dst/dir", got.Path)

	assert.Nil(t, dst.FindByRelativePath("/source/missing", dstLen, srcLen))
}

func TestFindByRelativePathRequiresExactMatch(t *testing.T) {
	dst := New()
	_, err := dst.Insert("/dst/dir/b.txt.bak", fakeStat)
	require.NoError(t, err)
	_, err = dst.Insert("/dst/dirb", fakeStat)
	require.NoError(t, err)

	assert.Nil(t, dst.FindByRelativePath("/src/dir/b.txt", 4, 4), "prefix of a longer name must not match")
	assert.Nil(t, dst.FindByRelativePath("/src/dir", 4, 4))
}

func TestFindByRelativePathEmptyList(t *testing.T) {
	assert.Nil(t, New().FindByRelativePath("/src/a", 4, 4))
}

func TestFindByRelativePathSelf(t *testing.T) {
	l := New()
	for _, p := range []string{"/r/a", "/r/b", "/r/c"} {
		_, err := l.Insert(p, fakeStat)
		require.NoError(t, err)
	}
	for e := range l.All() {
		assert.Same(t, e, l.FindByRelativePath(e.Path, 2, 2))
		assert.Same(t, e, l.FindByRelativePath(e.Path, 0, 0))
	}
}

func TestClear(t *testing.T) {
	l := New()
	_, err := l.Insert("/r/a", fakeStat)
	require.NoError(t, err)
	l.Clear()
	assert.Zero(t, l.Len())
	assert.Nil(t, l.Find("/r/a"))
}

func TestEntryKind(t *testing.T) {
	e := Entry{Path: "/r", Kind: Directory, Mode: os.ModeDir | 0o755}
	assert.True(t, e.IsDir())
	assert.Equal(t, "dir", e.Kind.String())
	assert.Equal(t, "file", File.String())
	assert.Equal(t, "/x", (&Entry{Path: "/r/x"}).Rel(2))
	assert.Equal(t, "", (&Entry{Path: "/r"}).Rel(5))
}
