package mindb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testPageSize = 4096

func newTestDBFile(t *testing.T, fm *FileManager, name string) *DBFile {
	t.Helper()
	df, err := fm.CreateDBFile(name, FileTypeHeap, testPageSize)
	require.NoError(t, err)
	return df
}

func TestBufferManagerPinUnpin(t *testing.T) {
	fm, err := NewFileManager(t.TempDir())
	require.NoError(t, err)
	df := newTestDBFile(t, fm, "t1.heap")
	bm := NewBufferManager(int64(testPageSize)*16, PolicyLRU)
	sess := NewSessionHandle("s1")

	page, err := bm.GetPage(fm, df, 1, true, sess)
	require.NoError(t, err)
	require.Equal(t, 1, page.PinCount())

	require.NoError(t, bm.UnpinPage(df, 1, false, sess))
	require.Equal(t, 0, page.PinCount())
}

func TestBufferManagerCacheHit(t *testing.T) {
	fm, err := NewFileManager(t.TempDir())
	require.NoError(t, err)
	df := newTestDBFile(t, fm, "t1.heap")
	bm := NewBufferManager(int64(testPageSize)*16, PolicyLRU)
	sess := NewSessionHandle("s1")

	p1, err := bm.GetPage(fm, df, 1, true, sess)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(df, 1, false, sess))

	p2, err := bm.GetPage(fm, df, 1, true, sess)
	require.NoError(t, err)
	require.Same(t, p1, p2, "a second fetch of the same page should hit the cache, not reload")

	hits, _, _, _ := bm.Stats()
	require.GreaterOrEqual(t, hits, uint64(1))
}

func TestBufferManagerEvictsUnpinnedPages(t *testing.T) {
	fm, err := NewFileManager(t.TempDir())
	require.NoError(t, err)
	df := newTestDBFile(t, fm, "t1.heap")
	// Small enough to hold only one page at a time.
	bm := NewBufferManager(int64(testPageSize), PolicyLRU)
	sess := NewSessionHandle("s1")

	p1, err := bm.GetPage(fm, df, 1, true, sess)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(df, 1, false, sess))

	p2, err := bm.GetPage(fm, df, 2, true, sess)
	require.NoError(t, err)
	require.NotSame(t, p1, p2)
	require.NoError(t, bm.UnpinPage(df, 2, false, sess))
}

type recordingObserver struct {
	calls int
}

func (o *recordingObserver) BeforeWriteDirtyPages(pages []*DBPage) error {
	o.calls++
	return nil
}

func TestBufferManagerNotifiesObserverBeforeFlush(t *testing.T) {
	fm, err := NewFileManager(t.TempDir())
	require.NoError(t, err)
	df := newTestDBFile(t, fm, "t1.heap")
	bm := NewBufferManager(int64(testPageSize)*16, PolicyLRU)
	sess := NewSessionHandle("s1")
	obs := &recordingObserver{}
	bm.AddObserver(obs)

	page, err := bm.GetPage(fm, df, 1, true, sess)
	require.NoError(t, err)
	require.NoError(t, bm.UnpinPage(df, 1, true, sess))
	_ = page

	require.NoError(t, bm.FlushAll())
	require.Equal(t, 1, obs.calls, "the WAL-style observer must see dirty pages before they're written")
}
