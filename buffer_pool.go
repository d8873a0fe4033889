package mindb

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog/log"
)

// BufferManagerObserver is the hook the (out-of-scope) WAL implementation
// uses to enforce write-ahead ordering without the buffer manager
// knowing anything about WAL internals, per spec.md §4.2/§9.
type BufferManagerObserver interface {
	// BeforeWriteDirtyPages is called with the set of pages about to be
	// flushed to disk; the buffer manager does not proceed with the
	// flush until this returns.
	BeforeWriteDirtyPages(pages []*DBPage) error
}

type bufferKey struct {
	file *DBFile
	page PageID
}

type bufferFrame struct {
	key     bufferKey
	page    *DBPage
	bytes   int
	element *list.Element // position in the eviction list
}

// BufferManager bounds the number of cached bytes and serves pinned
// pages, per spec.md §4.2. One coarse mutex guards the cache map, the
// observer list, per-session pin map, and the byte counter — contention
// is accepted in exchange for straightforward correctness (spec.md §5).
type BufferManager struct {
	mu sync.Mutex

	policy        CachePolicy
	maxCacheSize  int64
	totalBytes    int64
	frames        map[bufferKey]*bufferFrame
	evictionOrder *list.List // front = most recently used/added

	observers []BufferManagerObserver
	pins      map[string]map[bufferKey]int // session id -> page -> pin count

	hits, misses uint64
}

// NewBufferManager creates a buffer manager bounded to maxCacheSize bytes
// with the given eviction policy.
func NewBufferManager(maxCacheSize int64, policy CachePolicy) *BufferManager {
	return &BufferManager{
		policy:        policy,
		maxCacheSize:  maxCacheSize,
		frames:        make(map[bufferKey]*bufferFrame),
		evictionOrder: list.New(),
		pins:          make(map[string]map[bufferKey]int),
	}
}

// AddObserver registers a BufferManagerObserver (the WAL hooks in here).
func (bm *BufferManager) AddObserver(o BufferManagerObserver) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.observers = append(bm.observers, o)
}

// GetPage returns a pinned page for (file, pageNo), loading it from disk
// through fm on a cache miss. If the page doesn't exist and create is
// false, it returns (nil, nil).
func (bm *BufferManager) GetPage(fm *FileManager, file *DBFile, pageNo PageID, create bool, sess *SessionHandle) (*DBPage, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	key := bufferKey{file, pageNo}
	if frame, ok := bm.frames[key]; ok {
		bm.hits++
		frame.page.pin()
		bm.recordPin(sess, key)
		bm.touch(key, frame)
		return frame.page, nil
	}
	bm.misses++

	buf := make([]byte, file.PageSize)
	ok, err := fm.LoadPage(file, pageNo, buf, create)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	page, err := LoadDBPageFromBytes(file, buf)
	if err != nil {
		// A freshly-extended all-zero page has no valid checksum yet;
		// treat it as a brand new page rather than a corruption.
		page = NewDBPage(file, pageNo, file.PageSize)
	}

	if err := bm.allocBuffer(int64(file.PageSize)); err != nil {
		return nil, err
	}

	frame := &bufferFrame{key: key, page: page, bytes: file.PageSize}
	bm.frames[key] = frame
	frame.element = bm.evictionOrder.PushFront(key)

	page.pin()
	bm.recordPin(sess, key)
	return page, nil
}

func (bm *BufferManager) touch(key bufferKey, frame *bufferFrame) {
	if bm.policy == PolicyLRU {
		bm.evictionOrder.MoveToFront(frame.element)
	}
	// FIFO never reorders on access.
}

func (bm *BufferManager) recordPin(sess *SessionHandle, key bufferKey) {
	if sess == nil {
		return
	}
	m, ok := bm.pins[sess.ID()]
	if !ok {
		m = make(map[bufferKey]int)
		bm.pins[sess.ID()] = m
	}
	m[key]++
}

// UnpinPage releases one pin held by sess on (file, pageNo). isDirty, if
// true, marks the page dirty.
func (bm *BufferManager) UnpinPage(file *DBFile, pageNo PageID, isDirty bool, sess *SessionHandle) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	key := bufferKey{file, pageNo}
	frame, ok := bm.frames[key]
	if !ok {
		return NewError(KindTupleFile, "page %d of %s not in buffer manager", pageNo, file.Name)
	}
	frame.page.unpin()
	if isDirty {
		frame.page.markDirty()
	}
	if sess != nil {
		if m, ok := bm.pins[sess.ID()]; ok {
			if m[key] > 0 {
				m[key]--
				if m[key] == 0 {
					delete(m, key)
				}
			}
		}
	}
	return nil
}

// UnpinAllSessionPages force-releases every pin sess still holds — the
// end-of-command safety net spec.md §5/§8 requires.
func (bm *BufferManager) UnpinAllSessionPages(sess *SessionHandle) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	m, ok := bm.pins[sess.ID()]
	if !ok {
		return
	}
	for key, count := range m {
		if frame, ok := bm.frames[key]; ok {
			for i := 0; i < count; i++ {
				frame.page.unpin()
			}
		}
	}
	delete(bm.pins, sess.ID())
}

// allocBuffer accounts bytes against maxCacheSize, evicting unpinned
// pages until enough room is free. Must be called with bm.mu held.
func (bm *BufferManager) allocBuffer(bytes int64) error {
	for bm.totalBytes+bytes > bm.maxCacheSize {
		if !bm.evictOne() {
			return NewError(KindTupleFile, "buffer manager: cannot free %d bytes, all %d cached pages pinned", bytes, len(bm.frames))
		}
	}
	bm.totalBytes += bytes
	return nil
}

func (bm *BufferManager) releaseBuffer(bytes int64) {
	bm.totalBytes -= bytes
	if bm.totalBytes < 0 {
		bm.totalBytes = 0
	}
}

// evictOne evicts the least-recently-added/used unpinned page, flushing
// it first if dirty (after running observers). Returns false if every
// cached page is pinned. Must be called with bm.mu held.
func (bm *BufferManager) evictOne() bool {
	for elem := bm.evictionOrder.Back(); elem != nil; elem = elem.Prev() {
		key := elem.Value.(bufferKey)
		frame, ok := bm.frames[key]
		if !ok {
			continue
		}
		if !frame.page.Evictable() {
			continue
		}
		if frame.page.IsDirty() {
			if err := bm.flushLocked([]*bufferFrame{frame}); err != nil {
				log.Warn().Err(err).Uint32("page", uint32(key.page)).Msg("buffer manager: eviction flush failed")
				continue
			}
		}
		bm.evictionOrder.Remove(elem)
		delete(bm.frames, key)
		bm.releaseBuffer(int64(frame.bytes))
		return true
	}
	log.Warn().Msg("buffer manager: no unpinned page available for eviction")
	return false
}

// flushLocked runs observers then writes the given dirty frames to disk,
// clearing their dirty flags. Must be called with bm.mu held.
func (bm *BufferManager) flushLocked(frames []*bufferFrame) error {
	pages := make([]*DBPage, len(frames))
	for i, f := range frames {
		pages[i] = f.page
	}
	for _, obs := range bm.observers {
		if err := obs.BeforeWriteDirtyPages(pages); err != nil {
			return WrapError(KindFileSystem, err, "WAL observer rejected flush")
		}
	}
	for _, f := range frames {
		f.page.UpdateChecksum()
		fm := frameFileManager(f.key.file)
		if err := fm.SavePage(f.key.file, f.key.page, f.page.Data); err != nil {
			return err
		}
		f.page.ClearDirty()
	}
	return nil
}

// frameFileManager is a small seam: each DBFile remembers nothing about
// its owning FileManager, so flushLocked looks the FileManager up here
// for every write-back. Entries are registered by WriteDBFile and
// OpenHeapTupleFile; an unregistered file yields a nil *FileManager.
var defaultFileManagers = struct {
	sync.Mutex
	m map[*DBFile]*FileManager
}{m: make(map[*DBFile]*FileManager)}

func registerFileManager(file *DBFile, fm *FileManager) {
	defaultFileManagers.Lock()
	defaultFileManagers.m[file] = fm
	defaultFileManagers.Unlock()
}

func frameFileManager(file *DBFile) *FileManager {
	defaultFileManagers.Lock()
	defer defaultFileManagers.Unlock()
	return defaultFileManagers.m[file]
}

// WriteDBFile flushes dirty pages of file in [minPageNo, maxPageNo],
// optionally syncing afterward.
func (bm *BufferManager) WriteDBFile(fm *FileManager, file *DBFile, minPageNo, maxPageNo PageID, sync bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	registerFileManager(file, fm)
	var toFlush []*bufferFrame
	for key, frame := range bm.frames {
		if key.file != file || key.page < minPageNo || key.page > maxPageNo {
			continue
		}
		if frame.page.IsDirty() {
			toFlush = append(toFlush, frame)
		}
	}
	if len(toFlush) > 0 {
		if err := bm.flushLocked(toFlush); err != nil {
			return err
		}
	}
	if sync {
		return fm.SyncDBFile(file)
	}
	return nil
}

// WriteAll flushes every dirty page across every cached file.
func (bm *BufferManager) WriteAll(sync bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	byFile := make(map[*DBFile][]*bufferFrame)
	for key, frame := range bm.frames {
		if frame.page.IsDirty() {
			byFile[key.file] = append(byFile[key.file], frame)
		}
	}
	for file, frames := range byFile {
		if err := bm.flushLocked(frames); err != nil {
			return err
		}
		if sync {
			if fm := frameFileManager(file); fm != nil {
				if err := fm.SyncDBFile(file); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FlushDBFile is an alias for WriteDBFile over the file's full page
// range, matching the teacher's separate Flush*/Write* naming.
func (bm *BufferManager) FlushDBFile(fm *FileManager, file *DBFile) error {
	return bm.WriteDBFile(fm, file, 0, PageID(^uint32(0)), true)
}

// FlushAll is WriteAll(true).
func (bm *BufferManager) FlushAll() error { return bm.WriteAll(true) }

// RemoveAll evicts every cached page without flushing (used for tests
// and for a clean shutdown after WriteAll has already run).
func (bm *BufferManager) RemoveAll() {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.frames = make(map[bufferKey]*bufferFrame)
	bm.evictionOrder = list.New()
	bm.totalBytes = 0
}

// Stats reports cache hit/miss counters and current byte usage.
func (bm *BufferManager) Stats() (hits, misses uint64, totalBytes, maxBytes int64) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.hits, bm.misses, bm.totalBytes, bm.maxCacheSize
}
