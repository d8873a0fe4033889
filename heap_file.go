package mindb

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// HeapTupleFile stores a table's tuples unordered across pages of one
// DBFile, page 0 reserved for the file-type header (spec.md §6).
// Grounded on teacher's heapfile.go (InsertTuple/GetTuple/UpdateTuple/
// DeleteTuple/Scan via a free-space map), adapted onto the shared
// TupleFile interface and typed Tuple/Schema instead of byte Row blobs.
type HeapTupleFile struct {
	mu sync.Mutex

	name   string
	schema *Schema
	fm     *FileManager
	file   *DBFile
	bufMgr *BufferManager
	fsm    *FreeSpaceMap
}

// OpenHeapTupleFile opens name as a heap file, creating it (and its
// backing DBFile) if it does not already exist.
func OpenHeapTupleFile(fm *FileManager, bufMgr *BufferManager, name string, schema *Schema, pageSize int) (*HeapTupleFile, error) {
	file, err := fm.OpenDBFile(name)
	if err != nil {
		return nil, err
	}
	if file == nil {
		file, err = fm.CreateDBFile(name, FileTypeHeap, pageSize)
		if err != nil {
			return nil, err
		}
	}
	registerFileManager(file, fm)

	hf := &HeapTupleFile{name: name, schema: schema, fm: fm, file: file, bufMgr: bufMgr, fsm: NewFreeSpaceMap()}
	if err := hf.rebuildFSM(); err != nil {
		return nil, err
	}
	return hf, nil
}

func (hf *HeapTupleFile) rebuildFSM() error {
	numPages, err := hf.file.NumPages()
	if err != nil {
		return err
	}
	for pageNo := PageID(1); pageNo < PageID(numPages); pageNo++ {
		page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, nil)
		if err != nil {
			return err
		}
		if page == nil {
			continue
		}
		hf.fsm.UpdateFreeSpace(pageNo, page.FreeSpace())
		hf.bufMgr.UnpinPage(hf.file, pageNo, false, nil)
	}
	return nil
}

func (hf *HeapTupleFile) Schema() *Schema { return hf.schema }

// AddTuple encodes values and appends them to the first page with room,
// falling back to a full scan and finally to a freshly allocated page.
func (hf *HeapTupleFile) AddTuple(sess *SessionHandle, values []Value) (*Tuple, error) {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	data, err := EncodeTuple(hf.schema, values)
	if err != nil {
		return nil, err
	}
	needed := uint16(len(data))

	if pageNo := hf.fsm.FindPageWithSpace(needed); pageNo != InvalidPageID {
		if ptr, page, ok, err := hf.tryInsertInto(sess, pageNo, data); err != nil {
			return nil, err
		} else if ok {
			return newDiskTuple(hf.schema, values, hf, ptr, page, hf.bufMgr, hf.file, sess), nil
		}
	}

	numPages, err := hf.file.NumPages()
	if err != nil {
		return nil, err
	}
	for pageNo := PageID(1); pageNo < PageID(numPages); pageNo++ {
		ptr, page, ok, err := hf.tryInsertInto(sess, pageNo, data)
		if err != nil {
			return nil, err
		}
		if ok {
			return newDiskTuple(hf.schema, values, hf, ptr, page, hf.bufMgr, hf.file, sess), nil
		}
	}

	newPageNo := PageID(numPages)
	if newPageNo == 0 {
		newPageNo = 1
	}
	page, err := hf.bufMgr.GetPage(hf.fm, hf.file, newPageNo, true, sess)
	if err != nil {
		return nil, err
	}
	slot, err := page.InsertTuple(data)
	if err != nil {
		hf.bufMgr.UnpinPage(hf.file, newPageNo, false, sess)
		return nil, err
	}
	hf.fsm.UpdateFreeSpace(newPageNo, page.FreeSpace())
	ptr := FilePointer{PageNo: newPageNo, Slot: slot}
	return newDiskTuple(hf.schema, values, hf, ptr, page, hf.bufMgr, hf.file, sess), nil
}

// tryInsertInto attempts an insert into pageNo, returning ok=false (with
// the page unpinned again) if it turns out not to fit — the free-space
// map is only a hint.
func (hf *HeapTupleFile) tryInsertInto(sess *SessionHandle, pageNo PageID, data []byte) (FilePointer, *DBPage, bool, error) {
	page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, sess)
	if err != nil {
		return FilePointer{}, nil, false, err
	}
	if page == nil || !page.CanFit(uint16(len(data))) {
		if page != nil {
			hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
		}
		return FilePointer{}, nil, false, nil
	}
	slot, err := page.InsertTuple(data)
	if err != nil {
		hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
		return FilePointer{}, nil, false, nil
	}
	hf.fsm.UpdateFreeSpace(pageNo, page.FreeSpace())
	return FilePointer{PageNo: pageNo, Slot: slot}, page, true, nil
}

// GetTuple fetches the tuple at ptr, pinning its page for the caller.
func (hf *HeapTupleFile) GetTuple(sess *SessionHandle, ptr FilePointer) (*Tuple, error) {
	page, err := hf.bufMgr.GetPage(hf.fm, hf.file, ptr.PageNo, false, sess)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, NewError(KindInvalidFilePointer, "page %d does not exist in %s", ptr.PageNo, hf.name)
	}
	raw, err := page.GetTuple(ptr.Slot)
	if err != nil {
		hf.bufMgr.UnpinPage(hf.file, ptr.PageNo, false, sess)
		return nil, err
	}
	values, err := DecodeTuple(hf.schema, raw)
	if err != nil {
		hf.bufMgr.UnpinPage(hf.file, ptr.PageNo, false, sess)
		return nil, err
	}
	return newDiskTuple(hf.schema, values, hf, ptr, page, hf.bufMgr, hf.file, sess), nil
}

// FirstTuple returns the first live tuple in page order, or nil if the
// file is empty.
func (hf *HeapTupleFile) FirstTuple(sess *SessionHandle) (*Tuple, error) {
	numPages, err := hf.file.NumPages()
	if err != nil {
		return nil, err
	}
	for pageNo := PageID(1); pageNo < PageID(numPages); pageNo++ {
		page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, sess)
		if err != nil {
			return nil, err
		}
		if page == nil {
			continue
		}
		for slot := uint16(0); slot < page.Header.SlotCount; slot++ {
			raw, err := page.GetTuple(slot)
			if err != nil {
				continue
			}
			values, err := DecodeTuple(hf.schema, raw)
			if err != nil {
				hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
				return nil, err
			}
			return newDiskTuple(hf.schema, values, hf, FilePointer{PageNo: pageNo, Slot: slot}, page, hf.bufMgr, hf.file, sess), nil
		}
		hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
	}
	return nil, nil
}

// NextTuple returns the live tuple following cur in page order, or nil
// past the end of the file.
func (hf *HeapTupleFile) NextTuple(sess *SessionHandle, cur *Tuple) (*Tuple, error) {
	numPages, err := hf.file.NumPages()
	if err != nil {
		return nil, err
	}
	pageNo := cur.Pointer.PageNo
	startSlot := cur.Pointer.Slot + 1

	for ; pageNo < PageID(numPages); pageNo++ {
		page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, sess)
		if err != nil {
			return nil, err
		}
		if page == nil {
			startSlot = 0
			continue
		}
		for slot := startSlot; slot < page.Header.SlotCount; slot++ {
			raw, err := page.GetTuple(slot)
			if err != nil {
				continue
			}
			values, err := DecodeTuple(hf.schema, raw)
			if err != nil {
				hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
				return nil, err
			}
			return newDiskTuple(hf.schema, values, hf, FilePointer{PageNo: pageNo, Slot: slot}, page, hf.bufMgr, hf.file, sess), nil
		}
		hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
		startSlot = 0
	}
	return nil, nil
}

// UpdateTuple rewrites ptr's value in place if the new encoding is no
// larger, otherwise deletes and re-inserts (the page may change).
func (hf *HeapTupleFile) UpdateTuple(sess *SessionHandle, ptr FilePointer, values []Value) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	data, err := EncodeTuple(hf.schema, values)
	if err != nil {
		return err
	}
	page, err := hf.bufMgr.GetPage(hf.fm, hf.file, ptr.PageNo, false, sess)
	if err != nil {
		return err
	}
	if page == nil {
		return NewError(KindInvalidFilePointer, "page %d does not exist in %s", ptr.PageNo, hf.name)
	}
	defer hf.bufMgr.UnpinPage(hf.file, ptr.PageNo, true, sess)

	if err := page.UpdateTuple(ptr.Slot, data); err == nil {
		hf.fsm.UpdateFreeSpace(ptr.PageNo, page.FreeSpace())
		return nil
	}
	if err := page.DeleteTuple(ptr.Slot); err != nil {
		return err
	}
	hf.fsm.UpdateFreeSpace(ptr.PageNo, page.FreeSpace())
	// AddTuple takes hf.mu itself, so release it around the re-insert.
	hf.mu.Unlock()
	t, insertErr := hf.AddTuple(sess, values)
	hf.mu.Lock()
	if t != nil {
		t.Unpin()
	}
	return insertErr
}

// DeleteTuple removes ptr's tuple, leaving its slot empty.
func (hf *HeapTupleFile) DeleteTuple(sess *SessionHandle, ptr FilePointer) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	page, err := hf.bufMgr.GetPage(hf.fm, hf.file, ptr.PageNo, false, sess)
	if err != nil {
		return err
	}
	if page == nil {
		return NewError(KindInvalidFilePointer, "page %d does not exist in %s", ptr.PageNo, hf.name)
	}
	defer hf.bufMgr.UnpinPage(hf.file, ptr.PageNo, true, sess)

	if err := page.DeleteTuple(ptr.Slot); err != nil {
		return err
	}
	hf.fsm.UpdateFreeSpace(ptr.PageNo, page.FreeSpace())
	return nil
}

// Analyze recomputes the free-space map from disk; used after bulk loads
// or when the map has drifted.
func (hf *HeapTupleFile) Analyze(sess *SessionHandle) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.rebuildFSM()
}

// Verify walks every page checksum and slot table, reporting structural
// problems without attempting repair.
func (hf *HeapTupleFile) Verify(sess *SessionHandle) []error {
	var errs []error
	numPages, err := hf.file.NumPages()
	if err != nil {
		return []error{err}
	}
	for pageNo := PageID(1); pageNo < PageID(numPages); pageNo++ {
		page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, sess)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if page == nil {
			continue
		}
		for slot := uint16(0); slot < page.Header.SlotCount; slot++ {
			if raw, err := page.GetTuple(slot); err == nil {
				if _, err := DecodeTuple(hf.schema, raw); err != nil {
					errs = append(errs, WrapError(KindDataFormat, err, "page %d slot %d", pageNo, slot))
				}
			}
		}
		hf.bufMgr.UnpinPage(hf.file, pageNo, false, sess)
	}
	return errs
}

// Optimize compacts every page, reclaiming space left by deletes.
func (hf *HeapTupleFile) Optimize(sess *SessionHandle) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()

	numPages, err := hf.file.NumPages()
	if err != nil {
		return err
	}
	for pageNo := PageID(1); pageNo < PageID(numPages); pageNo++ {
		page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, sess)
		if err != nil {
			return err
		}
		if page == nil {
			continue
		}
		page.Compact()
		hf.fsm.UpdateFreeSpace(pageNo, page.FreeSpace())
		hf.bufMgr.UnpinPage(hf.file, pageNo, true, sess)
	}
	log.Info().Str("file", hf.name).Msg("heap file optimized")
	return nil
}

// Stats reports the page/tuple counts the planner reads back for
// FileScan cost estimation. NumDistinctByColumn is left nil and nothing
// fills it in, so selectivity estimates see every column's NDV as unknown.
func (hf *HeapTupleFile) Stats() FileStats {
	numPages, _ := hf.file.NumPages()
	tuples := 0
	for pageNo := PageID(1); pageNo < PageID(numPages); pageNo++ {
		page, err := hf.bufMgr.GetPage(hf.fm, hf.file, pageNo, false, nil)
		if err != nil || page == nil {
			continue
		}
		for slot := uint16(0); slot < page.Header.SlotCount; slot++ {
			if _, err := page.GetTuple(slot); err == nil {
				tuples++
			}
		}
		hf.bufMgr.UnpinPage(hf.file, pageNo, false, nil)
	}
	return FileStats{NumTuples: tuples, NumPages: int(numPages) - 1}
}

// Close syncs and closes the backing DBFile.
func (hf *HeapTupleFile) Close() error {
	if err := hf.bufMgr.FlushDBFile(hf.fm, hf.file); err != nil {
		return err
	}
	return hf.fm.CloseDBFile(hf.file)
}
