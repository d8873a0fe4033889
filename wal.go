package mindb

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// WAL record types. Only enough is modeled to satisfy the
// BufferManagerObserver contract boundary (spec.md §1, §4.2, §9): a
// full ARIES redo/undo log and transaction state machine are out of
// scope, so there is no BEGIN/COMMIT/ABORT bookkeeping here.
const (
	WALRecordPageImage = 1
)

const (
	walSegmentSize      = 16 * 1024 * 1024
	walRecordHeaderSize = 21 // lsn(8) + pageID(4) + recordType(1) + length(4) + checksum(4)
)

// WALRecordHeader is one log record's fixed-layout prefix.
type WALRecordHeader struct {
	LSN        LSN
	PageID     PageID
	RecordType uint8
	Length     uint32
	Checksum   uint32
}

// WALRecord is a header plus the page image it protects.
type WALRecord struct {
	Header WALRecordHeader
	Data   []byte
}

// WALManager is a minimal write-ahead logger: it implements
// BufferManagerObserver so the buffer manager cannot flush a dirty page
// before that page's pre-image has been durably logged. Grounded on
// teacher's wal.go (segment-append style, CRC32-checksummed records,
// 16MB segment rollover); trimmed per spec.md §1 to just this contract
// boundary — no recovery replay, no transaction IDs, since the WAL/txn
// manager proper is an external collaborator the spec only names at its
// interface to the buffer cache.
type WALManager struct {
	mu          sync.Mutex
	walDir      string
	currentFile *os.File
	currentLSN  LSN
	segmentNum  uint32
}

// NewWALManager opens (creating if needed) a WAL directory and recovers
// the next LSN to assign from any existing segments.
func NewWALManager(walDir string) (*WALManager, error) {
	if err := os.MkdirAll(walDir, 0o755); err != nil {
		return nil, WrapError(KindFileSystem, err, "creating WAL directory")
	}
	wm := &WALManager{walDir: walDir, currentLSN: 1}
	if err := wm.openSegment(0); err != nil {
		return nil, err
	}
	if err := wm.recoverLSN(); err != nil {
		return nil, err
	}
	return wm, nil
}

func (wm *WALManager) openSegment(segmentNum uint32) error {
	filename := filepath.Join(wm.walDir, fmt.Sprintf("wal_%08d", segmentNum))
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return WrapError(KindFileSystem, err, "opening WAL segment")
	}
	if wm.currentFile != nil {
		wm.currentFile.Close()
	}
	wm.currentFile = file
	wm.segmentNum = segmentNum
	return nil
}

func (wm *WALManager) recoverLSN() error {
	files, err := filepath.Glob(filepath.Join(wm.walDir, "wal_*"))
	if err != nil {
		return WrapError(KindFileSystem, err, "listing WAL segments")
	}
	maxLSN := LSN(0)
	for _, filename := range files {
		file, err := os.Open(filename)
		if err != nil {
			continue
		}
		for {
			rec, err := readRecord(file)
			if err == io.EOF || err != nil {
				break
			}
			if rec.Header.LSN > maxLSN {
				maxLSN = rec.Header.LSN
			}
		}
		file.Close()
	}
	wm.currentLSN = maxLSN + 1
	return nil
}

// BeforeWriteDirtyPages implements BufferManagerObserver: every page
// about to be flushed gets its pre-mutation image (if one was captured)
// appended to the log first, so a crash between log-append and data-file
// write can still recover the old image. Pages with no captured OldData
// are logged with their current bytes as a baseline record.
func (wm *WALManager) BeforeWriteDirtyPages(pages []*DBPage) error {
	for _, p := range pages {
		image := p.OldData()
		if image == nil {
			image = p.Data
		}
		if _, err := wm.appendRecord(p.Header.PageID, WALRecordPageImage, image); err != nil {
			return err
		}
	}
	return wm.sync()
}

func (wm *WALManager) appendRecord(pageID PageID, recordType uint8, data []byte) (LSN, error) {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	lsn := wm.currentLSN
	wm.currentLSN++

	rec := WALRecord{Header: WALRecordHeader{
		LSN: lsn, PageID: pageID, RecordType: recordType,
		Length: uint32(walRecordHeaderSize + len(data)),
	}, Data: data}
	rec.Header.Checksum = checksumRecord(&rec)
	buf := serializeRecord(&rec)

	info, err := wm.currentFile.Stat()
	if err != nil {
		return 0, WrapError(KindFileSystem, err, "stat WAL segment")
	}
	if info.Size()+int64(len(buf)) > walSegmentSize {
		if err := wm.openSegment(wm.segmentNum + 1); err != nil {
			return 0, err
		}
	}
	if _, err := wm.currentFile.Write(buf); err != nil {
		return 0, WrapError(KindFileSystem, err, "appending WAL record")
	}
	return lsn, nil
}

func (wm *WALManager) sync() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.currentFile == nil {
		return nil
	}
	return WrapError(KindFileSystem, wm.currentFile.Sync(), "syncing WAL")
}

func serializeRecord(rec *WALRecord) []byte {
	buf := make([]byte, rec.Header.Length)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.Header.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(rec.Header.PageID))
	buf[12] = rec.Header.RecordType
	binary.LittleEndian.PutUint32(buf[13:17], rec.Header.Length)
	binary.LittleEndian.PutUint32(buf[17:21], rec.Header.Checksum)
	copy(buf[walRecordHeaderSize:], rec.Data)
	return buf
}

func checksumRecord(rec *WALRecord) uint32 {
	buf := make([]byte, walRecordHeaderSize-4+len(rec.Data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.Header.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(rec.Header.PageID))
	buf[12] = rec.Header.RecordType
	binary.LittleEndian.PutUint32(buf[13:17], rec.Header.Length)
	copy(buf[17:], rec.Data)
	return crc32.ChecksumIEEE(buf)
}

func readRecord(file *os.File) (*WALRecord, error) {
	header := make([]byte, walRecordHeaderSize)
	n, err := file.Read(header)
	if err != nil {
		return nil, err
	}
	if n != walRecordHeaderSize {
		return nil, io.EOF
	}
	h := WALRecordHeader{
		LSN:        LSN(binary.LittleEndian.Uint64(header[0:8])),
		PageID:     PageID(binary.LittleEndian.Uint32(header[8:12])),
		RecordType: header[12],
		Length:     binary.LittleEndian.Uint32(header[13:17]),
		Checksum:   binary.LittleEndian.Uint32(header[17:21]),
	}
	dataLen := int(h.Length) - walRecordHeaderSize
	if dataLen < 0 {
		return nil, NewError(KindDataFormat, "corrupt WAL record length")
	}
	data := make([]byte, dataLen)
	n, err = file.Read(data)
	if err != nil {
		return nil, err
	}
	if n != dataLen {
		return nil, io.EOF
	}
	return &WALRecord{Header: h, Data: data}, nil
}

// Close syncs and closes the current segment.
func (wm *WALManager) Close() error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.currentFile == nil {
		return nil
	}
	if err := wm.currentFile.Sync(); err != nil {
		return WrapError(KindFileSystem, err, "syncing WAL on close")
	}
	return wm.currentFile.Close()
}
