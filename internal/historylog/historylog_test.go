package historylog

import (
	"os"
	"path/filepath"
	"testing"
)

func open(t *testing.T, dir string) *Log {
	t.Helper()
	l, err := Open(filepath.Join(dir, "test.log"), filepath.Join(dir, "test.index"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func header(blockNum uint32, id, prev byte) EntryHeader {
	h := EntryHeader{BlockNum: blockNum}
	h.BlockID[0] = id
	h.PrevBlockID[0] = prev
	return h
}

func TestRangeConsistency(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir)
	defer l.Close()

	for i := uint32(100); i < 110; i++ {
		prev := byte(0)
		if i > 100 {
			prev = byte(i - 1)
		}
		if err := l.WriteEntry(header(i, byte(i), prev), []byte{byte(i)}); err != nil {
			t.Fatalf("WriteEntry(%d): %v", i, err)
		}
	}

	begin, end := l.Range()
	if begin != 100 || end != 110 {
		t.Fatalf("Range() = (%d, %d), want (100, 110)", begin, end)
	}

	for n := begin; n < end; n++ {
		h, payload, err := l.GetEntry(n)
		if err != nil {
			t.Fatalf("GetEntry(%d): %v", n, err)
		}
		if h.BlockNum != n {
			t.Fatalf("GetEntry(%d).BlockNum = %d", n, h.BlockNum)
		}
		if len(payload) != 1 || payload[0] != byte(n) {
			t.Fatalf("GetEntry(%d) payload = %v", n, payload)
		}
	}
}

func TestGetEntryOutOfRange(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir)
	defer l.Close()

	if err := l.WriteEntry(header(100, 1, 0), nil); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if _, _, err := l.GetEntry(101); err != ErrOutOfRange {
		t.Fatalf("GetEntry(101) err = %v, want ErrOutOfRange", err)
	}
	if _, _, err := l.GetEntry(99); err != ErrOutOfRange {
		t.Fatalf("GetEntry(99) err = %v, want ErrOutOfRange", err)
	}
}

func TestWriteGap(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir)
	defer l.Close()

	if err := l.WriteEntry(header(100, 1, 0), nil); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := l.WriteEntry(header(102, 2, 1), nil); err != ErrGap {
		t.Fatalf("WriteEntry gap err = %v, want ErrGap", err)
	}
}

func TestForkTruncation(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir)
	defer l.Close()

	for i := uint32(100); i < 105; i++ {
		prev := byte(0)
		if i > 100 {
			prev = byte(i - 1)
		}
		if err := l.WriteEntry(header(i, byte(i), prev), nil); err != nil {
			t.Fatalf("WriteEntry(%d): %v", i, err)
		}
	}

	// Fork at 102 with a new id; prev_block_id must match the id stored
	// at 101 (byte(101)).
	if err := l.WriteEntry(header(102, 200, 101), nil); err != nil {
		t.Fatalf("fork WriteEntry: %v", err)
	}

	begin, end := l.Range()
	if begin != 100 || end != 103 {
		t.Fatalf("Range() after fork = (%d, %d), want (100, 103)", begin, end)
	}
	h, _, err := l.GetEntry(102)
	if err != nil {
		t.Fatalf("GetEntry(102): %v", err)
	}
	if h.BlockID[0] != 200 {
		t.Fatalf("GetEntry(102).BlockID[0] = %d, want 200", h.BlockID[0])
	}
}

func TestForkMismatch(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir)
	defer l.Close()

	for i := uint32(100); i < 103; i++ {
		prev := byte(0)
		if i > 100 {
			prev = byte(i - 1)
		}
		if err := l.WriteEntry(header(i, byte(i), prev), nil); err != nil {
			t.Fatalf("WriteEntry(%d): %v", i, err)
		}
	}

	// prev_block_id for block 102 should be 101, not 99.
	if err := l.WriteEntry(header(102, 200, 99), nil); err != ErrForkMismatch {
		t.Fatalf("fork mismatch err = %v, want ErrForkMismatch", err)
	}
}

func TestCrashRecoveryTruncatesPartialPayload(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	indexPath := filepath.Join(dir, "test.index")

	l, err := Open(logPath, indexPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint32(100); i < 103; i++ {
		prev := byte(0)
		if i > 100 {
			prev = byte(i - 1)
		}
		if err := l.WriteEntry(header(i, byte(i), prev), []byte("payload")); err != nil {
			t.Fatalf("WriteEntry(%d): %v", i, err)
		}
	}
	l.Close()

	// Simulate a crash mid-payload on the last entry: truncate the log
	// file by one byte without touching the index.
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(logPath, info.Size()-1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	l2, err := Open(logPath, indexPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	begin, end := l2.Range()
	if begin != 100 || end != 102 {
		t.Fatalf("Range() after crash recovery = (%d, %d), want (100, 102)", begin, end)
	}
	if _, _, err := l2.GetEntry(102); err != ErrOutOfRange {
		t.Fatalf("GetEntry(102) err = %v, want ErrOutOfRange", err)
	}
}

func TestCrashRecoveryRebuildsFromLogWhenIndexMissing(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	indexPath := filepath.Join(dir, "test.index")

	l, err := Open(logPath, indexPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint32(100); i < 104; i++ {
		prev := byte(0)
		if i > 100 {
			prev = byte(i - 1)
		}
		if err := l.WriteEntry(header(i, byte(i), prev), []byte("x")); err != nil {
			t.Fatalf("WriteEntry(%d): %v", i, err)
		}
	}
	l.Close()

	// Simulate the crash-before-index-append case: empty the index file,
	// leaving a fully-written log behind.
	if err := os.Truncate(indexPath, 0); err != nil {
		t.Fatalf("Truncate index: %v", err)
	}

	l2, err := Open(logPath, indexPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	begin, end := l2.Range()
	if begin != 100 || end != 104 {
		t.Fatalf("Range() after rebuild = (%d, %d), want (100, 104)", begin, end)
	}
	h, payload, err := l2.GetEntry(103)
	if err != nil {
		t.Fatalf("GetEntry(103): %v", err)
	}
	if h.BlockNum != 103 || string(payload) != "x" {
		t.Fatalf("GetEntry(103) = %+v, %q", h, payload)
	}
}

func TestEmptyLogOpenAndWrite(t *testing.T) {
	dir := t.TempDir()
	l := open(t, dir)
	defer l.Close()

	begin, end := l.Range()
	if begin != 0 || end != 0 {
		t.Fatalf("Range() on empty log = (%d, %d), want (0, 0)", begin, end)
	}

	// An empty log accepts any starting block number.
	if err := l.WriteEntry(header(500, 1, 0), nil); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	begin, end = l.Range()
	if begin != 500 || end != 501 {
		t.Fatalf("Range() = (%d, %d), want (500, 501)", begin, end)
	}
}
