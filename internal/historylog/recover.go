package historylog

import (
	"github.com/greymass/statehistory/internal/logger"
)

// recover establishes begin_block/end_block on open, truncating any
// trailing partial record so that the durability invariant (every index
// record references a complete log entry) holds before the log is used.
func (l *Log) recover() error {
	indexStat, err := l.indexFile.Stat()
	if err != nil {
		return err
	}
	numRecords := int(indexStat.Size() / indexRecordSize)
	if indexStat.Size()%indexRecordSize != 0 {
		logger.Printf("historylog", "dropping partial trailing index record")
		if err := l.indexFile.Truncate(int64(numRecords) * indexRecordSize); err != nil {
			return err
		}
	}

	logStat, err := l.logFile.Stat()
	if err != nil {
		return err
	}
	logSize := uint64(logStat.Size())

	if numRecords == 0 {
		if logSize == 0 {
			l.beginBlock, l.endBlock = 0, 0
			return nil
		}
		return l.rebuildFromScratch(logSize)
	}

	firstOffset, err := l.readIndexRecord(0)
	if err != nil {
		return err
	}
	firstHeader, err := l.readHeaderAt(firstOffset)
	if err != nil {
		// Even the first entry is unreadable; fall back to a full scan.
		return l.rebuildFromScratch(logSize)
	}
	beginBlock := firstHeader.BlockNum

	for n := numRecords; n > 0; n-- {
		off, err := l.readIndexRecord(n - 1)
		if err != nil {
			continue
		}
		header, complete := l.tryReadCompleteEntry(off, logSize)
		if !complete {
			continue
		}

		endOffset := off + HeaderSize + header.PayloadSize
		if logSize > endOffset {
			logger.Printf("historylog", "truncating trailing unindexed bytes (%d bytes after block %d)", logSize-endOffset, header.BlockNum)
			if err := l.logFile.Truncate(int64(endOffset)); err != nil {
				return err
			}
		}
		if n != numRecords {
			logger.Printf("historylog", "dropping %d crash-truncated index record(s)", numRecords-n)
			if err := l.indexFile.Truncate(int64(n) * indexRecordSize); err != nil {
				return err
			}
		}
		l.beginBlock = beginBlock
		l.endBlock = header.BlockNum + 1
		return nil
	}

	// No index record points at a complete entry; reconstruct from the
	// log itself.
	logger.Printf("historylog", "index unusable, rebuilding from log data")
	if err := l.indexFile.Truncate(0); err != nil {
		return err
	}
	if logSize == 0 {
		l.beginBlock, l.endBlock = 0, 0
		return nil
	}
	return l.rebuildFromScratch(logSize)
}

// tryReadCompleteEntry reads the header at off and reports whether the log
// file is long enough to contain the header plus its full payload.
func (l *Log) tryReadCompleteEntry(off, logSize uint64) (EntryHeader, bool) {
	if off+HeaderSize > logSize {
		return EntryHeader{}, false
	}
	header, err := l.readHeaderAt(off)
	if err != nil {
		return EntryHeader{}, false
	}
	if off+HeaderSize+header.PayloadSize > logSize {
		return EntryHeader{}, false
	}
	return header, true
}

// rebuildFromScratch scans the log file sequentially from offset 0,
// rewriting the index as it validates each entry, and stops (truncating
// the log) at the first incomplete or malformed entry.
func (l *Log) rebuildFromScratch(logSize uint64) error {
	var (
		off        uint64
		beginBlock uint32
		endBlock   uint32
		have       bool
		pos        int
	)

	for off < logSize {
		header, complete := l.tryReadCompleteEntry(off, logSize)
		if !complete {
			break
		}
		if err := l.writeIndexRecord(pos, off); err != nil {
			return err
		}
		if !have {
			beginBlock = header.BlockNum
			have = true
		}
		endBlock = header.BlockNum + 1
		off += HeaderSize + header.PayloadSize
		pos++
	}

	if err := l.indexFile.Truncate(int64(pos) * indexRecordSize); err != nil {
		return err
	}
	if off < logSize {
		logger.Printf("historylog", "rebuild: dropping %d trailing bytes of incomplete entry", logSize-off)
	}
	if err := l.logFile.Truncate(int64(off)); err != nil {
		return err
	}

	l.beginBlock = beginBlock
	l.endBlock = endBlock
	return nil
}
