package historylog

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/greymass/statehistory/internal/logger"
)

// Log is a single append-only, block-indexed history log backed by a data
// file (<name>.log) and a parallel fixed-stride index file (<name>.index).
// It is single-writer, many-reader: callers that move the writer and
// readers onto separate goroutines must take Log's mutex for every
// operation, which is exactly what the exported methods already do.
type Log struct {
	mu sync.Mutex

	logFile   *os.File
	indexFile *os.File

	beginBlock uint32
	endBlock   uint32
}

// Open creates or attaches to the log and index files at the given paths,
// recovering from any crash-truncated trailing record.
func Open(logPath, indexPath string) (*Log, error) {
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	indexFile, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	l := &Log{logFile: logFile, indexFile: indexFile}
	if err := l.recover(); err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying files.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err1 := l.logFile.Close()
	err2 := l.indexFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// BeginBlock returns the lowest block_num currently readable.
func (l *Log) BeginBlock() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.beginBlock
}

// EndBlock returns one past the highest block_num currently readable.
func (l *Log) EndBlock() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endBlock
}

// Range returns (begin_block, end_block) atomically.
func (l *Log) Range() (begin, end uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.beginBlock, l.endBlock
}

// GetEntry returns the header and payload for blockNum, or ErrOutOfRange
// if blockNum is not in [begin_block, end_block).
func (l *Log) GetEntry(blockNum uint32) (EntryHeader, []byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if blockNum < l.beginBlock || blockNum >= l.endBlock {
		return EntryHeader{}, nil, ErrOutOfRange
	}

	pos := int(blockNum - l.beginBlock)
	off, err := l.readIndexRecord(pos)
	if err != nil {
		return EntryHeader{}, nil, err
	}
	header, err := l.readHeaderAt(off)
	if err != nil {
		return EntryHeader{}, nil, err
	}
	payload := make([]byte, header.PayloadSize)
	if header.PayloadSize > 0 {
		if _, err := l.logFile.ReadAt(payload, int64(off)+HeaderSize); err != nil {
			return EntryHeader{}, nil, err
		}
	}
	return header, payload, nil
}

// WriteEntry appends a new entry for header.BlockNum carrying payload.
// header.PayloadSize is recomputed from len(payload) before being written.
//
// If header.BlockNum <= end_block-1, this is a fork: the log truncates to
// drop every entry with block_num >= header.BlockNum before appending.
// Continuity is always checked against the entry (if any) now occupying
// block_num-1.
func (l *Log) WriteEntry(header EntryHeader, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	header.PayloadSize = uint64(len(payload))

	if l.endBlock > l.beginBlock && header.BlockNum < l.endBlock {
		if err := l.truncateForForkLocked(header.BlockNum); err != nil {
			return err
		}
	}

	switch {
	case l.endBlock == l.beginBlock:
		// Empty log: accept any block_num, begin_block latches to it.
	case header.BlockNum != l.endBlock:
		return ErrGap
	}

	if header.BlockNum > 0 {
		if prevHeader, _, err := l.getEntryLocked(header.BlockNum - 1); err == nil {
			if prevHeader.BlockID != header.PrevBlockID {
				return ErrForkMismatch
			}
		} else if err != ErrOutOfRange {
			return err
		}
	}

	off, err := l.logFile.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := l.logFile.Write(header.Bytes()); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := l.logFile.Write(payload); err != nil {
			return err
		}
	}
	if err := l.logFile.Sync(); err != nil {
		return err
	}

	pos := 0
	if l.endBlock > l.beginBlock {
		pos = int(header.BlockNum - l.beginBlock)
	}
	if err := l.writeIndexRecord(pos, uint64(off)); err != nil {
		return err
	}
	if err := l.indexFile.Sync(); err != nil {
		return err
	}

	if l.endBlock == l.beginBlock {
		l.beginBlock = header.BlockNum
	}
	l.endBlock = header.BlockNum + 1
	return nil
}

// getEntryLocked is GetEntry without re-taking the mutex, for internal use
// from within WriteEntry.
func (l *Log) getEntryLocked(blockNum uint32) (EntryHeader, []byte, error) {
	if blockNum < l.beginBlock || blockNum >= l.endBlock {
		return EntryHeader{}, nil, ErrOutOfRange
	}
	pos := int(blockNum - l.beginBlock)
	off, err := l.readIndexRecord(pos)
	if err != nil {
		return EntryHeader{}, nil, err
	}
	header, err := l.readHeaderAt(off)
	return header, nil, err
}

func (l *Log) truncateForForkLocked(newBlockNum uint32) error {
	if newBlockNum <= l.beginBlock {
		logger.Printf("historylog", "fork truncates log entirely: incoming block %d <= begin_block %d", newBlockNum, l.beginBlock)
		if err := l.logFile.Truncate(0); err != nil {
			return err
		}
		if err := l.indexFile.Truncate(0); err != nil {
			return err
		}
		l.beginBlock = 0
		l.endBlock = 0
		return nil
	}

	keep := int(newBlockNum - l.beginBlock)
	off, err := l.readIndexRecord(keep - 1)
	if err != nil {
		return err
	}
	lastHeader, err := l.readHeaderAt(off)
	if err != nil {
		return err
	}
	endOffset := off + HeaderSize + lastHeader.PayloadSize

	logger.Printf("historylog", "fork: truncating to block %d (dropping %d entries)", newBlockNum-1, l.endBlock-newBlockNum)

	if err := l.logFile.Truncate(int64(endOffset)); err != nil {
		return err
	}
	if err := l.indexFile.Truncate(int64(keep) * indexRecordSize); err != nil {
		return err
	}
	l.endBlock = newBlockNum
	return nil
}

func (l *Log) readHeaderAt(offset uint64) (EntryHeader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := l.logFile.ReadAt(buf, int64(offset)); err != nil {
		return EntryHeader{}, err
	}
	return ParseEntryHeader(buf)
}

func (l *Log) readIndexRecord(pos int) (uint64, error) {
	buf := make([]byte, indexRecordSize)
	if _, err := l.indexFile.ReadAt(buf, int64(pos)*indexRecordSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (l *Log) writeIndexRecord(pos int, offset uint64) error {
	buf := make([]byte, indexRecordSize)
	binary.LittleEndian.PutUint64(buf, offset)
	_, err := l.indexFile.WriteAt(buf, int64(pos)*indexRecordSize)
	return err
}
