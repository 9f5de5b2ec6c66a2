// Package historylog implements the append-only, block-indexed binary log
// used for the three state history logs (block_state_history,
// trace_history, chain_state_history). A log stores at most one entry per
// block number, always appended in strictly increasing block_num, with
// fork-induced truncation and crash-tolerant recovery on open.
package historylog

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the on-disk size of an entry header: block_num(4) +
// block_id(32) + prev_block_id(32) + payload_size(8).
const HeaderSize = 4 + 32 + 32 + 8

// indexRecordSize is the on-disk size of one index record: a single
// little-endian absolute offset into the log file.
const indexRecordSize = 8

var (
	// ErrOutOfRange is returned by GetEntry when block_num falls outside
	// [begin_block, end_block). It is not a fatal error at the protocol
	// level; callers translate it into an absent optional field.
	ErrOutOfRange = errors.New("historylog: block number out of range")

	// ErrForkMismatch is returned by WriteEntry when the incoming entry's
	// prev_block_id does not match the block_id currently stored at
	// block_num-1. Indicates chain-engine misuse; callers should treat
	// this as fatal.
	ErrForkMismatch = errors.New("historylog: fork continuity mismatch")

	// ErrGap is returned by WriteEntry when block_num skips ahead of
	// end_block without going through the fork path.
	ErrGap = errors.New("historylog: block number gap")
)

// BlockID identifies a block's content; the zero value denotes "no
// predecessor" for prev_block_id at block_num 0.
type BlockID [32]byte

// EntryHeader is the fixed header preceding every log entry's payload.
type EntryHeader struct {
	BlockNum     uint32
	BlockID      BlockID
	PrevBlockID  BlockID
	PayloadSize  uint64
}

// Bytes encodes the header in its on-disk little-endian layout.
func (h EntryHeader) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.BlockNum)
	copy(buf[4:36], h.BlockID[:])
	copy(buf[36:68], h.PrevBlockID[:])
	binary.LittleEndian.PutUint64(buf[68:76], h.PayloadSize)
	return buf
}

// ParseEntryHeader decodes a header from its on-disk layout. buf must be
// at least HeaderSize bytes.
func ParseEntryHeader(buf []byte) (EntryHeader, error) {
	if len(buf) < HeaderSize {
		return EntryHeader{}, errors.New("historylog: short header")
	}
	var h EntryHeader
	h.BlockNum = binary.LittleEndian.Uint32(buf[0:4])
	copy(h.BlockID[:], buf[4:36])
	copy(h.PrevBlockID[:], buf[36:68])
	h.PayloadSize = binary.LittleEndian.Uint64(buf[68:76])
	return h, nil
}
