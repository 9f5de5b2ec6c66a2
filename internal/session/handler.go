package session

import (
	"github.com/greymass/statehistory/internal/historylog"
	"github.com/greymass/statehistory/internal/protocol"
	"github.com/greymass/statehistory/internal/statecapture"
)

// ChainEngine is the read surface a get_status_request_v0 needs beyond
// what the history logs already carry: the chain's own last-irreversible
// pointer and, for get_block_result_v0's "block" field, a serialized
// block lookup.
type ChainEngine interface {
	statecapture.ChainEngine
	EncodeBlock(block any) ([]byte, error)
}

// LogHandler implements Handler against the three open history logs and
// a chain engine: absent data is reported as an absent optional field,
// never as a protocol-level error.
type LogHandler struct {
	Chain         ChainEngine
	BlockStateLog *historylog.Log
	TraceLog      *historylog.Log
	ChainStateLog *historylog.Log
}

func (h *LogHandler) HandleGetStatus() protocol.GetStatusResultV0 {
	lib, libID := h.Chain.LastIrreversible()
	begin, end := h.ChainStateLog.Range()
	return protocol.GetStatusResultV0{
		LastIrreversibleBlockNum: lib,
		LastIrreversibleBlockID:  libID,
		StateBeginBlockNum:       begin,
		StateEndBlockNum:         end,
	}
}

func (h *LogHandler) HandleGetBlock(blockNum uint32) protocol.GetBlockResultV0 {
	result := protocol.GetBlockResultV0{BlockNum: blockNum}

	if block, ok := h.Chain.BlockByNumber(blockNum); ok {
		if encoded, err := h.Chain.EncodeBlock(block); err == nil {
			result.Block = encoded
		}
	}

	if _, payload, err := h.BlockStateLog.GetEntry(blockNum); err == nil {
		result.BlockState = presentOrEmpty(statecapture.StripLengthPrefix(payload))
	}
	if _, payload, err := h.TraceLog.GetEntry(blockNum); err == nil {
		result.Traces = presentOrEmpty(statecapture.StripLengthPrefix(payload))
	}
	if _, payload, err := h.ChainStateLog.GetEntry(blockNum); err == nil {
		result.Deltas = presentOrEmpty(statecapture.StripLengthPrefix(payload))
	}

	return result
}

// presentOrEmpty guarantees a non-nil slice for a log entry that exists
// but carries no payload (block_state today), so the wire codec's
// presence byte reflects "entry found" rather than "payload non-empty".
func presentOrEmpty(stripped []byte) []byte {
	if stripped == nil {
		return []byte{}
	}
	return stripped
}
