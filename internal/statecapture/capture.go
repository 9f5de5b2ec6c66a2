package statecapture

import (
	"encoding/binary"
	"sync"

	"github.com/greymass/statehistory/internal/chainname"
	"github.com/greymass/statehistory/internal/enforce"
	"github.com/greymass/statehistory/internal/historylog"
	"github.com/greymass/statehistory/internal/logger"
)

// Capture drains the chain engine's per-transaction trace notifications
// and per-block undo-stack state into the three history logs. It is
// invoked from the same executor as the chain engine's own notification
// callbacks, so OnAcceptedBlock never races a concurrent OnAppliedTransaction.
type Capture struct {
	Codec Codec
	DB    UndoDatabase

	BlockStateLog *historylog.Log
	TraceLog      *historylog.Log
	ChainStateLog *historylog.Log

	mu     sync.Mutex
	traces map[TransactionID]any
}

// NewCapture constructs a Capture over the three already-open logs.
func NewCapture(codec Codec, db UndoDatabase, blockStateLog, traceLog, chainStateLog *historylog.Log) *Capture {
	return &Capture{
		Codec:         codec,
		DB:            db,
		BlockStateLog: blockStateLog,
		TraceLog:      traceLog,
		ChainStateLog: chainStateLog,
		traces:        make(map[TransactionID]any),
	}
}

// OnAppliedTransaction buffers a transaction's execution trace until the
// block that commits it (or doesn't) is accepted.
func (c *Capture) OnAppliedTransaction(id TransactionID, trace any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces[id] = trace
}

// OnAcceptedBlock captures a newly accepted block into all three history
// logs. Any log-level write failure (ForkMismatch, Gap, or plain I/O) is
// escalated through enforce.ENFORCE rather than returned: capture cannot
// be partially applied on disk, so such a failure must abort the calling
// process rather than leave the logs inconsistent with each other.
func (c *Capture) OnAcceptedBlock(block BlockInfo) error {
	traces := c.drainTraces(block)

	tracePayload, err := c.encodeTracePayload(traces)
	if err != nil {
		return err
	}
	enforce.ENFORCE(c.TraceLog.WriteEntry(entryHeader(block), tracePayload), "trace_history write failed for block", block.BlockNum)

	// block_state capture is a documented no-op: the interface reserves
	// the payload slot without a defined schema to fill it with yet.
	enforce.ENFORCE(c.BlockStateLog.WriteEntry(entryHeader(block), nil), "block_state_history write failed for block", block.BlockNum)

	deltaPayload, err := c.captureChainState(block)
	if err != nil {
		return err
	}
	enforce.ENFORCE(c.ChainStateLog.WriteEntry(entryHeader(block), deltaPayload), "chain_state_history write failed for block", block.BlockNum)

	return nil
}

func entryHeader(block BlockInfo) historylog.EntryHeader {
	return historylog.EntryHeader{
		BlockNum:    block.BlockNum,
		BlockID:     block.BlockID,
		PrevBlockID: block.PrevBlockID,
	}
}

// drainTraces matches the block's committed transaction ids against the
// pending-traces map, in block order, then clears the map unconditionally
// regardless of how many transactions matched.
func (c *Capture) drainTraces(block BlockInfo) []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := make([]any, 0, len(block.Transactions))
	for _, id := range block.Transactions {
		trace, ok := c.traces[id]
		if !ok {
			logger.Warning("statecapture: missing trace for transaction %x in block %d", id, block.BlockNum)
			continue
		}
		matched = append(matched, trace)
	}
	c.traces = make(map[TransactionID]any)
	return matched
}

func (c *Capture) encodeTracePayload(traces []any) ([]byte, error) {
	bin, err := c.Codec.Encode("transaction_trace[]", traces)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 4+len(bin))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(bin)))
	copy(payload[4:], bin)
	return payload, nil
}

// captureChainState computes the chain-state delta payload for block,
// choosing the fresh/snapshot path when the chain-state log is empty and
// the incremental/undo-stack path otherwise.
func (c *Capture) captureChainState(block BlockInfo) ([]byte, error) {
	begin, end := c.ChainStateLog.Range()
	fresh := begin == end

	if fresh {
		logger.Printf("statecapture", "placing initial state in block %d", block.BlockNum)
	}

	var deltas []TableDelta
	for _, table := range TrackedTables {
		var (
			delta TableDelta
			err   error
		)
		if fresh {
			delta, err = c.snapshotTable(table)
		} else {
			delta, err = c.incrementalTable(table)
		}
		if err != nil {
			return nil, err
		}
		if len(delta.Rows) == 0 {
			continue
		}
		deltas = append(deltas, delta)
	}

	// encodeTableDeltas already emits the payload's u32 length prefix.
	return encodeTableDeltas(deltas), nil
}

func (c *Capture) snapshotTable(table string) (TableDelta, error) {
	rows := c.DB.Snapshot(table)
	if len(rows) == 0 {
		return TableDelta{Name: table}, nil
	}
	delta := TableDelta{Name: table, Rows: make([]RowChange, 0, len(rows))}
	for _, row := range rows {
		payload, err := c.encodeRow(table, row.ID, row.Value, false)
		if err != nil {
			return TableDelta{}, err
		}
		delta.Rows = append(delta.Rows, RowChange{Present: true, Payload: payload})
	}
	return delta, nil
}

func (c *Capture) incrementalTable(table string) (TableDelta, error) {
	undo, ok := c.DB.TableDelta(table)
	if !ok {
		return TableDelta{Name: table}, nil
	}

	delta := TableDelta{Name: table}

	// Modified rows: resolve their current (post-change) value.
	for _, id := range undo.OldValueIDs {
		value, ok := c.DB.CurrentRow(table, id)
		if !ok {
			// Row no longer resolves, skip rather than emit a stale
			// payload; the undo frame's sets are otherwise disjoint.
			continue
		}
		payload, err := c.encodeRow(table, id, value, false)
		if err != nil {
			return TableDelta{}, err
		}
		delta.Rows = append(delta.Rows, RowChange{Present: true, Payload: payload})
	}

	// Newly inserted rows: resolve their current value the same way.
	for _, id := range undo.NewIDs {
		value, ok := c.DB.CurrentRow(table, id)
		if !ok {
			logger.Warning("statecapture: new row %d (%s) in table %s vanished before capture", id, chainname.String(id), table)
			continue
		}
		payload, err := c.encodeRow(table, id, value, false)
		if err != nil {
			return TableDelta{}, err
		}
		delta.Rows = append(delta.Rows, RowChange{Present: true, Payload: payload})
	}

	// Removed rows: emit their pre-state directly.
	for _, removed := range undo.RemovedValues {
		payload, err := c.encodeRow(table, removed.ID, removed.Value, true)
		if err != nil {
			return TableDelta{}, err
		}
		delta.Rows = append(delta.Rows, RowChange{Present: false, Payload: payload})
	}

	return delta, nil
}

// encodeRow serializes a row's value, wrapping it with its owning
// contract_table id first for the six contract_* row tables. removed
// selects which table-id resolution map to consult: a removed row's
// owning table may itself have been removed in the same undo frame.
func (c *Capture) encodeRow(table string, id uint64, value any, removed bool) ([]byte, error) {
	if !needsTableIDResolution(table) {
		return c.Codec.Encode(table, value)
	}

	var (
		tableID uint64
		ok      bool
	)
	if removed {
		tableID, ok = c.DB.RemovedTableID(table, id)
	} else {
		tableID, ok = c.DB.CurrentTableID(table, id)
		if !ok {
			tableID, ok = c.DB.RemovedTableID(table, id)
		}
	}
	if !ok {
		logger.Warning("statecapture: could not resolve table id for %s row %d (%s)", table, id, chainname.String(id))
	}

	return c.Codec.Encode(table, resolvedRow{TableID: tableID, Row: value})
}
