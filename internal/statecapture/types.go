// Package statecapture turns a newly accepted block's runtime side effects
// (buffered transaction traces and the chain database's undo stack) into
// the three payloads appended to the block_state_history, trace_history,
// and chain_state_history logs.
package statecapture

// Codec serializes a domain record to its canonical wire bytes. name
// identifies the record's ABI/wire type so a single codec implementation
// can dispatch on it; production builds inject the chain engine's binary
// ABI codec, tests use TestCodec.
type Codec interface {
	Encode(name string, v any) ([]byte, error)
}

// TransactionID identifies a transaction, matching the history log's
// content-addressed block_id width.
type TransactionID [32]byte

// BlockInfo is the minimal view of an accepted block that capture needs:
// its identity and the committed transaction ids to resolve against the
// pending-traces map.
type BlockInfo struct {
	BlockNum     uint32
	BlockID      [32]byte
	PrevBlockID  [32]byte
	Transactions []TransactionID
}

// ChainEngine is the narrow read interface into the blockchain engine:
// block lookups and the last-irreversible pointer, both served by the
// session layer's get_status/get_block handlers.
type ChainEngine interface {
	BlockByNumber(blockNum uint32) (any, bool)
	LastIrreversible() (blockNum uint32, blockID [32]byte)
}

// SnapshotRow is one live row returned by UndoDatabase.Snapshot, used for
// the fresh/bootstrap capture path.
type SnapshotRow struct {
	ID    uint64
	Value any
}

// RemovedRow is one row's pre-state, as carried in an undo frame's
// removed_values set.
type RemovedRow struct {
	ID    uint64
	Value any
}

// TableUndo is the top undo frame's change-set for a single table, split
// into the three disjoint sets the chain engine's undo stack exposes.
type TableUndo struct {
	// OldValueIDs are rows modified by the last committed change set;
	// their post-state is resolved via CurrentRow.
	OldValueIDs []uint64
	// NewIDs are rows inserted by the last committed change set; their
	// post-state is resolved via CurrentRow.
	NewIDs []uint64
	// RemovedValues are rows removed by the last committed change set,
	// carrying their pre-state directly.
	RemovedValues []RemovedRow
}

// UndoDatabase is the narrow interface onto the chain's in-memory
// multi-index database: the top undo frame's change-set per table, live
// row resolution by id, and the table-id resolution the contract_* row
// tables need.
type UndoDatabase interface {
	// TableDelta returns the undo frame's change-set for table, or
	// ok=false if the top frame recorded no changes for it.
	TableDelta(table string) (delta TableUndo, ok bool)
	// CurrentRow resolves id's live (post-state) row value in table.
	CurrentRow(table string, id uint64) (value any, ok bool)
	// Snapshot returns every live row of table, used when the log is
	// empty and capture falls back to the fresh/bootstrap path.
	Snapshot(table string) []SnapshotRow
	// CurrentTableID resolves the owning contract_table row id for a
	// contract_row/contract_index* row, via the live table-id index.
	CurrentTableID(table string, rowID uint64) (tableID uint64, ok bool)
	// RemovedTableID resolves the owning contract_table row id the same
	// way, for rows whose table was itself removed in this undo frame.
	RemovedTableID(table string, rowID uint64) (tableID uint64, ok bool)
}

// TrackedTables is the fixed, ordered list of chain-state tables captured
// into every chain_state_history entry. Both the set of names and their
// order are part of the wire contract.
var TrackedTables = []string{
	"account",
	"contract_table",
	"contract_row",
	"contract_index64",
	"contract_index128",
	"contract_index256",
	"contract_index_double",
	"contract_index_long_double",
	"global_property",
	"generated_transaction",
	"permission",
	"permission_link",
	"resource_limits",
	"resource_usage",
	"resource_limits_state",
	"resource_limits_config",
}

// resolvedRowTables need the row's owning table id resolved and encoded
// alongside the row itself; every other tracked table is encoded plain.
var resolvedRowTables = map[string]bool{
	"contract_row":               true,
	"contract_index64":           true,
	"contract_index128":          true,
	"contract_index256":          true,
	"contract_index_double":      true,
	"contract_index_long_double": true,
}

func needsTableIDResolution(table string) bool {
	return resolvedRowTables[table]
}

// resolvedRow is the wire envelope used for the six contract_* row
// tables, pairing the row with its resolved owning table id.
type resolvedRow struct {
	TableID uint64 `json:"table_id"`
	Row     any    `json:"row"`
}
