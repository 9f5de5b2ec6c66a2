package statecapture

import (
	"path/filepath"
	"testing"

	"github.com/greymass/statehistory/internal/historylog"
)

type fakeRow struct {
	Name string
}

type fakeDB struct {
	tables map[string][]SnapshotRow
}

func (f *fakeDB) TableDelta(table string) (TableUndo, bool) { return TableUndo{}, false }
func (f *fakeDB) CurrentRow(table string, id uint64) (any, bool) {
	for _, row := range f.tables[table] {
		if row.ID == id {
			return row.Value, true
		}
	}
	return nil, false
}
func (f *fakeDB) Snapshot(table string) []SnapshotRow  { return f.tables[table] }
func (f *fakeDB) CurrentTableID(table string, id uint64) (uint64, bool) { return 0, false }
func (f *fakeDB) RemovedTableID(table string, id uint64) (uint64, bool) { return 0, false }

func openLogs(t *testing.T, dir string) (*historylog.Log, *historylog.Log, *historylog.Log) {
	t.Helper()
	open := func(name string) *historylog.Log {
		l, err := historylog.Open(filepath.Join(dir, name+".log"), filepath.Join(dir, name+".index"))
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		return l
	}
	return open("block_state_history"), open("trace_history"), open("chain_state_history")
}

func TestOnAcceptedBlockCapturesAllThreeLogs(t *testing.T) {
	dir := t.TempDir()
	blockState, trace, chainState := openLogs(t, dir)
	defer blockState.Close()
	defer trace.Close()
	defer chainState.Close()

	db := &fakeDB{tables: map[string][]SnapshotRow{
		"account": {{ID: 1, Value: fakeRow{Name: "alice"}}},
	}}
	cap := NewCapture(TestCodec{}, db, blockState, trace, chainState)

	var txID TransactionID
	txID[0] = 1
	cap.OnAppliedTransaction(txID, map[string]string{"action": "transfer"})

	block := BlockInfo{BlockNum: 100, Transactions: []TransactionID{txID}}
	block.BlockID[0] = 100

	if err := cap.OnAcceptedBlock(block); err != nil {
		t.Fatalf("OnAcceptedBlock: %v", err)
	}

	for _, l := range []*historylog.Log{blockState, trace, chainState} {
		begin, end := l.Range()
		if begin != 100 || end != 101 {
			t.Fatalf("log range = (%d, %d), want (100, 101)", begin, end)
		}
	}

	if len(cap.traces) != 0 {
		t.Fatalf("pending traces not drained: %d remain", len(cap.traces))
	}

	_, payload, err := trace.GetEntry(100)
	if err != nil {
		t.Fatalf("GetEntry trace: %v", err)
	}
	if len(StripLengthPrefix(payload)) == 0 {
		t.Fatalf("trace payload stripped to empty, want non-empty JSON array")
	}

	_, deltaPayload, err := chainState.GetEntry(100)
	if err != nil {
		t.Fatalf("GetEntry chain-state: %v", err)
	}
	inner := StripLengthPrefix(deltaPayload)
	deltas, err := decodeTableDeltas(inner)
	if err != nil {
		t.Fatalf("decodeTableDeltas: %v", err)
	}
	if len(deltas) != 1 || deltas[0].Name != "account" {
		t.Fatalf("deltas = %+v, want single account delta", deltas)
	}
	if len(deltas[0].Rows) != 1 || !deltas[0].Rows[0].Present {
		t.Fatalf("account rows = %+v", deltas[0].Rows)
	}
}

func TestOnAcceptedBlockDrainsEvenWithoutMatchingTrace(t *testing.T) {
	dir := t.TempDir()
	blockState, trace, chainState := openLogs(t, dir)
	defer blockState.Close()
	defer trace.Close()
	defer chainState.Close()

	db := &fakeDB{tables: map[string][]SnapshotRow{}}
	cap := NewCapture(TestCodec{}, db, blockState, trace, chainState)

	var unrelated TransactionID
	unrelated[0] = 9
	cap.OnAppliedTransaction(unrelated, "trace-for-tx-not-in-block")

	var committed TransactionID
	committed[0] = 1
	block := BlockInfo{BlockNum: 200, Transactions: []TransactionID{committed}}

	if err := cap.OnAcceptedBlock(block); err != nil {
		t.Fatalf("OnAcceptedBlock: %v", err)
	}
	if len(cap.traces) != 0 {
		t.Fatalf("pending traces not drained: %d remain", len(cap.traces))
	}
}

func TestIncrementalDeltaAfterFresh(t *testing.T) {
	dir := t.TempDir()
	blockState, trace, chainState := openLogs(t, dir)
	defer blockState.Close()
	defer trace.Close()
	defer chainState.Close()

	db := &fakeDB{tables: map[string][]SnapshotRow{
		"account": {{ID: 1, Value: fakeRow{Name: "alice"}}},
	}}
	cap := NewCapture(TestCodec{}, db, blockState, trace, chainState)

	block1 := BlockInfo{BlockNum: 100}
	if err := cap.OnAcceptedBlock(block1); err != nil {
		t.Fatalf("OnAcceptedBlock(100): %v", err)
	}

	db.tables["account"][0] = SnapshotRow{ID: 1, Value: fakeRow{Name: "bob"}}

	block2 := BlockInfo{BlockNum: 101, PrevBlockID: block1.BlockID}
	if err := cap.OnAcceptedBlock(block2); err != nil {
		t.Fatalf("OnAcceptedBlock(101): %v", err)
	}

	begin, end := chainState.Range()
	if begin != 100 || end != 102 {
		t.Fatalf("chain-state range = (%d, %d), want (100, 102)", begin, end)
	}
}
