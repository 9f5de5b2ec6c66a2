package statecapture

import (
	"bytes"
	"encoding/binary"
	"io"
)

// RowChange is one row-level change within a table_delta: present=true
// means "this payload is the row's post-state", present=false means
// "the row was removed; this payload is its pre-state."
type RowChange struct {
	Present bool
	Payload []byte
}

// TableDelta is the named list of row changes captured for one tracked
// table in a single block.
type TableDelta struct {
	Name string
	Rows []RowChange
}

// encodeTableDeltas serializes deltas as a length-prefixed sequence:
// u32 payload_size || u32 table_count || per table: u16 name_len || name
// || u32 row_count || per row: u8 present || u32 row_len || row bytes.
// The outer length prefix matches the "payload = len || bytes" framing
// used for both the trace log and the chain-state log.
func encodeTableDeltas(deltas []TableDelta) []byte {
	var body bytes.Buffer

	writeU32(&body, uint32(len(deltas)))
	for _, d := range deltas {
		writeU16(&body, uint16(len(d.Name)))
		body.WriteString(d.Name)
		writeU32(&body, uint32(len(d.Rows)))
		for _, row := range d.Rows {
			if row.Present {
				body.WriteByte(1)
			} else {
				body.WriteByte(0)
			}
			writeU32(&body, uint32(len(row.Payload)))
			body.Write(row.Payload)
		}
	}

	out := make([]byte, 4+body.Len())
	binary.LittleEndian.PutUint32(out[0:4], uint32(body.Len()))
	copy(out[4:], body.Bytes())
	return out
}

// decodeTableDeltas is the inverse of encodeTableDeltas, starting right
// after the outer u32 length prefix has already been stripped.
func decodeTableDeltas(body []byte) ([]TableDelta, error) {
	r := bytes.NewReader(body)

	tableCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	deltas := make([]TableDelta, 0, tableCount)
	for i := uint32(0); i < tableCount; i++ {
		nameLen, err := readU16(r)
		if err != nil {
			return nil, err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, err
		}
		rowCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		rows := make([]RowChange, 0, rowCount)
		for j := uint32(0); j < rowCount; j++ {
			presentByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			rowLen, err := readU32(r)
			if err != nil {
				return nil, err
			}
			payload := make([]byte, rowLen)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, err
			}
			rows = append(rows, RowChange{Present: presentByte == 1, Payload: payload})
		}
		deltas = append(deltas, TableDelta{Name: string(nameBuf), Rows: rows})
	}
	return deltas, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
