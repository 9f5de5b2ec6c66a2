// Package protocol implements the session wire codec: the two tagged
// unions state_request and state_result that flow over the binary
// frames of a session, plus the compile-time ABI descriptor served once
// per connection. Variant tags are single-byte discriminants assigned in
// declaration order, following the framing idiom of corestream's
// WriteMessage/ReadMessage but closed over exactly these two unions
// rather than an open message-type byte.
package protocol

import (
	"encoding/binary"
	"errors"
)

// Request tags, in declaration order.
const (
	TagGetStatusRequestV0 uint8 = 0
	TagGetBlockRequestV0  uint8 = 1
)

// Result tags, in declaration order.
const (
	TagGetStatusResultV0 uint8 = 0
	TagGetBlockResultV0  uint8 = 1
)

var ErrShortMessage = errors.New("protocol: message too short")
var ErrUnknownTag = errors.New("protocol: unknown discriminant tag")

// Request is the client->server tagged union.
type Request interface {
	requestTag() uint8
}

type GetStatusRequestV0 struct{}

func (GetStatusRequestV0) requestTag() uint8 { return TagGetStatusRequestV0 }

type GetBlockRequestV0 struct {
	BlockNum uint32
}

func (GetBlockRequestV0) requestTag() uint8 { return TagGetBlockRequestV0 }

// DecodeRequest parses a single binary frame into its state_request variant.
func DecodeRequest(frame []byte) (Request, error) {
	if len(frame) < 1 {
		return nil, ErrShortMessage
	}
	tag, body := frame[0], frame[1:]
	switch tag {
	case TagGetStatusRequestV0:
		return GetStatusRequestV0{}, nil
	case TagGetBlockRequestV0:
		if len(body) < 4 {
			return nil, ErrShortMessage
		}
		return GetBlockRequestV0{BlockNum: binary.LittleEndian.Uint32(body[0:4])}, nil
	default:
		return nil, ErrUnknownTag
	}
}

// EncodeRequest serializes a state_request variant to its wire form. Used
// by test harnesses exercising the session's read side.
func EncodeRequest(r Request) []byte {
	switch v := r.(type) {
	case GetStatusRequestV0:
		return []byte{TagGetStatusRequestV0}
	case GetBlockRequestV0:
		buf := make([]byte, 5)
		buf[0] = TagGetBlockRequestV0
		binary.LittleEndian.PutUint32(buf[1:5], v.BlockNum)
		return buf
	default:
		panic("protocol: unknown request type")
	}
}

// Result is the server->client tagged union.
type Result interface {
	resultTag() uint8
}

type GetStatusResultV0 struct {
	LastIrreversibleBlockNum uint32
	LastIrreversibleBlockID  [32]byte
	StateBeginBlockNum       uint32
	StateEndBlockNum         uint32
}

func (GetStatusResultV0) resultTag() uint8 { return TagGetStatusResultV0 }

// GetBlockResultV0 carries the four optional payload slots. A nil slice
// means "absent" on the wire, distinct from a present-but-empty payload.
type GetBlockResultV0 struct {
	BlockNum   uint32
	Block      []byte
	BlockState []byte
	Traces     []byte
	Deltas     []byte
}

func (GetBlockResultV0) resultTag() uint8 { return TagGetBlockResultV0 }

// EncodeResult serializes a state_result variant to its wire form.
func EncodeResult(r Result) []byte {
	switch v := r.(type) {
	case GetStatusResultV0:
		buf := make([]byte, 1+4+32+4+4)
		buf[0] = TagGetStatusResultV0
		binary.LittleEndian.PutUint32(buf[1:5], v.LastIrreversibleBlockNum)
		copy(buf[5:37], v.LastIrreversibleBlockID[:])
		binary.LittleEndian.PutUint32(buf[37:41], v.StateBeginBlockNum)
		binary.LittleEndian.PutUint32(buf[41:45], v.StateEndBlockNum)
		return buf
	case GetBlockResultV0:
		return encodeGetBlockResultV0(v)
	default:
		panic("protocol: unknown result type")
	}
}

func encodeGetBlockResultV0(v GetBlockResultV0) []byte {
	size := 1 + 4 + 4*4 + len(v.Block) + len(v.BlockState) + len(v.Traces) + len(v.Deltas)
	buf := make([]byte, 0, size)
	buf = append(buf, TagGetBlockResultV0)
	var num [4]byte
	binary.LittleEndian.PutUint32(num[:], v.BlockNum)
	buf = append(buf, num[:]...)
	buf = appendOptional(buf, v.Block)
	buf = appendOptional(buf, v.BlockState)
	buf = appendOptional(buf, v.Traces)
	buf = appendOptional(buf, v.Deltas)
	return buf
}

// appendOptional writes presence as a single byte (0/1) followed by a
// u32 length and the bytes themselves when present.
func appendOptional(buf []byte, data []byte) []byte {
	if data == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(data)))
	buf = append(buf, length[:]...)
	return append(buf, data...)
}

func readOptional(body []byte) (data []byte, rest []byte, err error) {
	if len(body) < 1 {
		return nil, nil, ErrShortMessage
	}
	present, body := body[0], body[1:]
	if present == 0 {
		return nil, body, nil
	}
	if len(body) < 4 {
		return nil, nil, ErrShortMessage
	}
	n := binary.LittleEndian.Uint32(body[0:4])
	body = body[4:]
	if uint64(len(body)) < uint64(n) {
		return nil, nil, ErrShortMessage
	}
	return body[:n], body[n:], nil
}

// DecodeResult parses a single binary frame into its state_result variant.
func DecodeResult(frame []byte) (Result, error) {
	if len(frame) < 1 {
		return nil, ErrShortMessage
	}
	tag, body := frame[0], frame[1:]
	switch tag {
	case TagGetStatusResultV0:
		if len(body) < 4+32+4+4 {
			return nil, ErrShortMessage
		}
		r := GetStatusResultV0{
			LastIrreversibleBlockNum: binary.LittleEndian.Uint32(body[0:4]),
		}
		copy(r.LastIrreversibleBlockID[:], body[4:36])
		r.StateBeginBlockNum = binary.LittleEndian.Uint32(body[36:40])
		r.StateEndBlockNum = binary.LittleEndian.Uint32(body[40:44])
		return r, nil
	case TagGetBlockResultV0:
		if len(body) < 4 {
			return nil, ErrShortMessage
		}
		r := GetBlockResultV0{BlockNum: binary.LittleEndian.Uint32(body[0:4])}
		body = body[4:]
		var err error
		if r.Block, body, err = readOptional(body); err != nil {
			return nil, err
		}
		if r.BlockState, body, err = readOptional(body); err != nil {
			return nil, err
		}
		if r.Traces, body, err = readOptional(body); err != nil {
			return nil, err
		}
		if r.Deltas, _, err = readOptional(body); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, ErrUnknownTag
	}
}

// ABI is the compile-time-constant JSON descriptor the server sends as a
// single text frame before switching to binary frames.
const ABI = `{
  "version": "state_history_v0",
  "requests": [
    {"name": "get_status_request_v0", "tag": 0, "fields": []},
    {"name": "get_block_request_v0", "tag": 1, "fields": [{"name": "block_num", "type": "uint32"}]}
  ],
  "results": [
    {"name": "get_status_result_v0", "tag": 0, "fields": [
      {"name": "last_irreversible_block_num", "type": "uint32"},
      {"name": "last_irreversible_block_id", "type": "checksum256"},
      {"name": "state_begin_block_num", "type": "uint32"},
      {"name": "state_end_block_num", "type": "uint32"}
    ]},
    {"name": "get_block_result_v0", "tag": 1, "fields": [
      {"name": "block_num", "type": "uint32"},
      {"name": "block", "type": "bytes?"},
      {"name": "block_state", "type": "bytes?"},
      {"name": "traces", "type": "bytes?"},
      {"name": "deltas", "type": "bytes?"}
    ]}
  ]
}`
