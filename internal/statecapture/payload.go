package statecapture

import "encoding/binary"

// StripLengthPrefix removes the 32-bit length prefix written by
// encodeTracePayload/captureChainState, returning the inner bytes a
// get_block_result_v0 response carries for traces/deltas. A payload
// shorter than the prefix (as with block_state's empty payload) yields an
// empty slice rather than an error.
func StripLengthPrefix(payload []byte) []byte {
	if len(payload) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(payload[0:4])
	if uint64(4+n) > uint64(len(payload)) {
		return payload[4:]
	}
	return payload[4 : 4+n]
}
