package statecapture

import jsoniter "github.com/json-iterator/go"

var testJSON = jsoniter.Config{
	EscapeHTML:  false,
	UseNumber:   true,
	SortMapKeys: true,
}.Froze()

// TestCodec is a deterministic, JSON-backed Codec used to decouple the log
// mechanics tested here from real chain types; the name parameter is
// ignored since encoding/json (via jsoniter) needs no ABI type name to
// serialize a Go value.
type TestCodec struct{}

func (TestCodec) Encode(_ string, v any) ([]byte, error) {
	return testJSON.Marshal(v)
}
