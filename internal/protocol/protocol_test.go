package protocol

import "testing"

func TestRequestRoundTrip(t *testing.T) {
	cases := []Request{
		GetStatusRequestV0{},
		GetBlockRequestV0{BlockNum: 101},
	}
	for _, want := range cases {
		frame := EncodeRequest(want)
		got, err := DecodeRequest(frame)
		if err != nil {
			t.Fatalf("DecodeRequest(%#v): %v", want, err)
		}
		if got != want {
			t.Errorf("round-trip = %#v, want %#v", got, want)
		}
	}
}

func TestDecodeRequestUnknownTag(t *testing.T) {
	if _, err := DecodeRequest([]byte{0xff}); err != ErrUnknownTag {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
}

func TestDecodeRequestShort(t *testing.T) {
	if _, err := DecodeRequest([]byte{}); err != ErrShortMessage {
		t.Fatalf("err = %v, want ErrShortMessage", err)
	}
	if _, err := DecodeRequest([]byte{TagGetBlockRequestV0, 1, 2}); err != ErrShortMessage {
		t.Fatalf("err = %v, want ErrShortMessage", err)
	}
}

func TestGetStatusResultRoundTrip(t *testing.T) {
	want := GetStatusResultV0{
		LastIrreversibleBlockNum: 99,
		StateBeginBlockNum:       100,
		StateEndBlockNum:         101,
	}
	want.LastIrreversibleBlockID[0] = 0xab

	frame := EncodeResult(want)
	got, err := DecodeResult(frame)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if got != want {
		t.Errorf("round-trip = %#v, want %#v", got, want)
	}
}

func TestGetBlockResultAllAbsent(t *testing.T) {
	want := GetBlockResultV0{BlockNum: 101}
	frame := EncodeResult(want)
	got, err := DecodeResult(frame)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	gotV := got.(GetBlockResultV0)
	if gotV.BlockNum != 101 || gotV.Block != nil || gotV.BlockState != nil || gotV.Traces != nil || gotV.Deltas != nil {
		t.Errorf("got = %+v, want all absent", gotV)
	}
}

func TestGetBlockResultSomePresent(t *testing.T) {
	want := GetBlockResultV0{
		BlockNum: 100,
		Traces:   []byte{1, 2, 3},
		Deltas:   []byte{},
	}
	frame := EncodeResult(want)
	got, err := DecodeResult(frame)
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	gotV := got.(GetBlockResultV0)
	if gotV.Block != nil {
		t.Errorf("Block = %v, want absent", gotV.Block)
	}
	if string(gotV.Traces) != "\x01\x02\x03" {
		t.Errorf("Traces = %v", gotV.Traces)
	}
	if gotV.Deltas == nil || len(gotV.Deltas) != 0 {
		t.Errorf("Deltas = %v, want present-but-empty", gotV.Deltas)
	}
}
