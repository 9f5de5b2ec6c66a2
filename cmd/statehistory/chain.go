package main

import (
	"encoding/json"
)

// standaloneChainEngine is the minimal statecapture.ChainEngine /
// session.ChainEngine implementation this binary runs with on its own.
// The undo-stack database and the chain engine are narrow interfaces
// meant to be satisfied by the embedding node; this adapter lets the
// service build, start its session server, and answer
// get_status/get_block honestly from whatever the logs already hold,
// while leaving block lookups and undo-frame notification to whatever
// process embeds this binary alongside a real chain engine.
type standaloneChainEngine struct{}

func (standaloneChainEngine) BlockByNumber(blockNum uint32) (any, bool) {
	return nil, false
}

func (standaloneChainEngine) LastIrreversible() (blockNum uint32, blockID [32]byte) {
	return 0, [32]byte{}
}

func (standaloneChainEngine) EncodeBlock(block any) ([]byte, error) {
	return json.Marshal(block)
}
