// Copyright 2026 The persona-relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ship

import (
	"fmt"

	"github.com/wireio/persona-relay/abi"
)

// Message type names from the state history schema
const (
	TypeRequest = "request"
	TypeResult  = "result"

	TypeStatusRequest = "get_status_request_v0"
	TypeBlocksRequest = "get_blocks_request_v0"
	TypeAckRequest    = "get_blocks_ack_request_v0"
	TypeStatusResult  = "get_status_result_v0"
	TypeBlocksResult  = "get_blocks_result_v0"

	TypeSignedBlock       = "signed_block"
	TypePackedTransaction = "packed_transaction"
	TypeTransaction       = "transaction"
	TypeTraces            = "transaction_trace[]"
	TypeDeltas            = "table_delta[]"
)

// StartAtHead as the start block asks for streaming from the current head
const StartAtHead int64 = -1

// Transaction receipt status for an executed transaction
const statusExecuted uint8 = 0

// Packed transaction compression modes
const (
	compressionNone uint8 = 0
	compressionZlib uint8 = 1
)

// BlockPosition identifies a block
type BlockPosition struct {
	BlockNum uint32          `json:"block_num"`
	BlockID  abi.Checksum256 `json:"block_id"`
}

// StreamOptions control the blocks subscription
type StreamOptions struct {
	// Block to start from, or StartAtHead
	StartBlock          int64
	EndBlockNum         uint32
	MaxMessagesInFlight uint32
	IrreversibleOnly    bool
	FetchBlock          bool
	FetchTraces         bool
	FetchDeltas         bool
}

// DefaultStreamOptions streams blocks without traces or deltas from the head
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		StartBlock:          StartAtHead,
		EndBlockNum:         0xffffffff,
		MaxMessagesInFlight: 1000,
		FetchBlock:          true,
	}
}

type getBlocksRequestV0 struct {
	StartBlockNum       uint32          `json:"start_block_num"`
	EndBlockNum         uint32          `json:"end_block_num"`
	MaxMessagesInFlight uint32          `json:"max_messages_in_flight"`
	HavePositions       []BlockPosition `json:"have_positions"`
	IrreversibleOnly    bool            `json:"irreversible_only"`
	FetchBlock          bool            `json:"fetch_block"`
	FetchTraces         bool            `json:"fetch_traces"`
	FetchDeltas         bool            `json:"fetch_deltas"`
}

type getBlocksAckRequestV0 struct {
	NumMessages uint32 `json:"num_messages"`
}

// StatusResult is the node's answer to the status request
type StatusResult struct {
	Head                 BlockPosition
	LastIrreversible     BlockPosition
	TraceBeginBlock      uint32
	TraceEndBlock        uint32
	ChainStateBeginBlock uint32
	ChainStateEndBlock   uint32
	ChainID              *abi.Checksum256
}

func statusFromValue(v any) (*StatusResult, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("status result is %T", v)
	}
	var ret StatusResult
	var err error
	if ret.Head, err = positionFromValue(m["head"]); err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}
	if ret.LastIrreversible, err = positionFromValue(m["last_irreversible"]); err != nil {
		return nil, fmt.Errorf("last_irreversible: %w", err)
	}
	ret.TraceBeginBlock, _ = m["trace_begin_block"].(uint32)
	ret.TraceEndBlock, _ = m["trace_end_block"].(uint32)
	ret.ChainStateBeginBlock, _ = m["chain_state_begin_block"].(uint32)
	ret.ChainStateEndBlock, _ = m["chain_state_end_block"].(uint32)
	if id, ok := m["chain_id"].(abi.Checksum256); ok {
		ret.ChainID = &id
	}
	return &ret, nil
}

func positionFromValue(v any) (BlockPosition, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return BlockPosition{}, fmt.Errorf("block position is %T", v)
	}
	num, ok := m["block_num"].(uint32)
	if !ok {
		return BlockPosition{}, fmt.Errorf("block_num is %T", m["block_num"])
	}
	id, ok := m["block_id"].(abi.Checksum256)
	if !ok {
		return BlockPosition{}, fmt.Errorf("block_id is %T", m["block_id"])
	}
	return BlockPosition{BlockNum: num, BlockID: id}, nil
}

// TransactionRef locates a transaction within the stream
type TransactionRef struct {
	BlockNum  uint32
	BlockID   abi.Checksum256
	Timestamp abi.BlockTimestamp
	Producer  abi.Name
	// Index of the receipt within the block
	Index int
	ID    abi.Checksum256
}
