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

// Package chain implements a client for the chain HTTP RPC API, including
// schema caching, table queries and signed transaction submission
package chain

import (
	"encoding/json"

	"github.com/wireio/persona-relay/abi"
)

// Info is the result of get_info
type Info struct {
	ServerVersion            string          `json:"server_version"`
	ChainID                  abi.Checksum256 `json:"chain_id"`
	HeadBlockNum             uint32          `json:"head_block_num"`
	LastIrreversibleBlockNum uint32          `json:"last_irreversible_block_num"`
	LastIrreversibleBlockID  abi.Checksum256 `json:"last_irreversible_block_id"`
	HeadBlockID              abi.Checksum256 `json:"head_block_id"`
	HeadBlockTime            abi.TimePoint   `json:"head_block_time"`
	HeadBlockProducer        string          `json:"head_block_producer"`
}

type PermissionLevel struct {
	Actor      abi.Name `json:"actor"`
	Permission abi.Name `json:"permission"`
}

// Action is an action within a transaction. Data holds either the packed
// payload (abi.Bytes) or a structured value to be packed with the contract
// schema on submission
type Action struct {
	Account       abi.Name          `json:"account"`
	Name          abi.Name          `json:"name"`
	Authorization []PermissionLevel `json:"authorization"`
	Data          any               `json:"data"`
}

type Extension struct {
	Type uint16    `json:"type"`
	Data abi.Bytes `json:"data"`
}

type TransactionHeader struct {
	Expiration       abi.TimePointSec `json:"expiration"`
	RefBlockNum      uint16           `json:"ref_block_num"`
	RefBlockPrefix   uint32           `json:"ref_block_prefix"`
	MaxNetUsageWords uint32           `json:"max_net_usage_words"`
	MaxCpuUsageMs    uint8            `json:"max_cpu_usage_ms"`
	DelaySec         uint32           `json:"delay_sec"`
}

type Transaction struct {
	TransactionHeader
	ContextFreeActions []Action    `json:"context_free_actions"`
	Actions            []Action    `json:"actions"`
	Extensions         []Extension `json:"transaction_extensions"`
}

// TableRowsRequest selects rows from a contract table. Rows are always
// requested in their JSON form
type TableRowsRequest struct {
	Code       string
	Scope      string
	Table      string
	Limit      int
	Reverse    bool
	LowerBound string
	UpperBound string
}

type TableRowsResponse struct {
	Rows    []json.RawMessage `json:"rows"`
	More    bool              `json:"more"`
	NextKey string            `json:"next_key"`
}

// PushResult is the node's response to a submitted transaction
type PushResult struct {
	TransactionID string          `json:"transaction_id"`
	Processed     json.RawMessage `json:"processed"`
}
