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

package shipmock

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/klauspost/compress/zlib"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/internal/testdata"
)

var (
	shipCodec        *abi.Codec
	transactionCodec *abi.Codec
)

func init() {
	schema, err := abi.ParseABI(testdata.ShipABI)
	if err != nil {
		panic(err)
	}
	if shipCodec, err = abi.NewCodec(schema); err != nil {
		panic(err)
	}
	if transactionCodec, err = abi.NewCodec(abi.TransactionABI()); err != nil {
		panic(err)
	}
}

// Codec returns a codec for the state history schema
func Codec() *abi.Codec {
	return shipCodec
}

func mustEncode(codec *abi.Codec, typeName string, v any) []byte {
	data, err := codec.Encode(typeName, v)
	if err != nil {
		panic(err)
	}
	return data
}

// BlockID returns a deterministic block id for a block number
func BlockID(num uint32) abi.Checksum256 {
	var ret abi.Checksum256
	ret[0] = byte(num >> 24)
	ret[1] = byte(num >> 16)
	ret[2] = byte(num >> 8)
	ret[3] = byte(num)
	ret[31] = 0xaa
	return ret
}

func position(num uint32) map[string]any {
	return map[string]any{
		"block_num": num,
		"block_id":  BlockID(num),
	}
}

// StatusResult returns an encoded status result
func StatusResult(head uint32) []byte {
	return mustEncode(shipCodec, "result", abi.Variant{
		Type: "get_status_result_v0",
		Value: map[string]any{
			"head":                    position(head),
			"last_irreversible":       position(head - 1),
			"trace_begin_block":       uint32(1),
			"trace_end_block":         head,
			"chain_state_begin_block": uint32(1),
			"chain_state_end_block":   head,
		},
	})
}

// Block describes a blocks result
type Block struct {
	Num uint32
	// Serialized signed block, nil for none
	Block  []byte
	Traces []byte
	Deltas []byte
}

// BlocksResult returns an encoded blocks result
func BlocksResult(b Block) []byte {
	result := map[string]any{
		"head":              position(b.Num),
		"last_irreversible": position(b.Num - 1),
		"this_block":        position(b.Num),
		"prev_block":        position(b.Num - 1),
		"block":             nilIfEmpty(b.Block),
		"traces":            nilIfEmpty(b.Traces),
		"deltas":            nilIfEmpty(b.Deltas),
	}
	return mustEncode(shipCodec, "result", abi.Variant{Type: "get_blocks_result_v0", Value: result})
}

// EmptyBlocksResult returns a blocks result without a block
func EmptyBlocksResult(head uint32) []byte {
	return mustEncode(shipCodec, "result", abi.Variant{
		Type: "get_blocks_result_v0",
		Value: map[string]any{
			"head":              position(head),
			"last_irreversible": position(head - 1),
		},
	})
}

func nilIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return abi.Bytes(b)
}

// Receipt is a transaction included in a signed block
type Receipt struct {
	Status uint8
	// Serialized transaction
	Transaction []byte
	Compress    bool
	// Included as a bare transaction id when set
	IDOnly bool
}

// SignedBlock returns a serialized signed block with the provided receipts
func SignedBlock(num uint32, receipts ...Receipt) []byte {
	items := make([]any, 0, len(receipts))
	for _, r := range receipts {
		var trx abi.Variant
		if r.IDOnly {
			trx = abi.Variant{Type: "transaction_id", Value: BlockID(num)}
		} else {
			packed := r.Transaction
			compression := uint8(0)
			if r.Compress {
				packed = Deflate(packed)
				compression = 1
			}
			trx = abi.Variant{
				Type: "packed_transaction",
				Value: map[string]any{
					"signatures":               []any{},
					"compression":              compression,
					"packed_context_free_data": abi.Bytes{},
					"packed_trx":               abi.Bytes(packed),
				},
			}
		}
		items = append(items, map[string]any{
			"status":          r.Status,
			"cpu_usage_us":    uint32(100),
			"net_usage_words": uint32(12),
			"trx":             trx,
		})
	}
	return mustEncode(shipCodec, "signed_block", map[string]any{
		"timestamp":          abi.BlockTimestamp(1000 + num),
		"producer":           abi.NewName("eosio"),
		"confirmed":          uint16(0),
		"previous":           BlockID(num - 1),
		"transaction_mroot":  abi.Checksum256{},
		"action_mroot":       abi.Checksum256{},
		"schedule_version":   uint32(1),
		"new_producers":      nil,
		"header_extensions":  []any{},
		"producer_signature": abi.Signature{Type: abi.KeyTypeK1, Data: make([]byte, 65)},
		"transactions":       items,
		"block_extensions":   []any{},
	})
}

// Transaction returns a serialized transaction with the provided actions
func Transaction(actions ...chain.Action) []byte {
	tx := chain.Transaction{
		TransactionHeader: chain.TransactionHeader{
			Expiration:  abi.TimePointSec(1700000000),
			RefBlockNum: 1,
		},
		ContextFreeActions: []chain.Action{},
		Actions:            actions,
		Extensions:         []chain.Extension{},
	}
	return mustEncode(transactionCodec, "transaction", tx)
}

// Deflate compresses data with zlib
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func expectField(value map[string]any, name string, want any) error {
	got, ok := value[name]
	if !ok {
		return fmt.Errorf("field %s missing", name)
	}
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("field %s: expected %#v, got %#v", name, want, got)
	}
	return nil
}
