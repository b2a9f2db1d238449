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

package abi_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/internal/testdata"
)

func mustParseABI(t *testing.T, data []byte) *abi.ABI {
	t.Helper()
	a, err := abi.ParseABI(data)
	require.NoError(t, err)
	require.NoError(t, a.Validate())
	return a
}

func testSignedBlock() map[string]any {
	return map[string]any{
		"timestamp":          abi.BlockTimestamp(1_000_000),
		"producer":           abi.NewName("eosio"),
		"confirmed":          uint16(0),
		"previous":           abi.Checksum256{0x01},
		"transaction_mroot":  abi.Checksum256{0x02},
		"action_mroot":       abi.Checksum256{0x03},
		"schedule_version":   uint32(7),
		"new_producers":      nil,
		"header_extensions":  []any{},
		"producer_signature": abi.Signature{Type: abi.KeyTypeK1, Data: make([]byte, 65)},
		"transactions": []any{
			map[string]any{
				"status":          uint8(0),
				"cpu_usage_us":    uint32(150),
				"net_usage_words": uint32(16),
				"trx": abi.Variant{
					Type: "packed_transaction",
					Value: map[string]any{
						"signatures":               []any{},
						"compression":              uint8(0),
						"packed_context_free_data": abi.Bytes{},
						"packed_trx":               abi.Bytes{0xde, 0xad, 0xbe, 0xef},
					},
				},
			},
			map[string]any{
				"status":          uint8(3),
				"cpu_usage_us":    uint32(0),
				"net_usage_words": uint32(0),
				"trx": abi.Variant{
					Type:  "transaction_id",
					Value: abi.Checksum256{0x09},
				},
			},
		},
		"block_extensions": []any{},
	}
}

func testTrace(nested map[string]any) map[string]any {
	var failed any
	if nested != nil {
		failed = abi.Variant{Type: "transaction_trace_v0", Value: nested}
	}
	return map[string]any{
		"id":              abi.Checksum256{0x0a},
		"status":          uint8(0),
		"cpu_usage_us":    uint32(10),
		"net_usage_words": uint32(2),
		"elapsed":         int64(-5),
		"net_usage":       uint64(16),
		"scheduled":       false,
		"action_traces": []any{
			abi.Variant{
				Type: "action_trace_v0",
				Value: map[string]any{
					"action_ordinal":         uint32(1),
					"creator_action_ordinal": uint32(0),
					"receipt":                nil,
					"receiver":               abi.NewName("x.ai"),
					"act": map[string]any{
						"account": abi.NewName("x.ai"),
						"name":    abi.NewName("submitmsg"),
						"authorization": []any{
							map[string]any{
								"actor":      abi.NewName("alice"),
								"permission": abi.NewName("active"),
							},
						},
						"data": abi.Bytes{0x01},
					},
					"context_free":       false,
					"elapsed":            int64(3),
					"console":            "hello",
					"account_ram_deltas": []any{},
					"except":             nil,
					"error_code":         nil,
				},
			},
		},
		"account_ram_delta": nil,
		"except":            "boom",
		"error_code":        uint64(42),
		"failed_dtrx_trace": failed,
	}
}

func TestRoundTripGenericAndCompiled(t *testing.T) {
	schema := mustParseABI(t, testdata.ShipABI)
	generic, err := abi.NewCodec(schema)
	require.NoError(t, err)
	compiled, err := abi.NewCompiledCodec(schema)
	require.NoError(t, err)
	tests := []struct {
		name     string
		typeName string
		value    any
	}{
		{name: "signed block", typeName: "signed_block", value: testSignedBlock()},
		{name: "recursive trace", typeName: "transaction_trace", value: abi.Variant{
			Type:  "transaction_trace_v0",
			Value: testTrace(testTrace(nil)),
		}},
		{name: "trace array", typeName: "transaction_trace[]", value: []any{
			abi.Variant{Type: "transaction_trace_v0", Value: testTrace(nil)},
		}},
		{name: "status request", typeName: "request", value: abi.Variant{
			Type:  "get_status_request_v0",
			Value: map[string]any{},
		}},
		{name: "optional present", typeName: "block_position?", value: map[string]any{
			"block_num": uint32(12),
			"block_id":  abi.Checksum256{0x0c},
		}},
		{name: "optional absent", typeName: "block_position?", value: nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := generic.Encode(test.typeName, test.value)
			require.NoError(t, err)
			compiledData, err := compiled.Encode(test.typeName, test.value)
			require.NoError(t, err)
			assert.Equal(t, data, compiledData)
			genericValue, err := generic.Decode(test.typeName, data)
			require.NoError(t, err)
			compiledValue, err := compiled.Decode(test.typeName, data)
			require.NoError(t, err)
			assert.Equal(t, test.value, genericValue)
			assert.Equal(t, genericValue, compiledValue)
		})
	}
}

func TestBinaryExtension(t *testing.T) {
	schema := mustParseABI(t, testdata.ShipABI)
	codec, err := abi.NewCodec(schema)
	require.NoError(t, err)
	status := map[string]any{
		"head":                    map[string]any{"block_num": uint32(100), "block_id": abi.Checksum256{}},
		"last_irreversible":       map[string]any{"block_num": uint32(90), "block_id": abi.Checksum256{}},
		"trace_begin_block":       uint32(1),
		"trace_end_block":         uint32(100),
		"chain_state_begin_block": uint32(1),
		"chain_state_end_block":   uint32(100),
	}
	data, err := codec.Encode("get_status_result_v0", status)
	require.NoError(t, err)
	decoded, err := codec.Decode("get_status_result_v0", data)
	require.NoError(t, err)
	assert.Equal(t, status, decoded)
	assert.NotContains(t, decoded, "chain_id")
	status["chain_id"] = abi.Checksum256{0xcc}
	data, err = codec.Encode("get_status_result_v0", status)
	require.NoError(t, err)
	decoded, err = codec.Decode("get_status_result_v0", data)
	require.NoError(t, err)
	assert.Equal(t, abi.Checksum256{0xcc}, decoded.(map[string]any)["chain_id"])
}

func TestEncodeFromGoStruct(t *testing.T) {
	type permissionLevel struct {
		Actor      abi.Name `json:"actor"`
		Permission abi.Name `json:"permission"`
	}
	type action struct {
		Account       abi.Name          `json:"account"`
		Name          abi.Name          `json:"name"`
		Authorization []permissionLevel `json:"authorization"`
		Data          abi.Bytes         `json:"data"`
	}
	codec, err := abi.NewCodec(abi.TransactionABI())
	require.NoError(t, err)
	act := action{
		Account:       abi.NewName("x.ai"),
		Name:          abi.NewName("finalizemsg"),
		Authorization: []permissionLevel{{Actor: abi.NewName("x.ai"), Permission: abi.NewName("active")}},
		Data:          abi.Bytes{0x01, 0x02},
	}
	fromStruct, err := codec.Encode("action", act)
	require.NoError(t, err)
	fromMap, err := codec.Encode("action", map[string]any{
		"account": "x.ai",
		"name":    "finalizemsg",
		"authorization": []any{
			map[string]any{"actor": "x.ai", "permission": "active"},
		},
		"data": "0102",
	})
	require.NoError(t, err)
	assert.Equal(t, fromMap, fromStruct)
}

func TestDecodeErrors(t *testing.T) {
	schema := mustParseABI(t, testdata.ShipABI)
	codec, err := abi.NewCodec(schema)
	require.NoError(t, err)
	compiled, err := abi.NewCompiledCodec(schema)
	require.NoError(t, err)
	for _, decode := range []func(string, []byte) (any, error){codec.Decode, compiled.Decode} {
		_, err = decode("block_position", []byte{0x01, 0x02})
		var decodeErr *abi.DecodeError
		require.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, "block_position", decodeErr.Type)
		assert.True(t, errors.Is(err, abi.ErrShortRead))
		_, err = decode("no_such_type", []byte{0x00})
		assert.True(t, errors.Is(err, abi.ErrUnknownType))
		// variant index out of range
		_, err = decode("result", []byte{0x05})
		assert.Error(t, err)
	}
}

func TestCompileFailureRestoresCache(t *testing.T) {
	schema := &abi.ABI{
		Version: "eosio::abi/1.1",
		Structs: []abi.StructDef{
			{Name: "good", Fields: []abi.FieldDef{{Name: "a", Type: "uint8"}}},
			{Name: "bad", Fields: []abi.FieldDef{
				{Name: "g", Type: "good"},
				{Name: "b", Type: "missing"},
			}},
		},
	}
	compiled, err := abi.NewCompiledCodec(schema)
	require.NoError(t, err)
	err = compiled.Compile("bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, abi.ErrUnknownType))
	// a second attempt must fail the same way rather than hit a stale stub
	_, err = compiled.Decode("bad", []byte{0x01, 0x02})
	assert.True(t, errors.Is(err, abi.ErrUnknownType))
	v, err := compiled.Decode("good", []byte{0x07})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": uint8(7)}, v)
}

func TestNativeCodecs(t *testing.T) {
	codecs := abi.NewNativeCodecs()
	assert.False(t, codecs.Has("x.ai"))
	_, err := codecs.DecodeAction("x.ai", "submitmsg", nil)
	assert.True(t, errors.Is(err, abi.ErrNoSchema))
	require.NoError(t, codecs.LoadSchema("x.ai", mustParseABI(t, testdata.PersonaABI)))
	assert.True(t, codecs.Has("x.ai"))
	typeName, err := codecs.TypeForAction("x.ai", "submitmsg")
	require.NoError(t, err)
	assert.Equal(t, "submitmsg", typeName)
	_, err = codecs.TypeForAction("x.ai", "nosuchaction")
	assert.True(t, errors.Is(err, abi.ErrUnknownAction))
	msg := map[string]any{
		"account_name":           abi.NewName("alice"),
		"pre_state_cid":          "bafkpre",
		"msg_cid":                "bafkmsg",
		"full_convo_history_cid": "bafkhist",
	}
	data, err := codecs.EncodeAction("x.ai", "submitmsg", msg)
	require.NoError(t, err)
	decoded, err := codecs.DecodeAction("x.ai", "submitmsg", data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
	codecs.Unload("x.ai")
	assert.False(t, codecs.Has("x.ai"))
}

func TestLoadSchemaRejectsInvalid(t *testing.T) {
	codecs := abi.NewNativeCodecs()
	err := codecs.LoadSchema("x.ai", &abi.ABI{Version: "eosio::abi/1.1"})
	var schemaErr *abi.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.True(t, errors.Is(err, abi.ErrMissingStructs))
	_, err = abi.ParseABI([]byte("not json"))
	assert.True(t, errors.As(err, &schemaErr))
}

func TestMergeAddsMissingTypes(t *testing.T) {
	schema := mustParseABI(t, testdata.ShipABI)
	assert.False(t, schema.HasType("transaction"))
	merged := schema.Merge(abi.TransactionABI())
	assert.True(t, merged.HasType("transaction"))
	assert.True(t, merged.HasType("transaction_header"))
	assert.False(t, schema.HasType("transaction"))
	// existing definitions win
	count := 0
	for _, s := range merged.Structs {
		if s.Name == "action" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
