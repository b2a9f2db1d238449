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

package abi

// TransactionABI returns the built-in schema for transactions. It is used to
// pack outgoing transactions and to decode packed transactions from a stream
// whose schema does not define them
func TransactionABI() *ABI {
	return &ABI{
		Version: "eosio::abi/1.1",
		Structs: []StructDef{
			{
				Name: "permission_level",
				Fields: []FieldDef{
					{Name: "actor", Type: "name"},
					{Name: "permission", Type: "name"},
				},
			},
			{
				Name: "action",
				Fields: []FieldDef{
					{Name: "account", Type: "name"},
					{Name: "name", Type: "name"},
					{Name: "authorization", Type: "permission_level[]"},
					{Name: "data", Type: "bytes"},
				},
			},
			{
				Name: "extension",
				Fields: []FieldDef{
					{Name: "type", Type: "uint16"},
					{Name: "data", Type: "bytes"},
				},
			},
			{
				Name: "transaction_header",
				Fields: []FieldDef{
					{Name: "expiration", Type: "time_point_sec"},
					{Name: "ref_block_num", Type: "uint16"},
					{Name: "ref_block_prefix", Type: "uint32"},
					{Name: "max_net_usage_words", Type: "varuint32"},
					{Name: "max_cpu_usage_ms", Type: "uint8"},
					{Name: "delay_sec", Type: "varuint32"},
				},
			},
			{
				Name: "transaction",
				Base: "transaction_header",
				Fields: []FieldDef{
					{Name: "context_free_actions", Type: "action[]"},
					{Name: "actions", Type: "action[]"},
					{Name: "transaction_extensions", Type: "extension[]"},
				},
			},
		},
	}
}
