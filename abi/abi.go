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

// Package abi implements encoding and decoding of binary values described by a
// chain account's self-describing schema (ABI).
//
// Two decode paths are provided. Codec walks the schema by type name on every
// call and is used for protocol envelopes. CompiledCodec turns each type into a
// tree of decode closures once and reuses them, and NativeCodecs keeps one
// compiled codec per account for decoding contract action payloads. Both paths
// share the same primitive decoders, so they produce identical values for
// identical input.
package abi

import (
	"encoding/json"
	"fmt"
)

// ABI is the JSON schema document published by a chain account
type ABI struct {
	Version          string            `json:"version"`
	Types            []TypeDef         `json:"types"`
	Structs          []StructDef       `json:"structs"`
	Actions          []ActionDef       `json:"actions"`
	Tables           []TableDef        `json:"tables"`
	RicardianClauses []ClauseDef       `json:"ricardian_clauses,omitempty"`
	Variants         []VariantDef      `json:"variants,omitempty"`
	ActionResults    []ActionResultDef `json:"action_results,omitempty"`
}

type TypeDef struct {
	NewTypeName string `json:"new_type_name"`
	Type        string `json:"type"`
}

type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type StructDef struct {
	Name   string     `json:"name"`
	Base   string     `json:"base"`
	Fields []FieldDef `json:"fields"`
}

type ActionDef struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	RicardianContract string `json:"ricardian_contract"`
}

type TableDef struct {
	Name      string   `json:"name"`
	IndexType string   `json:"index_type"`
	KeyNames  []string `json:"key_names"`
	KeyTypes  []string `json:"key_types"`
	Type      string   `json:"type"`
}

type ClauseDef struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

type VariantDef struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

type ActionResultDef struct {
	Name       string `json:"name"`
	ResultType string `json:"result_type"`
}

// ParseABI parses a JSON schema document. The result is not validated
func ParseABI(data []byte) (*ABI, error) {
	var a ABI
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &SchemaError{Err: fmt.Errorf("parse schema: %w", err)}
	}
	return &a, nil
}

// Validate checks that the schema is usable for decoding. A usable schema
// carries a version and at least one struct
func (a *ABI) Validate() error {
	if a == nil {
		return &SchemaError{Err: ErrEmptySchema}
	}
	if a.Version == "" {
		return &SchemaError{Err: ErrMissingVersion}
	}
	if len(a.Structs) == 0 {
		return &SchemaError{Err: ErrMissingStructs}
	}
	return nil
}

// ActionType returns the struct type used for the payload of the named action
func (a *ABI) ActionType(action string) (string, bool) {
	for _, act := range a.Actions {
		if act.Name == action {
			return act.Type, true
		}
	}
	return "", false
}

// TableType returns the row type of the named table
func (a *ABI) TableType(table string) (string, bool) {
	for _, t := range a.Tables {
		if t.Name == table {
			return t.Type, true
		}
	}
	return "", false
}

// HasType reports whether the schema defines the named struct, variant or typedef
func (a *ABI) HasType(name string) bool {
	for _, s := range a.Structs {
		if s.Name == name {
			return true
		}
	}
	for _, v := range a.Variants {
		if v.Name == name {
			return true
		}
	}
	for _, t := range a.Types {
		if t.NewTypeName == name {
			return true
		}
	}
	return false
}

// Merge returns a copy of the schema with any types from other that the
// schema does not already define
func (a *ABI) Merge(other *ABI) *ABI {
	ret := *a
	ret.Types = append([]TypeDef(nil), a.Types...)
	ret.Structs = append([]StructDef(nil), a.Structs...)
	ret.Variants = append([]VariantDef(nil), a.Variants...)
	if other == nil {
		return &ret
	}
	for _, t := range other.Types {
		if !a.HasType(t.NewTypeName) {
			ret.Types = append(ret.Types, t)
		}
	}
	for _, s := range other.Structs {
		if !a.HasType(s.Name) {
			ret.Structs = append(ret.Structs, s)
		}
	}
	for _, v := range other.Variants {
		if !a.HasType(v.Name) {
			ret.Variants = append(ret.Variants, v)
		}
	}
	return &ret
}
