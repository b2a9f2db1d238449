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

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySchema    = errors.New("schema is empty")
	ErrMissingVersion = errors.New("schema has no version")
	ErrMissingStructs = errors.New("schema has no structs")
	ErrUnknownType    = errors.New("unknown type")
	ErrUnknownAction  = errors.New("unknown action")
	ErrNoSchema       = errors.New("no schema loaded for account")
	ErrShortRead      = errors.New("read past end of buffer")
	ErrMaxDepth       = errors.New("maximum nesting depth exceeded")
)

// SchemaError indicates that a schema document could not be used
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// DecodeError indicates that a value could not be decoded as the given type
type DecodeError struct {
	Type   string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %s", e.Type, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError indicates that a value could not be encoded as the given type
type EncodeError struct {
	Type string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Type, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
