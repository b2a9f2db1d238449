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
	"errors"
	"fmt"
)

var (
	// ErrMaxRetriesExceeded is returned by Run once the reconnect limit is reached
	ErrMaxRetriesExceeded = errors.New("maximum reconnect attempts exceeded")

	ErrClientClosed       = errors.New("client is closed")
	ErrAlreadyRunning     = errors.New("client is already running")
	ErrUnexpectedResult   = errors.New("unexpected result type")
	ErrUnknownCompression = errors.New("unknown transaction compression")
)

// TransportError is a connection level failure. It always ends the session
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a record level failure. The record is skipped
type DecodeError struct {
	Record   string
	BlockNum uint32
	Err      error
}

func (e *DecodeError) Error() string {
	if e.BlockNum > 0 {
		return fmt.Sprintf("decode %s in block %d: %s", e.Record, e.BlockNum, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Record, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SchemaError is a failure to set up a session from the schema document
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("session schema: %s", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
