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

package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoABI          = errors.New("account has no ABI")
	ErrInvalidKey     = errors.New("invalid private key")
	ErrNonCanonical   = errors.New("could not produce a canonical signature")
	ErrInvalidPayload = errors.New("invalid transaction payload")
)

type ErrorDetail struct {
	Message    string `json:"message"`
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Method     string `json:"method"`
}

// APIError is an error response from the chain RPC API
type APIError struct {
	StatusCode int           `json:"-"`
	Code       int           `json:"code"`
	Name       string        `json:"name"`
	What       string        `json:"what"`
	Details    []ErrorDetail `json:"details"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("chain api error %d (%s): %s", e.Code, e.Name, e.What)
	if len(e.Details) > 0 {
		details := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			details = append(details, d.Message)
		}
		msg += ": " + strings.Join(details, "; ")
	}
	return msg
}
