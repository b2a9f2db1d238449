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

package persona

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat     = errors.New("invalid document format")
	ErrInvalidMessage    = errors.New("invalid submitted message")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Kind classifies a pipeline failure by the collaborator that caused it
type Kind string

const (
	KindContentStore Kind = "CONTENT_STORE_ERROR"
	KindInference    Kind = "INFERENCE_ERROR"
	KindChain        Kind = "CHAIN_ERROR"
)

// Step names a pipeline stage
type Step string

const (
	StepFetchMessage Step = "fetch_message"
	StepFetchState   Step = "fetch_state"
	StepInference    Step = "inference"
	StepPublish      Step = "publish_state"
	StepLookup       Step = "lookup_key"
	StepFinalize     Step = "finalize"
)

// InferenceError is returned when every inference attempt failed
type InferenceError struct {
	Attempts int
	Err      error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("no valid inference response after %d attempts: %s", e.Attempts, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// LookupError is returned when the message row can not be found. Err is nil
// when the table was read but no row matched
type LookupError struct {
	Code   string
	Scope  string
	MsgRef string
	Err    error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read %s messages for %s: %s", e.Code, e.Scope, e.Err)
	}
	return fmt.Sprintf("message %s not found in %s messages for %s", e.MsgRef, e.Code, e.Scope)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ChainError is returned when the finalize transaction is rejected
type ChainError struct {
	Err error
}

func (e *ChainError) Error() string {
	return "finalize transaction: " + e.Err.Error()
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// PipelineError is the classified failure of one pipeline run
type PipelineError struct {
	Kind    Kind
	Step    Step
	Account string
	Message PendingMessage
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf(
		"%s: %s for %s message %s: %s",
		e.Kind,
		e.Step,
		e.Account,
		e.Message.MsgRef,
		e.Err,
	)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func kindForStep(step Step) Kind {
	switch step {
	case StepInference:
		return KindInference
	case StepLookup, StepFinalize:
		return KindChain
	}
	return KindContentStore
}
