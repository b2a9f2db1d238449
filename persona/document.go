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
	"encoding/json"
	"fmt"

	"github.com/wireio/persona-relay/abi"
)

// PendingMessage is a submitted message awaiting a response
type PendingMessage struct {
	AccountName string `json:"account_name"`
	PreStateRef string `json:"pre_state_cid"`
	MsgRef      string `json:"msg_cid"`
	HistoryRef  string `json:"full_convo_history_cid"`
}

// PendingMessageFromValue converts a decoded submitmsg payload
func PendingMessageFromValue(v any) (PendingMessage, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return PendingMessage{}, fmt.Errorf("%w: payload is %T", ErrInvalidMessage, v)
	}
	var ret PendingMessage
	var err error
	if ret.AccountName, err = textField(m, "account_name"); err != nil {
		return PendingMessage{}, err
	}
	if ret.PreStateRef, err = textField(m, "pre_state_cid"); err != nil {
		return PendingMessage{}, err
	}
	if ret.MsgRef, err = textField(m, "msg_cid"); err != nil {
		return PendingMessage{}, err
	}
	if ret.HistoryRef, err = textField(m, "full_convo_history_cid"); err != nil {
		return PendingMessage{}, err
	}
	return ret, nil
}

func textField(m map[string]any, name string) (string, error) {
	switch x := m[name].(type) {
	case string:
		return x, nil
	case abi.Name:
		return x.String(), nil
	case nil:
		return "", fmt.Errorf("%w: missing %s", ErrInvalidMessage, name)
	default:
		return "", fmt.Errorf("%w: %s is %T", ErrInvalidMessage, name, x)
	}
}

// Unwrap strips storage envelopes from a document. The first non-empty of
// doc.data.data, doc.data and doc is returned
func Unwrap(doc any) any {
	outer, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	data := outer["data"]
	if inner, ok := data.(map[string]any); ok && truthy(inner["data"]) {
		return inner["data"]
	}
	if truthy(data) {
		return data
	}
	return doc
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case json.Number:
		return x.String() != "0"
	}
	return true
}

func parseDocument(data []byte) (any, error) {
	var ret any
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return Unwrap(ret), nil
}

// messageText returns the text of a message document
func messageText(data []byte) (string, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return "", err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: message is not an object", ErrInvalidFormat)
	}
	text, _ := m["text"].(string)
	if text == "" {
		return "", fmt.Errorf("%w: message has no text", ErrInvalidFormat)
	}
	return text, nil
}

// personaState returns a state document and the persona it names
func personaState(data []byte) (map[string]any, string, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, "", err
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("%w: state is not an object", ErrInvalidFormat)
	}
	if !truthy(m["persona"]) || !truthy(m["traits"]) {
		return nil, "", fmt.Errorf("%w: state lacks persona or traits", ErrInvalidFormat)
	}
	id, ok := m["persona"].(string)
	if !ok {
		return nil, "", fmt.Errorf("%w: persona is %T", ErrInvalidFormat, m["persona"])
	}
	return m, id, nil
}

// history returns the conversation entries of a history document. A
// document that is not a list is a single entry
func history(data []byte) ([]any, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	switch x := doc.(type) {
	case []any:
		return x, nil
	case nil:
		return []any{}, nil
	}
	return []any{doc}, nil
}

// stateEnvelope wraps a published state document
type stateEnvelope struct {
	Data        json.RawMessage `json:"data"`
	ContentType string          `json:"contentType"`
}
