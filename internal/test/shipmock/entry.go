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
	"github.com/wireio/persona-relay/internal/testdata"
	"github.com/wireio/persona-relay/ship"
)

type EntryType int

const (
	EntryTypeNone   EntryType = 0
	EntryTypeInput  EntryType = 1
	EntryTypeOutput EntryType = 2
	EntryTypeClose  EntryType = 3
)

// ConversationEntry is one step of a scripted conversation. Output entries
// are frames the node sends, input entries are requests the client must send
type ConversationEntry struct {
	Type         EntryType
	OutputFrames [][]byte
	// Variant type of the expected request
	InputRequestType string
	// Optional check of the decoded request body
	InputCheck func(value map[string]any) error
}

// ConversationEntrySchema sends the state history schema document
var ConversationEntrySchema = ConversationEntry{
	Type:         EntryTypeOutput,
	OutputFrames: [][]byte{testdata.ShipABI},
}

// ConversationEntryStatusRequest expects the status request
var ConversationEntryStatusRequest = ConversationEntry{
	Type:             EntryTypeInput,
	InputRequestType: ship.TypeStatusRequest,
}

// ConversationEntryBlocksRequest expects a blocks request of any content
var ConversationEntryBlocksRequest = ConversationEntry{
	Type:             EntryTypeInput,
	InputRequestType: ship.TypeBlocksRequest,
}

// ConversationEntryAck expects a single message acknowledgement
var ConversationEntryAck = ConversationEntry{
	Type:             EntryTypeInput,
	InputRequestType: ship.TypeAckRequest,
	InputCheck: func(value map[string]any) error {
		return expectField(value, "num_messages", uint32(1))
	},
}

// ConversationEntryClose closes the connection from the node side
var ConversationEntryClose = ConversationEntry{
	Type: EntryTypeClose,
}

// OutputEntry sends the provided frames
func OutputEntry(frames ...[]byte) ConversationEntry {
	return ConversationEntry{
		Type:         EntryTypeOutput,
		OutputFrames: frames,
	}
}

// StatusEntry sends a status result with the provided head block
func StatusEntry(head uint32) ConversationEntry {
	return OutputEntry(StatusResult(head))
}

// BlocksRequestEntry expects a blocks request and hands its body to check
func BlocksRequestEntry(check func(value map[string]any) error) ConversationEntry {
	return ConversationEntry{
		Type:             EntryTypeInput,
		InputRequestType: ship.TypeBlocksRequest,
		InputCheck:       check,
	}
}

// Handshake returns the entries up to and including the blocks request
func Handshake(head uint32) []ConversationEntry {
	return []ConversationEntry{
		ConversationEntrySchema,
		ConversationEntryStatusRequest,
		StatusEntry(head),
		ConversationEntryBlocksRequest,
	}
}
