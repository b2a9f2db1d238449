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

// State represents a stream client state
type State struct {
	Id   uint
	Name string
}

// NewState returns a new State object with the provided numeric ID and string name
func NewState(id uint, name string) State {
	return State{
		Id:   id,
		Name: name,
	}
}

// String returns the state name
func (s State) String() string {
	return s.Name
}

var (
	StateDisconnected   = NewState(1, "Disconnected")
	StateConnecting     = NewState(2, "Connecting")
	StateAwaitingSchema = NewState(3, "AwaitingSchema")
	StateAwaitingStatus = NewState(4, "AwaitingStatus")
	StateStreaming      = NewState(5, "Streaming")
	StateReconnecting   = NewState(6, "Reconnecting")
)

// StateMapEntry lists the states reachable from a state
type StateMapEntry struct {
	Transitions []State
}

// StateMap maps a state to its legal transitions
type StateMap map[State]StateMapEntry

// Allowed reports whether moving from one state to another is legal
func (m StateMap) Allowed(from State, to State) bool {
	entry, ok := m[from]
	if !ok {
		return false
	}
	for _, s := range entry.Transitions {
		if s == to {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the state map
func (m StateMap) Copy() StateMap {
	ret := StateMap{}
	for k, v := range m {
		ret[k] = StateMapEntry{
			Transitions: append([]State(nil), v.Transitions...),
		}
	}
	return ret
}

// Every state can move to Disconnected when the client is closed
var stateMap = StateMap{
	StateDisconnected: StateMapEntry{
		Transitions: []State{StateConnecting},
	},
	StateConnecting: StateMapEntry{
		Transitions: []State{
			StateAwaitingSchema,
			StateReconnecting,
			StateDisconnected,
		},
	},
	StateAwaitingSchema: StateMapEntry{
		Transitions: []State{
			StateAwaitingStatus,
			StateReconnecting,
			StateDisconnected,
		},
	},
	StateAwaitingStatus: StateMapEntry{
		Transitions: []State{
			StateStreaming,
			StateReconnecting,
			StateDisconnected,
		},
	},
	StateStreaming: StateMapEntry{
		Transitions: []State{
			StateReconnecting,
			StateDisconnected,
		},
	},
	StateReconnecting: StateMapEntry{
		Transitions: []State{
			StateConnecting,
			StateDisconnected,
		},
	},
}

// Transitions returns a copy of the legal transition map
func Transitions() StateMap {
	return stateMap.Copy()
}
