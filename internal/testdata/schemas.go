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

// Package testdata provides shared schema fixtures for tests.
package testdata

import (
	_ "embed"
)

// State history schema as sent by a node in the first stream frame. It
// deliberately lacks the "transaction" type, which streams rely on the
// built-in transaction schema for
//
//go:embed ship_abi.json
var ShipABI []byte

// Persona contract schema with the initpersona, submitmsg and finalizemsg
// actions and the messages table
//
//go:embed persona_abi.json
var PersonaABI []byte

// Directory contract schema with the personas table
//
//go:embed directory_abi.json
var DirectoryABI []byte
