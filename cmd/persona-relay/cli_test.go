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

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireio/persona-relay/config"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona-relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newNode(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp any
		switch r.URL.Path {
		case "/v1/chain/get_info":
			resp = map[string]any{
				"chain_id":                    "8a34ec7df1b8cd06ff4a8abbaa7cc50300823350cadc59ab296cb00d104d2b8f",
				"head_block_num":              1234,
				"last_irreversible_block_num": 1200,
				"head_block_id":               "000004d200112233445566778899aabbccddeeff00112233445566778899aabb",
				"head_block_time":             "2024-03-01T12:30:00.500",
				"head_block_producer":         "eosio",
			}
		case "/v1/chain/get_table_rows":
			resp = map[string]any{
				"rows": []any{
					map[string]any{"persona_name": "z.ai", "initial_state_cid": "bafkz"},
					map[string]any{"persona_name": "x.ai", "initial_state_cid": "bafkx"},
				},
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path := writeConfig(t, "chain:\n  endpoint: http://node:8888\n")
	t.Setenv("WIRE_PRIVATE_KEY", "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3")
	t.Setenv("PERSONA_RELAY_INFERENCE_API_KEY", "secret")

	stdout, _, err := executeCLI(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "endpoint: http://node:8888")
	assert.NotContains(t, stdout, "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3")
	assert.NotContains(t, stdout, "secret\n")
	assert.Contains(t, stdout, "<redacted>")
}

func TestConfigCheck(t *testing.T) {
	path := writeConfig(t, "stream:\n  url: http://not-a-websocket\n")
	_, _, err := executeCLI(t, "config", "check", "-c", path)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	path = writeConfig(t, "logging:\n  level: debug\n")
	stdout, _, err := executeCLI(t, "config", "check", "-c", path)
	require.NoError(t, err)
	assert.Equal(t, "configuration is valid\n", stdout)
}

func TestConfigMissingFile(t *testing.T) {
	_, _, err := executeCLI(t, "config", "show", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	node := newNode(t)
	t.Setenv("PERSONA_RELAY_CHAIN_ENDPOINT", node.URL)
	path := writeConfig(t, "logging:\n  level: error\n")

	stdout, _, err := executeCLI(t, "info", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "head block:   1234")
	assert.Contains(t, stdout, "irreversible: 1200")
	assert.Contains(t, stdout, "producer:     eosio")

	stdout, _, err = executeCLI(t, "info", "-c", path, "--json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "8a34ec7df1b8cd06ff4a8abbaa7cc50300823350cadc59ab296cb00d104d2b8f", info["chain_id"])
}

func TestPersonasSorted(t *testing.T) {
	node := newNode(t)
	path := writeConfig(t, "chain:\n  endpoint: "+node.URL+"\nlogging:\n  level: error\n")

	stdout, _, err := executeCLI(t, "personas", "-c", path)
	require.NoError(t, err)
	assert.Equal(t, "x.ai\tbafkx\nz.ai\tbafkz\n", stdout)
}

func TestPersonasNodeDown(t *testing.T) {
	node := newNode(t)
	url := node.URL
	node.Close()
	path := writeConfig(t, "chain:\n  endpoint: "+url+"\nlogging:\n  level: error\n")

	_, _, err := executeCLI(t, "personas", "-c", path)
	assert.Error(t, err)
}
