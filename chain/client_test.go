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

package chain_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/internal/testdata"
)

const (
	testChainID     = "8a34ec7df1b8cd06ff4a8abbaa7cc50300823350cadc59ab296cb00d104d2b8f"
	testHeadBlockID = "0000271000112233445566778899aabbccddeeff00112233445566778899aabb"
	testWIF         = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3"
)

type testNode struct {
	server   *httptest.Server
	mutex    sync.Mutex
	requests map[string]int
	bodies   map[string][]byte
	handlers map[string]func(body []byte) (int, any)
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	n := &testNode{
		requests: make(map[string]int),
		bodies:   make(map[string][]byte),
		handlers: make(map[string]func(body []byte) (int, any)),
	}
	n.handle("/v1/chain/get_info", func([]byte) (int, any) {
		return http.StatusOK, map[string]any{
			"server_version":              "abcdef01",
			"chain_id":                    testChainID,
			"head_block_num":              10000,
			"last_irreversible_block_num": 9990,
			"last_irreversible_block_id":  testHeadBlockID,
			"head_block_id":               testHeadBlockID,
			"head_block_time":             "2024-03-01T12:30:00.500",
			"head_block_producer":         "eosio",
		}
	})
	n.handle("/v1/chain/get_abi", func(body []byte) (int, any) {
		var req struct {
			AccountName string `json:"account_name"`
		}
		_ = json.Unmarshal(body, &req)
		return http.StatusOK, map[string]any{
			"account_name": req.AccountName,
			"abi":          json.RawMessage(testdata.PersonaABI),
		}
	})
	n.server = httptest.NewServer(http.HandlerFunc(n.serveHTTP))
	t.Cleanup(n.server.Close)
	return n
}

func (n *testNode) handle(path string, handler func(body []byte) (int, any)) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.handlers[path] = handler
}

func (n *testNode) count(path string) int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.requests[path]
}

func (n *testNode) lastBody(path string) []byte {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.bodies[path]
}

func (n *testNode) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	n.mutex.Lock()
	n.requests[r.URL.Path]++
	n.bodies[r.URL.Path] = body
	handler, ok := n.handlers[r.URL.Path]
	n.mutex.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"message":"Not Found","error":{"code":0,"name":"","what":"unknown endpoint","details":[]}}`))
		return
	}
	status, resp := handler(body)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func TestGetInfo(t *testing.T) {
	node := newTestNode(t)
	client := chain.NewClient(node.server.URL)
	info, err := client.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(10000), info.HeadBlockNum)
	assert.Equal(t, testChainID, info.ChainID.String())
	assert.Equal(t, "2024-03-01T12:30:00.500", info.HeadBlockTime.String())
}

func TestGetInfoUnlabeledReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"chain_id":"` + testChainID + `","head_block_num":7,"head_block_id":"` + testHeadBlockID + `","head_block_time":"2024-03-01T12:30:00.500"}`))
	}))
	defer server.Close()
	info, err := chain.NewClient(server.URL).GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), info.HeadBlockNum)
}

func TestGetInfoPlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream unavailable`))
	}))
	defer server.Close()
	_, err := chain.NewClient(server.URL).GetInfo(context.Background())
	var apiErr *chain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestGetABICache(t *testing.T) {
	node := newTestNode(t)
	client := chain.NewClient(node.server.URL)
	ctx := context.Background()
	first, err := client.GetABI(ctx, "x.ai", false)
	require.NoError(t, err)
	second, err := client.GetABI(ctx, "x.ai", false)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, node.count("/v1/chain/get_abi"))
	_, err = client.GetABI(ctx, "x.ai", true)
	require.NoError(t, err)
	assert.Equal(t, 2, node.count("/v1/chain/get_abi"))
}

func TestGetABIMissing(t *testing.T) {
	node := newTestNode(t)
	node.handle("/v1/chain/get_abi", func([]byte) (int, any) {
		return http.StatusOK, map[string]any{"account_name": "nobody"}
	})
	client := chain.NewClient(node.server.URL)
	_, err := client.GetABI(context.Background(), "nobody", false)
	assert.True(t, errors.Is(err, chain.ErrNoABI))
}

func TestGetTableRows(t *testing.T) {
	node := newTestNode(t)
	node.handle("/v1/chain/get_table_rows", func([]byte) (int, any) {
		return http.StatusOK, map[string]any{
			"rows": []any{
				map[string]any{"key": 1, "msg_cid": "bafka"},
				map[string]any{"key": 2, "msg_cid": "bafkb"},
			},
			"more": true,
		}
	})
	client := chain.NewClient(node.server.URL)
	resp, err := client.GetTableRows(context.Background(), chain.TableRowsRequest{
		Code:    "x.ai",
		Scope:   "alice",
		Table:   "messages",
		Limit:   100,
		Reverse: true,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Rows, 2)
	assert.True(t, resp.More)
	var req map[string]any
	require.NoError(t, json.Unmarshal(node.lastBody("/v1/chain/get_table_rows"), &req))
	assert.Equal(t, map[string]any{
		"code":    "x.ai",
		"scope":   "alice",
		"table":   "messages",
		"json":    true,
		"limit":   float64(100),
		"reverse": true,
	}, req)
}

func TestAPIError(t *testing.T) {
	node := newTestNode(t)
	node.handle("/v1/chain/push_transaction", func([]byte) (int, any) {
		return http.StatusInternalServerError, map[string]any{
			"code":    500,
			"message": "Internal Service Error",
			"error": map[string]any{
				"code": 3050003,
				"name": "eosio_assert_message_exception",
				"what": "eosio_assert_message assertion failure",
				"details": []any{
					map[string]any{"message": "assertion failure with message: message already finalized"},
				},
			},
		}
	})
	client := chain.NewClient(node.server.URL)
	_, err := client.PushActions(context.Background(), chain.Action{
		Account: abi.NewName("x.ai"),
		Name:    abi.NewName("finalizemsg"),
		Data:    abi.Bytes{},
	})
	var apiErr *chain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, 3050003, apiErr.Code)
	assert.Equal(t, "eosio_assert_message_exception", apiErr.Name)
	assert.Contains(t, err.Error(), "message already finalized")
}

func TestPushActionsSigned(t *testing.T) {
	node := newTestNode(t)
	var pushed atomic.Value
	node.handle("/v1/chain/push_transaction", func(body []byte) (int, any) {
		pushed.Store(body)
		return http.StatusAccepted, map[string]any{"transaction_id": "abc123", "processed": map[string]any{}}
	})
	key, err := chain.ParsePrivateKey(testWIF)
	require.NoError(t, err)
	client := chain.NewClient(node.server.URL, chain.WithSigningKey(key))
	result, err := client.PushActions(context.Background(), chain.Action{
		Account: abi.NewName("x.ai"),
		Name:    abi.NewName("finalizemsg"),
		Authorization: []chain.PermissionLevel{
			{Actor: abi.NewName("x.ai"), Permission: abi.NewName("active")},
		},
		Data: map[string]any{
			"account_name":           "alice",
			"key":                    uint64(7),
			"post_state_cid":         "bafkpost",
			"response":               "hello there",
			"full_convo_history_cid": "bafkhist",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.TransactionID)

	var req struct {
		Signatures  []string `json:"signatures"`
		Compression int      `json:"compression"`
		PackedTrx   string   `json:"packed_trx"`
	}
	require.NoError(t, json.Unmarshal(pushed.Load().([]byte), &req))
	require.Len(t, req.Signatures, 1)
	packedTrx, err := hex.DecodeString(req.PackedTrx)
	require.NoError(t, err)

	codec, err := abi.NewCodec(abi.TransactionABI())
	require.NoError(t, err)
	decoded, err := codec.Decode("transaction", packedTrx)
	require.NoError(t, err)
	tx, err := chain.TransactionFromValue(decoded)
	require.NoError(t, err)
	// head block 10000 = 0x2710
	assert.Equal(t, uint16(0x2710), tx.RefBlockNum)
	assert.Equal(t, uint32(0x77665544), tx.RefBlockPrefix)
	assert.Equal(t, "2024-03-01T12:32:00", tx.Expiration.String())
	require.Len(t, tx.Actions, 1)
	assert.Equal(t, "finalizemsg", tx.Actions[0].Name.String())
	assert.Equal(t, []chain.PermissionLevel{{Actor: abi.NewName("x.ai"), Permission: abi.NewName("active")}}, tx.Actions[0].Authorization)

	personaABI, err := abi.ParseABI(testdata.PersonaABI)
	require.NoError(t, err)
	personaCodec, err := abi.NewCodec(personaABI)
	require.NoError(t, err)
	data, err := personaCodec.Decode("finalizemsg", tx.Actions[0].Data.(abi.Bytes))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"account_name":           abi.NewName("alice"),
		"key":                    uint64(7),
		"post_state_cid":         "bafkpost",
		"response":               "hello there",
		"full_convo_history_cid": "bafkhist",
	}, data)

	sig, err := abi.ParseSignature(req.Signatures[0])
	require.NoError(t, err)
	var chainID abi.Checksum256
	require.NoError(t, chainID.UnmarshalText([]byte(testChainID)))
	recovered, compressed, err := ecdsa.RecoverCompact(sig.Data, chain.SigningDigest(chainID, packedTrx))
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.Equal(t, key.PublicKey().Data, recovered.SerializeCompressed())
}

func TestPushActionsUnsigned(t *testing.T) {
	node := newTestNode(t)
	var pushed atomic.Value
	node.handle("/v1/chain/push_transaction", func(body []byte) (int, any) {
		pushed.Store(body)
		return http.StatusAccepted, map[string]any{"transaction_id": "def456"}
	})
	client := chain.NewClient(node.server.URL)
	_, err := client.PushActions(context.Background(), chain.Action{
		Account: abi.NewName("x.ai"),
		Name:    abi.NewName("finalizemsg"),
		Data:    []byte{0x01},
	})
	require.NoError(t, err)
	var req map[string]any
	require.NoError(t, json.Unmarshal(pushed.Load().([]byte), &req))
	assert.Equal(t, []any{}, req["signatures"])
	// raw payloads never need the contract schema
	assert.Equal(t, 0, node.count("/v1/chain/get_abi"))
}

func TestPushActionsInvalidPayload(t *testing.T) {
	node := newTestNode(t)
	client := chain.NewClient(node.server.URL)
	_, err := client.PushActions(context.Background(), chain.Action{
		Account: abi.NewName("x.ai"),
		Name:    abi.NewName("finalizemsg"),
		Data:    map[string]any{"account_name": "alice"},
	})
	assert.True(t, errors.Is(err, chain.ErrInvalidPayload), fmt.Sprint(err))
	assert.Equal(t, 0, node.count("/v1/chain/push_transaction"))
}
