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
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/wireio/persona-relay/abi"
)

const (
	pathGetInfo         = "/v1/chain/get_info"
	pathGetABI          = "/v1/chain/get_abi"
	pathGetTableRows    = "/v1/chain/get_table_rows"
	pathPushTransaction = "/v1/chain/push_transaction"

	defaultExpiration = 120 * time.Second
	defaultTimeout    = 30 * time.Second
)

var transactionCodec *abi.Codec

func init() {
	var err error
	if transactionCodec, err = abi.NewCodec(abi.TransactionABI()); err != nil {
		panic(fmt.Sprintf("built-in transaction schema: %s", err))
	}
}

// Client talks to a node's chain RPC API. Apart from the schema cache it is
// stateless and safe for concurrent use
type Client struct {
	http       *resty.Client
	logger     *slog.Logger
	signingKey *PrivateKey
	expiration time.Duration
	abiMutex   sync.Mutex
	abis       map[string]*abi.ABI
	codecs     *abi.NativeCodecs
}

// ClientOptionFunc is a type that represents functions that modify the Client config
type ClientOptionFunc func(*Client)

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSigningKey specifies the key used to sign submitted transactions. If
// none is provided, transactions are submitted unsigned
func WithSigningKey(key *PrivateKey) ClientOptionFunc {
	return func(c *Client) {
		c.signingKey = key
	}
}

// WithExpiration specifies how far past the head block time submitted
// transactions expire
func WithExpiration(expiration time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.expiration = expiration
	}
}

// WithTimeout specifies the timeout for each RPC request
func WithTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.http.SetTimeout(timeout)
	}
}

// NewClient returns a client for the node at endpoint
func NewClient(endpoint string, options ...ClientOptionFunc) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(endpoint).
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json"),
		expiration: defaultExpiration,
		abis:       make(map[string]*abi.ABI),
		codecs:     abi.NewNativeCodecs(),
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "chain")
	return c
}

// Codecs returns the compiled codecs for every schema loaded by GetABI
func (c *Client) Codecs() *abi.NativeCodecs {
	return c.codecs
}

// SigningKey returns the configured signing key, if any
func (c *Client) SigningKey() *PrivateKey {
	return c.signingKey
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	apiErr := struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Error   APIError `json:"error"`
	}{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	// Replies are decoded whatever their Content-Type
	if resp.IsError() {
		_ = json.Unmarshal(resp.Body(), &apiErr)
		ret := apiErr.Error
		ret.StatusCode = resp.StatusCode()
		if ret.Code == 0 {
			ret.Code = apiErr.Code
		}
		if ret.What == "" {
			ret.What = apiErr.Message
		}
		if ret.What == "" {
			ret.What = resp.Status()
		}
		return fmt.Errorf("%s: %w", path, &ret)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

// GetInfo returns the current chain state
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.post(ctx, pathGetInfo, struct{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetABI returns the schema for an account. Schemas are cached until a
// reload is requested
func (c *Client) GetABI(ctx context.Context, account string, reload bool) (*abi.ABI, error) {
	if !reload {
		c.abiMutex.Lock()
		cached, ok := c.abis[account]
		c.abiMutex.Unlock()
		if ok {
			return cached, nil
		}
	}
	var resp struct {
		AccountName string          `json:"account_name"`
		ABI         json.RawMessage `json:"abi"`
	}
	req := map[string]string{"account_name": account}
	if err := c.post(ctx, pathGetABI, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.ABI) == 0 || string(resp.ABI) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrNoABI, account)
	}
	schema, err := abi.ParseABI(resp.ABI)
	if err != nil {
		return nil, err
	}
	if err := c.codecs.LoadSchema(account, schema); err != nil {
		return nil, err
	}
	c.abiMutex.Lock()
	c.abis[account] = schema
	c.abiMutex.Unlock()
	c.logger.Debug("loaded schema", "account", account, "reload", reload)
	return schema, nil
}

// GetTableRows reads rows from a contract table
func (c *Client) GetTableRows(ctx context.Context, req TableRowsRequest) (*TableRowsResponse, error) {
	body := map[string]any{
		"code":  req.Code,
		"scope": req.Scope,
		"table": req.Table,
		"json":  true,
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}
	if req.Reverse {
		body["reverse"] = true
	}
	if req.LowerBound != "" {
		body["lower_bound"] = req.LowerBound
	}
	if req.UpperBound != "" {
		body["upper_bound"] = req.UpperBound
	}
	var resp TableRowsResponse
	if err := c.post(ctx, pathGetTableRows, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type pushTransactionRequest struct {
	Signatures            []string `json:"signatures"`
	Compression           int      `json:"compression"`
	PackedContextFreeData string   `json:"packed_context_free_data"`
	PackedTrx             string   `json:"packed_trx"`
}

// PushActions builds a transaction referencing the current head block,
// packs each action payload with its contract schema, signs it when a
// signing key is configured and submits it
func (c *Client) PushActions(ctx context.Context, actions ...Action) (*PushResult, error) {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	tx := Transaction{
		TransactionHeader: TransactionHeader{
			Expiration: abi.TimePointSec(
				info.HeadBlockTime.Time().Add(c.expiration).Unix(),
			),
			RefBlockNum:    uint16(info.HeadBlockNum & 0xffff),
			RefBlockPrefix: binary.LittleEndian.Uint32(info.HeadBlockID[8:12]),
		},
		Actions: make([]Action, 0, len(actions)),
	}
	for _, action := range actions {
		packed, err := c.packAction(ctx, action)
		if err != nil {
			return nil, err
		}
		tx.Actions = append(tx.Actions, packed)
	}
	packedTrx, err := transactionCodec.Encode("transaction", tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	req := pushTransactionRequest{
		Signatures: []string{},
		PackedTrx:  hex.EncodeToString(packedTrx),
	}
	if c.signingKey != nil {
		sig, err := c.signingKey.Sign(SigningDigest(info.ChainID, packedTrx))
		if err != nil {
			return nil, err
		}
		req.Signatures = append(req.Signatures, sig.String())
	}
	var result PushResult
	if err := c.post(ctx, pathPushTransaction, req, &result); err != nil {
		return nil, err
	}
	c.logger.Info(
		"pushed transaction",
		"transaction_id", result.TransactionID,
		"actions", len(actions),
	)
	return &result, nil
}

func (c *Client) packAction(ctx context.Context, action Action) (Action, error) {
	switch data := action.Data.(type) {
	case abi.Bytes:
		return action, nil
	case []byte:
		action.Data = abi.Bytes(data)
		return action, nil
	}
	account := action.Account.String()
	if _, err := c.GetABI(ctx, account, false); err != nil {
		return Action{}, err
	}
	packed, err := c.codecs.EncodeAction(account, action.Name.String(), action.Data)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	action.Data = abi.Bytes(packed)
	return action, nil
}
