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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/content"
	"github.com/wireio/persona-relay/inference"
	"github.com/wireio/persona-relay/metrics"
)

const (
	DefaultAttempts      = 3
	DefaultRetryDelay    = time.Second
	DefaultLookupLimit   = 100
	DefaultMessagesTable = "messages"
	DefaultPermission    = "active"
	DefaultFinalize      = "finalizemsg"
)

// Chain is the part of the chain client the pipeline needs
type Chain interface {
	GetTableRows(ctx context.Context, req chain.TableRowsRequest) (*chain.TableRowsResponse, error)
	PushActions(ctx context.Context, actions ...chain.Action) (*chain.PushResult, error)
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config is used to configure the processor
type Config struct {
	Store          content.Store
	Inference      inference.Service
	Chain          Chain
	Attempts       int
	RetryDelay     time.Duration
	LookupLimit    int
	MessagesTable  string
	FinalizeAction string
	Permission     string
	Sleep          SleepFunc
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// ProcessorOptionFunc represents a function used to modify the processor config
type ProcessorOptionFunc func(*Config)

// NewConfig returns a new processor config object with the provided options
func NewConfig(options ...ProcessorOptionFunc) Config {
	c := Config{
		Attempts:       DefaultAttempts,
		RetryDelay:     DefaultRetryDelay,
		LookupLimit:    DefaultLookupLimit,
		MessagesTable:  DefaultMessagesTable,
		FinalizeAction: DefaultFinalize,
		Permission:     DefaultPermission,
		Sleep:          sleepContext,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithStore specifies the content store documents are read from and published to
func WithStore(store content.Store) ProcessorOptionFunc {
	return func(c *Config) {
		c.Store = store
	}
}

// WithInference specifies the inference service
func WithInference(service inference.Service) ProcessorOptionFunc {
	return func(c *Config) {
		c.Inference = service
	}
}

// WithChain specifies the chain client used for lookups and finalization
func WithChain(client Chain) ProcessorOptionFunc {
	return func(c *Config) {
		c.Chain = client
	}
}

// WithAttempts specifies the number of inference attempts
func WithAttempts(attempts int) ProcessorOptionFunc {
	return func(c *Config) {
		c.Attempts = attempts
	}
}

// WithRetryDelay specifies the base delay between inference attempts. The
// wait before attempt n+1 is n times this delay
func WithRetryDelay(delay time.Duration) ProcessorOptionFunc {
	return func(c *Config) {
		c.RetryDelay = delay
	}
}

// WithLookupLimit specifies how many recent message rows are searched
func WithLookupLimit(limit int) ProcessorOptionFunc {
	return func(c *Config) {
		c.LookupLimit = limit
	}
}

// WithPermission specifies the permission the finalize action is authorized with
func WithPermission(permission string) ProcessorOptionFunc {
	return func(c *Config) {
		c.Permission = permission
	}
}

// WithSleep replaces the retry wait
func WithSleep(sleep SleepFunc) ProcessorOptionFunc {
	return func(c *Config) {
		c.Sleep = sleep
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) ProcessorOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics specifies the metrics collectors
func WithMetrics(m *metrics.Metrics) ProcessorOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Result describes a finalized message
type Result struct {
	RunID         string
	Key           uint64
	PostStateRef  string
	Response      string
	TransactionID string
}

// Processor runs the message pipeline
type Processor struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewProcessor(cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &Processor{
		config:  cfg,
		logger:  logger.With("component", "persona"),
		metrics: metrics.OrNew(cfg.Metrics),
	}
}

// Process answers a message submitted to the persona account and submits
// the finalize action. Published content is kept when a later step fails
func (p *Processor) Process(ctx context.Context, account string, msg PendingMessage) (*Result, error) {
	runID := uuid.NewString()
	logger := p.logger.With(
		"run_id", runID,
		"account", account,
		"account_name", msg.AccountName,
		"msg_ref", msg.MsgRef,
	)
	fail := func(step Step, err error) (*Result, error) {
		pErr := &PipelineError{
			Kind:    kindForStep(step),
			Step:    step,
			Account: account,
			Message: msg,
			Err:     err,
		}
		p.metrics.PipelineRuns.WithLabelValues(string(pErr.Kind)).Inc()
		logger.Error(
			"message pipeline failed",
			"kind", string(pErr.Kind),
			"step", string(step),
			"pre_state_ref", msg.PreStateRef,
			"history_ref", msg.HistoryRef,
			"error", err,
		)
		return nil, pErr
	}
	logger.Info("processing message")

	// 1. message
	raw, err := p.config.Store.Get(ctx, msg.MsgRef)
	if err != nil {
		return fail(StepFetchMessage, err)
	}
	text, err := messageText(raw)
	if err != nil {
		return fail(StepFetchMessage, err)
	}

	// 2. persona state
	raw, err = p.config.Store.Get(ctx, msg.PreStateRef)
	if err != nil {
		return fail(StepFetchState, err)
	}
	state, personaID, err := personaState(raw)
	if err != nil {
		return fail(StepFetchState, err)
	}
	if personaID != account {
		logger.Warn("state names a different persona", "persona", personaID)
	}

	// 3. history, allowed to degrade
	convo := p.history(ctx, logger, msg.HistoryRef)

	// 4. inference
	resp, err := p.infer(ctx, logger, inference.Request{
		Message:      text,
		PersonaID:    personaID,
		PersonaState: state,
		History:      convo,
	})
	if err != nil {
		return fail(StepInference, err)
	}

	// 5. publish
	envelope, err := json.Marshal(stateEnvelope{
		Data:        resp.PostState,
		ContentType: "application/json",
	})
	if err != nil {
		return fail(StepPublish, err)
	}
	postStateRef, err := p.config.Store.Put(ctx, envelope)
	if err != nil {
		return fail(StepPublish, err)
	}
	logger.Debug("published state", "post_state_ref", postStateRef)

	// 6. correlation key
	key, err := p.lookupKey(ctx, account, msg)
	if err != nil {
		return fail(StepLookup, err)
	}

	// 7. finalize
	txID, err := p.finalize(ctx, account, msg, key, postStateRef, resp.Text)
	if err != nil {
		return fail(StepFinalize, err)
	}
	p.metrics.PipelineRuns.WithLabelValues("finalized").Inc()
	logger.Info(
		"message finalized",
		"key", key,
		"post_state_ref", postStateRef,
		"transaction_id", txID,
	)
	return &Result{
		RunID:         runID,
		Key:           key,
		PostStateRef:  postStateRef,
		Response:      resp.Text,
		TransactionID: txID,
	}, nil
}

func (p *Processor) history(ctx context.Context, logger *slog.Logger, ref string) []any {
	raw, err := p.config.Store.Get(ctx, ref)
	if err != nil {
		logger.Info("conversation history unavailable, starting fresh", "history_ref", ref, "error", err)
		return []any{}
	}
	ret, err := history(raw)
	if err != nil {
		logger.Info("conversation history unreadable, starting fresh", "history_ref", ref, "error", err)
		return []any{}
	}
	return ret
}

func (p *Processor) infer(ctx context.Context, logger *slog.Logger, req inference.Request) (*inference.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= p.config.Attempts; attempt++ {
		p.metrics.InferenceAttempts.Inc()
		resp, err := p.config.Inference.Invoke(ctx, req)
		if err == nil {
			err = validateResponse(resp)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.Warn("inference attempt failed", "attempt", attempt, "error", err)
		if attempt == p.config.Attempts {
			break
		}
		if err := p.config.Sleep(ctx, time.Duration(attempt)*p.config.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, &InferenceError{Attempts: p.config.Attempts, Err: lastErr}
}

func validateResponse(resp *inference.Response) error {
	switch {
	case resp == nil:
		return errors.New("empty response")
	case resp.Error != "":
		return errors.New(resp.Error)
	case resp.Text == "":
		return errors.New("no response text")
	case !resp.HasPostState():
		return errors.New("no state update")
	}
	return nil
}

type messageRow struct {
	Key    json.RawMessage `json:"key"`
	MsgRef string          `json:"msg_cid"`
}

func (p *Processor) lookupKey(ctx context.Context, account string, msg PendingMessage) (uint64, error) {
	resp, err := p.config.Chain.GetTableRows(ctx, chain.TableRowsRequest{
		Code:    account,
		Scope:   msg.AccountName,
		Table:   p.config.MessagesTable,
		Limit:   p.config.LookupLimit,
		Reverse: true,
	})
	if err != nil {
		return 0, &LookupError{Code: account, Scope: msg.AccountName, MsgRef: msg.MsgRef, Err: err}
	}
	for _, raw := range resp.Rows {
		var row messageRow
		if err := json.Unmarshal(raw, &row); err != nil || row.MsgRef != msg.MsgRef {
			continue
		}
		key, err := parseKey(row.Key)
		if err != nil {
			return 0, &LookupError{Code: account, Scope: msg.AccountName, MsgRef: msg.MsgRef, Err: err}
		}
		return key, nil
	}
	return 0, &LookupError{Code: account, Scope: msg.AccountName, MsgRef: msg.MsgRef}
}

// parseKey accepts a key as a JSON number or as a quoted number, which
// nodes use for values beyond 32 bits
func parseKey(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	ret, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message key %s", raw)
	}
	return ret, nil
}

func (p *Processor) finalize(
	ctx context.Context,
	account string,
	msg PendingMessage,
	key uint64,
	postStateRef string,
	response string,
) (string, error) {
	name, err := abi.ParseName(account)
	if err != nil {
		return "", &ChainError{Err: err}
	}
	action := chain.Action{
		Account: name,
		Name:    abi.NewName(p.config.FinalizeAction),
		Authorization: []chain.PermissionLevel{
			{Actor: name, Permission: abi.NewName(p.config.Permission)},
		},
		Data: map[string]any{
			"account_name":           msg.AccountName,
			"key":                    key,
			"post_state_cid":         postStateRef,
			"response":               response,
			"full_convo_history_cid": msg.HistoryRef,
		},
	}
	result, err := p.config.Chain.PushActions(ctx, action)
	if err != nil {
		return "", &ChainError{Err: err}
	}
	if result == nil {
		return "", nil
	}
	return result.TransactionID, nil
}
