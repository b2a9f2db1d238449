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

// Package persona answers messages submitted to persona accounts
package persona

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wireio/persona-relay/router"
)

const DefaultFinalizedCacheSize = 4096

// MessageProcessor runs the pipeline for one message
type MessageProcessor interface {
	Process(ctx context.Context, account string, msg PendingMessage) (*Result, error)
}

// Handler handles persona contract actions routed from the stream
type Handler struct {
	processor  MessageProcessor
	dispatcher *Dispatcher
	finalized  *lru.Cache
	logger     *slog.Logger
}

var _ router.Handler = (*Handler)(nil)

// HandlerOptionFunc is a type that represents functions that modify the Handler config
type HandlerOptionFunc func(*Handler)

// WithDispatcher runs pipelines on the dispatcher instead of inline
func WithDispatcher(dispatcher *Dispatcher) HandlerOptionFunc {
	return func(h *Handler) {
		h.dispatcher = dispatcher
	}
}

// WithHandlerLogger specifies the logger
func WithHandlerLogger(logger *slog.Logger) HandlerOptionFunc {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler returns a handler that passes submitted messages to processor
func NewHandler(processor MessageProcessor, options ...HandlerOptionFunc) *Handler {
	// lru.New only fails for a non-positive size
	finalized, _ := lru.New(DefaultFinalizedCacheSize)
	h := &Handler{
		processor: processor,
		finalized: finalized,
	}
	for _, option := range options {
		option(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "persona")
	return h
}

// Run processes a job and remembers the message once it is finalized. It
// is the dispatcher's job function
func (h *Handler) Run(ctx context.Context, job Job) {
	// already logged by the processor
	_ = h.process(ctx, job)
}

// process runs the pipeline unless the message was finalized already. Jobs
// for one account run in order, so a replay queued behind the original is
// caught here
func (h *Handler) process(ctx context.Context, job Job) error {
	key := finalizedKey(job.Account, job.Message)
	if h.finalized.Contains(key) {
		h.logger.Debug("skipping finalized message", "account", job.Account, "msg_ref", job.Message.MsgRef)
		return nil
	}
	if _, err := h.processor.Process(ctx, job.Account, job.Message); err != nil {
		return err
	}
	h.finalized.Add(key, struct{}{})
	return nil
}

func (h *Handler) HandleAction(ctx context.Context, record router.ActionRecord) error {
	account := record.Account.String()
	switch record.Name.String() {
	case router.ActionInitPersona:
		fields, _ := record.Data.(map[string]any)
		h.logger.Info(
			"persona initialized",
			"account", account,
			"persona_name", stringify(fields["persona_name"]),
			"initial_state_cid", stringify(fields["initial_state_cid"]),
			"block_num", record.BlockNum,
		)
		return nil
	case router.ActionSubmitMsg:
		msg, err := PendingMessageFromValue(record.Data)
		if err != nil {
			return err
		}
		if h.finalized.Contains(finalizedKey(account, msg)) {
			h.logger.Debug("skipping finalized message", "account", account, "msg_ref", msg.MsgRef)
			return nil
		}
		job := Job{Account: account, Message: msg}
		if h.dispatcher != nil {
			return h.dispatcher.Submit(ctx, job)
		}
		return h.process(ctx, job)
	case router.ActionFinalizeMsg:
		fields, _ := record.Data.(map[string]any)
		h.logger.Info(
			"message finalized on chain",
			"account", account,
			"account_name", stringify(fields["account_name"]),
			"key", fields["key"],
			"post_state_cid", stringify(fields["post_state_cid"]),
			"block_num", record.BlockNum,
		)
		return nil
	}
	h.logger.Debug("ignoring action", "account", account, "action", record.Name.String())
	return nil
}

// Finalized reports whether this handler finalized the message
func (h *Handler) Finalized(account string, msg PendingMessage) bool {
	return h.finalized.Contains(finalizedKey(account, msg))
}

func finalizedKey(account string, msg PendingMessage) string {
	return account + "/" + msg.AccountName + "/" + msg.MsgRef
}

func stringify(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	s, _ := v.(string)
	return s
}
