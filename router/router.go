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

// Package router filters streamed transactions for relevant actions and
// dispatches them to the handler registered for the action's account
package router

import (
	"context"
	"log/slog"
	"slices"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/metrics"
	"github.com/wireio/persona-relay/ship"
)

// Default action names
const (
	ActionInitPersona = "initpersona"
	ActionSubmitMsg   = "submitmsg"
	ActionFinalizeMsg = "finalizemsg"
)

// Reasons an action is dropped
const (
	dropUnknownAccount = "unknown_account"
	dropDecodeError    = "decode_error"
	dropHandlerError   = "handler_error"
)

// ActionRecord is a decoded action ready for dispatch
type ActionRecord struct {
	Account       abi.Name
	Name          abi.Name
	Authorization []chain.PermissionLevel
	// Decoded payload
	Data any
	// Packed payload
	Raw           abi.Bytes
	ContextFree   bool
	BlockNum      uint32
	TransactionID abi.Checksum256
}

// Handler processes actions for the accounts it is registered for
type Handler interface {
	HandleAction(ctx context.Context, record ActionRecord) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, record ActionRecord) error

func (f HandlerFunc) HandleAction(ctx context.Context, record ActionRecord) error {
	return f(ctx, record)
}

// Directory is the dynamic set of accounts served by the directory handler
type Directory interface {
	Contains(account string) bool
	Refresh(ctx context.Context) error
}

// ActionDecoder decodes an action payload with the account's schema
type ActionDecoder interface {
	DecodeAction(ctx context.Context, account string, name string, data []byte) (any, error)
}

// Config is used to configure the router
type Config struct {
	Actions             []string
	RegistrationActions []string
	Decoder             ActionDecoder
	Handlers            map[string]Handler
	Directory           Directory
	DirectoryHandler    Handler
	Logger              *slog.Logger
	Metrics             *metrics.Metrics
}

// RouterOptionFunc represents a function used to modify the router config
type RouterOptionFunc func(*Config)

// NewConfig returns a new router config object with the provided options
func NewConfig(options ...RouterOptionFunc) Config {
	c := Config{
		Actions:             []string{ActionInitPersona, ActionSubmitMsg, ActionFinalizeMsg},
		RegistrationActions: []string{ActionInitPersona},
		Handlers:            map[string]Handler{},
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithActions specifies the allow-list of relevant action names
func WithActions(actions ...string) RouterOptionFunc {
	return func(c *Config) {
		c.Actions = actions
	}
}

// WithRegistrationActions specifies the actions routed to the directory
// handler even for accounts the directory does not know yet
func WithRegistrationActions(actions ...string) RouterOptionFunc {
	return func(c *Config) {
		c.RegistrationActions = actions
	}
}

// WithDecoder specifies the action payload decoder
func WithDecoder(decoder ActionDecoder) RouterOptionFunc {
	return func(c *Config) {
		c.Decoder = decoder
	}
}

// WithHandler registers a handler for a fixed account
func WithHandler(account string, handler Handler) RouterOptionFunc {
	return func(c *Config) {
		if c.Handlers == nil {
			c.Handlers = map[string]Handler{}
		}
		c.Handlers[account] = handler
	}
}

// WithDirectory specifies the dynamic account set and its handler
func WithDirectory(directory Directory, handler Handler) RouterOptionFunc {
	return func(c *Config) {
		c.Directory = directory
		c.DirectoryHandler = handler
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) RouterOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics specifies the metrics collectors
func WithMetrics(m *metrics.Metrics) RouterOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

// Router dispatches relevant actions. It implements ship.TransactionRouter
type Router struct {
	config       Config
	logger       *slog.Logger
	metrics      *metrics.Metrics
	actions      map[abi.Name]bool
	registration map[abi.Name]bool
}

var _ ship.TransactionRouter = (*Router)(nil)

// New returns a new router
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		config:       cfg,
		logger:       logger.With("component", "router"),
		metrics:      metrics.OrNew(cfg.Metrics),
		actions:      make(map[abi.Name]bool, len(cfg.Actions)),
		registration: make(map[abi.Name]bool, len(cfg.RegistrationActions)),
	}
	for _, name := range cfg.Actions {
		r.actions[abi.NewName(name)] = true
	}
	for _, name := range cfg.RegistrationActions {
		r.registration[abi.NewName(name)] = true
	}
	return r
}

// Relevant reports whether the transaction carries at least one allow-listed action
func (r *Router) Relevant(tx *chain.Transaction) bool {
	relevant := func(a chain.Action) bool {
		return r.actions[a.Name]
	}
	return slices.ContainsFunc(tx.ContextFreeActions, relevant) ||
		slices.ContainsFunc(tx.Actions, relevant)
}

// RouteTransaction decodes every action of a relevant transaction and
// dispatches the allow-listed ones in order. Irrelevant transactions are
// not decoded
func (r *Router) RouteTransaction(ctx context.Context, ref ship.TransactionRef, tx *chain.Transaction) {
	if tx == nil || !r.Relevant(tx) {
		return
	}
	logger := r.logger.With(
		"block_num", ref.BlockNum,
		"trx_id", ref.ID.String(),
	)
	records := make([]ActionRecord, 0, len(tx.ContextFreeActions)+len(tx.Actions))
	for _, a := range tx.ContextFreeActions {
		records = append(records, r.newRecord(ref, a, true))
	}
	for _, a := range tx.Actions {
		records = append(records, r.newRecord(ref, a, false))
	}
	decoded := make([]bool, len(records))
	for i := range records {
		record := &records[i]
		data, err := r.decode(ctx, record)
		if err != nil {
			level := slog.LevelDebug
			if r.actions[record.Name] {
				level = slog.LevelWarn
				r.metrics.DecodeErrors.WithLabelValues(metrics.DecodeAction).Inc()
				r.metrics.ActionsDropped.WithLabelValues(dropDecodeError).Inc()
			}
			logger.Log(
				ctx,
				level,
				"failed to decode action",
				"account", record.Account.String(),
				"action", record.Name.String(),
				"error", err,
			)
			continue
		}
		record.Data = data
		decoded[i] = true
	}
	for i, record := range records {
		if !decoded[i] || !r.actions[record.Name] {
			continue
		}
		r.dispatch(ctx, logger, record)
	}
}

func (r *Router) newRecord(ref ship.TransactionRef, a chain.Action, contextFree bool) ActionRecord {
	raw, _ := a.Data.(abi.Bytes)
	return ActionRecord{
		Account:       a.Account,
		Name:          a.Name,
		Authorization: a.Authorization,
		Raw:           raw,
		ContextFree:   contextFree,
		BlockNum:      ref.BlockNum,
		TransactionID: ref.ID,
	}
}

func (r *Router) decode(ctx context.Context, record *ActionRecord) (any, error) {
	if r.config.Decoder == nil {
		return record.Raw, nil
	}
	return r.config.Decoder.DecodeAction(
		ctx,
		record.Account.String(),
		record.Name.String(),
		record.Raw,
	)
}

// handlerFor returns the handler for an account. It refreshes the directory
// once when the account is unknown, except for registration actions which
// are routed to the directory handler regardless
func (r *Router) handlerFor(ctx context.Context, logger *slog.Logger, record ActionRecord) Handler {
	account := record.Account.String()
	if h, ok := r.config.Handlers[account]; ok {
		return h
	}
	directory := r.config.Directory
	if directory == nil || r.config.DirectoryHandler == nil {
		return nil
	}
	if directory.Contains(account) {
		return r.config.DirectoryHandler
	}
	if r.registration[record.Name] {
		return r.config.DirectoryHandler
	}
	if err := directory.Refresh(ctx); err != nil {
		logger.Warn("directory refresh failed", "account", account, "error", err)
	}
	if directory.Contains(account) {
		return r.config.DirectoryHandler
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, logger *slog.Logger, record ActionRecord) {
	account := record.Account.String()
	action := record.Name.String()
	logger = logger.With("account", account, "action", action)
	handler := r.handlerFor(ctx, logger, record)
	if handler == nil {
		r.metrics.ActionsDropped.WithLabelValues(dropUnknownAccount).Inc()
		logger.Info("dropping action for unknown account")
		return
	}
	r.metrics.ActionsRouted.WithLabelValues(action).Inc()
	logger.Debug("routing action")
	if err := handler.HandleAction(ctx, record); err != nil {
		r.metrics.ActionsDropped.WithLabelValues(dropHandlerError).Inc()
		logger.Error("action handler failed", "error", err)
	}
	if r.registration[record.Name] && r.config.Directory != nil {
		if _, static := r.config.Handlers[account]; !static && !r.config.Directory.Contains(account) {
			if err := r.config.Directory.Refresh(ctx); err != nil {
				logger.Warn("directory refresh failed", "error", err)
			}
		}
	}
}
