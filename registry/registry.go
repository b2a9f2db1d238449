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

// Package registry keeps the set of known personas in line with the
// on-chain directory table by polling it
package registry

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/metrics"
)

var ErrAlreadyStarted = errors.New("registry already started")

// Persona is a row of the directory table
type Persona struct {
	Name            string `json:"persona_name"`
	InitialStateCID string `json:"initial_state_cid"`
}

// TableReader reads contract table rows
type TableReader interface {
	GetTableRows(ctx context.Context, req chain.TableRowsRequest) (*chain.TableRowsResponse, error)
}

// Config is used to configure the registry
type Config struct {
	Code         string
	Scope        string
	Table        string
	Limit        int
	PollInterval time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// RegistryOptionFunc represents a function used to modify the registry config
type RegistryOptionFunc func(*Config)

// NewConfig returns a new registry config object with the provided options
func NewConfig(options ...RegistryOptionFunc) Config {
	c := Config{
		Code:         "allpersonas",
		Scope:        "allpersonas",
		Table:        "personas",
		Limit:        1000,
		PollInterval: 60 * time.Second,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithContract specifies the directory contract. The scope defaults to the contract
func WithContract(code string) RegistryOptionFunc {
	return func(c *Config) {
		c.Code = code
		c.Scope = code
	}
}

// WithScope specifies the directory table scope
func WithScope(scope string) RegistryOptionFunc {
	return func(c *Config) {
		c.Scope = scope
	}
}

// WithTable specifies the directory table
func WithTable(table string) RegistryOptionFunc {
	return func(c *Config) {
		c.Table = table
	}
}

// WithLimit specifies the number of rows read per poll
func WithLimit(limit int) RegistryOptionFunc {
	return func(c *Config) {
		c.Limit = limit
	}
}

// WithPollInterval specifies the time between polls
func WithPollInterval(interval time.Duration) RegistryOptionFunc {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) RegistryOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics specifies the metrics collectors
func WithMetrics(m *metrics.Metrics) RegistryOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

type personaSet map[string]Persona

// Registry is the persona set. Readers always see a complete set
type Registry struct {
	config    Config
	client    TableReader
	logger    *slog.Logger
	metrics   *metrics.Metrics
	personas  atomic.Pointer[personaSet]
	group     singleflight.Group
	pollSeq   atomic.Uint64
	mutex     sync.Mutex
	started   bool
	doneChan  chan struct{}
	waitGroup sync.WaitGroup
}

// New returns a new registry with an empty persona set
func New(client TableReader, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	r := &Registry{
		config:   cfg,
		client:   client,
		logger:   logger.With("component", "registry", "contract", cfg.Code, "table", cfg.Table),
		metrics:  metrics.OrNew(cfg.Metrics),
		doneChan: make(chan struct{}),
	}
	r.personas.Store(&personaSet{})
	return r
}

// Start polls once right away and then on every interval until Stop is
// called or the context is done
func (r *Registry) Start(ctx context.Context) error {
	r.mutex.Lock()
	if r.started {
		r.mutex.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mutex.Unlock()
	// Poll failures are logged and leave the set unchanged
	_ = r.Refresh(ctx)
	r.waitGroup.Add(1)
	go r.pollLoop(ctx)
	return nil
}

// Stop ends polling and waits for an in-flight poll to finish
func (r *Registry) Stop() {
	r.mutex.Lock()
	select {
	case <-r.doneChan:
	default:
		close(r.doneChan)
	}
	r.mutex.Unlock()
	r.waitGroup.Wait()
}

func (r *Registry) pollLoop(ctx context.Context) {
	defer r.waitGroup.Done()
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.doneChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}

// Refresh polls the directory now. Concurrent calls share one poll, but
// only a poll that started after the call. A caller that finds an older
// poll in flight waits for it and then runs or joins a fresh one
func (r *Registry) Refresh(ctx context.Context) error {
	seen := r.pollSeq.Load()
	for {
		v, err, _ := r.group.Do("poll", func() (any, error) {
			seq := r.pollSeq.Add(1)
			return seq, r.poll(ctx)
		})
		if seq, _ := v.(uint64); seq > seen {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

func (r *Registry) poll(ctx context.Context) error {
	resp, err := r.client.GetTableRows(ctx, chain.TableRowsRequest{
		Code:  r.config.Code,
		Scope: r.config.Scope,
		Table: r.config.Table,
		Limit: r.config.Limit,
	})
	if err != nil {
		r.metrics.RegistryPolls.WithLabelValues("error").Inc()
		r.logger.Warn("directory poll failed, keeping previous persona set", "error", err)
		return err
	}
	next := make(personaSet, len(resp.Rows))
	for _, row := range resp.Rows {
		var p Persona
		if err := json.Unmarshal(row, &p); err != nil {
			r.logger.Warn("skipping malformed directory row", "row", string(row), "error", err)
			continue
		}
		if p.Name == "" {
			r.logger.Warn("skipping directory row without a name", "row", string(row))
			continue
		}
		next[p.Name] = p
	}
	if resp.More {
		r.logger.Warn("directory has more rows than the poll limit", "limit", r.config.Limit)
	}
	prev := *r.personas.Load()
	added, removed := diff(prev, next)
	r.personas.Store(&next)
	r.metrics.RegistryPolls.WithLabelValues("ok").Inc()
	r.metrics.Personas.Set(float64(len(next)))
	if len(added) > 0 || len(removed) > 0 {
		r.logger.Info(
			"persona set changed",
			"added", added,
			"removed", removed,
			"personas", len(next),
		)
	} else {
		r.logger.Debug("persona set unchanged", "personas", len(next))
	}
	return nil
}

func diff(prev personaSet, next personaSet) ([]string, []string) {
	var added, removed []string
	for name := range next {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

// Contains reports whether the persona is known
func (r *Registry) Contains(name string) bool {
	_, ok := (*r.personas.Load())[name]
	return ok
}

// Lookup returns the directory record for a persona
func (r *Registry) Lookup(name string) (Persona, bool) {
	p, ok := (*r.personas.Load())[name]
	return p, ok
}

// Len returns the number of known personas
func (r *Registry) Len() int {
	return len(*r.personas.Load())
}

// Personas returns a snapshot of the persona set ordered by name
func (r *Registry) Personas() []Persona {
	set := *r.personas.Load()
	ret := make([]Persona, 0, len(set))
	for _, p := range set {
		ret = append(ret, p)
	}
	slices.SortFunc(ret, func(a, b Persona) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return ret
}
