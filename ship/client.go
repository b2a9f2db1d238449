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

// Package ship implements a client for the state history websocket protocol.
// The client keeps a single connection open, subscribes to blocks and hands
// every executed transaction to a TransactionRouter
package ship

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/checkpoint"
	"github.com/wireio/persona-relay/metrics"
)

// TransactionRouter receives executed transactions in block order
type TransactionRouter interface {
	RouteTransaction(ctx context.Context, ref TransactionRef, tx *chain.Transaction)
}

// Config is used to configure the stream client
type Config struct {
	URL            string
	Dialer         Dialer
	Router         TransactionRouter
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Checkpoints    checkpoint.Store
	Options        StreamOptions
	StreamAcks     bool
	Resume         bool
	ReconnectDelay time.Duration
	MaxRetries     int
	IdleTimeout    time.Duration
}

// ShipOptionFunc represents a function used to modify the stream client config
type ShipOptionFunc func(*Config)

// NewConfig returns a new stream client config object with the provided options
func NewConfig(options ...ShipOptionFunc) Config {
	c := Config{
		Dialer:         &WebsocketDialer{},
		Options:        DefaultStreamOptions(),
		StreamAcks:     true,
		ReconnectDelay: 5 * time.Second,
		MaxRetries:     5,
		IdleTimeout:    90 * time.Second,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithURL specifies the state history endpoint
func WithURL(url string) ShipOptionFunc {
	return func(c *Config) {
		c.URL = url
	}
}

// WithDialer specifies how connections are opened
func WithDialer(dialer Dialer) ShipOptionFunc {
	return func(c *Config) {
		c.Dialer = dialer
	}
}

// WithRouter specifies where executed transactions are sent
func WithRouter(router TransactionRouter) ShipOptionFunc {
	return func(c *Config) {
		c.Router = router
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) ShipOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics specifies the metrics collectors
func WithMetrics(m *metrics.Metrics) ShipOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithCheckpoints specifies a store for the last processed position
func WithCheckpoints(store checkpoint.Store) ShipOptionFunc {
	return func(c *Config) {
		c.Checkpoints = store
	}
}

// WithStreamOptions specifies the blocks subscription options
func WithStreamOptions(options StreamOptions) ShipOptionFunc {
	return func(c *Config) {
		c.Options = options
	}
}

// WithStreamAcks specifies whether every received message is acknowledged
func WithStreamAcks(acks bool) ShipOptionFunc {
	return func(c *Config) {
		c.StreamAcks = acks
	}
}

// WithResume specifies whether a new session continues after the last
// processed block instead of starting from the configured start block
func WithResume(resume bool) ShipOptionFunc {
	return func(c *Config) {
		c.Resume = resume
	}
}

// WithReconnectDelay specifies the wait between connection attempts
func WithReconnectDelay(delay time.Duration) ShipOptionFunc {
	return func(c *Config) {
		c.ReconnectDelay = delay
	}
}

// WithMaxRetries specifies the number of failed sessions after which the client gives up
func WithMaxRetries(retries int) ShipOptionFunc {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithIdleTimeout specifies how long a read may wait before the connection
// is considered stalled. Zero disables the timeout
func WithIdleTimeout(timeout time.Duration) ShipOptionFunc {
	return func(c *Config) {
		c.IdleTimeout = timeout
	}
}

// Client is the state history stream client
type Client struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	mutex    sync.Mutex
	state    State
	retries  int
	position *BlockPosition
	running  bool
	closed   bool
	cancel   context.CancelFunc
}

// NewClient returns a new stream client
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &WebsocketDialer{}
	}
	c := &Client{
		config:  cfg,
		logger:  logger.With("component", "ship", "url", cfg.URL),
		metrics: metrics.OrNew(cfg.Metrics),
		state:   StateDisconnected,
	}
	return c
}

// State returns the current connection state
func (c *Client) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Retries returns the number of failed sessions since the last successful connect
func (c *Client) Retries() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.retries
}

// LastPosition returns the last processed block, if any
func (c *Client) LastPosition() *BlockPosition {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.position == nil {
		return nil
	}
	ret := *c.position
	return &ret
}

// Close stops the client. A running Run call returns nil
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Run connects and streams until the client is closed, the context is
// cancelled or the reconnect limit is reached
func (c *Client) Run(ctx context.Context) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return ErrClientClosed
	}
	if c.running {
		c.mutex.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mutex.Unlock()
	defer func() {
		cancel()
		c.mutex.Lock()
		c.running = false
		c.mutex.Unlock()
	}()
	c.loadCheckpoint()
	for {
		c.setState(StateConnecting)
		err := c.connect(runCtx)
		if runCtx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		c.logger.Warn("stream session ended", "error", err)
		c.setState(StateReconnecting)
		c.metrics.Reconnects.Inc()
		if !sleep(runCtx, c.config.ReconnectDelay) {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		if retries := c.incrementRetries(); retries >= c.config.MaxRetries {
			c.setState(StateDisconnected)
			c.logger.Error(
				"giving up on stream",
				"retries", retries,
				"error", ErrMaxRetriesExceeded,
			)
			return ErrMaxRetriesExceeded
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	transport, err := c.config.Dialer.Dial(ctx, c.config.URL)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	c.resetRetries()
	stop := context.AfterFunc(ctx, func() {
		_ = transport.Close()
	})
	defer stop()
	defer transport.Close()
	s := newSession(c, transport)
	return s.run(ctx)
}

func (c *Client) setState(state State) {
	c.mutex.Lock()
	prev := c.state
	c.state = state
	c.mutex.Unlock()
	if prev == state {
		return
	}
	if !stateMap.Allowed(prev, state) {
		c.logger.Error(
			"invalid state transition",
			"from", prev.String(),
			"to", state.String(),
		)
	}
	c.metrics.StreamState.Set(float64(state.Id))
	c.logger.Info(
		"stream state changed",
		"from", prev.String(),
		"state", state.String(),
	)
}

func (c *Client) incrementRetries() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.retries++
	return c.retries
}

func (c *Client) resetRetries() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.retries = 0
}

func (c *Client) loadCheckpoint() {
	if !c.config.Resume || c.config.Checkpoints == nil || c.LastPosition() != nil {
		return
	}
	pos, err := c.config.Checkpoints.Load()
	if err != nil {
		c.logger.Warn("failed to load checkpoint", "error", err)
		return
	}
	if pos == nil {
		return
	}
	c.mutex.Lock()
	c.position = &BlockPosition{BlockNum: pos.BlockNum, BlockID: pos.BlockID}
	c.mutex.Unlock()
	c.logger.Info("resuming from checkpoint", "block_num", pos.BlockNum)
}

func (c *Client) setPosition(pos BlockPosition) {
	c.mutex.Lock()
	c.position = &pos
	c.mutex.Unlock()
	if c.config.Checkpoints == nil {
		return
	}
	err := c.config.Checkpoints.Save(checkpoint.Position{
		BlockNum: pos.BlockNum,
		BlockID:  pos.BlockID,
	})
	if err != nil {
		c.logger.Warn(
			"failed to save checkpoint",
			"block_num", pos.BlockNum,
			"error", err,
		)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
