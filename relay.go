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

// Package relay wires the state history stream to the persona message
// pipeline.
//
// A Relay follows blocks from a node's state history endpoint, picks out
// persona contract actions, keeps the persona directory in sync with the
// chain and answers every submitted message by calling the inference
// service, publishing the persona's new state and finalizing the message
// on chain.
//
// This package is the main entry point into this module. The other packages
// can be used on their own.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/checkpoint"
	"github.com/wireio/persona-relay/config"
	"github.com/wireio/persona-relay/content"
	"github.com/wireio/persona-relay/inference"
	"github.com/wireio/persona-relay/metrics"
	"github.com/wireio/persona-relay/persona"
	"github.com/wireio/persona-relay/registry"
	"github.com/wireio/persona-relay/router"
	"github.com/wireio/persona-relay/ship"
)

var (
	ErrRelayClosed    = errors.New("relay closed")
	ErrAlreadyRunning = errors.New("relay already running")
)

// Relay owns the stream client and every component it feeds
type Relay struct {
	config      *config.Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	chain       *chain.Client
	store       content.Store
	inference   inference.Service
	dialer      ship.Dialer
	checkpoints checkpoint.Store
	registry    *registry.Registry
	processor   *persona.Processor
	handler     *persona.Handler
	dispatcher  *persona.Dispatcher
	router      *router.Router
	stream      *ship.Client
	errorChan   chan error
	doneChan    chan struct{}
	waitGroup   sync.WaitGroup
	onceClose   sync.Once
	mutex       sync.Mutex
	started     bool
	closed      bool
}

// New returns a new Relay built from the provided options
func New(options ...RelayOptionFunc) (*Relay, error) {
	r := &Relay{
		doneChan: make(chan struct{}),
	}
	// Apply provided options functions
	for _, option := range options {
		option(r)
	}
	if r.config == nil {
		r.config = config.Default()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = metrics.New(nil)
	}
	if r.errorChan == nil {
		r.errorChan = make(chan error, 10)
	}
	if err := r.setup(); err != nil {
		return nil, err
	}
	return r, nil
}

// ErrorChan returns the channel for asynchronous errors
func (r *Relay) ErrorChan() chan error {
	return r.errorChan
}

// Config returns the configuration the relay was built from
func (r *Relay) Config() *config.Config {
	return r.config
}

// Chain returns the chain client
func (r *Relay) Chain() *chain.Client {
	return r.chain
}

// Registry returns the persona registry
func (r *Relay) Registry() *registry.Registry {
	return r.registry
}

// Stream returns the state history client
func (r *Relay) Stream() *ship.Client {
	return r.stream
}

// setup builds the components leaf first
func (r *Relay) setup() error {
	cfg := r.config
	if err := cfg.Validate(); err != nil {
		return err
	}
	// Chain client
	chainOptions := []chain.ClientOptionFunc{
		chain.WithLogger(r.logger),
		chain.WithTimeout(cfg.Chain.Timeout),
		chain.WithExpiration(cfg.Chain.Expiration),
	}
	if cfg.Chain.SigningKey != "" {
		key, err := chain.ParsePrivateKey(cfg.Chain.SigningKey)
		if err != nil {
			return fmt.Errorf("chain.signing_key: %w", err)
		}
		chainOptions = append(chainOptions, chain.WithSigningKey(key))
	}
	if r.chain == nil {
		r.chain = chain.NewClient(cfg.Chain.Endpoint, chainOptions...)
	}
	// Content store
	if r.store == nil {
		store, err := newStore(cfg.Content, r.logger)
		if err != nil {
			return err
		}
		r.store = store
	}
	// Inference service
	if r.inference == nil {
		r.inference = inference.NewHTTPClient(
			cfg.Inference.Endpoint,
			inference.WithAPIKey(cfg.Inference.APIKey),
			inference.WithTimeout(cfg.Inference.Timeout),
			inference.WithLogger(r.logger),
		)
	}
	// Persona directory
	r.registry = registry.New(r.chain, registry.NewConfig(
		registry.WithContract(cfg.Directory.Contract),
		registry.WithScope(cfg.Directory.Scope),
		registry.WithTable(cfg.Directory.Table),
		registry.WithLimit(cfg.Directory.Limit),
		registry.WithPollInterval(cfg.Directory.PollInterval),
		registry.WithLogger(r.logger),
		registry.WithMetrics(r.metrics),
	))
	// Message pipeline
	r.processor = persona.NewProcessor(persona.NewConfig(
		persona.WithStore(r.store),
		persona.WithInference(r.inference),
		persona.WithChain(r.chain),
		persona.WithAttempts(cfg.Inference.Attempts),
		persona.WithRetryDelay(cfg.Inference.RetryDelay),
		persona.WithLookupLimit(cfg.Pipeline.LookupLimit),
		persona.WithPermission(cfg.Pipeline.Permission),
		persona.WithLogger(r.logger),
		persona.WithMetrics(r.metrics),
	))
	handlerOptions := []persona.HandlerOptionFunc{
		persona.WithHandlerLogger(r.logger),
	}
	if cfg.Pipeline.Workers > 0 {
		r.dispatcher = persona.NewDispatcher(
			cfg.Pipeline.Workers,
			cfg.Pipeline.QueueSize,
			func(ctx context.Context, job persona.Job) {
				r.handler.Run(ctx, job)
			},
		)
		handlerOptions = append(handlerOptions, persona.WithDispatcher(r.dispatcher))
	}
	r.handler = persona.NewHandler(r.processor, handlerOptions...)
	// Router
	r.router = router.New(router.NewConfig(
		router.WithActions(cfg.Router.Actions...),
		router.WithRegistrationActions(cfg.Router.RegistrationActions...),
		router.WithDecoder(chain.NewActionDecoder(r.chain, r.logger)),
		router.WithDirectory(r.registry, r.handler),
		router.WithLogger(r.logger),
		router.WithMetrics(r.metrics),
	))
	// Stream client
	if r.checkpoints == nil && cfg.Stream.CheckpointFile != "" {
		r.checkpoints = checkpoint.NewFileStore(cfg.Stream.CheckpointFile)
	}
	streamOptions := ship.DefaultStreamOptions()
	streamOptions.StartBlock = cfg.Stream.StartBlock
	streamOptions.EndBlockNum = cfg.Stream.EndBlock
	streamOptions.MaxMessagesInFlight = cfg.Stream.MaxMessagesInFlight
	streamOptions.IrreversibleOnly = cfg.Stream.IrreversibleOnly
	streamOptions.FetchBlock = cfg.Stream.FetchBlock
	streamOptions.FetchTraces = cfg.Stream.FetchTraces
	streamOptions.FetchDeltas = cfg.Stream.FetchDeltas
	shipOptions := []ship.ShipOptionFunc{
		ship.WithURL(cfg.Stream.URL),
		ship.WithRouter(r.router),
		ship.WithLogger(r.logger),
		ship.WithMetrics(r.metrics),
		ship.WithStreamOptions(streamOptions),
		ship.WithStreamAcks(cfg.Stream.Acks),
		ship.WithResume(cfg.Stream.Resume),
		ship.WithReconnectDelay(cfg.Stream.ReconnectDelay),
		ship.WithMaxRetries(cfg.Stream.MaxRetries),
		ship.WithIdleTimeout(cfg.Stream.IdleTimeout),
	}
	if r.dialer != nil {
		shipOptions = append(shipOptions, ship.WithDialer(r.dialer))
	}
	if r.checkpoints != nil {
		shipOptions = append(shipOptions, ship.WithCheckpoints(r.checkpoints))
	}
	r.stream = ship.NewClient(ship.NewConfig(shipOptions...))
	return nil
}

func newStore(cfg config.ContentConfig, logger *slog.Logger) (content.Store, error) {
	switch cfg.Backend {
	case config.ContentLocal:
		return content.NewLocalStore(cfg.Dir)
	case config.ContentMemory:
		return content.NewMemoryStore(), nil
	case config.ContentGateway:
		return content.NewGatewayStore(
			content.WithPinURL(cfg.PinURL),
			content.WithGatewayURL(cfg.GatewayURL),
			content.WithToken(cfg.JWT),
			content.WithTimeout(cfg.Timeout),
			content.WithLogger(logger),
		), nil
	}
	return nil, fmt.Errorf("unknown content backend %q", cfg.Backend)
}

// Run starts the registry and pipeline workers and streams blocks until
// the context is done, Close is called or the stream gives up. A Relay can
// only be run once
func (r *Relay) Run(ctx context.Context) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return ErrRelayClosed
	}
	if r.started {
		r.mutex.Unlock()
		return ErrAlreadyRunning
	}
	r.started = true
	r.waitGroup.Add(1)
	r.mutex.Unlock()
	defer r.waitGroup.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Stop everything when the relay is closed
	go func() {
		select {
		case <-r.doneChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := r.registry.Start(ctx); err != nil {
		return err
	}
	defer r.registry.Stop()
	if r.dispatcher != nil {
		r.dispatcher.Start(ctx)
		defer r.dispatcher.Stop()
	}
	r.logger.Info(
		"relay started",
		"component", "relay",
		"chain", r.config.Chain.Endpoint,
		"stream", r.config.Stream.URL,
		"personas", r.registry.Len(),
	)
	err := r.stream.Run(ctx)
	select {
	case <-r.doneChan:
		// Closed
		return nil
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		select {
		case r.errorChan <- err:
		default:
		}
	}
	return err
}

// Close will shut down the relay and wait for Run to return
func (r *Relay) Close() error {
	r.onceClose.Do(func() {
		r.mutex.Lock()
		r.closed = true
		r.mutex.Unlock()
		// Close doneChan to signify that we're shutting down
		close(r.doneChan)
		_ = r.stream.Close()
		// Wait for Run to finish
		r.waitGroup.Wait()
		close(r.errorChan)
	})
	return nil
}
