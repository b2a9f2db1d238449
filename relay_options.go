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

package relay

import (
	"log/slog"

	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/checkpoint"
	"github.com/wireio/persona-relay/config"
	"github.com/wireio/persona-relay/content"
	"github.com/wireio/persona-relay/inference"
	"github.com/wireio/persona-relay/metrics"
	"github.com/wireio/persona-relay/ship"
)

// RelayOptionFunc is a type that represents functions that modify the Relay config
type RelayOptionFunc func(*Relay)

// WithConfig specifies the configuration. If none is provided, the defaults are used
func WithConfig(cfg *config.Config) RelayOptionFunc {
	return func(r *Relay) {
		r.config = cfg
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) RelayOptionFunc {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithMetrics specifies the metrics collectors. If none are provided, an
// unregistered set is used
func WithMetrics(m *metrics.Metrics) RelayOptionFunc {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithErrorChan specifies the error channel to use. If none is provided, one will be created
func WithErrorChan(errorChan chan error) RelayOptionFunc {
	return func(r *Relay) {
		r.errorChan = errorChan
	}
}

// WithChainClient specifies an existing chain client to use instead of one
// built from the configuration
func WithChainClient(client *chain.Client) RelayOptionFunc {
	return func(r *Relay) {
		r.chain = client
	}
}

// WithContentStore specifies the content store, overriding the configured backend
func WithContentStore(store content.Store) RelayOptionFunc {
	return func(r *Relay) {
		r.store = store
	}
}

// WithInference specifies the inference service, overriding the configured endpoint
func WithInference(service inference.Service) RelayOptionFunc {
	return func(r *Relay) {
		r.inference = service
	}
}

// WithDialer specifies the stream dialer
func WithDialer(dialer ship.Dialer) RelayOptionFunc {
	return func(r *Relay) {
		r.dialer = dialer
	}
}

// WithCheckpointStore specifies where stream positions are stored,
// overriding the configured checkpoint file
func WithCheckpointStore(store checkpoint.Store) RelayOptionFunc {
	return func(r *Relay) {
		r.checkpoints = store
	}
}
