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

// Package metrics holds the prometheus collectors shared by the relay
// components
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "persona_relay"

// Decode error kinds
const (
	DecodeEnvelope    = "envelope"
	DecodeBlock       = "block"
	DecodeTransaction = "transaction"
	DecodeTraces      = "traces"
	DecodeDeltas      = "deltas"
	DecodeAction      = "action"
)

// Metrics is a set of collectors. A Metrics built with a nil registerer is
// fully usable but never exported
type Metrics struct {
	StreamState       prometheus.Gauge
	MessagesReceived  prometheus.Counter
	BlocksProcessed   prometheus.Counter
	HeadBlock         prometheus.Gauge
	DecodeErrors      *prometheus.CounterVec
	Reconnects        prometheus.Counter
	ActionsRouted     *prometheus.CounterVec
	ActionsDropped    *prometheus.CounterVec
	Personas          prometheus.Gauge
	RegistryPolls     *prometheus.CounterVec
	PipelineRuns      *prometheus.CounterVec
	InferenceAttempts prometheus.Counter
}

// New creates the collectors and registers them with reg when it is not nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Current stream client state id",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Messages received from the state history endpoint",
		}),
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "blocks_processed_total",
			Help:      "Blocks decoded and routed",
		}),
		HeadBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "last_block_num",
			Help:      "Number of the last processed block",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_errors_total",
			Help:      "Records skipped because they could not be decoded",
		}, []string{"kind"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts",
		}),
		ActionsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "actions_routed_total",
			Help:      "Actions dispatched to a handler",
		}, []string{"action"}),
		ActionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "actions_dropped_total",
			Help:      "Relevant actions that were not dispatched",
		}, []string{"reason"}),
		Personas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "personas",
			Help:      "Number of known personas",
		}),
		RegistryPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "polls_total",
			Help:      "Directory polls by result",
		}, []string{"result"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Message pipeline runs by outcome",
		}, []string{"outcome"}),
		InferenceAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "inference_attempts_total",
			Help:      "Calls made to the inference service",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StreamState,
		m.MessagesReceived,
		m.BlocksProcessed,
		m.HeadBlock,
		m.DecodeErrors,
		m.Reconnects,
		m.ActionsRouted,
		m.ActionsDropped,
		m.Personas,
		m.RegistryPolls,
		m.PipelineRuns,
		m.InferenceAttempts,
	}
}

// OrNew returns m, or an unregistered set when m is nil
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}
