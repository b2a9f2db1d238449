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

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireio/persona-relay/metrics"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.BlocksProcessed.Inc()
	m.DecodeErrors.WithLabelValues(metrics.DecodeBlock).Add(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksProcessed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeErrors.WithLabelValues(metrics.DecodeBlock)))
	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "persona_relay_stream_blocks_processed_total")
	assert.Contains(t, names, "persona_relay_stream_decode_errors_total")
}

func TestOrNew(t *testing.T) {
	m := metrics.OrNew(nil)
	require.NotNil(t, m)
	m.Reconnects.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
	assert.Same(t, m, metrics.OrNew(m))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}
