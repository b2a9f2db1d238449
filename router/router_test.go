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

package router_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/metrics"
	"github.com/wireio/persona-relay/router"
	"github.com/wireio/persona-relay/ship"
)

type countingDecoder struct {
	mutex sync.Mutex
	calls []string
	fail  map[string]bool
}

func (d *countingDecoder) DecodeAction(_ context.Context, account string, name string, data []byte) (any, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.calls = append(d.calls, account+"::"+name)
	if d.fail[account+"::"+name] {
		return nil, errors.New("bad payload")
	}
	return map[string]any{"len": len(data)}, nil
}

type fakeDirectory struct {
	accounts  map[string]bool
	onRefresh func(d *fakeDirectory)
	refreshes int
}

func (d *fakeDirectory) Contains(account string) bool {
	return d.accounts[account]
}

func (d *fakeDirectory) Refresh(context.Context) error {
	d.refreshes++
	if d.onRefresh != nil {
		d.onRefresh(d)
	}
	return nil
}

type recordingHandler struct {
	records []router.ActionRecord
	err     error
}

func (h *recordingHandler) HandleAction(_ context.Context, record router.ActionRecord) error {
	h.records = append(h.records, record)
	return h.err
}

func action(account string, name string) chain.Action {
	return chain.Action{
		Account:       abi.NewName(account),
		Name:          abi.NewName(name),
		Authorization: []chain.PermissionLevel{{Actor: abi.NewName(account), Permission: abi.NewName("active")}},
		Data:          abi.Bytes{0x01, 0x02},
	}
}

type fixture struct {
	decoder   *countingDecoder
	directory *fakeDirectory
	handler   *recordingHandler
	metrics   *metrics.Metrics
	router    *router.Router
}

func newFixture(options ...router.RouterOptionFunc) *fixture {
	f := &fixture{
		decoder:   &countingDecoder{fail: map[string]bool{}},
		directory: &fakeDirectory{accounts: map[string]bool{"x.ai": true}},
		handler:   &recordingHandler{},
		metrics:   metrics.New(nil),
	}
	base := []router.RouterOptionFunc{
		router.WithDecoder(f.decoder),
		router.WithDirectory(f.directory, f.handler),
		router.WithLogger(slog.New(slog.DiscardHandler)),
		router.WithMetrics(f.metrics),
	}
	f.router = router.New(router.NewConfig(append(base, options...)...))
	return f
}

var testRef = ship.TransactionRef{BlockNum: 42}

func TestIrrelevantTransactionIsNotDecoded(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{
		ContextFreeActions: []chain.Action{action("eosio", "onblock")},
		Actions:            []chain.Action{action("eosio.token", "transfer"), action("x.ai", "setcode")},
	}
	assert.False(t, f.router.Relevant(tx))
	f.router.RouteTransaction(context.Background(), testRef, tx)
	assert.Empty(t, f.decoder.calls)
	assert.Empty(t, f.handler.records)
	assert.Equal(t, 0, f.directory.refreshes)
}

func TestRelevantTransactionDecodesAllActions(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{
		Actions: []chain.Action{
			action("eosio.token", "transfer"),
			action("x.ai", "submitmsg"),
		},
	}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	assert.Equal(t, []string{"eosio.token::transfer", "x.ai::submitmsg"}, f.decoder.calls)
	require.Len(t, f.handler.records, 1)
	record := f.handler.records[0]
	assert.Equal(t, abi.NewName("x.ai"), record.Account)
	assert.Equal(t, abi.NewName("submitmsg"), record.Name)
	assert.Equal(t, map[string]any{"len": 2}, record.Data)
	assert.Equal(t, abi.Bytes{0x01, 0x02}, record.Raw)
	assert.Equal(t, uint32(42), record.BlockNum)
	assert.False(t, record.ContextFree)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsRouted.WithLabelValues("submitmsg")))
}

func TestContextFreeActionsAreScanned(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{
		ContextFreeActions: []chain.Action{action("x.ai", "finalizemsg")},
		Actions:            []chain.Action{action("eosio.token", "transfer")},
	}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 1)
	assert.True(t, f.handler.records[0].ContextFree)
	assert.Len(t, f.decoder.calls, 2)
}

func TestActionsRoutedInOrder(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{
		Actions: []chain.Action{
			action("x.ai", "initpersona"),
			action("x.ai", "submitmsg"),
			action("x.ai", "finalizemsg"),
		},
	}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 3)
	for i, name := range []string{"initpersona", "submitmsg", "finalizemsg"} {
		assert.Equal(t, abi.NewName(name), f.handler.records[i].Name)
	}
}

func TestUnknownAccountIsDropped(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{Actions: []chain.Action{action("y.ai", "submitmsg")}}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	assert.Empty(t, f.handler.records)
	assert.Equal(t, 1, f.directory.refreshes, "exactly one forced refresh")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsDropped.WithLabelValues("unknown_account")))
}

func TestUnknownAccountFoundAfterRefresh(t *testing.T) {
	f := newFixture()
	f.directory.onRefresh = func(d *fakeDirectory) {
		d.accounts["y.ai"] = true
	}
	tx := &chain.Transaction{Actions: []chain.Action{action("y.ai", "submitmsg")}}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 1)
	assert.Equal(t, 1, f.directory.refreshes)
}

func TestRegistrationForUnknownAccount(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{Actions: []chain.Action{action("new.ai", "initpersona")}}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 1, "registration is routed unconditionally")
	assert.Equal(t, 1, f.directory.refreshes, "registration triggers a refresh")
}

func TestKnownAccountDoesNotRefresh(t *testing.T) {
	f := newFixture()
	tx := &chain.Transaction{Actions: []chain.Action{action("x.ai", "initpersona")}}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 1)
	assert.Equal(t, 0, f.directory.refreshes)
}

func TestStaticHandler(t *testing.T) {
	static := &recordingHandler{}
	f := newFixture(router.WithHandler("allpersonas", static))
	tx := &chain.Transaction{Actions: []chain.Action{action("allpersonas", "initpersona")}}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, static.records, 1)
	assert.Empty(t, f.handler.records)
	assert.Equal(t, 0, f.directory.refreshes)
}

func TestHandlerErrorIsContained(t *testing.T) {
	f := newFixture()
	f.handler.err = errors.New("pipeline failed")
	tx := &chain.Transaction{
		Actions: []chain.Action{
			action("x.ai", "submitmsg"),
			action("x.ai", "submitmsg"),
		},
	}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	assert.Len(t, f.handler.records, 2, "later actions still dispatched")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ActionsDropped.WithLabelValues("handler_error")))
}

func TestDecodeFailureSkipsAction(t *testing.T) {
	f := newFixture()
	f.decoder.fail["x.ai::submitmsg"] = true
	tx := &chain.Transaction{
		Actions: []chain.Action{
			action("x.ai", "submitmsg"),
			action("x.ai", "finalizemsg"),
		},
	}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 1)
	assert.Equal(t, abi.NewName("finalizemsg"), f.handler.records[0].Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DecodeErrors.WithLabelValues(metrics.DecodeAction)))
}

func TestCustomAllowList(t *testing.T) {
	f := newFixture(router.WithActions("transfer"))
	f.directory.accounts["eosio.token"] = true
	tx := &chain.Transaction{
		Actions: []chain.Action{
			action("x.ai", "submitmsg"),
			action("eosio.token", "transfer"),
		},
	}
	f.router.RouteTransaction(context.Background(), testRef, tx)
	require.Len(t, f.handler.records, 1)
	assert.Equal(t, abi.NewName("transfer"), f.handler.records[0].Name)
}

func TestWithoutDecoderPassesRawPayload(t *testing.T) {
	handler := &recordingHandler{}
	r := router.New(router.NewConfig(
		router.WithDirectory(&fakeDirectory{accounts: map[string]bool{"x.ai": true}}, handler),
		router.WithLogger(slog.New(slog.DiscardHandler)),
	))
	r.RouteTransaction(context.Background(), testRef, &chain.Transaction{
		Actions: []chain.Action{action("x.ai", "submitmsg")},
	})
	require.Len(t, handler.records, 1)
	assert.Equal(t, abi.Bytes{0x01, 0x02}, handler.records[0].Data)
}

func TestHandlerFunc(t *testing.T) {
	var got router.ActionRecord
	h := router.HandlerFunc(func(_ context.Context, record router.ActionRecord) error {
		got = record
		return nil
	})
	require.NoError(t, h.HandleAction(context.Background(), router.ActionRecord{BlockNum: 7}))
	assert.Equal(t, uint32(7), got.BlockNum)
}
