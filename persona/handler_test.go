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

package persona_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/persona"
	"github.com/wireio/persona-relay/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProcessor struct {
	mutex sync.Mutex
	calls []persona.Job
	err   error
}

func (p *fakeProcessor) Process(_ context.Context, account string, msg persona.PendingMessage) (*persona.Result, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.calls = append(p.calls, persona.Job{Account: account, Message: msg})
	if p.err != nil {
		return nil, p.err
	}
	return &persona.Result{}, nil
}

func (p *fakeProcessor) count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.calls)
}

func submitRecord(msgRef string) router.ActionRecord {
	return router.ActionRecord{
		Account: abi.NewName("x.ai"),
		Name:    abi.NewName(router.ActionSubmitMsg),
		Data: map[string]any{
			"account_name":           abi.NewName("alice"),
			"pre_state_cid":          "bafkstate",
			"msg_cid":                msgRef,
			"full_convo_history_cid": "bafkhistory",
		},
		BlockNum: 10,
	}
}

func quietHandler(p persona.MessageProcessor, options ...persona.HandlerOptionFunc) *persona.Handler {
	return persona.NewHandler(p, append([]persona.HandlerOptionFunc{
		persona.WithHandlerLogger(slog.New(slog.DiscardHandler)),
	}, options...)...)
}

func TestHandlerSubmitRunsPipeline(t *testing.T) {
	p := &fakeProcessor{}
	h := quietHandler(p)
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")))
	require.Len(t, p.calls, 1)
	assert.Equal(t, persona.Job{
		Account: "x.ai",
		Message: persona.PendingMessage{
			AccountName: "alice",
			PreStateRef: "bafkstate",
			MsgRef:      "bafkmsg",
			HistoryRef:  "bafkhistory",
		},
	}, p.calls[0])
	assert.True(t, h.Finalized("x.ai", p.calls[0].Message))
}

func TestHandlerSkipsReplayedMessage(t *testing.T) {
	p := &fakeProcessor{}
	h := quietHandler(p)
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")))
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")))
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkother")))
	assert.Equal(t, 2, p.count())
}

func TestHandlerFailedMessageNotRemembered(t *testing.T) {
	p := &fakeProcessor{err: errors.New("boom")}
	h := quietHandler(p)
	assert.EqualError(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")), "boom")
	assert.Error(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")))
	assert.Equal(t, 2, p.count())
}

func TestHandlerInvalidSubmitPayload(t *testing.T) {
	p := &fakeProcessor{}
	h := quietHandler(p)
	record := submitRecord("bafkmsg")
	delete(record.Data.(map[string]any), "msg_cid")
	assert.ErrorIs(t, h.HandleAction(context.Background(), record), persona.ErrInvalidMessage)
	record.Data = abi.Bytes{0x01}
	assert.ErrorIs(t, h.HandleAction(context.Background(), record), persona.ErrInvalidMessage)
	assert.Zero(t, p.count())
}

func TestHandlerOtherActionsAreLogged(t *testing.T) {
	p := &fakeProcessor{}
	h := quietHandler(p)
	for _, name := range []string{router.ActionInitPersona, router.ActionFinalizeMsg, "transfer"} {
		record := router.ActionRecord{
			Account: abi.NewName("x.ai"),
			Name:    abi.NewName(name),
			Data:    map[string]any{"persona_name": abi.NewName("x.ai")},
		}
		assert.NoError(t, h.HandleAction(context.Background(), record))
	}
	assert.Zero(t, p.count())
}

func TestHandlerWithDispatcher(t *testing.T) {
	p := &fakeProcessor{}
	var h *persona.Handler
	d := persona.NewDispatcher(2, 4, func(ctx context.Context, job persona.Job) {
		h.Run(ctx, job)
	})
	h = quietHandler(p, persona.WithDispatcher(d))
	d.Start(context.Background())
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkone")))
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafktwo")))
	d.Stop()
	assert.Equal(t, 2, p.count())
	assert.True(t, h.Finalized("x.ai", p.calls[0].Message))
	assert.ErrorIs(t, h.HandleAction(context.Background(), submitRecord("bafkthree")), persona.ErrDispatcherStopped)
}

func TestPendingMessageFromValue(t *testing.T) {
	msg, err := persona.PendingMessageFromValue(map[string]any{
		"account_name":           "bob",
		"pre_state_cid":          "a",
		"msg_cid":                "b",
		"full_convo_history_cid": "c",
	})
	require.NoError(t, err)
	assert.Equal(t, persona.PendingMessage{AccountName: "bob", PreStateRef: "a", MsgRef: "b", HistoryRef: "c"}, msg)

	_, err = persona.PendingMessageFromValue(map[string]any{"account_name": 5})
	assert.ErrorIs(t, err, persona.ErrInvalidMessage)
}

func TestUnwrap(t *testing.T) {
	inner := map[string]any{"text": "hi"}
	testDefs := []struct {
		name string
		doc  any
		want any
	}{
		{name: "double wrapped", doc: map[string]any{"data": map[string]any{"data": inner}}, want: inner},
		{name: "single wrapped", doc: map[string]any{"data": inner}, want: inner},
		{name: "bare", doc: inner, want: inner},
		{name: "empty data", doc: map[string]any{"data": "", "text": "hi"}, want: map[string]any{"data": "", "text": "hi"}},
		{name: "empty inner data", doc: map[string]any{"data": map[string]any{"data": nil, "text": "hi"}}, want: map[string]any{"data": nil, "text": "hi"}},
		{name: "list", doc: []any{1.0}, want: []any{1.0}},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(t, testDef.want, persona.Unwrap(testDef.doc))
		})
	}
}

func TestHandlerDispatcherSkipsQueuedReplay(t *testing.T) {
	p := &fakeProcessor{}
	var h *persona.Handler
	d := persona.NewDispatcher(1, 4, func(ctx context.Context, job persona.Job) {
		h.Run(ctx, job)
	})
	h = quietHandler(p, persona.WithDispatcher(d))
	// both copies are queued before either runs
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")))
	require.NoError(t, h.HandleAction(context.Background(), submitRecord("bafkmsg")))
	d.Start(context.Background())
	d.Stop()
	assert.Equal(t, 1, p.count())
	assert.True(t, h.Finalized("x.ai", p.calls[0].Message))
}
