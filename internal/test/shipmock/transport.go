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

// Package shipmock provides a scripted state history transport for tests
package shipmock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/ship"
)

var (
	ErrTimeout     = errors.New("read deadline exceeded")
	ErrClosed      = errors.New("transport closed")
	ErrNoTransport = errors.New("no scripted transport left")
)

// Transport plays a scripted conversation. Once the script is exhausted,
// reads block until the transport is closed or the read deadline passes
type Transport struct {
	mutex        sync.Mutex
	conversation []ConversationEntry
	entry        int
	frame        int
	deadline     time.Time
	closed       chan struct{}
	closeOnce    sync.Once
	errors       []error
	written      [][]byte
}

// NewTransport returns a new Transport with the provided conversation entries
func NewTransport(conversation ...ConversationEntry) *Transport {
	return &Transport{
		conversation: conversation,
		closed:       make(chan struct{}),
	}
}

func (t *Transport) ReadMessage() ([]byte, error) {
	if t.Closed() {
		return nil, ErrClosed
	}
	t.mutex.Lock()
	if t.advance() {
		entry := t.conversation[t.entry]
		switch entry.Type {
		case EntryTypeOutput:
			frame := entry.OutputFrames[t.frame]
			t.frame++
			t.mutex.Unlock()
			return frame, nil
		case EntryTypeClose:
			t.entry++
			t.mutex.Unlock()
			_ = t.Close()
			return nil, io.EOF
		default:
			err := fmt.Errorf(
				"read while waiting for %s request (entry %d)",
				entry.InputRequestType,
				t.entry,
			)
			t.errors = append(t.errors, err)
			t.mutex.Unlock()
			return nil, err
		}
	}
	deadline := t.deadline
	t.mutex.Unlock()
	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-t.closed:
		return nil, ErrClosed
	case <-timeout:
		return nil, ErrTimeout
	}
}

func (t *Transport) WriteMessage(data []byte) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.written = append(t.written, append([]byte(nil), data...))
	if !t.advance() {
		return nil
	}
	entry := t.conversation[t.entry]
	if entry.Type != EntryTypeInput {
		// The client may write ahead of the script, e.g. acks after the last block
		return nil
	}
	t.entry++
	if err := t.checkInput(entry, data); err != nil {
		t.errors = append(t.errors, fmt.Errorf("entry %d: %w", t.entry-1, err))
	}
	return nil
}

// advance skips output entries whose frames have all been read and reports
// whether any entries remain
func (t *Transport) advance() bool {
	for t.entry < len(t.conversation) {
		entry := t.conversation[t.entry]
		if entry.Type != EntryTypeOutput || t.frame < len(entry.OutputFrames) {
			return true
		}
		t.entry++
		t.frame = 0
	}
	return false
}

func (t *Transport) checkInput(entry ConversationEntry, data []byte) error {
	v, err := shipCodec.Decode("request", data)
	if err != nil {
		return err
	}
	variant, ok := v.(abi.Variant)
	if !ok {
		return fmt.Errorf("request decoded as %T", v)
	}
	if variant.Type != entry.InputRequestType {
		return fmt.Errorf(
			"request is not of expected type: expected %s, got %s",
			entry.InputRequestType,
			variant.Type,
		)
	}
	if entry.InputCheck != nil {
		body, _ := variant.Value.(map[string]any)
		return entry.InputCheck(body)
	}
	return nil
}

func (t *Transport) SetReadDeadline(deadline time.Time) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.deadline = deadline
	return nil
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}

// Closed reports whether the transport has been closed
func (t *Transport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// Done reports whether every scripted entry has been played
func (t *Transport) Done() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return !t.advance()
}

// Errors returns the script mismatches seen so far
func (t *Transport) Errors() []error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]error(nil), t.errors...)
}

// Requests returns the decoded requests written by the client
func (t *Transport) Requests() []abi.Variant {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	ret := make([]abi.Variant, 0, len(t.written))
	for _, data := range t.written {
		v, err := shipCodec.Decode("request", data)
		if err != nil {
			continue
		}
		if variant, ok := v.(abi.Variant); ok {
			ret = append(ret, variant)
		}
	}
	return ret
}

// Dialer hands out scripted transports in order and fails once they run out
type Dialer struct {
	mutex      sync.Mutex
	transports []*Transport
	dials      int
	err        error
}

// NewDialer returns a Dialer for the provided transports
func NewDialer(transports ...*Transport) *Dialer {
	return &Dialer{transports: transports}
}

// NewFailingDialer returns a Dialer whose every attempt fails
func NewFailingDialer(err error) *Dialer {
	return &Dialer{err: err}
}

func (d *Dialer) Dial(ctx context.Context, url string) (ship.Transport, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	if len(d.transports) == 0 {
		return nil, ErrNoTransport
	}
	t := d.transports[0]
	d.transports = d.transports[1:]
	return t, nil
}

// Dials returns the number of connection attempts
func (d *Dialer) Dials() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.dials
}
