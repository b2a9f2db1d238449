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

package ship

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one open duplex connection carrying whole messages
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Transport
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	// Blocks with large traces can be much bigger than the gorilla default
	defaultReadLimit = 256 << 20
	writeTimeout     = 10 * time.Second
)

// WebsocketDialer dials the state history endpoint over websocket
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	readLimit := d.ReadLimit
	if readLimit == 0 {
		readLimit = defaultReadLimit
	}
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &websocketTransport{conn: conn}, nil
}

type websocketTransport struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (t *websocketTransport) ReadMessage() ([]byte, error) {
	// The schema frame may arrive as text, everything else is binary
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *websocketTransport) WriteMessage(data []byte) error {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (t *websocketTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *websocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.sendMutex.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.sendMutex.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
