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

// Package inference is a client for the persona response service
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 120 * time.Second

var ErrNoEndpoint = errors.New("no inference endpoint configured")

// Request is one chat turn sent to the service
type Request struct {
	Message      string         `json:"message"`
	PersonaID    string         `json:"persona_id"`
	PersonaState map[string]any `json:"persona_state"`
	History      []any          `json:"history"`
}

// Response is the service's reply. PostState is the persona's next state
// document
type Response struct {
	Text      string          `json:"text"`
	PostState json.RawMessage `json:"post_state,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// HasPostState reports whether the response carries a usable state document
func (r *Response) HasPostState() bool {
	switch string(r.PostState) {
	case "", "null", `""`:
		return false
	}
	return true
}

// Service produces a persona's reply to a message
type Service interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// ServiceFunc is an adapter to allow the use of ordinary functions as a Service
type ServiceFunc func(context.Context, Request) (*Response, error)

func (f ServiceFunc) Invoke(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is returned for non-2xx replies
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("inference service returned %s: %s", e.Status, e.Message)
	}
	return "inference service returned " + e.Status
}

// HTTPClient invokes an inference service that accepts a JSON Request and
// replies with a JSON Response
type HTTPClient struct {
	http     *resty.Client
	endpoint string
	logger   *slog.Logger
}

// ClientOptionFunc is a type that represents functions that modify the HTTPClient config
type ClientOptionFunc func(*HTTPClient)

// WithAPIKey specifies the bearer key sent with every request
func WithAPIKey(key string) ClientOptionFunc {
	return func(c *HTTPClient) {
		if key != "" {
			c.http.SetAuthToken(key)
		}
	}
}

// WithTimeout specifies the per-request timeout
func WithTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *HTTPClient) {
		c.http.SetTimeout(timeout)
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

func NewHTTPClient(endpoint string, options ...ClientOptionFunc) *HTTPClient {
	c := &HTTPClient{
		http: resty.New().
			SetTimeout(defaultTimeout).
			SetHeader("Content-Type", "application/json"),
		endpoint: endpoint,
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "inference")
	return c
}

func (c *HTTPClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if c.endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if req.History == nil {
		req.History = []any{}
	}
	var ret Response
	var errBody struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invoke inference: %w", err)
	}
	// Replies are decoded whatever their Content-Type
	if resp.IsError() {
		_ = json.Unmarshal(resp.Body(), &errBody)
		msg := errBody.Error
		if msg == "" {
			msg = errBody.Message
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Message:    msg,
		}
	}
	if err := json.Unmarshal(resp.Body(), &ret); err != nil {
		return nil, fmt.Errorf("decode inference reply: %w", err)
	}
	c.logger.Debug(
		"inference reply",
		"persona", req.PersonaID,
		"elapsed", time.Since(start),
		"has_state", ret.HasPostState(),
	)
	return &ret, nil
}
