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

package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultPinURL     = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	DefaultGatewayURL = "https://gateway.pinata.cloud"

	uploadFileName = "content.json"
	defaultTimeout = 30 * time.Second
)

var ErrUpload = errors.New("content upload failed")

// GatewayStore pins documents through a pinning API and fetches them back
// through an HTTP gateway
type GatewayStore struct {
	http       *resty.Client
	pinURL     string
	gatewayURL string
	logger     *slog.Logger
}

// GatewayOptionFunc is a type that represents functions that modify the GatewayStore config
type GatewayOptionFunc func(*GatewayStore)

// WithPinURL specifies the upload endpoint
func WithPinURL(url string) GatewayOptionFunc {
	return func(s *GatewayStore) {
		s.pinURL = url
	}
}

// WithGatewayURL specifies the base URL documents are fetched from
func WithGatewayURL(url string) GatewayOptionFunc {
	return func(s *GatewayStore) {
		s.gatewayURL = strings.TrimRight(url, "/")
	}
}

// WithToken specifies the bearer token sent with every request
func WithToken(token string) GatewayOptionFunc {
	return func(s *GatewayStore) {
		s.http.SetAuthToken(token)
	}
}

// WithTimeout specifies the per-request timeout
func WithTimeout(timeout time.Duration) GatewayOptionFunc {
	return func(s *GatewayStore) {
		s.http.SetTimeout(timeout)
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) GatewayOptionFunc {
	return func(s *GatewayStore) {
		s.logger = logger
	}
}

func NewGatewayStore(options ...GatewayOptionFunc) *GatewayStore {
	s := &GatewayStore{
		http:       resty.New().SetTimeout(defaultTimeout),
		pinURL:     DefaultPinURL,
		gatewayURL: DefaultGatewayURL,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "content")
	return s
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (s *GatewayStore) Put(ctx context.Context, data []byte) (string, error) {
	var result pinResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetMultipartField("file", uploadFileName, "application/json", bytes.NewReader(data)).
		Post(s.pinURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s", ErrUpload, resp.Status())
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrUpload, err)
	}
	if result.IpfsHash == "" {
		return "", fmt.Errorf("%w: response carries no reference", ErrUpload)
	}
	s.logger.Debug("content uploaded", "ref", result.IpfsHash, "size", len(data))
	return result.IpfsHash, nil
}

func (s *GatewayStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if _, err := ParseRef(ref); err != nil {
		return nil, err
	}
	resp, err := s.http.R().
		SetContext(ctx).
		Get(s.gatewayURL + "/ipfs/" + ref)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", ref, resp.Status())
	}
	return resp.Body(), nil
}

// Pinned reports whether the gateway can serve the document
func (s *GatewayStore) Pinned(ctx context.Context, ref string) bool {
	_, err := s.Get(ctx, ref)
	return err == nil
}
