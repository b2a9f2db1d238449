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

package chain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wireio/persona-relay/abi"
)

// ABIFetcher returns the schema for an account, optionally bypassing any cache
type ABIFetcher interface {
	GetABI(ctx context.Context, account string, reload bool) (*abi.ABI, error)
}

// CodecSource is a fetcher that compiles every schema it returns. Client is
// one
type CodecSource interface {
	ABIFetcher
	Codecs() *abi.NativeCodecs
}

// ActionDecoder decodes contract action payloads with the accelerated codec.
// Schemas are loaded on first use. A payload that fails to decode triggers
// one schema reload in case the contract was updated
type ActionDecoder struct {
	fetcher ABIFetcher
	codecs  *abi.NativeCodecs
	// the fetcher loads schemas into codecs itself
	shared bool
	logger *slog.Logger
}

func NewActionDecoder(fetcher ABIFetcher, logger *slog.Logger) *ActionDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	d := &ActionDecoder{
		fetcher: fetcher,
		logger:  logger.With("component", "action_decoder"),
	}
	if source, ok := fetcher.(CodecSource); ok {
		d.codecs = source.Codecs()
		d.shared = true
	} else {
		d.codecs = abi.NewNativeCodecs()
	}
	return d
}

// Codecs returns the codecs used for decoding
func (d *ActionDecoder) Codecs() *abi.NativeCodecs {
	return d.codecs
}

func (d *ActionDecoder) load(ctx context.Context, account string, reload bool) error {
	schema, err := d.fetcher.GetABI(ctx, account, reload)
	if err != nil {
		return fmt.Errorf("load schema for %s: %w", account, err)
	}
	if d.shared {
		return nil
	}
	return d.codecs.LoadSchema(account, schema)
}

// DecodeAction decodes the payload of account::name
func (d *ActionDecoder) DecodeAction(ctx context.Context, account string, name string, data []byte) (any, error) {
	if !d.codecs.Has(account) {
		if err := d.load(ctx, account, false); err != nil {
			return nil, err
		}
	}
	ret, err := d.codecs.DecodeAction(account, name, data)
	if err == nil {
		return ret, nil
	}
	d.logger.Warn(
		"action decode failed, reloading schema",
		"account", account,
		"action", name,
		"error", err,
	)
	if err := d.load(ctx, account, true); err != nil {
		return nil, err
	}
	return d.codecs.DecodeAction(account, name, data)
}
