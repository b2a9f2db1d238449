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
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jinzhu/copier"
	"github.com/klauspost/compress/zlib"

	"github.com/wireio/persona-relay/abi"
	"github.com/wireio/persona-relay/chain"
	"github.com/wireio/persona-relay/metrics"
)

// Upper bound for an inflated transaction
const maxInflatedSize = 32 << 20

// session is one connection lifetime. It is discarded on reconnect
type session struct {
	client     *Client
	logger     *slog.Logger
	transport  Transport
	codec      *abi.Codec
	blockCodec *abi.CompiledCodec
	txCodec    *abi.Codec
	status     *StatusResult
}

func newSession(c *Client, t Transport) *session {
	return &session{
		client:    c,
		logger:    c.logger,
		transport: t,
	}
}

func (s *session) run(ctx context.Context) error {
	s.client.setState(StateAwaitingSchema)
	if err := s.awaitSchema(); err != nil {
		return err
	}
	if err := s.send(TypeStatusRequest, map[string]any{}); err != nil {
		return err
	}
	s.client.setState(StateAwaitingStatus)
	if err := s.awaitStatus(); err != nil {
		return err
	}
	req, err := s.blocksRequest()
	if err != nil {
		return err
	}
	if err := s.send(TypeBlocksRequest, req); err != nil {
		return err
	}
	s.logger.Info(
		"requested blocks",
		"start_block_num", req.StartBlockNum,
		"end_block_num", req.EndBlockNum,
		"head", s.status.Head.BlockNum,
	)
	s.client.setState(StateStreaming)
	for {
		data, err := s.read()
		if err != nil {
			return err
		}
		s.client.metrics.MessagesReceived.Inc()
		s.handleBlocksResult(ctx, data)
		if s.client.config.StreamAcks {
			if err := s.send(TypeAckRequest, getBlocksAckRequestV0{NumMessages: 1}); err != nil {
				return err
			}
		}
	}
}

func (s *session) read() ([]byte, error) {
	if timeout := s.client.config.IdleTimeout; timeout > 0 {
		if err := s.transport.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, &TransportError{Op: "set read deadline", Err: err}
		}
	}
	data, err := s.transport.ReadMessage()
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	return data, nil
}

func (s *session) send(typeName string, value any) error {
	data, err := s.codec.Encode(TypeRequest, abi.Variant{Type: typeName, Value: value})
	if err != nil {
		return &SchemaError{Err: err}
	}
	if err := s.transport.WriteMessage(data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// awaitSchema reads until a usable schema document arrives
func (s *session) awaitSchema() error {
	for {
		data, err := s.read()
		if err != nil {
			return err
		}
		if err := s.loadSchema(data); err != nil {
			s.logger.Warn("ignoring unusable schema document", "error", err)
			continue
		}
		return nil
	}
}

func (s *session) loadSchema(data []byte) error {
	schema, err := abi.ParseABI(data)
	if err != nil {
		return &SchemaError{Err: err}
	}
	codec, err := abi.NewCodec(schema)
	if err != nil {
		return &SchemaError{Err: err}
	}
	blockCodec, err := abi.NewCompiledCodec(schema)
	if err != nil {
		return &SchemaError{Err: err}
	}
	if !schema.HasType(TypeResult) || !schema.HasType(TypeRequest) {
		return &SchemaError{Err: fmt.Errorf("%w: %s or %s", abi.ErrUnknownType, TypeRequest, TypeResult)}
	}
	if err := blockCodec.Compile(TypeSignedBlock); err != nil {
		s.logger.Warn("schema cannot decode blocks", "error", err)
	}
	txSchema := schema
	if !schema.HasType(TypeTransaction) {
		txSchema = schema.Merge(abi.TransactionABI())
	}
	txCodec, err := abi.NewCodec(txSchema)
	if err != nil {
		return &SchemaError{Err: err}
	}
	s.codec = codec
	s.blockCodec = blockCodec
	s.txCodec = txCodec
	s.logger.Debug(
		"loaded session schema",
		"version", schema.Version,
		"structs", len(schema.Structs),
	)
	return nil
}

func (s *session) decodeResult(data []byte, want string) (any, error) {
	v, err := s.codec.Decode(TypeResult, data)
	if err != nil {
		return nil, &DecodeError{Record: TypeResult, Err: err}
	}
	variant, ok := v.(abi.Variant)
	if !ok || variant.Type != want {
		return nil, &DecodeError{
			Record: TypeResult,
			Err:    fmt.Errorf("%w: %s", ErrUnexpectedResult, variant.Type),
		}
	}
	return variant.Value, nil
}

func (s *session) awaitStatus() error {
	for {
		data, err := s.read()
		if err != nil {
			return err
		}
		v, err := s.decodeResult(data, TypeStatusResult)
		if err == nil {
			s.status, err = statusFromValue(v)
		}
		if err != nil {
			s.client.metrics.DecodeErrors.WithLabelValues(metrics.DecodeEnvelope).Inc()
			s.logger.Warn("skipping message while awaiting status", "error", err)
			continue
		}
		s.logger.Info(
			"received status",
			"head", s.status.Head.BlockNum,
			"last_irreversible", s.status.LastIrreversible.BlockNum,
		)
		return nil
	}
}

func (s *session) blocksRequest() (*getBlocksRequestV0, error) {
	opts := s.client.config.Options
	req := &getBlocksRequestV0{}
	if err := copier.Copy(req, &opts); err != nil {
		return nil, err
	}
	if opts.StartBlock < 0 {
		req.StartBlockNum = s.status.Head.BlockNum
	} else {
		req.StartBlockNum = uint32(opts.StartBlock)
	}
	req.HavePositions = []BlockPosition{}
	if s.client.config.Resume {
		if last := s.client.LastPosition(); last != nil {
			req.StartBlockNum = last.BlockNum + 1
			req.HavePositions = append(req.HavePositions, *last)
		}
	}
	return req, nil
}

func (s *session) handleBlocksResult(ctx context.Context, data []byte) {
	v, err := s.decodeResult(data, TypeBlocksResult)
	if err != nil {
		s.client.metrics.DecodeErrors.WithLabelValues(metrics.DecodeEnvelope).Inc()
		s.logger.Warn("skipping message", "error", err)
		return
	}
	result, _ := v.(map[string]any)
	if result["this_block"] == nil {
		s.logger.Debug("blocks result without a block")
		return
	}
	pos, err := positionFromValue(result["this_block"])
	if err != nil {
		s.client.metrics.DecodeErrors.WithLabelValues(metrics.DecodeEnvelope).Inc()
		s.logger.Warn("skipping message", "error", &DecodeError{Record: "this_block", Err: err})
		return
	}
	logger := s.logger.With("block_num", pos.BlockNum)
	if block, ok := result["block"].(abi.Bytes); ok && len(block) > 0 {
		s.handleBlock(ctx, logger, pos, block)
	}
	if traces, ok := result["traces"].(abi.Bytes); ok && len(traces) > 0 {
		s.handleTraces(logger, pos, traces)
	}
	if deltas, ok := result["deltas"].(abi.Bytes); ok && len(deltas) > 0 {
		s.handleDeltas(logger, pos, deltas)
	}
	s.client.setPosition(pos)
	s.client.metrics.BlocksProcessed.Inc()
	s.client.metrics.HeadBlock.Set(float64(pos.BlockNum))
	logger.Debug("processed block")
}

func (s *session) decodeError(logger *slog.Logger, kind string, err error) {
	s.client.metrics.DecodeErrors.WithLabelValues(kind).Inc()
	logger.Warn("skipping record", "kind", kind, "error", err)
}

func (s *session) handleBlock(ctx context.Context, logger *slog.Logger, pos BlockPosition, data []byte) {
	v, err := s.blockCodec.Decode(TypeSignedBlock, data)
	if err != nil {
		s.decodeError(logger, metrics.DecodeBlock, &DecodeError{Record: TypeSignedBlock, BlockNum: pos.BlockNum, Err: err})
		return
	}
	block, _ := v.(map[string]any)
	ref := TransactionRef{
		BlockNum: pos.BlockNum,
		BlockID:  pos.BlockID,
	}
	ref.Timestamp, _ = block["timestamp"].(abi.BlockTimestamp)
	ref.Producer, _ = block["producer"].(abi.Name)
	receipts, _ := block["transactions"].([]any)
	for i, item := range receipts {
		receipt, _ := item.(map[string]any)
		if status, _ := receipt["status"].(uint8); status != statusExecuted {
			continue
		}
		trx, ok := receipt["trx"].(abi.Variant)
		if !ok || trx.Type != TypePackedTransaction {
			continue
		}
		raw, err := unpackTransaction(trx.Value)
		if err != nil {
			s.decodeError(logger, metrics.DecodeTransaction, &DecodeError{Record: TypePackedTransaction, BlockNum: pos.BlockNum, Err: err})
			continue
		}
		tx, err := s.decodeTransaction(raw)
		if err != nil {
			s.decodeError(logger, metrics.DecodeTransaction, &DecodeError{Record: TypeTransaction, BlockNum: pos.BlockNum, Err: err})
			continue
		}
		ref.Index = i
		ref.ID = sha256.Sum256(raw)
		if s.client.config.Router != nil {
			s.client.config.Router.RouteTransaction(ctx, ref, tx)
		}
	}
}

func (s *session) decodeTransaction(raw []byte) (*chain.Transaction, error) {
	v, err := s.txCodec.Decode(TypeTransaction, raw)
	if err != nil {
		return nil, err
	}
	return chain.TransactionFromValue(v)
}

// unpackTransaction returns the serialized transaction from a packed
// transaction, inflating it when compressed
func unpackTransaction(v any) ([]byte, error) {
	packed, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("packed transaction is %T", v)
	}
	data, ok := packed["packed_trx"].(abi.Bytes)
	if !ok {
		return nil, errors.New("packed transaction has no packed_trx")
	}
	compression, _ := packed["compression"].(uint8)
	switch compression {
	case compressionNone:
		return data, nil
	case compressionZlib:
		return inflate(data)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, compression)
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	ret, err := io.ReadAll(io.LimitReader(r, maxInflatedSize+1))
	if err != nil {
		return nil, err
	}
	if len(ret) > maxInflatedSize {
		return nil, fmt.Errorf("inflated transaction exceeds %d bytes", maxInflatedSize)
	}
	return ret, nil
}

func (s *session) handleTraces(logger *slog.Logger, pos BlockPosition, data []byte) {
	v, err := s.blockCodec.Decode(TypeTraces, data)
	if err != nil {
		s.decodeError(logger, metrics.DecodeTraces, &DecodeError{Record: TypeTraces, BlockNum: pos.BlockNum, Err: err})
		return
	}
	traces, _ := v.([]any)
	logger.Debug("decoded traces", "count", len(traces))
}

func (s *session) handleDeltas(logger *slog.Logger, pos BlockPosition, data []byte) {
	v, err := s.codec.Decode(TypeDeltas, data)
	if err != nil {
		s.decodeError(logger, metrics.DecodeDeltas, &DecodeError{Record: TypeDeltas, BlockNum: pos.BlockNum, Err: err})
		return
	}
	deltas, _ := v.([]any)
	logger.Debug("decoded table deltas", "count", len(deltas))
}
