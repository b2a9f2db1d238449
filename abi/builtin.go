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

package abi

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// builtinType is the decoder and encoder pair for a primitive type. Both
// decode paths share these so they agree on every primitive value
type builtinType struct {
	decode func(r *reader) (any, error)
	encode func(w *writer, v any) error
}

var builtinTypes map[string]builtinType

func init() {
	builtinTypes = map[string]builtinType{
		"bool":                 {decodeBool, encodeBool},
		"int8":                 {decodeInt8, encodeInt8},
		"uint8":                {decodeUint8, encodeUint8},
		"int16":                {decodeInt16, encodeInt16},
		"uint16":               {decodeUint16, encodeUint16},
		"int32":                {decodeInt32, encodeInt32},
		"uint32":               {decodeUint32, encodeUint32},
		"int64":                {decodeInt64, encodeInt64},
		"uint64":               {decodeUint64, encodeUint64},
		"int128":               {decodeInt128, encodeInt128},
		"uint128":              {decodeUint128, encodeUint128},
		"varint32":             {decodeVarInt32, encodeVarInt32},
		"varuint32":            {decodeVarUint32, encodeVarUint32},
		"float32":              {decodeFloat32, encodeFloat32},
		"float64":              {decodeFloat64, encodeFloat64},
		"float128":             {decodeFloat128, encodeFloat128},
		"time_point":           {decodeTimePoint, encodeTimePoint},
		"time_point_sec":       {decodeTimePointSec, encodeTimePointSec},
		"block_timestamp_type": {decodeBlockTimestamp, encodeBlockTimestamp},
		"name":                 {decodeName, encodeName},
		"bytes":                {decodeBytes, encodeBytes},
		"string":               {decodeString, encodeString},
		"checksum160":          {decodeChecksum160, encodeChecksum(20)},
		"checksum256":          {decodeChecksum256, encodeChecksum(32)},
		"checksum512":          {decodeChecksum512, encodeChecksum(64)},
		"public_key":           {decodePublicKey, encodePublicKey},
		"private_key":          {decodePrivateKey, encodePrivateKey},
		"signature":            {decodeSignature, encodeSignature},
		"symbol":               {decodeSymbol, encodeSymbol},
		"symbol_code":          {decodeSymbolCode, encodeSymbolCode},
		"asset":                {decodeAsset, encodeAsset},
		"extended_asset":       {decodeExtendedAsset, encodeExtendedAsset},
	}
}

// IsBuiltinType reports whether name is a primitive type
func IsBuiltinType(name string) bool {
	_, ok := builtinTypes[name]
	return ok
}

func decodeBool(r *reader) (any, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return b != 0, nil
}

func encodeBool(w *writer, v any) error {
	b, err := toBool(v)
	if err != nil {
		return err
	}
	if b {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
	return nil
}

func decodeInt8(r *reader) (any, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return int8(b), nil
}

func encodeInt8(w *writer, v any) error {
	n, err := toIntRange(v, math.MinInt8, math.MaxInt8)
	if err != nil {
		return err
	}
	w.writeByte(byte(int8(n)))
	return nil
}

func decodeUint8(r *reader) (any, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	return b, nil
}

func encodeUint8(w *writer, v any) error {
	n, err := toUintRange(v, math.MaxUint8)
	if err != nil {
		return err
	}
	w.writeByte(byte(n))
	return nil
}

func decodeInt16(r *reader) (any, error) {
	n, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	return int16(n), nil
}

func encodeInt16(w *writer, v any) error {
	n, err := toIntRange(v, math.MinInt16, math.MaxInt16)
	if err != nil {
		return err
	}
	w.writeUint16(uint16(int16(n)))
	return nil
}

func decodeUint16(r *reader) (any, error) {
	n, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func encodeUint16(w *writer, v any) error {
	n, err := toUintRange(v, math.MaxUint16)
	if err != nil {
		return err
	}
	w.writeUint16(uint16(n))
	return nil
}

func decodeInt32(r *reader) (any, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return int32(n), nil
}

func encodeInt32(w *writer, v any) error {
	n, err := toIntRange(v, math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	w.writeUint32(uint32(int32(n)))
	return nil
}

func decodeUint32(r *reader) (any, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func encodeUint32(w *writer, v any) error {
	n, err := toUintRange(v, math.MaxUint32)
	if err != nil {
		return err
	}
	w.writeUint32(uint32(n))
	return nil
}

func decodeInt64(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return int64(n), nil
}

func encodeInt64(w *writer, v any) error {
	n, err := toInt64(v)
	if err != nil {
		return err
	}
	w.writeUint64(uint64(n))
	return nil
}

func decodeUint64(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func encodeUint64(w *writer, v any) error {
	n, err := toUint64(v)
	if err != nil {
		return err
	}
	w.writeUint64(n)
	return nil
}

func decodeInt128(r *reader) (any, error) {
	b, err := r.read(16)
	if err != nil {
		return nil, err
	}
	var ret Int128
	copy(ret[:], b)
	return ret, nil
}

func encodeInt128(w *writer, v any) error {
	if x, ok := v.(Int128); ok {
		w.write(x[:])
		return nil
	}
	n, err := toBigInt(v)
	if err != nil {
		return err
	}
	b, err := int128FromBig(n, true)
	if err != nil {
		return err
	}
	if n.Sign() >= 0 && b[15]&0x80 != 0 {
		return fmt.Errorf("value %s overflows int128", n)
	}
	w.write(b[:])
	return nil
}

func decodeUint128(r *reader) (any, error) {
	b, err := r.read(16)
	if err != nil {
		return nil, err
	}
	var ret Uint128
	copy(ret[:], b)
	return ret, nil
}

func encodeUint128(w *writer, v any) error {
	if x, ok := v.(Uint128); ok {
		w.write(x[:])
		return nil
	}
	n, err := toBigInt(v)
	if err != nil {
		return err
	}
	b, err := int128FromBig(n, false)
	if err != nil {
		return err
	}
	w.write(b[:])
	return nil
}

func decodeVarInt32(r *reader) (any, error) {
	n, err := r.readVarInt32()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func encodeVarInt32(w *writer, v any) error {
	n, err := toIntRange(v, math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	w.writeVarInt32(int32(n))
	return nil
}

func decodeVarUint32(r *reader) (any, error) {
	n, err := r.readVarUint32()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func encodeVarUint32(w *writer, v any) error {
	n, err := toUintRange(v, math.MaxUint32)
	if err != nil {
		return err
	}
	w.writeVarUint32(uint32(n))
	return nil
}

func decodeFloat32(r *reader) (any, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return math.Float32frombits(n), nil
}

func encodeFloat32(w *writer, v any) error {
	f, err := toFloat64(v)
	if err != nil {
		return err
	}
	w.writeUint32(math.Float32bits(float32(f)))
	return nil
}

func decodeFloat64(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return math.Float64frombits(n), nil
}

func encodeFloat64(w *writer, v any) error {
	f, err := toFloat64(v)
	if err != nil {
		return err
	}
	w.writeUint64(math.Float64bits(f))
	return nil
}

func decodeFloat128(r *reader) (any, error) {
	b, err := r.read(16)
	if err != nil {
		return nil, err
	}
	var ret Float128
	copy(ret[:], b)
	return ret, nil
}

func encodeFloat128(w *writer, v any) error {
	b, err := toFixedBytes(v, 16)
	if err != nil {
		return err
	}
	w.write(b)
	return nil
}

func decodeTimePoint(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return TimePoint(int64(n)), nil
}

func encodeTimePoint(w *writer, v any) error {
	switch x := v.(type) {
	case TimePoint:
		w.writeUint64(uint64(x))
		return nil
	case time.Time:
		w.writeUint64(uint64(x.UnixMicro()))
		return nil
	case string:
		t, err := parseTimeString(x)
		if err != nil {
			return err
		}
		w.writeUint64(uint64(t.UnixMicro()))
		return nil
	}
	n, err := toInt64(v)
	if err != nil {
		return err
	}
	w.writeUint64(uint64(n))
	return nil
}

func decodeTimePointSec(r *reader) (any, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return TimePointSec(n), nil
}

func encodeTimePointSec(w *writer, v any) error {
	switch x := v.(type) {
	case TimePointSec:
		w.writeUint32(uint32(x))
		return nil
	case time.Time:
		w.writeUint32(uint32(x.Unix()))
		return nil
	case string:
		t, err := parseTimeString(x)
		if err != nil {
			return err
		}
		w.writeUint32(uint32(t.Unix()))
		return nil
	}
	n, err := toUintRange(v, math.MaxUint32)
	if err != nil {
		return err
	}
	w.writeUint32(uint32(n))
	return nil
}

func decodeBlockTimestamp(r *reader) (any, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	return BlockTimestamp(n), nil
}

func encodeBlockTimestamp(w *writer, v any) error {
	var t time.Time
	switch x := v.(type) {
	case BlockTimestamp:
		w.writeUint32(uint32(x))
		return nil
	case time.Time:
		t = x
	case string:
		var err error
		if t, err = parseTimeString(x); err != nil {
			return err
		}
	default:
		n, err := toUintRange(v, math.MaxUint32)
		if err != nil {
			return err
		}
		w.writeUint32(uint32(n))
		return nil
	}
	slot := (t.UnixMilli() - blockTimestampEpochMs) / blockIntervalMs
	if slot < 0 || slot > math.MaxUint32 {
		return fmt.Errorf("time %s out of block timestamp range", t)
	}
	w.writeUint32(uint32(slot))
	return nil
}

func decodeName(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return Name(n), nil
}

func encodeName(w *writer, v any) error {
	n, err := toName(v)
	if err != nil {
		return err
	}
	w.writeUint64(uint64(n))
	return nil
}

func decodeBytes(r *reader) (any, error) {
	b, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	return Bytes(b), nil
}

func encodeBytes(w *writer, v any) error {
	b, err := toBytes(v)
	if err != nil {
		return err
	}
	w.writeBytes(b)
	return nil
}

func decodeString(r *reader) (any, error) {
	b, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("string is not valid UTF-8")
	}
	return string(b), nil
}

func encodeString(w *writer, v any) error {
	s, err := toString(v)
	if err != nil {
		return err
	}
	w.writeBytes([]byte(s))
	return nil
}

func decodeChecksum160(r *reader) (any, error) {
	b, err := r.read(20)
	if err != nil {
		return nil, err
	}
	var ret Checksum160
	copy(ret[:], b)
	return ret, nil
}

func decodeChecksum256(r *reader) (any, error) {
	b, err := r.read(32)
	if err != nil {
		return nil, err
	}
	var ret Checksum256
	copy(ret[:], b)
	return ret, nil
}

func decodeChecksum512(r *reader) (any, error) {
	b, err := r.read(64)
	if err != nil {
		return nil, err
	}
	var ret Checksum512
	copy(ret[:], b)
	return ret, nil
}

func encodeChecksum(size int) func(w *writer, v any) error {
	return func(w *writer, v any) error {
		b, err := toFixedBytes(v, size)
		if err != nil {
			return err
		}
		w.write(b)
		return nil
	}
}

func decodePublicKey(r *reader) (any, error) {
	return readPublicKey(r)
}

func encodePublicKey(w *writer, v any) error {
	k, err := toPublicKey(v)
	if err != nil {
		return err
	}
	if k.Type != KeyTypeWA && len(k.Data) != publicKeyDataLen {
		return fmt.Errorf("public key must be %d bytes, got %d", publicKeyDataLen, len(k.Data))
	}
	w.writeByte(byte(k.Type))
	w.write(k.Data)
	return nil
}

func decodePrivateKey(r *reader) (any, error) {
	t, err := r.readByte()
	if err != nil {
		return nil, err
	}
	b, err := r.read(32)
	if err != nil {
		return nil, err
	}
	return PrivateKey{Type: KeyType(t), Data: append([]byte{}, b...)}, nil
}

func encodePrivateKey(w *writer, v any) error {
	k, err := toPrivateKey(v)
	if err != nil {
		return err
	}
	if len(k.Data) != 32 {
		return fmt.Errorf("private key must be 32 bytes, got %d", len(k.Data))
	}
	w.writeByte(byte(k.Type))
	w.write(k.Data)
	return nil
}

func decodeSignature(r *reader) (any, error) {
	return readSignature(r)
}

func encodeSignature(w *writer, v any) error {
	s, err := toSignature(v)
	if err != nil {
		return err
	}
	if s.Type != KeyTypeWA && len(s.Data) != signatureDataLen {
		return fmt.Errorf("signature must be %d bytes, got %d", signatureDataLen, len(s.Data))
	}
	w.writeByte(byte(s.Type))
	w.write(s.Data)
	return nil
}

func decodeSymbol(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return symbolFromValue(n), nil
}

func encodeSymbol(w *writer, v any) error {
	s, err := toSymbol(v)
	if err != nil {
		return err
	}
	n, err := s.value()
	if err != nil {
		return err
	}
	w.writeUint64(n)
	return nil
}

func decodeSymbolCode(r *reader) (any, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return symbolCodeFromValue(n), nil
}

func encodeSymbolCode(w *writer, v any) error {
	c, err := toSymbolCode(v)
	if err != nil {
		return err
	}
	n, err := c.value()
	if err != nil {
		return err
	}
	w.writeUint64(n)
	return nil
}

func readAsset(r *reader) (Asset, error) {
	amount, err := r.readUint64()
	if err != nil {
		return Asset{}, err
	}
	sym, err := r.readUint64()
	if err != nil {
		return Asset{}, err
	}
	return Asset{Amount: int64(amount), Symbol: symbolFromValue(sym)}, nil
}

func writeAsset(w *writer, a Asset) error {
	sym, err := a.Symbol.value()
	if err != nil {
		return err
	}
	w.writeUint64(uint64(a.Amount))
	w.writeUint64(sym)
	return nil
}

func decodeAsset(r *reader) (any, error) {
	return readAsset(r)
}

func encodeAsset(w *writer, v any) error {
	a, err := toAsset(v)
	if err != nil {
		return err
	}
	return writeAsset(w, a)
}

func decodeExtendedAsset(r *reader) (any, error) {
	a, err := readAsset(r)
	if err != nil {
		return nil, err
	}
	contract, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	return ExtendedAsset{Quantity: a, Contract: Name(contract)}, nil
}

func encodeExtendedAsset(w *writer, v any) error {
	ea, err := toExtendedAsset(v)
	if err != nil {
		return err
	}
	if err := writeAsset(w, ea.Quantity); err != nil {
		return err
	}
	w.writeUint64(uint64(ea.Contract))
	return nil
}
