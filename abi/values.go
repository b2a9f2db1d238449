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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Bytes is a byte string that uses hex for its text form
type Bytes []byte

func (b Bytes) String() string {
	return hex.EncodeToString(b)
}

func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *Bytes) UnmarshalText(data []byte) error {
	tmp, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	*b = tmp
	return nil
}

type Checksum160 [20]byte

type Checksum256 [32]byte

type Checksum512 [64]byte

func (c Checksum160) String() string { return hex.EncodeToString(c[:]) }
func (c Checksum256) String() string { return hex.EncodeToString(c[:]) }
func (c Checksum512) String() string { return hex.EncodeToString(c[:]) }

func (c Checksum160) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (c Checksum256) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (c Checksum512) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Checksum160) UnmarshalText(data []byte) error { return decodeFixedHex(c[:], data) }
func (c *Checksum256) UnmarshalText(data []byte) error { return decodeFixedHex(c[:], data) }
func (c *Checksum512) UnmarshalText(data []byte) error { return decodeFixedHex(c[:], data) }

func decodeFixedHex(dest []byte, data []byte) error {
	tmp, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	if len(tmp) != len(dest) {
		return fmt.Errorf("expected %d bytes, got %d", len(dest), len(tmp))
	}
	copy(dest, tmp)
	return nil
}

const (
	timePointFormat    = "2006-01-02T15:04:05.000"
	timePointSecFormat = "2006-01-02T15:04:05"
	// block timestamps count half-second slots from 2000-01-01T00:00:00Z
	blockTimestampEpochMs = 946684800000
	blockIntervalMs       = 500
)

// TimePoint is microseconds since the Unix epoch
type TimePoint int64

func (t TimePoint) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

func (t TimePoint) String() string {
	return t.Time().Format(timePointFormat)
}

func (t TimePoint) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimePoint) UnmarshalText(data []byte) error {
	tmp, err := parseTimeString(string(data))
	if err != nil {
		return err
	}
	*t = TimePoint(tmp.UnixMicro())
	return nil
}

// TimePointSec is seconds since the Unix epoch
type TimePointSec uint32

func (t TimePointSec) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

func (t TimePointSec) String() string {
	return t.Time().Format(timePointSecFormat)
}

func (t TimePointSec) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimePointSec) UnmarshalText(data []byte) error {
	tmp, err := parseTimeString(string(data))
	if err != nil {
		return err
	}
	*t = TimePointSec(tmp.Unix())
	return nil
}

// BlockTimestamp is a half-second slot number
type BlockTimestamp uint32

func (t BlockTimestamp) Time() time.Time {
	return time.UnixMilli(int64(t)*blockIntervalMs + blockTimestampEpochMs).UTC()
}

func (t BlockTimestamp) String() string {
	return t.Time().Format(timePointFormat)
}

func (t BlockTimestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range []string{timePointFormat, timePointSecFormat, time.RFC3339Nano} {
		if t, err := time.Parse(layout, strings.TrimSuffix(s, "Z")); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Parse(time.RFC3339Nano, s)
}

// SymbolCode is up to 7 upper-case characters packed into 64 bits
type SymbolCode string

func (c SymbolCode) value() (uint64, error) {
	if len(c) > 7 {
		return 0, fmt.Errorf("symbol code %q is longer than 7 characters", string(c))
	}
	var ret uint64
	for i := len(c) - 1; i >= 0; i-- {
		ch := c[i]
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("symbol code %q contains invalid characters", string(c))
		}
		ret = (ret << 8) | uint64(ch)
	}
	return ret, nil
}

func symbolCodeFromValue(v uint64) SymbolCode {
	var sb strings.Builder
	for v > 0 {
		sb.WriteByte(byte(v & 0xff))
		v >>= 8
	}
	return SymbolCode(sb.String())
}

// Symbol is a token symbol with its decimal precision
type Symbol struct {
	Precision uint8
	Code      SymbolCode
}

// ParseSymbol parses the "precision,CODE" form
func ParseSymbol(s string) (Symbol, error) {
	precStr, code, ok := strings.Cut(s, ",")
	if !ok {
		return Symbol{}, fmt.Errorf("invalid symbol %q", s)
	}
	prec, err := strconv.ParseUint(precStr, 10, 8)
	if err != nil {
		return Symbol{}, fmt.Errorf("invalid symbol precision %q: %w", precStr, err)
	}
	ret := Symbol{Precision: uint8(prec), Code: SymbolCode(code)}
	if _, err := ret.value(); err != nil {
		return Symbol{}, err
	}
	return ret, nil
}

func (s Symbol) value() (uint64, error) {
	code, err := s.Code.value()
	if err != nil {
		return 0, err
	}
	return code<<8 | uint64(s.Precision), nil
}

func symbolFromValue(v uint64) Symbol {
	return Symbol{
		Precision: uint8(v & 0xff),
		Code:      symbolCodeFromValue(v >> 8),
	}
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

func (s Symbol) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Asset is a token amount in the smallest unit of its symbol
type Asset struct {
	Amount int64
	Symbol Symbol
}

// ParseAsset parses the "1.0000 SYS" form
func ParseAsset(s string) (Asset, error) {
	amountStr, code, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	var precision int
	if idx := strings.IndexByte(amountStr, '.'); idx >= 0 {
		precision = len(amountStr) - idx - 1
		amountStr = amountStr[:idx] + amountStr[idx+1:]
	}
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("invalid asset amount %q: %w", s, err)
	}
	if precision > 18 {
		return Asset{}, fmt.Errorf("asset precision %d is too large", precision)
	}
	ret := Asset{
		Amount: amount,
		Symbol: Symbol{Precision: uint8(precision), Code: SymbolCode(code)},
	}
	if _, err := ret.Symbol.value(); err != nil {
		return Asset{}, err
	}
	return ret, nil
}

func (a Asset) String() string {
	amount := a.Amount
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	prec := int(a.Symbol.Precision)
	if prec > 0 {
		if len(digits) <= prec {
			digits = strings.Repeat("0", prec-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-prec] + "." + digits[len(digits)-prec:]
	}
	return sign + digits + " " + string(a.Symbol.Code)
}

func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ExtendedAsset is an asset qualified by its issuing contract
type ExtendedAsset struct {
	Quantity Asset `json:"quantity"`
	Contract Name  `json:"contract"`
}

// Int128 is a little-endian two's complement 128-bit integer
type Int128 [16]byte

// Uint128 is a little-endian 128-bit unsigned integer
type Uint128 [16]byte

// Float128 holds the raw bytes of a quad precision float
type Float128 [16]byte

func (u Uint128) BigInt() *big.Int {
	var be [16]byte
	for i := range u {
		be[15-i] = u[i]
	}
	return new(big.Int).SetBytes(be[:])
}

func (u Uint128) String() string {
	return u.BigInt().String()
}

func (u Uint128) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (i Int128) BigInt() *big.Int {
	ret := Uint128(i).BigInt()
	if i[15]&0x80 != 0 {
		ret.Sub(ret, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return ret
}

func (i Int128) String() string {
	return i.BigInt().String()
}

func (i Int128) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (f Float128) String() string {
	return hex.EncodeToString(f[:])
}

func (f Float128) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func int128FromBig(v *big.Int, signed bool) ([16]byte, error) {
	var ret [16]byte
	tmp := new(big.Int).Set(v)
	if tmp.Sign() < 0 {
		if !signed {
			return ret, fmt.Errorf("negative value %s for unsigned 128-bit integer", v)
		}
		tmp.Add(tmp, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	if tmp.BitLen() > 128 {
		return ret, fmt.Errorf("value %s overflows 128 bits", v)
	}
	be := tmp.FillBytes(make([]byte, 16))
	for i := range be {
		ret[15-i] = be[i]
	}
	return ret, nil
}

// Variant is a tagged union value. Its JSON form is the [type, value] pair
type Variant struct {
	Type  string
	Value any
}

func (v Variant) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{v.Type, v.Value})
}
