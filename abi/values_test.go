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

package abi_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wireio/persona-relay/abi"
)

func TestParseAsset(t *testing.T) {
	tests := []struct {
		input     string
		amount    int64
		precision uint8
		code      string
	}{
		{input: "1.0000 SYS", amount: 10000, precision: 4, code: "SYS"},
		{input: "-0.0500 SYS", amount: -500, precision: 4, code: "SYS"},
		{input: "42 WIRE", amount: 42, precision: 0, code: "WIRE"},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			a, err := abi.ParseAsset(test.input)
			require.NoError(t, err)
			assert.Equal(t, test.amount, a.Amount)
			assert.Equal(t, test.precision, a.Symbol.Precision)
			assert.Equal(t, abi.SymbolCode(test.code), a.Symbol.Code)
			assert.Equal(t, test.input, a.String())
		})
	}
}

func TestParseAssetInvalid(t *testing.T) {
	for _, input := range []string{"1.0000", "abc SYS", "1.0 sys", "1.0 TOOLONGSYM"} {
		_, err := abi.ParseAsset(input)
		assert.Error(t, err, input)
	}
}

func TestParseSymbol(t *testing.T) {
	s, err := abi.ParseSymbol("4,SYS")
	require.NoError(t, err)
	assert.Equal(t, uint8(4), s.Precision)
	assert.Equal(t, "4,SYS", s.String())
	_, err = abi.ParseSymbol("SYS")
	assert.Error(t, err)
}

func TestSymbolEncoding(t *testing.T) {
	codec, err := abi.NewCodec(abi.TransactionABI())
	require.NoError(t, err)
	data, err := codec.Encode("symbol", "4,SYS")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 'S', 'Y', 'S', 0, 0, 0, 0}, data)
	v, err := codec.Decode("symbol", data)
	require.NoError(t, err)
	assert.Equal(t, abi.Symbol{Precision: 4, Code: "SYS"}, v)
}

func TestTimePointFormats(t *testing.T) {
	tp := abi.TimePoint(time.Date(2024, 3, 1, 12, 30, 0, 500_000_000, time.UTC).UnixMicro())
	assert.Equal(t, "2024-03-01T12:30:00.500", tp.String())
	tps := abi.TimePointSec(1709296200)
	assert.Equal(t, "2024-03-01T12:30:00", tps.String())
	// slot 0 is the block timestamp epoch
	assert.Equal(t, "2000-01-01T00:00:00.000", abi.BlockTimestamp(0).String())
	assert.Equal(t, "2000-01-01T00:00:01.000", abi.BlockTimestamp(2).String())
}

func TestTimePointSecFromString(t *testing.T) {
	codec, err := abi.NewCodec(abi.TransactionABI())
	require.NoError(t, err)
	data, err := codec.Encode("time_point_sec", "2024-03-01T12:30:00")
	require.NoError(t, err)
	v, err := codec.Decode("time_point_sec", data)
	require.NoError(t, err)
	assert.Equal(t, abi.TimePointSec(1709296200), v)
}

func TestInt128(t *testing.T) {
	codec, err := abi.NewCodec(abi.TransactionABI())
	require.NoError(t, err)
	data, err := codec.Encode("int128", "-2")
	require.NoError(t, err)
	v, err := codec.Decode("int128", data)
	require.NoError(t, err)
	assert.Equal(t, "-2", v.(abi.Int128).String())
	data, err = codec.Encode("uint128", "340282366920938463463374607431768211455")
	require.NoError(t, err)
	v, err = codec.Decode("uint128", data)
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", v.(abi.Uint128).String())
	_, err = codec.Encode("uint128", "-1")
	assert.Error(t, err)
}

func TestValueJSON(t *testing.T) {
	value := map[string]any{
		"account": abi.NewName("x.ai"),
		"digest":  abi.Checksum256{0xab},
		"data":    abi.Bytes{0x01, 0x02},
		"payload": abi.Variant{Type: "uint8", Value: uint8(1)},
	}
	data, err := json.Marshal(value)
	require.NoError(t, err)
	assert.JSONEq(
		t,
		`{"account":"x.ai","digest":"ab00000000000000000000000000000000000000000000000000000000000000","data":"0102","payload":["uint8",1]}`,
		string(data),
	)
}
