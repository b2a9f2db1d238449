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
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
)

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		return strconv.ParseInt(x.String(), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot use %T as an integer", v)
}

func uintToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d overflows int64", v)
	}
	return int64(v), nil
}

func floatToInt64(v float64) (int64, error) {
	if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
		return 0, fmt.Errorf("value %v is not an integer", v)
	}
	return int64(v), nil
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case json.Number:
		return strconv.ParseUint(x.String(), 10, 64)
	case string:
		return strconv.ParseUint(x, 10, 64)
	case float64:
		if x < 0 || x != math.Trunc(x) || x > math.MaxUint64 {
			return 0, fmt.Errorf("value %v is not an unsigned integer", x)
		}
		return uint64(x), nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d for unsigned integer", n)
	}
	return uint64(n), nil
}

func toIntRange(v any, lo int64, hi int64) (int64, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d out of range", n)
	}
	return n, nil
}

func toUintRange(v any, hi uint64) (uint64, error) {
	n, err := toUint64(v)
	if err != nil {
		return 0, err
	}
	if n > hi {
		return 0, fmt.Errorf("value %d out of range", n)
	}
	return n, nil
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("cannot use %T as a float", v)
	}
	return float64(n), nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	}
	n, err := toInt64(v)
	if err != nil {
		return false, fmt.Errorf("cannot use %T as a bool", v)
	}
	return n != 0, nil
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", fmt.Errorf("cannot use %T as a string", v)
}

func toName(v any) (Name, error) {
	switch x := v.(type) {
	case Name:
		return x, nil
	case string:
		return ParseName(x)
	case uint64:
		return Name(x), nil
	}
	return 0, fmt.Errorf("cannot use %T as a name", v)
}

func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case Bytes:
		return x, nil
	case []byte:
		return x, nil
	case string:
		var b Bytes
		if err := b.UnmarshalText([]byte(x)); err != nil {
			return nil, err
		}
		return b, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("cannot use %T as bytes", v)
}

func toFixedBytes(v any, size int) ([]byte, error) {
	switch x := v.(type) {
	case Checksum160:
		return x[:], checkSize(size, len(x))
	case Checksum256:
		return x[:], checkSize(size, len(x))
	case Checksum512:
		return x[:], checkSize(size, len(x))
	case Float128:
		return x[:], checkSize(size, len(x))
	case [20]byte:
		return x[:], checkSize(size, len(x))
	case [32]byte:
		return x[:], checkSize(size, len(x))
	case [64]byte:
		return x[:], checkSize(size, len(x))
	}
	b, err := toBytes(v)
	if err != nil {
		return nil, err
	}
	return b, checkSize(size, len(b))
}

func checkSize(want int, got int) error {
	if want != got {
		return fmt.Errorf("expected %d bytes, got %d", want, got)
	}
	return nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case Int128:
		return x.BigInt(), nil
	case Uint128:
		return x.BigInt(), nil
	case *big.Int:
		return x, nil
	case big.Int:
		return &x, nil
	case string:
		ret, ok := new(big.Int).SetString(x, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", x)
		}
		return ret, nil
	case json.Number:
		return toBigInt(x.String())
	case uint64:
		return new(big.Int).SetUint64(x), nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, err
	}
	return big.NewInt(n), nil
}

func toPublicKey(v any) (PublicKey, error) {
	switch x := v.(type) {
	case PublicKey:
		return x, nil
	case *PublicKey:
		return *x, nil
	case string:
		return ParsePublicKey(x)
	}
	return PublicKey{}, fmt.Errorf("cannot use %T as a public key", v)
}

func toSignature(v any) (Signature, error) {
	switch x := v.(type) {
	case Signature:
		return x, nil
	case *Signature:
		return *x, nil
	case string:
		return ParseSignature(x)
	}
	return Signature{}, fmt.Errorf("cannot use %T as a signature", v)
}

func toPrivateKey(v any) (PrivateKey, error) {
	switch x := v.(type) {
	case PrivateKey:
		return x, nil
	case string:
		return ParsePrivateKey(x)
	}
	return PrivateKey{}, fmt.Errorf("cannot use %T as a private key", v)
}

func toSymbol(v any) (Symbol, error) {
	switch x := v.(type) {
	case Symbol:
		return x, nil
	case string:
		return ParseSymbol(x)
	}
	return Symbol{}, fmt.Errorf("cannot use %T as a symbol", v)
}

func toSymbolCode(v any) (SymbolCode, error) {
	switch x := v.(type) {
	case SymbolCode:
		return x, nil
	case string:
		return SymbolCode(x), nil
	}
	return "", fmt.Errorf("cannot use %T as a symbol code", v)
}

func toAsset(v any) (Asset, error) {
	switch x := v.(type) {
	case Asset:
		return x, nil
	case string:
		return ParseAsset(x)
	}
	return Asset{}, fmt.Errorf("cannot use %T as an asset", v)
}

func toExtendedAsset(v any) (ExtendedAsset, error) {
	if x, ok := v.(ExtendedAsset); ok {
		return x, nil
	}
	quantity, ok := fieldValue(v, "quantity")
	if !ok {
		return ExtendedAsset{}, fmt.Errorf("cannot use %T as an extended asset", v)
	}
	contract, ok := fieldValue(v, "contract")
	if !ok {
		return ExtendedAsset{}, fmt.Errorf("cannot use %T as an extended asset", v)
	}
	asset, err := toAsset(quantity)
	if err != nil {
		return ExtendedAsset{}, err
	}
	name, err := toName(contract)
	if err != nil {
		return ExtendedAsset{}, err
	}
	return ExtendedAsset{Quantity: asset, Contract: name}, nil
}

// toVariant accepts a Variant or a two element [type, value] slice
func toVariant(v any) (Variant, error) {
	switch x := v.(type) {
	case Variant:
		return x, nil
	case *Variant:
		return *x, nil
	case []any:
		if len(x) == 2 {
			if t, ok := x[0].(string); ok {
				return Variant{Type: t, Value: x[1]}, nil
			}
		}
	}
	return Variant{}, fmt.Errorf("cannot use %T as a variant", v)
}

// fieldValue looks up a named field in a map or a struct. Struct fields are
// matched by their json tag, falling back to a case-insensitive field name
func fieldValue(v any, name string) (any, bool) {
	switch x := v.(type) {
	case map[string]any:
		ret, ok := x[name]
		return ret, ok
	case map[string]string:
		ret, ok := x[name]
		return ret, ok
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" {
			if ret, ok := fieldValue(rv.Field(i).Interface(), name); ok {
				return ret, true
			}
			continue
		}
		if tag == name || (tag == "" && strings.EqualFold(f.Name, strings.ReplaceAll(name, "_", ""))) {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// sliceValues returns the elements of any slice or array
func sliceValues(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case nil:
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot use %T as an array", v)
	}
	ret := make([]any, rv.Len())
	for i := range ret {
		ret[i] = rv.Index(i).Interface()
	}
	return ret, nil
}

// isNil reports whether v is nil or a nil pointer, map or slice
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
