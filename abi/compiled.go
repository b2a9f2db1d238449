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
	"maps"
	"sync"
)

type decodeFunc func(r *reader, depth int) (any, error)

type compiledField struct {
	name      string
	extension bool
	decode    decodeFunc
}

// CompiledCodec decodes using closures built once per type and cached.
// Encoding is shared with the generic Codec
type CompiledCodec struct {
	codec    *Codec
	mutex    sync.Mutex
	compiled map[string]decodeFunc
}

func NewCompiledCodec(a *ABI) (*CompiledCodec, error) {
	codec, err := NewCodec(a)
	if err != nil {
		return nil, err
	}
	return &CompiledCodec{
		codec:    codec,
		compiled: make(map[string]decodeFunc),
	}, nil
}

// ABI returns the schema the codec was built from
func (c *CompiledCodec) ABI() *ABI {
	return c.codec.abi
}

// Compile prepares the decoder for a type ahead of first use
func (c *CompiledCodec) Compile(typeName string) error {
	_, err := c.decoder(typeName)
	return err
}

func (c *CompiledCodec) decoder(typeName string) (decodeFunc, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if f, ok := c.compiled[typeName]; ok {
		return f, nil
	}
	snapshot := maps.Clone(c.compiled)
	f, err := c.compile(typeName)
	if err != nil {
		// drop forwarding stubs left behind by the failed compile
		c.compiled = snapshot
		return nil, err
	}
	return f, nil
}

// Decode decodes data as the named type. Trailing bytes are ignored
func (c *CompiledCodec) Decode(typeName string, data []byte) (any, error) {
	f, err := c.decoder(typeName)
	if err != nil {
		return nil, &DecodeError{Type: typeName, Err: err}
	}
	r := newReader(data)
	ret, err := f(r, 0)
	if err != nil {
		return nil, &DecodeError{Type: typeName, Offset: r.pos, Err: err}
	}
	return ret, nil
}

// Encode encodes v as the named type
func (c *CompiledCodec) Encode(typeName string, v any) ([]byte, error) {
	return c.codec.Encode(typeName, v)
}

func (c *CompiledCodec) compile(t string) (decodeFunc, error) {
	if f, ok := c.compiled[t]; ok {
		return f, nil
	}
	kind, inner := classify(t)
	if kind == kindBuiltin {
		var err error
		kind, inner, err = c.codec.lookup(t)
		if err != nil {
			return nil, err
		}
	}
	var ret decodeFunc
	switch kind {
	case kindExtension:
		innerFunc, err := c.compile(inner)
		if err != nil {
			return nil, err
		}
		ret = func(r *reader, depth int) (any, error) {
			if r.remaining() == 0 {
				return nil, nil
			}
			return innerFunc(r, depth+1)
		}
	case kindOptional:
		innerFunc, err := c.compile(inner)
		if err != nil {
			return nil, err
		}
		ret = func(r *reader, depth int) (any, error) {
			present, err := r.readByte()
			if err != nil {
				return nil, err
			}
			if present == 0 {
				return nil, nil
			}
			return innerFunc(r, depth+1)
		}
	case kindArray:
		innerFunc, err := c.compile(inner)
		if err != nil {
			return nil, err
		}
		ret = compileArray(inner, innerFunc)
	case kindVariant:
		// register a forwarding cell first so recursive variants resolve
		var cell decodeFunc
		c.compiled[t] = func(r *reader, depth int) (any, error) {
			return cell(r, depth)
		}
		vd := c.codec.variants[inner]
		funcs := make([]decodeFunc, len(vd.Types))
		for i, vt := range vd.Types {
			f, err := c.compile(vt)
			if err != nil {
				return nil, err
			}
			funcs[i] = f
		}
		cell = compileVariant(inner, vd.Types, funcs)
		ret = cell
	case kindStruct:
		var cell decodeFunc
		c.compiled[t] = func(r *reader, depth int) (any, error) {
			return cell(r, depth)
		}
		f, err := c.compileStruct(inner)
		if err != nil {
			return nil, err
		}
		cell = f
		ret = cell
	default:
		bt := builtinTypes[inner]
		ret = func(r *reader, _ int) (any, error) {
			return bt.decode(r)
		}
	}
	c.compiled[t] = ret
	return ret, nil
}

func compileArray(inner string, innerFunc decodeFunc) decodeFunc {
	return func(r *reader, depth int) (any, error) {
		if depth > MaxDepth {
			return nil, ErrMaxDepth
		}
		n, err := r.readVarUint32()
		if err != nil {
			return nil, err
		}
		if int(n) > r.remaining() {
			return nil, ErrShortRead
		}
		ret := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := innerFunc(r, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", inner, i, err)
			}
			ret = append(ret, v)
		}
		return ret, nil
	}
}

func compileVariant(name string, types []string, funcs []decodeFunc) decodeFunc {
	return func(r *reader, depth int) (any, error) {
		if depth > MaxDepth {
			return nil, ErrMaxDepth
		}
		idx, err := r.readVarUint32()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(funcs) {
			return nil, fmt.Errorf("variant %s index %d out of range", name, idx)
		}
		v, err := funcs[idx](r, depth+1)
		if err != nil {
			return nil, err
		}
		return Variant{Type: types[idx], Value: v}, nil
	}
}

func (c *CompiledCodec) compileStruct(name string) (decodeFunc, error) {
	defs, err := c.flattenFields(name, 0)
	if err != nil {
		return nil, err
	}
	fields := make([]compiledField, 0, len(defs))
	for _, fd := range defs {
		f, err := c.compile(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, fd.Name, err)
		}
		kind, _ := classify(fd.Type)
		fields = append(fields, compiledField{
			name:      fd.Name,
			extension: kind == kindExtension,
			decode:    f,
		})
	}
	return func(r *reader, depth int) (any, error) {
		if depth > MaxDepth {
			return nil, ErrMaxDepth
		}
		ret := make(map[string]any, len(fields))
		for _, f := range fields {
			if f.extension && r.remaining() == 0 {
				continue
			}
			v, err := f.decode(r, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, f.name, err)
			}
			ret[f.name] = v
		}
		return ret, nil
	}, nil
}

// flattenFields returns the fields of a struct with its base fields first
func (c *CompiledCodec) flattenFields(name string, depth int) ([]FieldDef, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepth
	}
	sd := c.codec.structs[name]
	var ret []FieldDef
	if sd.Base != "" {
		base, err := c.codec.resolve(sd.Base)
		if err != nil {
			return nil, err
		}
		if _, ok := c.codec.structs[base]; !ok {
			return nil, fmt.Errorf("%w: base %s of %s", ErrUnknownType, sd.Base, name)
		}
		ret, err = c.flattenFields(base, depth+1)
		if err != nil {
			return nil, err
		}
	}
	return append(ret, sd.Fields...), nil
}

// NativeCodecs keeps one compiled codec per account. It is safe for
// concurrent use
type NativeCodecs struct {
	mutex  sync.RWMutex
	codecs map[string]*CompiledCodec
}

func NewNativeCodecs() *NativeCodecs {
	return &NativeCodecs{
		codecs: make(map[string]*CompiledCodec),
	}
}

// LoadSchema replaces the schema used for an account
func (n *NativeCodecs) LoadSchema(account string, a *ABI) error {
	codec, err := NewCompiledCodec(a)
	if err != nil {
		return err
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.codecs[account] = codec
	return nil
}

// Unload forgets the schema for an account
func (n *NativeCodecs) Unload(account string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.codecs, account)
}

// Has reports whether a schema is loaded for the account
func (n *NativeCodecs) Has(account string) bool {
	_, ok := n.codec(account)
	return ok
}

func (n *NativeCodecs) codec(account string) (*CompiledCodec, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	c, ok := n.codecs[account]
	return c, ok
}

// TypeForAction returns the payload type for an account's action
func (n *NativeCodecs) TypeForAction(account string, action string) (string, error) {
	c, ok := n.codec(account)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSchema, account)
	}
	t, ok := c.ABI().ActionType(action)
	if !ok {
		return "", fmt.Errorf("%w: %s::%s", ErrUnknownAction, account, action)
	}
	return t, nil
}

// DecodeAction decodes an action payload using the account's schema
func (n *NativeCodecs) DecodeAction(account string, action string, data []byte) (any, error) {
	t, err := n.TypeForAction(account, action)
	if err != nil {
		return nil, &DecodeError{Type: action, Err: err}
	}
	return n.Decode(account, t, data)
}

// Decode decodes data as a type from the account's schema
func (n *NativeCodecs) Decode(account string, typeName string, data []byte) (any, error) {
	c, ok := n.codec(account)
	if !ok {
		return nil, &DecodeError{Type: typeName, Err: fmt.Errorf("%w: %s", ErrNoSchema, account)}
	}
	return c.Decode(typeName, data)
}

// EncodeAction encodes an action payload using the account's schema
func (n *NativeCodecs) EncodeAction(account string, action string, v any) ([]byte, error) {
	t, err := n.TypeForAction(account, action)
	if err != nil {
		return nil, &EncodeError{Type: action, Err: err}
	}
	return n.Encode(account, t, v)
}

// Encode encodes v as a type from the account's schema
func (n *NativeCodecs) Encode(account string, typeName string, v any) ([]byte, error) {
	c, ok := n.codec(account)
	if !ok {
		return nil, &EncodeError{Type: typeName, Err: fmt.Errorf("%w: %s", ErrNoSchema, account)}
	}
	return c.Encode(typeName, v)
}
