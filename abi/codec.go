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
	"strings"
)

const (
	// MaxDepth bounds nesting of structs, arrays, optionals and variants
	MaxDepth = 128

	maxTypedefHops = 32
)

// Codec is the generic schema-walking codec. It is safe for concurrent use
type Codec struct {
	abi      *ABI
	typedefs map[string]string
	structs  map[string]*StructDef
	variants map[string]*VariantDef
}

// NewCodec validates the schema and indexes its types
func NewCodec(a *ABI) (*Codec, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	c := &Codec{
		abi:      a,
		typedefs: make(map[string]string, len(a.Types)),
		structs:  make(map[string]*StructDef, len(a.Structs)),
		variants: make(map[string]*VariantDef, len(a.Variants)),
	}
	for _, t := range a.Types {
		c.typedefs[t.NewTypeName] = t.Type
	}
	for i := range a.Structs {
		c.structs[a.Structs[i].Name] = &a.Structs[i]
	}
	for i := range a.Variants {
		c.variants[a.Variants[i].Name] = &a.Variants[i]
	}
	return c, nil
}

// ABI returns the schema the codec was built from
func (c *Codec) ABI() *ABI {
	return c.abi
}

// resolve follows typedef aliases to their target type expression
func (c *Codec) resolve(name string) (string, error) {
	for i := 0; i < maxTypedefHops; i++ {
		target, ok := c.typedefs[name]
		if !ok {
			return name, nil
		}
		name = target
	}
	return "", fmt.Errorf("typedef chain for %q is too long", name)
}

type typeKind int

const (
	kindBuiltin typeKind = iota
	kindStruct
	kindVariant
	kindArray
	kindOptional
	kindExtension
)

// classify splits a type expression into its outermost modifier and the
// inner type. Suffixes are checked in the order '$', '?', '[]'
func classify(t string) (typeKind, string) {
	switch {
	case strings.HasSuffix(t, "$"):
		return kindExtension, t[:len(t)-1]
	case strings.HasSuffix(t, "?"):
		return kindOptional, t[:len(t)-1]
	case strings.HasSuffix(t, "[]"):
		return kindArray, t[:len(t)-2]
	}
	return kindBuiltin, t
}

// lookup resolves a plain (unsuffixed) type name into its kind. A typedef
// may resolve to a suffixed expression, in which case the expression is
// returned for the caller to classify again
func (c *Codec) lookup(t string) (typeKind, string, error) {
	resolved, err := c.resolve(t)
	if err != nil {
		return 0, "", err
	}
	if resolved != t {
		if kind, inner := classify(resolved); kind != kindBuiltin {
			return kind, inner, nil
		}
	}
	if _, ok := builtinTypes[resolved]; ok {
		return kindBuiltin, resolved, nil
	}
	if _, ok := c.structs[resolved]; ok {
		return kindStruct, resolved, nil
	}
	if _, ok := c.variants[resolved]; ok {
		return kindVariant, resolved, nil
	}
	return 0, "", fmt.Errorf("%w: %s", ErrUnknownType, t)
}

// Decode decodes data as the named type. Trailing bytes are ignored
func (c *Codec) Decode(typeName string, data []byte) (any, error) {
	r := newReader(data)
	ret, err := c.decode(r, typeName, 0)
	if err != nil {
		return nil, &DecodeError{Type: typeName, Offset: r.pos, Err: err}
	}
	return ret, nil
}

func (c *Codec) decode(r *reader, t string, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepth
	}
	kind, inner := classify(t)
	if kind == kindBuiltin {
		var err error
		kind, inner, err = c.lookup(t)
		if err != nil {
			return nil, err
		}
	}
	switch kind {
	case kindExtension:
		if r.remaining() == 0 {
			return nil, nil
		}
		return c.decode(r, inner, depth+1)
	case kindOptional:
		present, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if present == 0 {
			return nil, nil
		}
		return c.decode(r, inner, depth+1)
	case kindArray:
		n, err := r.readVarUint32()
		if err != nil {
			return nil, err
		}
		if int(n) > r.remaining() {
			return nil, ErrShortRead
		}
		ret := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := c.decode(r, inner, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", inner, i, err)
			}
			ret = append(ret, v)
		}
		return ret, nil
	case kindVariant:
		vd := c.variants[inner]
		idx, err := r.readVarUint32()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(vd.Types) {
			return nil, fmt.Errorf("variant %s index %d out of range", inner, idx)
		}
		v, err := c.decode(r, vd.Types[idx], depth+1)
		if err != nil {
			return nil, err
		}
		return Variant{Type: vd.Types[idx], Value: v}, nil
	case kindStruct:
		ret := make(map[string]any)
		if err := c.decodeStruct(r, inner, ret, depth+1); err != nil {
			return nil, err
		}
		return ret, nil
	}
	return builtinTypes[inner].decode(r)
}

func (c *Codec) decodeStruct(r *reader, name string, out map[string]any, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	sd := c.structs[name]
	if sd.Base != "" {
		base, err := c.resolve(sd.Base)
		if err != nil {
			return err
		}
		if _, ok := c.structs[base]; !ok {
			return fmt.Errorf("%w: base %s of %s", ErrUnknownType, sd.Base, name)
		}
		if err := c.decodeStruct(r, base, out, depth+1); err != nil {
			return err
		}
	}
	for _, f := range sd.Fields {
		if strings.HasSuffix(f.Type, "$") && r.remaining() == 0 {
			continue
		}
		v, err := c.decode(r, f.Type, depth)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
		out[f.Name] = v
	}
	return nil
}

// Encode encodes v as the named type
func (c *Codec) Encode(typeName string, v any) ([]byte, error) {
	w := &writer{}
	if err := c.encode(w, typeName, v, 0); err != nil {
		return nil, &EncodeError{Type: typeName, Err: err}
	}
	return w.bytes(), nil
}

func (c *Codec) encode(w *writer, t string, v any, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	kind, inner := classify(t)
	if kind == kindBuiltin {
		var err error
		kind, inner, err = c.lookup(t)
		if err != nil {
			return err
		}
	}
	switch kind {
	case kindExtension:
		if isNil(v) {
			return nil
		}
		return c.encode(w, inner, v, depth+1)
	case kindOptional:
		if isNil(v) {
			w.writeByte(0)
			return nil
		}
		w.writeByte(1)
		return c.encode(w, inner, v, depth+1)
	case kindArray:
		items, err := sliceValues(v)
		if err != nil {
			return err
		}
		w.writeVarUint32(uint32(len(items)))
		for i, item := range items {
			if err := c.encode(w, inner, item, depth+1); err != nil {
				return fmt.Errorf("%s[%d]: %w", inner, i, err)
			}
		}
		return nil
	case kindVariant:
		vd := c.variants[inner]
		variant, err := toVariant(v)
		if err != nil {
			return err
		}
		for idx, vt := range vd.Types {
			if vt == variant.Type {
				w.writeVarUint32(uint32(idx))
				return c.encode(w, vt, variant.Value, depth+1)
			}
		}
		return fmt.Errorf("variant %s has no type %s", inner, variant.Type)
	case kindStruct:
		return c.encodeStruct(w, inner, v, depth+1)
	}
	return builtinTypes[inner].encode(w, v)
}

func (c *Codec) encodeStruct(w *writer, name string, v any, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	sd := c.structs[name]
	if sd.Base != "" {
		base, err := c.resolve(sd.Base)
		if err != nil {
			return err
		}
		if _, ok := c.structs[base]; !ok {
			return fmt.Errorf("%w: base %s of %s", ErrUnknownType, sd.Base, name)
		}
		if err := c.encodeStruct(w, base, v, depth+1); err != nil {
			return err
		}
	}
	for _, f := range sd.Fields {
		fv, ok := fieldValue(v, f.Name)
		if !ok || (strings.HasSuffix(f.Type, "$") && isNil(fv)) {
			if strings.HasSuffix(f.Type, "$") {
				// later extension fields can not be present without this one
				return nil
			}
			if strings.HasSuffix(f.Type, "?") {
				w.writeByte(0)
				continue
			}
			return fmt.Errorf("%s: missing field %s", name, f.Name)
		}
		if err := c.encode(w, f.Type, fv, depth); err != nil {
			return fmt.Errorf("%s.%s: %w", name, f.Name, err)
		}
	}
	return nil
}
