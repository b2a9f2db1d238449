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
	"encoding/binary"
	"errors"
	"math"
)

var errVarIntOverflow = errors.New("varint overflows 32 bits")

// reader consumes little-endian values from a byte slice
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) read(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, ErrShortRead
	}
	ret := r.data[r.pos : r.pos+n]
	r.pos += n
	return ret, nil
}

func (r *reader) readByte() (byte, error) {
	if r.remaining() < 1 {
		return 0, ErrShortRead
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readUint16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readUint64() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readVarUint32() (uint32, error) {
	var ret uint64
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		ret |= uint64(b&0x7f) << shift
		if ret > math.MaxUint32 {
			return 0, errVarIntOverflow
		}
		if b&0x80 == 0 {
			return uint32(ret), nil
		}
		shift += 7
		if shift > 35 {
			return 0, errVarIntOverflow
		}
	}
}

func (r *reader) readVarInt32() (int32, error) {
	v, err := r.readVarUint32()
	if err != nil {
		return 0, err
	}
	// zigzag
	return int32(v>>1) ^ -int32(v&1), nil
}

// readBytes reads a varuint32 length prefix followed by that many bytes
func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readVarUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.read(int(n))
	if err != nil {
		return nil, err
	}
	ret := make([]byte, len(b))
	copy(ret, b)
	return ret, nil
}

// writer accumulates little-endian values
type writer struct {
	buf []byte
}

func (w *writer) bytes() []byte {
	return w.buf
}

func (w *writer) write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) writeByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *writer) writeUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) writeUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) writeUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) writeVarUint32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		w.buf = append(w.buf, b)
		if v == 0 {
			return
		}
	}
}

func (w *writer) writeVarInt32(v int32) {
	w.writeVarUint32(uint32((v << 1) ^ (v >> 31)))
}

func (w *writer) writeBytes(b []byte) {
	w.writeVarUint32(uint32(len(b)))
	w.write(b)
}
