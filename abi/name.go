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

const nameCharMap = ".12345abcdefghijklmnopqrstuvwxyz"

// Name is an account, action, table or permission name packed into 64 bits
// using a 5-bit alphabet (the 13th character gets 4 bits)
type Name uint64

// NewName packs a string into a Name. Characters outside the alphabet are
// treated as '.'
func NewName(s string) Name {
	var value uint64
	for i := 0; i <= 12; i++ {
		var c uint64
		if i < len(s) {
			c = uint64(nameCharToSymbol(s[i]))
		}
		if i < 12 {
			c &= 0x1f
			c <<= 64 - 5*(uint(i)+1)
		} else {
			c &= 0x0f
		}
		value |= c
	}
	return Name(value)
}

// ParseName is like NewName but rejects strings that would not survive a
// round trip
func ParseName(s string) (Name, error) {
	if len(s) > 13 {
		return 0, fmt.Errorf("name %q is longer than 13 characters", s)
	}
	n := NewName(s)
	if n.String() != strings.TrimRight(s, ".") {
		return 0, fmt.Errorf("name %q contains invalid characters", s)
	}
	return n, nil
}

func nameCharToSymbol(c byte) byte {
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 6
	case c >= '1' && c <= '5':
		return c - '1' + 1
	}
	return 0
}

func (n Name) String() string {
	var str [13]byte
	tmp := uint64(n)
	for i := 0; i <= 12; i++ {
		var c byte
		if i == 0 {
			c = nameCharMap[tmp&0x0f]
			tmp >>= 4
		} else {
			c = nameCharMap[tmp&0x1f]
			tmp >>= 5
		}
		str[12-i] = c
	}
	return strings.TrimRight(string(str[:]), ".")
}

func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Name) UnmarshalText(data []byte) error {
	tmp, err := ParseName(string(data))
	if err != nil {
		return err
	}
	*n = tmp
	return nil
}
