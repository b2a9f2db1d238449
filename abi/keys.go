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
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
)

// KeyType identifies the curve (or authenticator) of a key or signature
type KeyType uint8

const (
	KeyTypeK1 KeyType = 0
	KeyTypeR1 KeyType = 1
	KeyTypeWA KeyType = 2
)

const (
	publicKeyDataLen = 33
	signatureDataLen = 65
	legacyKeyPrefix  = "EOS"
)

var ErrInvalidChecksum = errors.New("invalid key checksum")

func (k KeyType) String() string {
	switch k {
	case KeyTypeK1:
		return "K1"
	case KeyTypeR1:
		return "R1"
	case KeyTypeWA:
		return "WA"
	}
	return fmt.Sprintf("KeyType(%d)", uint8(k))
}

func parseKeyType(s string) (KeyType, error) {
	switch s {
	case "K1":
		return KeyTypeK1, nil
	case "R1":
		return KeyTypeR1, nil
	case "WA":
		return KeyTypeWA, nil
	}
	return 0, fmt.Errorf("unknown key type %q", s)
}

// PublicKey is a public key in wire form. For WA keys Data also carries the
// user presence flag and relying party id
type PublicKey struct {
	Type KeyType
	Data []byte
}

// Signature is a signature in wire form. For WA signatures Data also carries
// the authenticator data and client JSON
type Signature struct {
	Type KeyType
	Data []byte
}

// PrivateKey is the raw 32-byte secret of a key
type PrivateKey struct {
	Type KeyType
	Data []byte
}

func keyChecksum(data []byte, suffix string) []byte {
	h := ripemd160.New()
	h.Write(data)
	h.Write([]byte(suffix))
	return h.Sum(nil)[:4]
}

func encodeKeyString(prefix string, keyType KeyType, data []byte) string {
	suffix := keyType.String()
	payload := append(append([]byte{}, data...), keyChecksum(data, suffix)...)
	return prefix + "_" + suffix + "_" + base58.Encode(payload)
}

func decodeKeyString(prefix string, s string) (KeyType, []byte, error) {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return 0, nil, fmt.Errorf("expected %s_ prefix in %q", prefix, s)
	}
	typeStr, encoded, ok := strings.Cut(rest, "_")
	if !ok {
		return 0, nil, fmt.Errorf("missing key type in %q", s)
	}
	keyType, err := parseKeyType(typeStr)
	if err != nil {
		return 0, nil, err
	}
	raw := base58.Decode(encoded)
	if len(raw) < 5 {
		return 0, nil, fmt.Errorf("key data too short in %q", s)
	}
	data, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(sum, keyChecksum(data, typeStr)) {
		return 0, nil, ErrInvalidChecksum
	}
	return keyType, data, nil
}

// ParsePublicKey accepts both the PUB_<type>_ form and the legacy EOS form
func ParsePublicKey(s string) (PublicKey, error) {
	if encoded, ok := strings.CutPrefix(s, legacyKeyPrefix); ok {
		raw := base58.Decode(encoded)
		if len(raw) != publicKeyDataLen+4 {
			return PublicKey{}, fmt.Errorf("invalid legacy public key %q", s)
		}
		data, sum := raw[:publicKeyDataLen], raw[publicKeyDataLen:]
		if !bytes.Equal(sum, keyChecksum(data, "")) {
			return PublicKey{}, ErrInvalidChecksum
		}
		return PublicKey{Type: KeyTypeK1, Data: data}, nil
	}
	keyType, data, err := decodeKeyString("PUB", s)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{Type: keyType, Data: data}, nil
}

func (k PublicKey) String() string {
	return encodeKeyString("PUB", k.Type, k.Data)
}

func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseSignature parses the SIG_<type>_ form
func ParseSignature(s string) (Signature, error) {
	keyType, data, err := decodeKeyString("SIG", s)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Type: keyType, Data: data}, nil
}

func (s Signature) String() string {
	return encodeKeyString("SIG", s.Type, s.Data)
}

func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParsePrivateKey parses the PVT_<type>_ form
func ParsePrivateKey(s string) (PrivateKey, error) {
	keyType, data, err := decodeKeyString("PVT", s)
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{Type: keyType, Data: data}, nil
}

func (k PrivateKey) String() string {
	return encodeKeyString("PVT", k.Type, k.Data)
}

func readPublicKey(r *reader) (PublicKey, error) {
	t, err := r.readByte()
	if err != nil {
		return PublicKey{}, err
	}
	start := r.pos
	if _, err := r.read(publicKeyDataLen); err != nil {
		return PublicKey{}, err
	}
	if KeyType(t) == KeyTypeWA {
		// user presence + relying party id
		if _, err := r.readByte(); err != nil {
			return PublicKey{}, err
		}
		if _, err := r.readBytes(); err != nil {
			return PublicKey{}, err
		}
	}
	data := make([]byte, r.pos-start)
	copy(data, r.data[start:r.pos])
	return PublicKey{Type: KeyType(t), Data: data}, nil
}

func readSignature(r *reader) (Signature, error) {
	t, err := r.readByte()
	if err != nil {
		return Signature{}, err
	}
	start := r.pos
	if _, err := r.read(signatureDataLen); err != nil {
		return Signature{}, err
	}
	if KeyType(t) == KeyTypeWA {
		// authenticator data + client JSON
		if _, err := r.readBytes(); err != nil {
			return Signature{}, err
		}
		if _, err := r.readBytes(); err != nil {
			return Signature{}, err
		}
	}
	data := make([]byte, r.pos-start)
	copy(data, r.data[start:r.pos])
	return Signature{Type: KeyType(t), Data: data}, nil
}
