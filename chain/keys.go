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

package chain

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/wireio/persona-relay/abi"
)

const (
	wifVersion = 0x80
	// compact signature header: 27 + 4 (compressed key) + recovery id
	compactSigMagicOffset = 27 + 4
	maxSignAttempts       = 64
)

// PrivateKey is a secp256k1 signing key
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// ParsePrivateKey accepts both the legacy WIF form and the PVT_K1_ form
func ParsePrivateKey(s string) (*PrivateKey, error) {
	s = strings.TrimSpace(s)
	var raw []byte
	if strings.HasPrefix(s, "PVT_") {
		k, err := abi.ParsePrivateKey(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		if k.Type != abi.KeyTypeK1 {
			return nil, fmt.Errorf("%w: unsupported key type %s", ErrInvalidKey, k.Type)
		}
		raw = k.Data
	} else {
		payload, version, err := base58.CheckDecode(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		if version != wifVersion {
			return nil, fmt.Errorf("%w: unexpected WIF version 0x%02x", ErrInvalidKey, version)
		}
		// compressed WIF keys carry a trailing 0x01
		if len(payload) == 33 && payload[32] == 0x01 {
			payload = payload[:32]
		}
		raw = payload
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidKey, len(raw))
	}
	return &PrivateKey{key: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// PublicKey returns the compressed public key
func (k *PrivateKey) PublicKey() abi.PublicKey {
	return abi.PublicKey{
		Type: abi.KeyTypeK1,
		Data: k.key.PubKey().SerializeCompressed(),
	}
}

func (k *PrivateKey) String() string {
	return abi.PrivateKey{Type: abi.KeyTypeK1, Data: k.key.Serialize()}.String()
}

// Sign produces a canonical compact signature over a 32-byte digest. Nodes
// only accept signatures whose r and s both encode to 32 bytes without a
// leading sign bit or redundant zero byte, so nonces are drawn until one
// produces such a signature
func (k *PrivateKey) Sign(digest []byte) (abi.Signature, error) {
	privBytes := k.key.Serialize()
	var e secp256k1.ModNScalar
	e.SetByteSlice(digest)
	for iteration := uint32(0); iteration < maxSignAttempts; iteration++ {
		nonce := secp256k1.NonceRFC6979(privBytes, digest, nil, nil, iteration)
		var point secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(nonce, &point)
		point.ToAffine()
		var r secp256k1.ModNScalar
		overflow := r.SetByteSlice(point.X.Bytes()[:])
		if r.IsZero() {
			continue
		}
		recoveryCode := byte(point.Y.IsOddBit())
		if overflow {
			recoveryCode |= 0x02
		}
		kinv := new(secp256k1.ModNScalar).InverseValNonConst(nonce)
		s := new(secp256k1.ModNScalar).Mul2(&k.key.Key, &r).Add(&e).Mul(kinv)
		if s.IsZero() {
			continue
		}
		if s.IsOverHalfOrder() {
			s.Negate()
			recoveryCode ^= 0x01
		}
		rBytes := r.Bytes()
		sBytes := s.Bytes()
		if !isCanonical(rBytes[:]) || !isCanonical(sBytes[:]) {
			continue
		}
		sig := make([]byte, 0, 65)
		sig = append(sig, compactSigMagicOffset+recoveryCode)
		sig = append(sig, rBytes[:]...)
		sig = append(sig, sBytes[:]...)
		return abi.Signature{Type: abi.KeyTypeK1, Data: sig}, nil
	}
	return abi.Signature{}, ErrNonCanonical
}

func isCanonical(b []byte) bool {
	return b[0]&0x80 == 0 && (b[0] != 0 || b[1]&0x80 != 0)
}

// SigningDigest returns the digest signed for a packed transaction
func SigningDigest(chainID abi.Checksum256, packedTrx []byte) []byte {
	h := sha256.New()
	h.Write(chainID[:])
	h.Write(packedTrx)
	// context free data digest: zeroes when there is none
	h.Write(make([]byte, 32))
	return h.Sum(nil)
}
