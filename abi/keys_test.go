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
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wireio/persona-relay/abi"
)

const (
	testLegacyPublicKey = "EOS6MRyAjQq8ud7hVNYcfnVPJqcVpscN5So8BhtHuGYqET5GDW5CV"
	testPublicKey       = "PUB_K1_6MRyAjQq8ud7hVNYcfnVPJqcVpscN5So8BhtHuGYqET5BoDq63"
)

func TestParsePublicKey(t *testing.T) {
	legacy, err := abi.ParsePublicKey(testLegacyPublicKey)
	require.NoError(t, err)
	assert.Equal(t, abi.KeyTypeK1, legacy.Type)
	assert.Len(t, legacy.Data, 33)
	assert.Equal(t, testPublicKey, legacy.String())
	current, err := abi.ParsePublicKey(testPublicKey)
	require.NoError(t, err)
	assert.Equal(t, legacy, current)
}

func TestParsePublicKeyBadChecksum(t *testing.T) {
	// flip the last character
	bad := testPublicKey[:len(testPublicKey)-1] + "4"
	_, err := abi.ParsePublicKey(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, abi.ErrInvalidChecksum))
}

func TestSignatureRoundTrip(t *testing.T) {
	sig := abi.Signature{Type: abi.KeyTypeK1, Data: bytes.Repeat([]byte{0x1f}, 65)}
	text := sig.String()
	assert.Contains(t, text, "SIG_K1_")
	parsed, err := abi.ParseSignature(text)
	require.NoError(t, err)
	assert.Equal(t, sig, parsed)
	codec, err := abi.NewCodec(abi.TransactionABI())
	require.NoError(t, err)
	data, err := codec.Encode("signature", text)
	require.NoError(t, err)
	assert.Len(t, data, 66)
	decoded, err := codec.Decode("signature", data)
	require.NoError(t, err)
	assert.Equal(t, sig, decoded)
}

func TestPrivateKeyText(t *testing.T) {
	key := abi.PrivateKey{Type: abi.KeyTypeK1, Data: bytes.Repeat([]byte{0x42}, 32)}
	parsed, err := abi.ParsePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
	_, err = abi.ParsePrivateKey("PVT_XX_abc")
	assert.Error(t, err)
}
