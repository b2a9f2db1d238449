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

package chain_test

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wireio/persona-relay/chain"
)

func TestParsePrivateKeyWIF(t *testing.T) {
	key, err := chain.ParsePrivateKey(testWIF)
	require.NoError(t, err)
	assert.Equal(t, "PUB_K1_6MRyAjQq8ud7hVNYcfnVPJqcVpscN5So8BhtHuGYqET5BoDq63", key.PublicKey().String())
	// the PVT_K1_ form parses to the same key
	again, err := chain.ParsePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), again.PublicKey())
}

func TestParsePrivateKeyInvalid(t *testing.T) {
	for _, input := range []string{"", "not-a-key", "PVT_R1_abc", testWIF[:len(testWIF)-1] + "4"} {
		_, err := chain.ParsePrivateKey(input)
		assert.True(t, errors.Is(err, chain.ErrInvalidKey), input)
	}
}

func TestSignCanonical(t *testing.T) {
	key, err := chain.ParsePrivateKey(testWIF)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		digest := sha256.Sum256([]byte(fmt.Sprintf("message %d", i)))
		sig, err := key.Sign(digest[:])
		require.NoError(t, err)
		require.Len(t, sig.Data, 65)
		assert.GreaterOrEqual(t, sig.Data[0], byte(31))
		assert.LessOrEqual(t, sig.Data[0], byte(34))
		// r and s have no sign bit set and no redundant leading zero
		r, s := sig.Data[1:33], sig.Data[33:65]
		assert.Zero(t, r[0]&0x80)
		assert.Zero(t, s[0]&0x80)
		assert.False(t, r[0] == 0 && r[1]&0x80 == 0)
		assert.False(t, s[0] == 0 && s[1]&0x80 == 0)
		recovered, _, err := ecdsa.RecoverCompact(sig.Data, digest[:])
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey().Data, recovered.SerializeCompressed())
	}
}

func TestSignDeterministic(t *testing.T) {
	key, err := chain.ParsePrivateKey(testWIF)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("finalize"))
	first, err := key.Sign(digest[:])
	require.NoError(t, err)
	second, err := key.Sign(digest[:])
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, first.String(), "SIG_K1_")
}
