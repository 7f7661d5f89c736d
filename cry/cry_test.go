// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/sorcha"
)

func TestHashSum(t *testing.T) {
	want := sha256.Sum256([]byte("hello"))
	assert.Equal(t, sorcha.Bytes32(want), HashSum([]byte("hello")))

	// multi-part input hashes the concatenation
	assert.Equal(t, HashSum([]byte("hello")), HashSum([]byte("he"), []byte("llo")))
}

func TestSigningMessage(t *testing.T) {
	txID := sorcha.MustParseBytes32("0x00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	payloadHash := HashSum([]byte("payload"))

	msg := SigningMessage(txID, payloadHash)
	assert.Equal(t, txID.String()+":"+payloadHash.String(), string(msg))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{ED25519, SECP256K1} {
		t.Run(string(alg), func(t *testing.T) {
			priv, pub, err := GenerateKey(alg)
			require.NoError(t, err)

			msg := SigningMessage(HashSum([]byte("tx")), HashSum([]byte("payload")))
			sig, sigPub, err := Sign(alg, priv, msg)
			require.NoError(t, err)
			assert.Equal(t, pub, sigPub)

			ok, err := Verify(alg, pub, msg, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			// tampered message must not verify
			tampered := append([]byte{}, msg...)
			tampered[0] ^= 1
			ok, err = Verify(alg, pub, tampered, sig)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, _, err := Sign("RSA", nil, []byte("msg"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = Verify("RSA", nil, []byte("msg"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	assert.False(t, Algorithm("RSA").Supported())
	assert.True(t, ED25519.Supported())
}

func TestMerkleRoot(t *testing.T) {
	a := HashSum([]byte("a"))
	b := HashSum([]byte("b"))
	c := HashSum([]byte("c"))

	assert.True(t, MerkleRoot(nil).IsZero())
	assert.Equal(t, a, MerkleRoot([]sorcha.Bytes32{a}))
	assert.Equal(t, HashSum(a.Bytes(), b.Bytes()), MerkleRoot([]sorcha.Bytes32{a, b}))

	// odd leaf pairs with itself
	want := HashSum(
		HashSum(a.Bytes(), b.Bytes()).Bytes(),
		HashSum(c.Bytes(), c.Bytes()).Bytes(),
	)
	assert.Equal(t, want, MerkleRoot([]sorcha.Bytes32{a, b, c}))

	// order matters
	assert.NotEqual(t, MerkleRoot([]sorcha.Bytes32{a, b}), MerkleRoot([]sorcha.Bytes32{b, a}))
}
