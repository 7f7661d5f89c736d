// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package docket

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

var testRegister = sorcha.MustParseRegisterID("00112233445566778899aabbccddeeff")

func TestGenesisDocket(t *testing.T) {
	genesis := NewGenesis(testRegister, 1700000000)

	assert.True(t, genesis.IsGenesis())
	assert.EqualValues(t, 0, genesis.Version())
	assert.Empty(t, genesis.TxIDs())
	assert.True(t, genesis.PrevDocketID().IsZero())
	assert.True(t, genesis.MerkleRoot().IsZero())
	assert.True(t, genesis.VerifyMerkleRoot())
	assert.False(t, genesis.ID().IsZero())
}

func TestDocketChain(t *testing.T) {
	genesis := NewGenesis(testRegister, 1)

	txIDs := []sorcha.Bytes32{cry.HashSum([]byte("tx1")), cry.HashSum([]byte("tx2"))}
	d1 := New(testRegister, 1, genesis.ID(), 2, txIDs)

	assert.EqualValues(t, 1, d1.Version())
	assert.Equal(t, genesis.ID(), d1.PrevDocketID())
	assert.Equal(t, cry.MerkleRoot(txIDs), d1.MerkleRoot())
	assert.True(t, d1.VerifyMerkleRoot())
	assert.NotEqual(t, genesis.ID(), d1.ID())
}

func TestIDExcludesApprovals(t *testing.T) {
	d := New(testRegister, 1, cry.HashSum([]byte("prev")), 2, nil)
	approved := d.WithApprovals([]Approval{{ValidatorID: "v1", Signature: []byte{1}}})
	committed := approved.WithCommitted(99)

	assert.Equal(t, d.ID(), approved.ID())
	assert.Equal(t, d.ID(), committed.ID())
	assert.Len(t, committed.Approvals(), 1)
	assert.EqualValues(t, 99, committed.CommittedAt())
	assert.Zero(t, d.CommittedAt())
}

func TestRLPRoundTrip(t *testing.T) {
	txIDs := []sorcha.Bytes32{cry.HashSum([]byte("tx1"))}
	d := New(testRegister, 7, cry.HashSum([]byte("prev")), 1700000000, txIDs).
		WithApprovals([]Approval{{ValidatorID: "v1", Signature: []byte{0xaa}, PublicKey: []byte{0xbb}, Algorithm: "ED25519"}}).
		WithCommitted(1700000001)

	enc, err := rlp.EncodeToBytes(d)
	require.NoError(t, err)

	var decoded Docket
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	assert.Equal(t, d.ID(), decoded.ID())
	assert.Equal(t, d.TxIDs(), decoded.TxIDs())
	assert.Equal(t, d.Approvals(), decoded.Approvals())
	assert.EqualValues(t, 1700000001, decoded.CommittedAt())
	assert.True(t, decoded.VerifyMerkleRoot())
}

func TestVerifyMerkleRootMismatch(t *testing.T) {
	txIDs := []sorcha.Bytes32{cry.HashSum([]byte("tx1"))}
	d := New(testRegister, 1, sorcha.Bytes32{}, 1, txIDs)

	enc, err := rlp.EncodeToBytes(d)
	require.NoError(t, err)

	var decoded Docket
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	// corrupt the tx set after decode
	decoded.body.TxIDs[0] = cry.HashSum([]byte("other"))
	assert.False(t, decoded.VerifyMerkleRoot())
}
