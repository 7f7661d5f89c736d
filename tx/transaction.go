// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tx models signed ledger transactions: an action submission against
// a blueprint instance carrying opaque per-recipient payloads.
package tx

import (
	"io"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

// Transaction is an immutable transaction type.
type Transaction struct {
	body body

	cache struct {
		id   atomic.Pointer[sorcha.Bytes32]
		size atomic.Pointer[int]
	}
}

// body describes details of a transaction. The trailing three fields are the
// signature envelope and do not contribute to the content-addressed id.
type body struct {
	RegisterID   sorcha.RegisterID
	BlueprintID  string
	PrevTxID     *sorcha.Bytes32 `rlp:"nil"`
	PayloadHash  sorcha.Bytes32
	Payloads     Payloads
	SenderWallet sorcha.Address
	SubmittedAt  uint64

	Signature []byte
	PublicKey []byte
	Algorithm string
}

// ID returns the content-addressed transaction id: the SHA-256 hash over the
// RLP encoding of the body minus the signature envelope.
func (t *Transaction) ID() sorcha.Bytes32 {
	if cached := t.cache.id.Load(); cached != nil {
		return *cached
	}

	enc, err := rlp.EncodeToBytes([]any{
		t.body.RegisterID,
		t.body.BlueprintID,
		t.body.PrevTxID,
		t.body.PayloadHash,
		t.body.Payloads,
		t.body.SenderWallet,
		t.body.SubmittedAt,
	})
	if err != nil {
		panic(errors.Wrap(err, "encode tx id content"))
	}
	id := cry.HashSum(enc)
	t.cache.id.Store(&id)
	return id
}

// RegisterID returns the register the transaction belongs to.
func (t *Transaction) RegisterID() sorcha.RegisterID { return t.body.RegisterID }

// BlueprintID returns the blueprint id, possibly the genesis sentinel.
func (t *Transaction) BlueprintID() string { return t.body.BlueprintID }

// IsGenesis reports whether this is a control transaction.
func (t *Transaction) IsGenesis() bool { return t.body.BlueprintID == sorcha.GenesisBlueprintID }

// PrevTxID returns the chain link to the prior transaction, or nil for a
// starting action.
func (t *Transaction) PrevTxID() *sorcha.Bytes32 {
	if t.body.PrevTxID == nil {
		return nil
	}
	cpy := *t.body.PrevTxID
	return &cpy
}

// PayloadHash returns the submitted payload hash.
func (t *Transaction) PayloadHash() sorcha.Bytes32 { return t.body.PayloadHash }

// Payloads returns the canonical payload set.
func (t *Transaction) Payloads() Payloads { return t.body.Payloads }

// SenderWallet returns the submitting wallet address.
func (t *Transaction) SenderWallet() sorcha.Address { return t.body.SenderWallet }

// SubmittedAt returns the submission unix timestamp.
func (t *Transaction) SubmittedAt() uint64 { return t.body.SubmittedAt }

// Signature returns the signature bytes.
func (t *Transaction) Signature() []byte { return append([]byte{}, t.body.Signature...) }

// PublicKey returns the declared public key.
func (t *Transaction) PublicKey() []byte { return append([]byte{}, t.body.PublicKey...) }

// Algorithm returns the declared signature algorithm.
func (t *Transaction) Algorithm() cry.Algorithm { return cry.Algorithm(t.body.Algorithm) }

// SigningMessage returns the ASCII bytes the signature must cover.
func (t *Transaction) SigningMessage() []byte {
	return cry.SigningMessage(t.ID(), t.body.PayloadHash)
}

// WithSignature creates a copy of the transaction carrying the signature
// envelope.
func (t *Transaction) WithSignature(sig, pub []byte, alg cry.Algorithm) *Transaction {
	newTx := Transaction{body: t.body}
	newTx.body.Signature = append([]byte{}, sig...)
	newTx.body.PublicKey = append([]byte{}, pub...)
	newTx.body.Algorithm = string(alg)
	return &newTx
}

// VerifySignature checks the signature over the signing message under the
// declared public key and algorithm.
func (t *Transaction) VerifySignature() (bool, error) {
	return cry.Verify(t.Algorithm(), t.body.PublicKey, t.SigningMessage(), t.body.Signature)
}

// Size returns the RLP encoded size in bytes.
func (t *Transaction) Size() int {
	if cached := t.cache.size.Load(); cached != nil {
		return *cached
	}
	enc, err := rlp.EncodeToBytes(t)
	if err != nil {
		panic(errors.Wrap(err, "encode tx"))
	}
	size := len(enc)
	t.cache.size.Store(&size)
	return size
}

// EncodeRLP implements rlp.Encoder.
func (t *Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &t.body)
}

// DecodeRLP implements rlp.Decoder.
func (t *Transaction) DecodeRLP(s *rlp.Stream) error {
	var b body
	if err := s.Decode(&b); err != nil {
		return err
	}
	*t = Transaction{body: b}
	return nil
}

// Transactions is a slice of transactions.
type Transactions []*Transaction

// IDs collects transaction ids in order.
func (txs Transactions) IDs() []sorcha.Bytes32 {
	ids := make([]sorcha.Bytes32, len(txs))
	for i, t := range txs {
		ids[i] = t.ID()
	}
	return ids
}
