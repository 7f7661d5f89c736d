// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

// Builder to make it easy to build a transaction.
type Builder struct {
	registerID   sorcha.RegisterID
	blueprintID  string
	prevTxID     *sorcha.Bytes32
	payloads     Payloads
	senderWallet sorcha.Address
	submittedAt  uint64
}

// RegisterID sets the register id.
func (b *Builder) RegisterID(id sorcha.RegisterID) *Builder {
	b.registerID = id
	return b
}

// BlueprintID sets the blueprint id.
func (b *Builder) BlueprintID(id string) *Builder {
	b.blueprintID = id
	return b
}

// PrevTxID sets the chain link to the prior transaction.
func (b *Builder) PrevTxID(id sorcha.Bytes32) *Builder {
	b.prevTxID = &id
	return b
}

// Payload adds one per-recipient payload.
func (b *Builder) Payload(recipient sorcha.Address, data []byte) *Builder {
	b.payloads = append(b.payloads, Payload{Recipient: recipient, Data: append([]byte{}, data...)})
	return b
}

// SenderWallet sets the submitting wallet.
func (b *Builder) SenderWallet(addr sorcha.Address) *Builder {
	b.senderWallet = addr
	return b
}

// SubmittedAt sets the submission unix timestamp.
func (b *Builder) SubmittedAt(ts uint64) *Builder {
	b.submittedAt = ts
	return b
}

// Build builds the unsigned transaction. The payload set is canonicalized and
// the payload hash derived from it.
func (b *Builder) Build() (*Transaction, error) {
	if b.registerID.IsZero() {
		return nil, errors.New("tx builder: register id required")
	}
	if b.blueprintID == "" {
		return nil, errors.New("tx builder: blueprint id required")
	}
	if b.senderWallet.IsZero() {
		return nil, errors.New("tx builder: sender wallet required")
	}

	payloads, err := b.payloads.Canonicalize()
	if err != nil {
		return nil, errors.Wrap(err, "tx builder")
	}

	return &Transaction{body: body{
		RegisterID:   b.registerID,
		BlueprintID:  b.blueprintID,
		PrevTxID:     b.prevTxID,
		PayloadHash:  payloads.Hash(),
		Payloads:     payloads,
		SenderWallet: b.senderWallet,
		SubmittedAt:  b.submittedAt,
	}}, nil
}

// Sign builds the transaction and signs it with the private key.
func (b *Builder) Sign(alg cry.Algorithm, priv []byte) (*Transaction, error) {
	unsigned, err := b.Build()
	if err != nil {
		return nil, err
	}
	sig, pub, err := cry.Sign(alg, priv, unsigned.SigningMessage())
	if err != nil {
		return nil, errors.Wrap(err, "sign tx")
	}
	return unsigned.WithSignature(sig, pub, alg), nil
}
