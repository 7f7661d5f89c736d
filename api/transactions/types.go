// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transactions

import (
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
	"github.com/sorchain/sorcha/validator"
)

// SubmitTx is the wire form of a signed transaction submission. Byte fields
// are base64 in JSON; ids are 0x-prefixed hex.
type SubmitTx struct {
	TxID         string            `json:"tx_id"`
	RegisterID   string            `json:"register_id"`
	BlueprintID  string            `json:"blueprint_id"`
	PrevTxID     *string           `json:"previous_transaction_id,omitempty"`
	PayloadHash  string            `json:"payload_hash"`
	Payloads     map[string][]byte `json:"payloads"`
	SenderWallet string            `json:"sender_wallet"`
	SubmittedAt  uint64            `json:"submitted_at"`
	Signature    []byte            `json:"signature"`
	PublicKey    []byte            `json:"public_key"`
	Algorithm    string            `json:"algorithm"`
}

// errHashMismatch separates a wrong declared payload_hash from malformed
// wire forms. The canonical rebuild always carries the recomputed hash, so
// this check is the one place the mismatch can be caught; the handler
// reports it as the hash-stage rejection.
var errHashMismatch = errors.New("payload_hash does not cover the submitted payloads")

// decode rebuilds the canonical transaction from the wire form. The declared
// tx_id and payload_hash must match the recomputed values; both are checked
// here because only the wire form carries them.
func (s *SubmitTx) decode() (*tx.Transaction, error) {
	regID, err := sorcha.ParseRegisterID(s.RegisterID)
	if err != nil {
		return nil, errors.Wrap(err, "register_id")
	}

	builder := new(tx.Builder).
		RegisterID(regID).
		BlueprintID(s.BlueprintID).
		SenderWallet(sorcha.Address(s.SenderWallet)).
		SubmittedAt(s.SubmittedAt)

	if s.PrevTxID != nil {
		prev, err := sorcha.ParseBytes32(*s.PrevTxID)
		if err != nil {
			return nil, errors.Wrap(err, "previous_transaction_id")
		}
		builder.PrevTxID(prev)
	}
	for wallet, data := range s.Payloads {
		builder.Payload(sorcha.Address(wallet), data)
	}

	unsigned, err := builder.Build()
	if err != nil {
		return nil, err
	}
	trx := unsigned.WithSignature(s.Signature, s.PublicKey, cry.Algorithm(s.Algorithm))

	if s.TxID != "" {
		declared, err := sorcha.ParseBytes32(s.TxID)
		if err != nil {
			return nil, errors.Wrap(err, "tx_id")
		}
		if declared != trx.ID() {
			return nil, errors.Errorf("tx_id %s is not the canonical content hash %s", declared, trx.ID())
		}
	}
	if s.PayloadHash != "" {
		declared, err := sorcha.ParseBytes32(s.PayloadHash)
		if err != nil {
			return nil, errors.Wrap(err, "payload_hash")
		}
		if declared != trx.PayloadHash() {
			return nil, errHashMismatch
		}
	}
	return trx, nil
}

// Receipt is the wire form of the one synchronous submission decision.
type Receipt struct {
	Accepted     bool       `json:"accepted"`
	StageReached string     `json:"stage_reached"`
	Duplicate    bool       `json:"duplicate,omitempty"`
	Error        *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is one rejection from the closed validation error set.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func convertReceipt(r *validator.Receipt) *Receipt {
	out := &Receipt{
		Accepted:     r.Accepted,
		StageReached: string(r.StageReached),
		Duplicate:    r.Duplicate,
	}
	if r.Err != nil {
		out.Error = &ErrorBody{
			Code:    string(r.Err.Code),
			Message: r.Err.Message,
		}
	}
	return out
}
