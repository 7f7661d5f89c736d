// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package docket models the ordered, signed batches of verified transactions
// a register commits under quorum.
package docket

import (
	"io"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

// Approval is one validator signature over a docket id.
type Approval struct {
	ValidatorID string
	Signature   []byte
	PublicKey   []byte
	Algorithm   string
}

// Docket is an immutable docket type. The id is the SHA-256 hash of the
// canonical header; approvals and the commit timestamp are collected after
// build and do not contribute to it.
type Docket struct {
	body body

	cache struct {
		id atomic.Pointer[sorcha.Bytes32]
	}
}

type body struct {
	RegisterID   sorcha.RegisterID
	Version      uint64
	PrevDocketID sorcha.Bytes32
	MerkleRoot   sorcha.Bytes32
	BuiltAt      uint64
	TxIDs        []sorcha.Bytes32

	Approvals   []Approval
	CommittedAt uint64
}

// New creates a docket over the ordered tx ids. The merkle root is derived
// from them.
func New(registerID sorcha.RegisterID, version uint64, prevDocketID sorcha.Bytes32, builtAt uint64, txIDs []sorcha.Bytes32) *Docket {
	ids := append([]sorcha.Bytes32{}, txIDs...)
	return &Docket{body: body{
		RegisterID:   registerID,
		Version:      version,
		PrevDocketID: prevDocketID,
		MerkleRoot:   cry.MerkleRoot(ids),
		BuiltAt:      builtAt,
		TxIDs:        ids,
	}}
}

// NewGenesis creates the empty version-0 docket of a register.
func NewGenesis(registerID sorcha.RegisterID, builtAt uint64) *Docket {
	return New(registerID, sorcha.GenesisDocketVersion, sorcha.Bytes32{}, builtAt, nil)
}

// ID returns the docket id: SHA-256 over the RLP encoding of the canonical
// header.
func (d *Docket) ID() sorcha.Bytes32 {
	if cached := d.cache.id.Load(); cached != nil {
		return *cached
	}
	enc, err := rlp.EncodeToBytes([]any{
		d.body.RegisterID,
		d.body.Version,
		d.body.PrevDocketID,
		d.body.MerkleRoot,
		d.body.BuiltAt,
	})
	if err != nil {
		panic(errors.Wrap(err, "encode docket header"))
	}
	id := cry.HashSum(enc)
	d.cache.id.Store(&id)
	return id
}

// RegisterID returns the owning register.
func (d *Docket) RegisterID() sorcha.RegisterID { return d.body.RegisterID }

// Version returns the docket version; 0 is genesis.
func (d *Docket) Version() uint64 { return d.body.Version }

// PrevDocketID returns the id of the predecessor docket.
func (d *Docket) PrevDocketID() sorcha.Bytes32 { return d.body.PrevDocketID }

// MerkleRoot returns the merkle root over the ordered tx ids.
func (d *Docket) MerkleRoot() sorcha.Bytes32 { return d.body.MerkleRoot }

// BuiltAt returns the build unix timestamp.
func (d *Docket) BuiltAt() uint64 { return d.body.BuiltAt }

// TxIDs returns the ordered included transaction ids.
func (d *Docket) TxIDs() []sorcha.Bytes32 {
	return append([]sorcha.Bytes32{}, d.body.TxIDs...)
}

// IsGenesis reports whether this is a version-0 docket.
func (d *Docket) IsGenesis() bool { return d.body.Version == sorcha.GenesisDocketVersion }

// Approvals returns the collected validator signatures.
func (d *Docket) Approvals() []Approval {
	return append([]Approval{}, d.body.Approvals...)
}

// CommittedAt returns the commit unix timestamp, 0 if uncommitted.
func (d *Docket) CommittedAt() uint64 { return d.body.CommittedAt }

// VerifyMerkleRoot recomputes the merkle root over the carried tx ids and
// compares it with the header.
func (d *Docket) VerifyMerkleRoot() bool {
	return cry.MerkleRoot(d.body.TxIDs) == d.body.MerkleRoot
}

// WithApprovals returns a copy carrying the approval set.
func (d *Docket) WithApprovals(approvals []Approval) *Docket {
	newDocket := Docket{body: d.body}
	newDocket.body.Approvals = append([]Approval{}, approvals...)
	return &newDocket
}

// WithCommitted returns a copy stamped with the commit time.
func (d *Docket) WithCommitted(ts uint64) *Docket {
	newDocket := Docket{body: d.body}
	newDocket.body.CommittedAt = ts
	return &newDocket
}

// EncodeRLP implements rlp.Encoder.
func (d *Docket) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &d.body)
}

// DecodeRLP implements rlp.Decoder.
func (d *Docket) DecodeRLP(s *rlp.Stream) error {
	var b body
	if err := s.Decode(&b); err != nil {
		return err
	}
	*d = Docket{body: b}
	return nil
}

// Dockets is a slice of dockets.
type Dockets []*Docket
