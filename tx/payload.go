// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

// Payload is one per-recipient opaque ciphertext container. The register
// never inspects Data; disclosure is handled at the blueprint layer.
type Payload struct {
	Recipient sorcha.Address
	Data      []byte
}

// Payloads is the canonical payload set of a transaction: sorted by recipient
// address, recipients unique.
type Payloads []Payload

// Canonicalize sorts the set and rejects duplicate recipients.
func (ps Payloads) Canonicalize() (Payloads, error) {
	sorted := make(Payloads, len(ps))
	copy(sorted, ps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Recipient < sorted[j].Recipient })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Recipient == sorted[i-1].Recipient {
			return nil, errors.Errorf("duplicate payload recipient %q", sorted[i].Recipient)
		}
	}
	return sorted, nil
}

// Get returns the payload for the recipient, or nil.
func (ps Payloads) Get(recipient sorcha.Address) []byte {
	for _, p := range ps {
		if p.Recipient == recipient {
			return p.Data
		}
	}
	return nil
}

// First returns the first payload entry under canonical ordering, or nil for
// an empty set.
func (ps Payloads) First() *Payload {
	if len(ps) == 0 {
		return nil
	}
	return &ps[0]
}

// Hash computes the payload hash: SHA-256 over the canonical payload bytes,
// which are the RLP encoding of the sorted set.
func (ps Payloads) Hash() sorcha.Bytes32 {
	enc, err := rlp.EncodeToBytes(ps)
	if err != nil {
		// Payloads contain only strings and byte slices, rlp cannot fail.
		panic(errors.Wrap(err, "encode payloads"))
	}
	return cry.HashSum(enc)
}
