// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/sha256"

	"github.com/sorchain/sorcha/sorcha"
)

// HashSum computes the SHA-256 hash over data.
func HashSum(data ...[]byte) sorcha.Bytes32 {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var b32 sorcha.Bytes32
	copy(b32[:], h.Sum(nil))
	return b32
}

// SigningMessage builds the ASCII bytes every transaction signature covers:
//
//	"{tx_id}:{payload_hash}"
//
// Both ids render in their canonical 0x-prefixed hex form. This contract is
// immutable; sign and verify sides must match byte for byte.
func SigningMessage(txID, payloadHash sorcha.Bytes32) []byte {
	return []byte(txID.String() + ":" + payloadHash.String())
}
