// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"github.com/sorchain/sorcha/sorcha"
)

// MerkleRoot computes the binary merkle root over the ordered leaves.
// Leaves pair left-to-right; an odd node at any level is paired with itself.
// Zero leaves yield the zero root, a single leaf is its own root.
func MerkleRoot(leaves []sorcha.Bytes32) sorcha.Bytes32 {
	if len(leaves) == 0 {
		return sorcha.Bytes32{}
	}

	level := make([]sorcha.Bytes32, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]sorcha.Bytes32, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, HashSum(left.Bytes(), right.Bytes()))
		}
		level = next
	}
	return level[0]
}
