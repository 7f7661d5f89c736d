// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"sort"
	"time"
)

// Verified is a transaction that passed the full validation pipeline,
// annotated with the verification outcome.
type Verified struct {
	*Transaction

	VerifiedAt          time.Time
	BlueprintSnapshotID string
}

// VerifiedList is an ordered batch of verified transactions.
type VerifiedList []*Verified

// SortByVerification orders by verification completion time, ties broken by
// lexicographic tx id. This ordering becomes part of the docket commit and is
// fixed forever.
func (vs VerifiedList) SortByVerification() {
	sort.SliceStable(vs, func(i, j int) bool { return less(vs[i], vs[j]) })
}

func less(a, b *Verified) bool {
	if !a.VerifiedAt.Equal(b.VerifiedAt) {
		return a.VerifiedAt.Before(b.VerifiedAt)
	}
	aID, bID := a.ID(), b.ID()
	for i := range aID {
		if aID[i] != bID[i] {
			return aID[i] < bID[i]
		}
	}
	return false
}
