// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sorcha

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Address is a wallet address. Addresses are opaque identifiers minted by the
// wallet service; the ledger only requires them to be non-empty and compares
// them byte-wise. Canonical ordering of a set of addresses is plain
// lexicographic order.
type Address string

// IsZero returns whether the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}

// String implements stringer.
func (a Address) String() string {
	return string(a)
}

// Bytes returns the byte form of the address.
func (a Address) Bytes() []byte {
	return []byte(a)
}

// ParseAddress validates the string presentation of a wallet address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", errors.New("address: empty")
	}
	if len(s) > MaxAddressLen {
		return "", errors.New("address: too long")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", errors.New("address: contains whitespace")
	}
	return Address(s), nil
}

// SortAddresses sorts addresses in canonical (lexicographic) order, in place.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
}
