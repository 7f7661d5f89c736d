// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sorcha

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// RegisterID identifies a register. Its canonical presentation is 32 lowercase
// hex chars without prefix.
type RegisterID [16]byte

var (
	_ json.Marshaler   = (*RegisterID)(nil)
	_ json.Unmarshaler = (*RegisterID)(nil)
)

// String implements stringer.
func (id RegisterID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns byte slice form of RegisterID.
func (id RegisterID) Bytes() []byte {
	return id[:]
}

// IsZero returns if RegisterID has all zero bytes.
func (id RegisterID) IsZero() bool {
	return id == RegisterID{}
}

// MarshalJSON implements json.Marshaler.
func (id *RegisterID) MarshalJSON() ([]byte, error) {
	if id == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RegisterID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRegisterID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseRegisterID converts the 32-char hex presentation into RegisterID.
func ParseRegisterID(s string) (RegisterID, error) {
	if len(s) != 16*2 {
		return RegisterID{}, errors.New("register id: invalid length")
	}
	var id RegisterID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return RegisterID{}, errors.Wrap(err, "register id")
	}
	return id, nil
}

// MustParseRegisterID converts string presentation to RegisterID, panic on error.
func MustParseRegisterID(s string) RegisterID {
	id, err := ParseRegisterID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewRegisterID generates a random register id.
func NewRegisterID() RegisterID {
	var id RegisterID
	rand.Read(id[:])
	return id
}
