// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package quorum governs register membership: the control record, its
// attestation roster and the strict-majority rules every roster mutation
// must satisfy.
package quorum

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/sorcha"
)

// Role is the capability an attestation grants over a register.
type Role uint8

const (
	RoleOwner Role = iota
	RoleAdmin
	RoleDesigner
	RoleAuditor
)

// String implements stringer.
func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleAdmin:
		return "Admin"
	case RoleDesigner:
		return "Designer"
	case RoleAuditor:
		return "Auditor"
	default:
		return "Unknown"
	}
}

// Voting reports whether the role counts toward quorum.
func (r Role) Voting() bool {
	return r == RoleOwner || r == RoleAdmin
}

var (
	// ErrQuorumNotReached is returned when too few valid member
	// signatures accompany a mutation.
	ErrQuorumNotReached = errors.New("quorum not reached")
	// ErrAttestationCap is returned when the roster would exceed the
	// hard cap.
	ErrAttestationCap = errors.New("attestation cap exceeded")
	// ErrOwnerHasTransactions rejects owner removal from a non-empty
	// register.
	ErrOwnerHasTransactions = errors.New("owner not removable while register has transactions")
	// ErrUnknownSubject is returned when the mutation target is not on
	// the roster.
	ErrUnknownSubject = errors.New("subject not on roster")
	// ErrDuplicateSubject rejects a second attestation for a subject.
	ErrDuplicateSubject = errors.New("subject already attested")
)

// Attestation is a signed grant of a role over a register to a subject.
type Attestation struct {
	Subject   string
	Wallet    sorcha.Address
	Role      Role
	PublicKey []byte
	Algorithm string
	GrantedAt uint64
}

// ControlRecord is the durable membership state of a register. It is the
// payload of the register's genesis transaction and every roster
// mutation bumps Sequence.
type ControlRecord struct {
	RegisterID sorcha.RegisterID
	Name       string
	TenantID   string
	Sequence   uint64
	Roster     []Attestation
}

// NewControlRecord creates the record with the creating owner as the
// sole attestation.
func NewControlRecord(registerID sorcha.RegisterID, name, tenantID string, owner Attestation) (*ControlRecord, error) {
	owner.Role = RoleOwner
	cr := &ControlRecord{
		RegisterID: registerID,
		Name:       name,
		TenantID:   tenantID,
		Roster:     []Attestation{owner},
	}
	if owner.Subject == "" {
		return nil, errors.New("quorum: owner subject required")
	}
	return cr, nil
}

// Encode returns the canonical RLP encoding, used as the genesis tx
// payload.
func (cr *ControlRecord) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(cr)
}

// Decode parses a canonical encoding.
func Decode(data []byte) (*ControlRecord, error) {
	var cr ControlRecord
	if err := rlp.DecodeBytes(data, &cr); err != nil {
		return nil, errors.Wrap(err, "decode control record")
	}
	return &cr, nil
}

// Find returns the attestation of a subject.
func (cr *ControlRecord) Find(subject string) (*Attestation, bool) {
	for i := range cr.Roster {
		if cr.Roster[i].Subject == subject {
			return &cr.Roster[i], true
		}
	}
	return nil, false
}

// Owner returns the owner attestation.
func (cr *ControlRecord) Owner() (*Attestation, bool) {
	for i := range cr.Roster {
		if cr.Roster[i].Role == RoleOwner {
			return &cr.Roster[i], true
		}
	}
	return nil, false
}

// VotingMembers returns the attestations that count toward quorum.
func (cr *ControlRecord) VotingMembers() []Attestation {
	var out []Attestation
	for _, a := range cr.Roster {
		if a.Role.Voting() {
			out = append(out, a)
		}
	}
	return out
}

// Threshold computes the strict-majority quorum for a mutation:
// floor((m-|exclusions|)/2)+1 over the voting members, where exclusions
// names the voting members barred from voting on this mutation.
func (cr *ControlRecord) Threshold(exclusions ...string) int {
	excluded := make(map[string]struct{}, len(exclusions))
	for _, s := range exclusions {
		excluded[s] = struct{}{}
	}
	m := 0
	for _, a := range cr.VotingMembers() {
		if _, ok := excluded[a.Subject]; ok {
			continue
		}
		m++
	}
	return m/2 + 1
}

// copy clones the record for mutation.
func (cr *ControlRecord) copy() *ControlRecord {
	cpy := *cr
	cpy.Roster = append([]Attestation{}, cr.Roster...)
	return &cpy
}
