// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package quorum

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

// OpKind names a roster mutation.
type OpKind uint8

const (
	OpAddAttestation OpKind = iota
	OpRevokeAttestation
	OpChangeRole
	OpTransferOwner
)

// String implements stringer.
func (k OpKind) String() string {
	switch k {
	case OpAddAttestation:
		return "add_attestation"
	case OpRevokeAttestation:
		return "revoke_attestation"
	case OpChangeRole:
		return "change_role"
	case OpTransferOwner:
		return "transfer_owner"
	default:
		return "unknown"
	}
}

// Mutation is one signed roster change request.
type Mutation struct {
	Kind    OpKind
	Subject string
	NewRole Role
	// Grant carries the new attestation for OpAddAttestation.
	Grant *Attestation `rlp:"nil"`
}

// MemberSignature is one voting member's approval of a mutation.
type MemberSignature struct {
	Subject   string
	Signature []byte
}

// SigningMessage returns the canonical bytes a member signs to approve
// the mutation against the record at its current sequence.
func (m *Mutation) SigningMessage(cr *ControlRecord) []byte {
	subject := ""
	if m.Grant != nil {
		subject = m.Grant.Subject
	}
	enc, err := rlp.EncodeToBytes([]any{
		cr.RegisterID,
		cr.Sequence,
		uint64(m.Kind),
		m.Subject,
		uint64(m.NewRole),
		subject,
	})
	if err != nil {
		panic(errors.Wrap(err, "encode mutation"))
	}
	digest := cry.HashSum(enc)
	return digest.Bytes()
}

// SignedMutation is the wire form of one roster change: the mutation plus
// the member signatures approving it. It travels as the payload of a
// genesis-blueprint transaction at sequence > 0.
type SignedMutation struct {
	Mutation   Mutation
	Signatures []MemberSignature
}

// Encode returns the canonical RLP encoding.
func (sm *SignedMutation) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(sm)
}

// DecodeMutation parses a canonical encoding.
func DecodeMutation(data []byte) (*SignedMutation, error) {
	var sm SignedMutation
	if err := rlp.DecodeBytes(data, &sm); err != nil {
		return nil, errors.Wrap(err, "decode signed mutation")
	}
	return &sm, nil
}

// Apply validates the mutation against the record and returns the
// mutated successor. hasTransactions guards owner removal: an owner is
// never removable while the register holds transactions.
func (cr *ControlRecord) Apply(m *Mutation, sigs []MemberSignature, hasTransactions bool) (*ControlRecord, error) {
	var exclusions []string
	required := 0

	switch m.Kind {
	case OpAddAttestation:
		if m.Grant == nil || m.Grant.Subject == "" {
			return nil, errors.New("quorum: add requires an attestation")
		}
		if _, ok := cr.Find(m.Grant.Subject); ok {
			return nil, ErrDuplicateSubject
		}
		if len(cr.Roster) >= sorcha.MaxAttestationsPerRegister {
			return nil, ErrAttestationCap
		}
		if m.Grant.Role == RoleOwner {
			return nil, errors.New("quorum: ownership is transferred, not granted")
		}
		required = cr.Threshold()

	case OpRevokeAttestation:
		target, ok := cr.Find(m.Subject)
		if !ok {
			return nil, ErrUnknownSubject
		}
		if target.Role == RoleOwner {
			if hasTransactions {
				return nil, ErrOwnerHasTransactions
			}
		}
		if target.Role.Voting() {
			exclusions = []string{m.Subject}
		}
		required = cr.Threshold(exclusions...)

	case OpChangeRole:
		target, ok := cr.Find(m.Subject)
		if !ok {
			return nil, ErrUnknownSubject
		}
		if m.NewRole == RoleOwner || target.Role == RoleOwner {
			return nil, errors.New("quorum: use transfer_owner to move ownership")
		}
		required = cr.Threshold()

	case OpTransferOwner:
		if _, ok := cr.Find(m.Subject); !ok {
			return nil, ErrUnknownSubject
		}
		owner, ok := cr.Owner()
		if !ok {
			return nil, errors.New("quorum: record has no owner")
		}
		if owner.Subject == m.Subject {
			return nil, errors.New("quorum: subject already owns the register")
		}
		// unanimous minus the incoming owner
		exclusions = []string{m.Subject}
		required = 0
		for _, a := range cr.VotingMembers() {
			if a.Subject != m.Subject {
				required++
			}
		}
		if required == 0 {
			return nil, ErrQuorumNotReached
		}

	default:
		return nil, errors.Errorf("quorum: unknown mutation kind %d", m.Kind)
	}

	valid, err := cr.countValidSignatures(m, sigs, exclusions)
	if err != nil {
		return nil, err
	}
	if valid < required {
		return nil, errors.WithMessagef(ErrQuorumNotReached,
			"%d of %d required signatures", valid, required)
	}
	return cr.mutate(m)
}

// countValidSignatures verifies each signature over the mutation digest
// under the member's attested public key. Only voting members count and
// each member counts once.
func (cr *ControlRecord) countValidSignatures(m *Mutation, sigs []MemberSignature, exclusions []string) (int, error) {
	excluded := make(map[string]struct{}, len(exclusions))
	for _, s := range exclusions {
		excluded[s] = struct{}{}
	}
	msg := m.SigningMessage(cr)

	counted := make(map[string]struct{}, len(sigs))
	valid := 0
	for _, sig := range sigs {
		if _, done := counted[sig.Subject]; done {
			continue
		}
		if _, out := excluded[sig.Subject]; out {
			continue
		}
		member, ok := cr.Find(sig.Subject)
		if !ok || !member.Role.Voting() {
			continue
		}
		ok, err := cry.Verify(cry.Algorithm(member.Algorithm), member.PublicKey, msg, sig.Signature)
		if err != nil {
			return 0, errors.WithMessagef(err, "signature of %q", sig.Subject)
		}
		if ok {
			counted[sig.Subject] = struct{}{}
			valid++
		}
	}
	return valid, nil
}

func (cr *ControlRecord) mutate(m *Mutation) (*ControlRecord, error) {
	next := cr.copy()
	next.Sequence++

	switch m.Kind {
	case OpAddAttestation:
		next.Roster = append(next.Roster, *m.Grant)

	case OpRevokeAttestation:
		for i := range next.Roster {
			if next.Roster[i].Subject == m.Subject {
				next.Roster = append(next.Roster[:i], next.Roster[i+1:]...)
				break
			}
		}

	case OpChangeRole:
		for i := range next.Roster {
			if next.Roster[i].Subject == m.Subject {
				next.Roster[i].Role = m.NewRole
				break
			}
		}

	case OpTransferOwner:
		for i := range next.Roster {
			switch {
			case next.Roster[i].Subject == m.Subject:
				next.Roster[i].Role = RoleOwner
			case next.Roster[i].Role == RoleOwner:
				next.Roster[i].Role = RoleAdmin
			}
		}
	}
	return next, nil
}
