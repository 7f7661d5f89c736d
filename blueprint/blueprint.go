// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package blueprint models published workflow definitions and the cache
// the validator reads them through. Blueprints are produced elsewhere;
// this package only consumes them.
package blueprint

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/sorcha"
)

// Blueprint is an immutable workflow definition: typed actions, routes
// between them and the participant roles allowed to send each action.
type Blueprint struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Version      uint32        `json:"version"`
	Participants []Participant `json:"participants"`
	Actions      []Action      `json:"actions"`
}

// Participant is a role within the workflow, resolved to a wallet at
// runtime.
type Participant struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	WalletAddress sorcha.Address `json:"walletAddress"`
}

// DataField declares one field of an action's disclosure schema.
type DataField struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Action is one step of the workflow. Routes are expressed as the ids of
// the actions reachable next; routes may form cycles.
type Action struct {
	ID            uint32      `json:"id"`
	Title         string      `json:"title"`
	SenderID      string      `json:"senderId"`
	RecipientIDs  []string    `json:"recipientIds"`
	DataSchema    []DataField `json:"dataSchema"`
	NextActionIDs []uint32    `json:"nextActionIds"`
}

// field types accepted by the schema checker
const (
	FieldString  = "string"
	FieldNumber  = "number"
	FieldBoolean = "boolean"
	FieldObject  = "object"
	FieldArray   = "array"
)

// StartActionID is the entry action of every blueprint.
const StartActionID uint32 = 0

// Action returns the action with the given id.
func (bp *Blueprint) Action(id uint32) (*Action, bool) {
	for i := range bp.Actions {
		if bp.Actions[i].ID == id {
			return &bp.Actions[i], true
		}
	}
	return nil, false
}

// Participant returns the participant with the given id.
func (bp *Blueprint) Participant(id string) (*Participant, bool) {
	for i := range bp.Participants {
		if bp.Participants[i].ID == id {
			return &bp.Participants[i], true
		}
	}
	return nil, false
}

// ParticipantForWallet resolves the participant linked to a wallet.
func (bp *Blueprint) ParticipantForWallet(wallet sorcha.Address) (*Participant, bool) {
	for i := range bp.Participants {
		if bp.Participants[i].WalletAddress == wallet {
			return &bp.Participants[i], true
		}
	}
	return nil, false
}

// Validate checks structural consistency: ids unique, routes and senders
// resolvable, the start action present.
func (bp *Blueprint) Validate() error {
	if bp.ID == "" {
		return errors.New("blueprint: id required")
	}
	if len(bp.Actions) == 0 {
		return errors.New("blueprint: at least one action required")
	}

	participants := make(map[string]struct{}, len(bp.Participants))
	for _, p := range bp.Participants {
		if p.ID == "" {
			return errors.New("blueprint: participant id required")
		}
		if _, dup := participants[p.ID]; dup {
			return errors.Errorf("blueprint: duplicate participant %q", p.ID)
		}
		participants[p.ID] = struct{}{}
	}

	actions := make(map[uint32]struct{}, len(bp.Actions))
	for _, a := range bp.Actions {
		if _, dup := actions[a.ID]; dup {
			return errors.Errorf("blueprint: duplicate action %d", a.ID)
		}
		actions[a.ID] = struct{}{}
	}
	if _, ok := actions[StartActionID]; !ok {
		return errors.Errorf("blueprint: start action %d missing", StartActionID)
	}

	for _, a := range bp.Actions {
		if _, ok := participants[a.SenderID]; !ok {
			return errors.Errorf("blueprint: action %d sender %q unknown", a.ID, a.SenderID)
		}
		for _, rid := range a.RecipientIDs {
			if _, ok := participants[rid]; !ok {
				return errors.Errorf("blueprint: action %d recipient %q unknown", a.ID, rid)
			}
		}
		for _, next := range a.NextActionIDs {
			if _, ok := actions[next]; !ok {
				return errors.Errorf("blueprint: action %d routes to unknown action %d", a.ID, next)
			}
		}
	}
	return nil
}

// HasCycles reports whether the action routes form a cycle. Cycles are
// legal (ping-pong workflows loop) but worth a warning at publish time.
func (bp *Blueprint) HasCycles() bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[uint32]int, len(bp.Actions))

	var visit func(id uint32) bool
	visit = func(id uint32) bool {
		color[id] = grey
		if a, ok := bp.Action(id); ok {
			for _, next := range a.NextActionIDs {
				switch color[next] {
				case grey:
					return true
				case white:
					if visit(next) {
						return true
					}
				}
			}
		}
		color[id] = black
		return false
	}

	for _, a := range bp.Actions {
		if color[a.ID] == white && visit(a.ID) {
			return true
		}
	}
	return false
}

// ValidateDisclosure checks the sender disclosure payload against the
// action's declared schema. The payload is a JSON object keyed by field id.
func (a *Action) ValidateDisclosure(payload []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return errors.WithMessage(err, "disclosure is not a json object")
	}

	for _, f := range a.DataSchema {
		raw, ok := doc[f.ID]
		if !ok {
			if f.Required {
				return errors.Errorf("required field %q missing", f.ID)
			}
			continue
		}
		if err := checkFieldType(f, raw); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldType(f DataField, raw json.RawMessage) error {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return errors.WithMessagef(err, "field %q", f.ID)
	}
	if probe == nil {
		if f.Required {
			return errors.Errorf("required field %q is null", f.ID)
		}
		return nil
	}

	ok := false
	switch f.Type {
	case FieldString:
		_, ok = probe.(string)
	case FieldNumber:
		_, ok = probe.(float64)
	case FieldBoolean:
		_, ok = probe.(bool)
	case FieldObject:
		_, ok = probe.(map[string]any)
	case FieldArray:
		_, ok = probe.([]any)
	default:
		// unknown declared type never rejects data
		ok = true
	}
	if !ok {
		return errors.Errorf("field %q is not a %s", f.ID, f.Type)
	}
	return nil
}

// RoutesTo reports whether next is reachable in one step from the
// action.
func (a *Action) RoutesTo(next uint32) bool {
	for _, id := range a.NextActionIDs {
		if id == next {
			return true
		}
	}
	return false
}
