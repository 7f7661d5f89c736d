// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package register implements the register store: per-register append-only
// logs of transactions and dockets with an atomic height counter.
package register

import (
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/sorcha"
)

// Status is the register lifecycle status.
type Status uint8

const (
	StatusCreated Status = iota
	StatusOnline
	StatusSuspended
	StatusDeleted
)

// String implements stringer.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "Created"
	case StatusOnline:
		return "Online"
	case StatusSuspended:
		return "Suspended"
	case StatusDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Register is the register metadata held in the registry namespace.
type Register struct {
	ID        sorcha.RegisterID
	Name      string
	TenantID  string
	Status    Status
	IsPublic  bool
	CreatedAt uint64
}

// Validate checks metadata constraints.
func (r *Register) Validate() error {
	if r.ID.IsZero() {
		return errors.New("register: id required")
	}
	if r.Name == "" || len(r.Name) > sorcha.MaxRegisterNameLen {
		return errors.Errorf("register: name must be 1..%d chars", sorcha.MaxRegisterNameLen)
	}
	if r.TenantID == "" {
		return errors.New("register: tenant id required")
	}
	return nil
}
