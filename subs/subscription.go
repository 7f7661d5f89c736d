// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package subs implements the subscription manager: per-register replication
// intents, their state machine and the sync engine driving catch-up.
package subs

import (
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/sorchain/sorcha/kv"
	"github.com/sorchain/sorcha/sorcha"
)

// latch threshold: this many consecutive failures freeze the subscription
// until an operator resets it
const maxConsecutiveFailures = 10

const (
	subsNS        = kv.Bucket("ps.s.")
	checkpointsNS = kv.Bucket("ps.c.")
)

// Subscription is the durable record of one register the node follows. At
// most one subscription exists per register.
type Subscription struct {
	ID         string
	RegisterID sorcha.RegisterID
	Mode       sorcha.SubscriptionMode
	State      sorcha.SyncState

	LastSyncedDocketVersion      uint64
	LastSyncedTransactionVersion uint64
	TotalDocketsInChain          uint64

	SourcePeerIDs       []string
	ConsecutiveFailures uint32
	ErrorMessage        string

	CreatedAt uint64
	UpdatedAt uint64
}

// CanParticipateInValidation reports whether this subscription counts toward
// validation quorum.
func (s *Subscription) CanParticipateInValidation() bool {
	return s.State.CanParticipateInValidation()
}

// IsReceiving reports whether live notifications are consumed.
func (s *Subscription) IsReceiving() bool {
	return s.State.IsReceiving()
}

// Progress returns the replication progress in percent. ForwardOnly is all
// or nothing; FullReplica tracks the synced share of the known chain, never
// exceeding 100.
func (s *Subscription) Progress() float64 {
	if s.Mode == sorcha.ModeForwardOnly {
		if s.State == sorcha.SyncActive {
			return 100
		}
		return 0
	}
	if s.TotalDocketsInChain == 0 {
		return 0
	}
	p := 100 * float64(s.LastSyncedDocketVersion) / float64(s.TotalDocketsInChain)
	if p > 100 {
		p = 100
	}
	return p
}

func (s *Subscription) copy() *Subscription {
	cpy := *s
	cpy.SourcePeerIDs = append([]string{}, s.SourcePeerIDs...)
	return &cpy
}

// Checkpoint is the durable cursor of one subscription's catch-up.
type Checkpoint struct {
	PeerID         string
	RegisterID     sorcha.RegisterID
	CurrentVersion uint64
	LastSyncTime   uint64
	TotalItems     uint64
	SourcePeerID   string
	NextSyncDue    uint64
}

// IsSyncDue reports whether the next periodic sync should run.
func (c *Checkpoint) IsSyncDue(now time.Time) bool {
	return uint64(now.Unix()) >= c.NextSyncDue
}

func decodeSubscription(data []byte, sub *Subscription) error {
	return rlp.DecodeBytes(data, sub)
}

func saveSubscription(w kv.Putter, sub *Subscription) error {
	enc, err := rlp.EncodeToBytes(sub)
	if err != nil {
		return err
	}
	return w.Put(sub.RegisterID.Bytes(), enc)
}

func saveCheckpoint(w kv.Putter, cp *Checkpoint) error {
	enc, err := rlp.EncodeToBytes(cp)
	if err != nil {
		return err
	}
	return w.Put(cp.RegisterID.Bytes(), enc)
}

func loadCheckpoint(r kv.Getter, id sorcha.RegisterID) (*Checkpoint, error) {
	data, err := r.Get(id.Bytes())
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := rlp.DecodeBytes(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
