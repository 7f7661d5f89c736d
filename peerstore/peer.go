// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package peerstore implements the bounded, health-aware set of known peers.
package peerstore

import (
	"time"

	"github.com/sorchain/sorcha/sorcha"
)

// AdvertisedRegister is one register a peer claims to hold.
type AdvertisedRegister struct {
	RegisterID               sorcha.RegisterID
	SyncState                sorcha.SyncState
	LatestDocketVersion      uint64
	LatestTransactionVersion uint64
	IsPublic                 bool
}

// Peer is one known remote node. Latency is kept in integer milliseconds as a
// moving average.
type Peer struct {
	ID                  string
	Address             string
	Port                uint16
	Transports          []string
	AdvertisedRegisters []AdvertisedRegister

	FirstSeen    uint64
	LastSeen     uint64
	FailureCount uint32
	AvgLatencyMS uint64
	IsSeed       bool
}

// Advertises reports whether the peer advertises the register, returning the
// advertisement when it does.
func (p *Peer) Advertises(id sorcha.RegisterID) (AdvertisedRegister, bool) {
	for _, ar := range p.AdvertisedRegisters {
		if ar.RegisterID == id {
			return ar, true
		}
	}
	return AdvertisedRegister{}, false
}

// IsHealthy reports whether the peer was seen within the freshness window and
// remains under the failure threshold.
func (p *Peer) IsHealthy(now time.Time, freshness time.Duration) bool {
	if p.FailureCount >= failureThreshold {
		return false
	}
	seen := time.Unix(int64(p.LastSeen), 0)
	return now.Sub(seen) <= freshness
}

func (p *Peer) copy() *Peer {
	cpy := *p
	cpy.Transports = append([]string{}, p.Transports...)
	cpy.AdvertisedRegisters = append([]AdvertisedRegister{}, p.AdvertisedRegisters...)
	return &cpy
}

// ActivePeerInfo tracks this node's own connectivity, initialised on the
// first local status update.
type ActivePeerInfo struct {
	Status        sorcha.PeerStatus
	ConnectedHub  string
	LastHeartbeat time.Time
	StartedAt     time.Time
}
