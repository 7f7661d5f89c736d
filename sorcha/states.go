// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sorcha

// SyncState is the replication state of a subscription, and of a register as
// advertised by a remote peer.
type SyncState uint8

const (
	SyncSubscribing SyncState = iota
	SyncSyncing
	SyncFullyReplicated
	SyncActive
	SyncError
)

// String implements stringer.
func (s SyncState) String() string {
	switch s {
	case SyncSubscribing:
		return "Subscribing"
	case SyncSyncing:
		return "Syncing"
	case SyncFullyReplicated:
		return "FullyReplicated"
	case SyncActive:
		return "Active"
	case SyncError:
		return "Error"
	default:
		return "Unknown"
	}
}

// CanParticipateInValidation reports whether a subscription in this state
// counts toward validation quorum.
func (s SyncState) CanParticipateInValidation() bool {
	return s == SyncFullyReplicated
}

// IsReceiving reports whether live notifications are consumed in this state.
func (s SyncState) IsReceiving() bool {
	return s == SyncActive || s == SyncFullyReplicated
}

// SubscriptionMode selects how much of a register a subscription follows.
type SubscriptionMode uint8

const (
	// ModeForwardOnly receives live transactions without history.
	ModeForwardOnly SubscriptionMode = iota
	// ModeFullReplica pulls the full docket chain before going live.
	ModeFullReplica
)

// String implements stringer.
func (m SubscriptionMode) String() string {
	switch m {
	case ModeForwardOnly:
		return "ForwardOnly"
	case ModeFullReplica:
		return "FullReplica"
	default:
		return "Unknown"
	}
}

// PeerStatus is the connection status of a peer session, or of the node as a
// whole when no peer is connected.
type PeerStatus uint8

const (
	PeerDisconnected PeerStatus = iota
	PeerConnecting
	PeerConnected
	PeerHeartbeatTimeout
	PeerIsolated
)

// String implements stringer.
func (s PeerStatus) String() string {
	switch s {
	case PeerDisconnected:
		return "Disconnected"
	case PeerConnecting:
		return "Connecting"
	case PeerConnected:
		return "Connected"
	case PeerHeartbeatTimeout:
		return "HeartbeatTimeout"
	case PeerIsolated:
		return "Isolated"
	default:
		return "Unknown"
	}
}
