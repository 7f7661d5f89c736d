// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node exposes the node's own status: connectivity, known peers and
// subscription progress.
package node

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sorchain/sorcha/api/restutil"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/subs"
)

type Node struct {
	nodeID string
	store  *peerstore.Store
	subs   *subs.Manager
}

func New(nodeID string, store *peerstore.Store, subsMgr *subs.Manager) *Node {
	return &Node{
		nodeID: nodeID,
		store:  store,
		subs:   subsMgr,
	}
}

// Status is the wire form of the node's own state.
type Status struct {
	NodeID        string              `json:"node_id"`
	Status        string              `json:"status"`
	ConnectedHub  string              `json:"connected_hub,omitempty"`
	PeerCount     int                 `json:"peer_count"`
	Subscriptions []*SubscriptionInfo `json:"subscriptions"`
}

// PeerInfo is the wire form of one known peer.
type PeerInfo struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	Port         uint16 `json:"port"`
	LastSeen     uint64 `json:"last_seen"`
	FailureCount uint32 `json:"failure_count"`
	AvgLatencyMS uint64 `json:"avg_latency_ms"`
	IsSeed       bool   `json:"is_seed"`
	Advertises   int    `json:"advertised_registers"`
}

// SubscriptionInfo is the wire form of one subscription.
type SubscriptionInfo struct {
	RegisterID              string  `json:"register_id"`
	Mode                    string  `json:"mode"`
	State                   string  `json:"state"`
	Progress                float64 `json:"progress"`
	LastSyncedDocketVersion uint64  `json:"last_synced_docket_version"`
	TotalDocketsInChain     uint64  `json:"total_dockets_in_chain"`
	ConsecutiveFailures     uint32  `json:"consecutive_failures"`
	ErrorMessage            string  `json:"error_message,omitempty"`
}

func (n *Node) handleStatus(w http.ResponseWriter, req *http.Request) error {
	status := &Status{
		NodeID:        n.nodeID,
		Status:        sorcha.PeerIsolated.String(),
		PeerCount:     n.store.Len(),
		Subscriptions: []*SubscriptionInfo{},
	}
	if info := n.store.LocalInfo(); info != nil {
		status.Status = info.Status.String()
		status.ConnectedHub = info.ConnectedHub
	}
	for _, sub := range n.subs.All() {
		status.Subscriptions = append(status.Subscriptions, &SubscriptionInfo{
			RegisterID:              sub.RegisterID.String(),
			Mode:                    sub.Mode.String(),
			State:                   sub.State.String(),
			Progress:                sub.Progress(),
			LastSyncedDocketVersion: sub.LastSyncedDocketVersion,
			TotalDocketsInChain:     sub.TotalDocketsInChain,
			ConsecutiveFailures:     sub.ConsecutiveFailures,
			ErrorMessage:            sub.ErrorMessage,
		})
	}
	return restutil.WriteJSON(w, status)
}

func (n *Node) handlePeers(w http.ResponseWriter, req *http.Request) error {
	peers := n.store.All()
	out := make([]*PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, &PeerInfo{
			ID:           p.ID,
			Address:      p.Address,
			Port:         p.Port,
			LastSeen:     p.LastSeen,
			FailureCount: p.FailureCount,
			AvgLatencyMS: p.AvgLatencyMS,
			IsSeed:       p.IsSeed,
			Advertises:   len(p.AdvertisedRegisters),
		})
	}
	return restutil.WriteJSON(w, out)
}

func (n *Node) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/status").
		Methods(http.MethodGet).
		Name("node_get_status").
		HandlerFunc(restutil.WrapHandlerFunc(n.handleStatus))
	sub.Path("/peers").
		Methods(http.MethodGet).
		Name("node_get_peers").
		HandlerFunc(restutil.WrapHandlerFunc(n.handlePeers))
}
