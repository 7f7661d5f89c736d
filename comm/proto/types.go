// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package proto

import (
	"context"

	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

// Caller abstracts one peer session.
type Caller interface {
	Call(ctx context.Context, msgCode uint64, arg any, result any) error
	Notify(ctx context.Context, msgCode uint64, arg any) error
}

// PeerInfo is the exchangeable description of a peer.
type PeerInfo struct {
	ID         string
	Address    string
	Port       uint16
	Transports []string
}

// PeerExchangeRequest carries the requester's known peer ids as a digest, so
// the responder can answer with only the difference.
type PeerExchangeRequest struct {
	Known []string
}

// Do makes the request to the peer.
func (req *PeerExchangeRequest) Do(ctx context.Context, c Caller) (*PeerExchangeResponse, error) {
	var resp PeerExchangeResponse
	if err := c.Call(ctx, MsgPeerExchange, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PeerExchangeResponse is the answering peer set.
type PeerExchangeResponse struct {
	Peers []PeerInfo
}

// RegisterAd advertises one locally held register.
type RegisterAd struct {
	RegisterID               sorcha.RegisterID
	SyncState                sorcha.SyncState
	LatestDocketVersion      uint64
	LatestTransactionVersion uint64
	IsPublic                 bool
}

// Advertisement is the broadcast set of public registers a node holds.
type Advertisement struct {
	Origin    string
	Registers []RegisterAd
}

// Send notifies the peer.
func (ad *Advertisement) Send(ctx context.Context, c Caller) error {
	return c.Notify(ctx, MsgRegisterAdvertise, ad)
}

// TxNotification is the gossip teaser for one verified transaction. Inline
// carries the RLP-encoded transaction when it is under the streaming
// threshold; otherwise receivers pull by id.
type TxNotification struct {
	TxID        sorcha.Bytes32
	RegisterID  sorcha.RegisterID
	Origin      string
	Timestamp   uint64
	DataHash    sorcha.Bytes32
	DataSize    uint32
	GossipRound uint32
	HopCount    uint32
	TTL         uint32
	Inline      []byte
}

// Send notifies the peer.
func (n *TxNotification) Send(ctx context.Context, c Caller) error {
	return c.Notify(ctx, MsgTransactionNotify, n)
}

// TxRequest pulls transactions by id.
type TxRequest struct {
	RegisterID sorcha.RegisterID
	TxIDs      []sorcha.Bytes32
}

// Do makes the request to the peer.
func (req *TxRequest) Do(ctx context.Context, c Caller) (*TxData, error) {
	var resp TxData
	if err := c.Call(ctx, MsgTransactionPull, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TxData answers a TxRequest. Unknown ids are silently omitted.
type TxData struct {
	Txs tx.Transactions
}

// DocketRequest pulls a batch of committed dockets starting at FromVersion.
type DocketRequest struct {
	RegisterID  sorcha.RegisterID
	FromVersion uint64
	Limit       uint32
}

// Do makes the request to the peer.
func (req *DocketRequest) Do(ctx context.Context, c Caller) (*DocketData, error) {
	var resp DocketData
	if err := c.Call(ctx, MsgDocketPull, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DocketData answers a DocketRequest with the dockets and every transaction
// they include.
type DocketData struct {
	Dockets docket.Dockets
	Txs     tx.Transactions
}

// SubscribeRequest opens a subscription handshake on a register.
type SubscribeRequest struct {
	RegisterID sorcha.RegisterID
	Mode       uint8
	PeerID     string
}

// Do makes the request to the peer.
func (req *SubscribeRequest) Do(ctx context.Context, c Caller) (*SubscribeAck, error) {
	var resp SubscribeAck
	if err := c.Call(ctx, MsgSubscribe, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubscribeAck acknowledges a subscription and carries the register's chain
// extent for progress reporting.
type SubscribeAck struct {
	Accepted     bool
	Name         string
	TenantID     string
	TotalDockets uint64
}
