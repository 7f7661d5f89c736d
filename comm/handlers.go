// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package comm

import (
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/p2psrv"
	"github.com/sorchain/sorcha/p2psrv/rpc"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/tx"
)

func (c *Communicator) registerHandlers() {
	c.srv.HandleFunc(proto.MsgPeerExchange, c.servePeerExchange)
	c.srv.HandleFunc(proto.MsgRegisterAdvertise, c.serveAdvertise)
	c.srv.HandleFunc(proto.MsgTransactionNotify, c.serveTxNotification)
	c.srv.HandleFunc(proto.MsgTransactionPull, c.serveTxPull)
	c.srv.HandleFunc(proto.MsgDocketPull, c.serveDocketPull)
	c.srv.HandleFunc(proto.MsgSubscribe, c.serveSubscribe)
}

// servePeerExchange answers with healthy peers the requester does not know
// yet.
func (c *Communicator) servePeerExchange(session *p2psrv.Session, msg *rpc.Msg, write func(any)) error {
	var req proto.PeerExchangeRequest
	if err := msg.Decode(&req); err != nil {
		return errors.WithMessage(err, "decode peer exchange")
	}
	known := make(map[string]struct{}, len(req.Known))
	for _, id := range req.Known {
		known[id] = struct{}{}
	}

	var resp proto.PeerExchangeResponse
	for _, p := range c.store.Healthy() {
		if _, ok := known[p.ID]; ok {
			continue
		}
		if p.ID == session.PeerID() {
			continue
		}
		resp.Peers = append(resp.Peers, proto.PeerInfo{
			ID:         p.ID,
			Address:    p.Address,
			Port:       p.Port,
			Transports: p.Transports,
		})
		if len(resp.Peers) >= exchangeReplyCap {
			break
		}
	}
	c.store.UpdateLastSeen(session.PeerID())
	write(&resp)
	return nil
}

// serveAdvertise records the peer's advertised register set.
func (c *Communicator) serveAdvertise(session *p2psrv.Session, msg *rpc.Msg, _ func(any)) error {
	var ad proto.Advertisement
	if err := msg.Decode(&ad); err != nil {
		return errors.WithMessage(err, "decode advertisement")
	}
	if ad.Origin != session.PeerID() {
		// advertisements only describe the sending peer itself
		return nil
	}
	regs := make([]peerstore.AdvertisedRegister, 0, len(ad.Registers))
	for _, r := range ad.Registers {
		regs = append(regs, peerstore.AdvertisedRegister{
			RegisterID:               r.RegisterID,
			SyncState:                r.SyncState,
			LatestDocketVersion:      r.LatestDocketVersion,
			LatestTransactionVersion: r.LatestTransactionVersion,
			IsPublic:                 r.IsPublic,
		})
	}
	if c.store.Get(session.PeerID()) == nil {
		c.store.AddOrUpdate(&peerstore.Peer{ID: session.PeerID()})
	}
	c.store.SetAdvertisedRegisters(session.PeerID(), regs)
	return nil
}

func (c *Communicator) serveTxNotification(session *p2psrv.Session, msg *rpc.Msg, _ func(any)) error {
	var n proto.TxNotification
	if err := msg.Decode(&n); err != nil {
		return errors.WithMessage(err, "decode tx notification")
	}
	return c.handleTxNotification(session.PeerID(), session, &n)
}

// serveTxPull answers with committed transactions; unknown ids are omitted.
func (c *Communicator) serveTxPull(_ *p2psrv.Session, msg *rpc.Msg, write func(any)) error {
	var req proto.TxRequest
	if err := msg.Decode(&req); err != nil {
		return errors.WithMessage(err, "decode tx request")
	}
	var resp proto.TxData
	for _, id := range req.TxIDs {
		trx, err := c.repo.GetTransaction(req.RegisterID, id)
		if err != nil {
			continue
		}
		resp.Txs = append(resp.Txs, trx)
	}
	write(&resp)
	return nil
}

// serveDocketPull answers with a batch of dockets and all their
// transactions.
func (c *Communicator) serveDocketPull(_ *p2psrv.Session, msg *rpc.Msg, write func(any)) error {
	var req proto.DocketRequest
	if err := msg.Decode(&req); err != nil {
		return errors.WithMessage(err, "decode docket request")
	}

	height, err := c.repo.Height(req.RegisterID)
	if err != nil {
		write(&proto.DocketData{})
		return nil
	}

	var (
		dockets docket.Dockets
		txs     tx.Transactions
	)
	for version := req.FromVersion; version < height && uint32(len(dockets)) < req.Limit; version++ {
		d, err := c.repo.GetDocketByVersion(req.RegisterID, version)
		if err != nil {
			break
		}
		dockets = append(dockets, d)
		for _, txID := range d.TxIDs() {
			trx, err := c.repo.GetTransaction(req.RegisterID, txID)
			if err != nil {
				return errors.WithMessage(err, "load docket tx")
			}
			txs = append(txs, trx)
		}
	}
	write(&proto.DocketData{Dockets: dockets, Txs: txs})
	return nil
}

// serveSubscribe acknowledges a subscription handshake with the register's
// chain extent and records the subscriber for gossip preference.
func (c *Communicator) serveSubscribe(session *p2psrv.Session, msg *rpc.Msg, write func(any)) error {
	var req proto.SubscribeRequest
	if err := msg.Decode(&req); err != nil {
		return errors.WithMessage(err, "decode subscribe request")
	}

	meta, err := c.repo.Get(req.RegisterID)
	if err != nil {
		write(&proto.SubscribeAck{Accepted: false})
		return nil
	}
	height, err := c.repo.Height(req.RegisterID)
	if err != nil {
		write(&proto.SubscribeAck{Accepted: false})
		return nil
	}

	c.addSubscriber(req.RegisterID, session.PeerID())
	write(&proto.SubscribeAck{
		Accepted:     true,
		Name:         meta.Name,
		TenantID:     meta.TenantID,
		TotalDockets: height,
	})
	return nil
}
