// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package comm

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

var (
	metricGossipSent     = metrics.LazyLoadCounter("comm_gossip_sent_count")
	metricGossipReceived = metrics.LazyLoadCounterVec("comm_gossip_received_count", []string{"outcome"})
)

// markSeen records the tx id in the dedup cache, reporting whether it was
// newly marked. Entries expire after the configured TTL.
func (c *Communicator) markSeen(id sorcha.Bytes32) bool {
	now := time.Now()
	if val, ok := c.seen.Get(id.Bytes()); ok && len(val) == 8 {
		if expiry := int64(binary.BigEndian.Uint64(val)); now.Unix() < expiry {
			return false
		}
	}
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], uint64(now.Add(c.opts.TxCacheTTL).Unix()))
	c.seen.Set(id.Bytes(), val[:])
	return true
}

// GossipTransaction floods a locally verified transaction to the network:
// fanout peers per round, for the configured number of rounds. The payload
// travels inline when under the streaming threshold. A transaction already
// in the seen cache was gossiped before or arrived from the network, where
// the receive path forwards it; either way there is nothing left to send.
func (c *Communicator) GossipTransaction(trx *tx.Transaction) {
	if !c.markSeen(trx.ID()) {
		return
	}

	var inline []byte
	if trx.Size() < c.opts.StreamingThreshold {
		enc, err := rlp.EncodeToBytes(trx)
		if err != nil {
			logger.Warn("failed to encode tx for gossip", "id", trx.ID().AbbrevString(), "err", err)
			return
		}
		inline = enc
	}

	for round := 1; round <= c.opts.GossipRounds; round++ {
		notification := &proto.TxNotification{
			TxID:        trx.ID(),
			RegisterID:  trx.RegisterID(),
			Origin:      c.opts.PeerID,
			Timestamp:   uint64(time.Now().Unix()),
			DataHash:    trx.PayloadHash(),
			DataSize:    uint32(trx.Size()),
			GossipRound: uint32(round),
			TTL:         uint32(c.opts.GossipRounds),
			Inline:      inline,
		}
		for _, peerID := range c.gossipTargets(trx.RegisterID(), c.opts.PeerID) {
			session := c.srv.Session(peerID)
			if session == nil {
				continue
			}
			if err := notification.Send(c.ctx, session); err != nil {
				logger.Debug("gossip send failed", "peer", peerID, "err", err)
				continue
			}
			metricGossipSent().Add(1)
		}
	}
}

// gossipTargets picks up to fanout connected peers for a register,
// preferring its subscribers.
func (c *Communicator) gossipTargets(registerID sorcha.RegisterID, exclude ...string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	targets := make([]string, 0, c.opts.FanoutFactor)
	pick := func(peerID string) bool {
		if _, ok := excluded[peerID]; ok {
			return false
		}
		excluded[peerID] = struct{}{}
		targets = append(targets, peerID)
		return len(targets) >= c.opts.FanoutFactor
	}

	for _, peerID := range c.subscribersOf(registerID) {
		if pick(peerID) {
			return targets
		}
	}
	for _, p := range c.store.Random(c.opts.FanoutFactor + len(exclude)) {
		if pick(p.ID) {
			return targets
		}
	}
	return targets
}

// handleTxNotification is the gossip receive path: dedup, resolve the
// payload, submit locally and forward.
func (c *Communicator) handleTxNotification(senderID string, sender proto.Caller, n *proto.TxNotification) error {
	if n.HopCount >= n.TTL {
		metricGossipReceived().AddWithLabel(1, map[string]string{"outcome": "expired"})
		return nil
	}
	if !c.markSeen(n.TxID) {
		metricGossipReceived().AddWithLabel(1, map[string]string{"outcome": "duplicate"})
		return nil
	}
	if has, err := c.repo.HasTransaction(n.RegisterID, n.TxID); err == nil && has {
		metricGossipReceived().AddWithLabel(1, map[string]string{"outcome": "committed"})
		return nil
	}

	trx, err := c.resolveNotified(sender, n)
	if err != nil {
		logger.Debug("failed to resolve notified tx", "id", n.TxID.AbbrevString(), "err", err)
		metricGossipReceived().AddWithLabel(1, map[string]string{"outcome": "unresolved"})
		return nil
	}

	if err := c.submit(trx, n.Origin); err != nil {
		logger.Debug("notified tx not admitted", "id", n.TxID.AbbrevString(), "err", err)
		metricGossipReceived().AddWithLabel(1, map[string]string{"outcome": "rejected"})
	} else {
		metricGossipReceived().AddWithLabel(1, map[string]string{"outcome": "admitted"})
	}

	// forward with an incremented hop count, away from sender and origin
	forward := *n
	forward.HopCount++
	if forward.HopCount >= forward.TTL {
		return nil
	}
	for _, peerID := range c.gossipTargets(n.RegisterID, senderID, n.Origin, c.opts.PeerID) {
		session := c.srv.Session(peerID)
		if session == nil {
			continue
		}
		if err := forward.Send(c.ctx, session); err != nil {
			logger.Debug("gossip forward failed", "peer", peerID, "err", err)
		}
	}
	return nil
}

// resolveNotified returns the transaction carried by a notification, pulling
// it from the sender when only the teaser arrived.
func (c *Communicator) resolveNotified(sender proto.Caller, n *proto.TxNotification) (*tx.Transaction, error) {
	if len(n.Inline) > 0 {
		var trx tx.Transaction
		if err := rlp.DecodeBytes(n.Inline, &trx); err != nil {
			return nil, errors.WithMessage(err, "decode inline tx")
		}
		if trx.ID() != n.TxID {
			return nil, errors.New("inline tx id mismatch")
		}
		return &trx, nil
	}

	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()
	resp, err := (&proto.TxRequest{RegisterID: n.RegisterID, TxIDs: []sorcha.Bytes32{n.TxID}}).Do(ctx, sender)
	if err != nil {
		return nil, err
	}
	for _, trx := range resp.Txs {
		if trx.ID() == n.TxID {
			return trx, nil
		}
	}
	return nil, errors.New("sender did not return the tx")
}
