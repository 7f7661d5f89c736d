// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

const syncAttemptTimeout = 2 * time.Minute

// syncOnce performs one sync attempt against the best current candidate.
// Failures rotate to the next candidate and count toward the error latch.
func (a *actor) syncOnce() {
	sub := a.sub
	if sub.State == sorcha.SyncError {
		return
	}

	peerID, ok := a.nextCandidate()
	if !ok {
		a.fail("no candidate peers advertise the register")
		return
	}

	ctx, cancel := context.WithTimeout(a.m.ctx, syncAttemptTimeout)
	defer cancel()

	if err := a.attempt(ctx, peerID); err != nil {
		logger.Warn("sync attempt failed",
			"register", sub.RegisterID, "peer", peerID, "failures", sub.ConsecutiveFailures+1, "err", err)
		a.fail(err.Error())
		return
	}
	a.succeed(peerID)
}

// nextCandidate picks the sync source. Full replicas ordered by latency come
// first; any advertising peer is acceptable as fallback. Rotation across
// attempts spreads retries over the candidate set.
func (a *actor) nextCandidate() (string, bool) {
	var ids []string
	for _, p := range a.m.store.FullReplicaPeers(a.sub.RegisterID) {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		for _, p := range a.m.store.PeersAdvertising(a.sub.RegisterID) {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		// no live advertisement; fall back to the last known sources
		ids = append(ids, a.sub.SourcePeerIDs...)
	}
	if len(ids) == 0 {
		return "", false
	}
	a.sub.SourcePeerIDs = ids
	return ids[a.candIdx%len(ids)], true
}

// attempt re-handshakes on every run, not just the first: the ack carries
// the source's current chain extent, so the sync target tracks a growing
// chain instead of latching onto the extent seen at subscribe time.
func (a *actor) attempt(ctx context.Context, peerID string) error {
	sub := a.sub

	ack, err := a.m.fetch.Subscribe(ctx, peerID, sub.RegisterID, sub.Mode)
	if err != nil {
		return errors.WithMessage(err, "subscribe handshake")
	}
	if !ack.Accepted {
		return errors.Errorf("peer %s rejected subscription", peerID)
	}
	if err := a.ensureLocalRegister(ack); err != nil {
		return err
	}
	// a lagging candidate may report a shorter chain; the extent never
	// shrinks so progress stays honest
	if ack.TotalDockets > sub.TotalDocketsInChain {
		sub.TotalDocketsInChain = ack.TotalDockets
	}

	if sub.Mode == sorcha.ModeForwardOnly {
		if sub.State == sorcha.SyncSubscribing {
			sub.State = sorcha.SyncActive
		}
		a.persist()
		return nil
	}
	if sub.State == sorcha.SyncSubscribing {
		sub.State = sorcha.SyncSyncing
	}
	a.persist()
	return a.catchUp(ctx, peerID)
}

// ensureLocalRegister creates the local register metadata from the handshake
// ack when this node sees the register for the first time.
func (a *actor) ensureLocalRegister(ack *proto.SubscribeAck) error {
	_, err := a.m.repo.Get(a.sub.RegisterID)
	if err == nil {
		return nil
	}
	if !a.m.repo.IsNotFound(err) {
		return err
	}
	return a.m.repo.Create(&register.Register{
		ID:        a.sub.RegisterID,
		Name:      ack.Name,
		TenantID:  ack.TenantID,
		Status:    register.StatusOnline,
		IsPublic:  true,
		CreatedAt: uint64(a.m.now().Unix()),
	})
}

// catchUp pulls missing dockets in concurrent batch windows and commits them
// strictly in chain order until the local height reaches the advertised
// extent.
func (a *actor) catchUp(ctx context.Context, peerID string) error {
	sub := a.sub
	for {
		height, err := a.m.repo.Height(sub.RegisterID)
		if err != nil {
			return err
		}
		if height >= sub.TotalDocketsInChain {
			sub.LastSyncedDocketVersion = height
			sub.State = sorcha.SyncFullyReplicated
			a.persist()
			return nil
		}

		batch := uint64(a.m.opts.BatchSize)
		windows := (sub.TotalDocketsInChain - height + batch - 1) / batch
		if windows > uint64(a.m.opts.MaxConcurrentPulls) {
			windows = uint64(a.m.opts.MaxConcurrentPulls)
		}

		results := make([]*proto.DocketData, windows)
		group, gctx := errgroup.WithContext(ctx)
		for i := uint64(0); i < windows; i++ {
			i := i
			from := height + i*batch
			group.Go(func() error {
				data, err := a.m.fetch.PullDockets(gctx, peerID, sub.RegisterID, from, a.m.opts.BatchSize)
				if err != nil {
					return errors.WithMessagef(err, "pull dockets from %d", from)
				}
				results[i] = data
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		next := height
	commit:
		for _, data := range results {
			for _, d := range data.Dockets {
				// a short batch leaves a hole; stop and re-window
				if d.Version() != next {
					break commit
				}
				txs, err := docketTxs(d, data.Txs)
				if err != nil {
					return err
				}
				if err := a.m.repo.AppendDocket(d, txs); err != nil {
					return errors.WithMessage(err, "append docket")
				}
				sub.LastSyncedTransactionVersion += uint64(len(txs))
				next++
			}
		}
		if next == height {
			return errors.Errorf("peer %s returned no usable dockets at %d", peerID, height)
		}
		sub.LastSyncedDocketVersion = next
		a.persist()
	}
}

// docketTxs assembles the docket's transactions, in docket order, from the
// batch payload.
func docketTxs(d *docket.Docket, pool tx.Transactions) (tx.Transactions, error) {
	ids := d.TxIDs()
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[sorcha.Bytes32]*tx.Transaction, len(pool))
	for _, trx := range pool {
		byID[trx.ID()] = trx
	}
	txs := make(tx.Transactions, 0, len(ids))
	for _, id := range ids {
		trx, ok := byID[id]
		if !ok {
			return nil, errors.Errorf("docket %d missing tx payload %v", d.Version(), id)
		}
		txs = append(txs, trx)
	}
	return txs, nil
}

func (a *actor) fail(msg string) {
	sub := a.sub
	sub.ConsecutiveFailures++
	sub.ErrorMessage = msg
	a.candIdx++
	if sub.ConsecutiveFailures >= maxConsecutiveFailures {
		sub.State = sorcha.SyncError
		logger.Error("subscription latched into error state, operator reset required",
			"register", sub.RegisterID, "failures", sub.ConsecutiveFailures)
	}
	a.persist()
	metricSyncAttempts().AddWithLabel(1, map[string]string{"outcome": "failure"})
}

func (a *actor) succeed(peerID string) {
	sub := a.sub
	sub.ConsecutiveFailures = 0
	sub.ErrorMessage = ""
	a.persist()

	now := a.m.now()
	cp := &Checkpoint{
		PeerID:         a.m.opts.NodeID,
		RegisterID:     sub.RegisterID,
		CurrentVersion: sub.LastSyncedDocketVersion,
		LastSyncTime:   uint64(now.Unix()),
		TotalItems:     sub.TotalDocketsInChain,
		SourcePeerID:   peerID,
		NextSyncDue:    uint64(now.Add(a.m.opts.SweepInterval).Unix()),
	}
	if err := saveCheckpoint(a.m.cpDB, cp); err != nil {
		logger.Warn("failed to persist checkpoint", "register", sub.RegisterID, "err", err)
	}
	metricSyncAttempts().AddWithLabel(1, map[string]string{"outcome": "success"})
}
