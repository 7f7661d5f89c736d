// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package node composes the full node: storage, peer networking,
// replication, validation, docket building and the http surface.
package node

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/beevik/ntp"
	"github.com/ethereum/go-ethereum/p2p/nat"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/api"
	"github.com/sorchain/sorcha/blueprint"
	"github.com/sorchain/sorcha/co"
	"github.com/sorchain/sorcha/comm"
	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/consensus"
	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/eventdb"
	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/lvldb"
	"github.com/sorchain/sorcha/netprobe"
	"github.com/sorchain/sorcha/p2psrv"
	"github.com/sorchain/sorcha/packer"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/quorum"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/subs"
	"github.com/sorchain/sorcha/tx"
	"github.com/sorchain/sorcha/validator"
)

var logger = log.WithContext("pkg", "node")

const (
	clockSyncInterval = 10 * time.Minute
	maxClockOffset    = 2 * time.Second
	ntpServer         = "pool.ntp.org"
)

// Options carries the node-local settings that do not belong in the
// shared config file.
type Options struct {
	NodeID  string
	DataDir string // empty runs fully in memory

	P2PListenAddr  string
	APIAddr        string // empty disables the http surface
	AllowedOrigins string
	EnableMetrics  bool

	Seeds []comm.Seed

	// Blueprints resolves published blueprints on cache miss; nil means
	// only explicitly published blueprints validate.
	Blueprints blueprint.Resolver

	// ValidatorID and ValidatorKey identify this node's docket approver.
	// An empty key is generated at startup.
	ValidatorID  string
	ValidatorKey []byte
}

// Node is the assembled process.
type Node struct {
	cfg  sorcha.Config
	opts Options

	db      *lvldb.LevelDB
	queue   *eventdb.Queue
	feed    *events.Feed
	repo    *register.Repository
	store   *peerstore.Store
	probe   *netprobe.Probe
	srv     *p2psrv.Server
	comm    *comm.Communicator
	subs    *subs.Manager
	bps     *blueprint.Cache
	pl      *validator.Pipeline
	engine  *consensus.Engine
	packer  *packer.Packer
	control *controller
	httpSrv *http.Server

	goes co.Goes
}

// New wires the node. Nothing runs until Run.
func New(cfg sorcha.Config, opts Options) (*Node, error) {
	if opts.NodeID == "" {
		return nil, errors.New("node: node id required")
	}
	if opts.ValidatorID == "" {
		opts.ValidatorID = opts.NodeID
	}
	if opts.ValidatorKey == nil {
		priv, _, err := cry.GenerateKey(cry.ED25519)
		if err != nil {
			return nil, errors.Wrap(err, "generate validator key")
		}
		opts.ValidatorKey = priv
		logger.Warn("no validator key configured, generated an ephemeral one", "validator", opts.ValidatorID)
	}

	n := &Node{cfg: cfg, opts: opts, feed: &events.Feed{}}

	var err error
	if opts.DataDir == "" {
		n.db, err = lvldb.NewMem()
	} else {
		n.db, err = lvldb.New(filepath.Join(opts.DataDir, "main.db"), lvldb.Options{})
	}
	if err != nil {
		return nil, errors.Wrap(err, "open main db")
	}
	if opts.DataDir == "" {
		n.queue, err = eventdb.NewMem()
	} else {
		n.queue, err = eventdb.New(filepath.Join(opts.DataDir, "events.db"), cfg.MaxQueueSize)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open event db")
	}

	sink := events.Tee(
		n.feed,
		n.queue,
		events.SinkFunc(func(ev *events.Event) { n.control.onEvent(ev) }),
	)
	if n.repo, err = register.NewRepository(n.db, sink); err != nil {
		return nil, errors.Wrap(err, "open register repository")
	}
	n.control = newController(n.repo)

	if n.store, err = peerstore.New(n.db, peerstore.Options{Capacity: cfg.MaxPeers}); err != nil {
		return nil, errors.Wrap(err, "open peer store")
	}
	n.probe = netprobe.New(netprobe.Options{
		STUNServers: []string{"stun.l.google.com:19302"},
		NAT:         nat.Any(),
	})

	n.srv = p2psrv.New(p2psrv.Options{
		PeerID:              opts.NodeID,
		ListenAddr:          opts.P2PListenAddr,
		HeartbeatInterval:   cfg.HeartbeatInterval(),
		MaxMissedHeartbeats: cfg.MaxMissedHeartbeats,
		ConnectTimeout:      cfg.ConnectionTimeout(),
		EnableCompression:   cfg.EnableCompression,
		OnHeartbeat:         n.store.RecordLatency,
	})

	resolver := opts.Blueprints
	if resolver == nil {
		resolver = blueprint.ResolverFunc(func(context.Context, string) (*blueprint.Blueprint, error) {
			return nil, blueprint.ErrNotFound
		})
	}
	n.bps = blueprint.NewCache(resolver, 0)

	n.pl = validator.New(n.repo, n.bps, validator.Options{
		MaxTxSize:        cfg.MaxTransactionSizeBytes,
		VerifiedQueueCap: cfg.MaxQueueSize,
		Sink:             sink,
		// announce every newly verified transaction to subscribed peers
		OnVerified: func(trx *tx.Transaction) {
			n.goes.Go(func() { n.comm.GossipTransaction(trx) })
		},
	})

	n.comm = comm.New(n.srv, n.store, n.repo, n.submitFromNetwork, n.advertisements, comm.Options{
		PeerID:             opts.NodeID,
		Seeds:              opts.Seeds,
		FanoutFactor:       cfg.FanoutFactor,
		GossipRounds:       cfg.GossipRounds,
		TxCacheTTL:         cfg.TxCacheTTL(),
		StreamingThreshold: cfg.StreamingThresholdBytes,
		RefreshInterval:    cfg.PeerRefreshInterval(),
		MinHealthyPeers:    cfg.MinHealthyPeers,
	})

	if n.subs, err = subs.New(n.db, n.repo, n.store, n.comm, subs.Options{
		NodeID:             opts.NodeID,
		BatchSize:          uint32(cfg.DocketPullBatchSize),
		MaxConcurrentPulls: cfg.MaxConcurrentDocketPulls,
		SweepInterval:      cfg.PeriodicSyncInterval(),
	}); err != nil {
		return nil, errors.Wrap(err, "open subscription manager")
	}

	n.engine = consensus.New(
		consensus.ValidatorProviderFunc(func(sorcha.RegisterID) []string {
			return []string{opts.ValidatorID}
		}),
		&consensus.LocalApprover{
			ValidatorID: opts.ValidatorID,
			Algorithm:   cry.ED25519,
			PrivateKey:  opts.ValidatorKey,
		},
		consensus.Options{AutoApprove: cfg.AutoApproveWhenNoValidators},
	)
	n.packer = packer.New(n.repo, n.pl, n.engine, packer.Options{
		MaxDocketBytes: cfg.StreamingThresholdBytes,
	})

	if opts.APIAddr != "" {
		n.httpSrv = &http.Server{
			Addr: opts.APIAddr,
			Handler: api.New(n.repo, n.pl, n.store, n.subs, api.Options{
				NodeID:         opts.NodeID,
				AllowedOrigins: opts.AllowedOrigins,
				EnableMetrics:  opts.EnableMetrics,
			}),
		}
	}
	return n, nil
}

// submitFromNetwork feeds gossiped transactions into the local pipeline.
// Duplicates are fine; anything else rejected surfaces to the gossip
// layer so it stops relaying the transaction.
func (n *Node) submitFromNetwork(trx *tx.Transaction, origin string) error {
	receipt := n.pl.Submit(context.Background(), trx)
	if receipt.Accepted {
		return nil
	}
	return errors.Errorf("rejected at %s: %s", receipt.StageReached, receipt.Err.Code)
}

func (n *Node) advertisements() []proto.RegisterAd {
	return n.subs.Advertisements()
}

// Run starts every component and blocks until the context is cancelled,
// then shuts down in two phases: stop intake, drain, stop transport.
func (n *Node) Run(ctx context.Context) error {
	if ip, err := n.probe.External(ctx); err == nil {
		logger.Info("external address resolved", "ip", ip)
	} else {
		logger.Debug("external address not discoverable", "err", err)
	}
	go checkClockOffset()

	if err := n.srv.Start(); err != nil {
		return errors.Wrap(err, "start p2p server")
	}
	n.comm.Start()
	n.subs.Start()
	n.packer.Start()

	if n.httpSrv != nil {
		n.goes.Go(func() {
			logger.Info("api listening", "addr", n.httpSrv.Addr)
			if err := n.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("api server failed", "err", err)
			}
		})
	}
	n.goes.Go(func() { n.houseKeeping(ctx) })

	<-ctx.Done()
	n.shutdown()
	return nil
}

func (n *Node) shutdown() {
	logger.Info("shutting down")

	// phase one: no new intake
	if n.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.httpSrv.Shutdown(shutdownCtx)
		cancel()
	}
	n.pl.Close()

	// phase two: drain verified work, then stop the transport
	n.packer.Stop()
	n.subs.Stop()
	n.comm.Stop()
	n.srv.Stop()

	n.goes.Wait()
	n.feed.Close()
	if err := n.queue.Close(); err != nil {
		logger.Warn("event queue close failed", "err", err)
	}
	n.db.Close()
	logger.Info("bye")
}

func (n *Node) houseKeeping(ctx context.Context) {
	clockTicker := time.NewTicker(clockSyncInterval)
	defer clockTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-clockTicker.C:
			go checkClockOffset()
		}
	}
}

func checkClockOffset() {
	resp, err := ntp.Query(ntpServer)
	if err != nil {
		logger.Debug("failed to access NTP", "err", err)
		return
	}
	if resp.ClockOffset > maxClockOffset || resp.ClockOffset < -maxClockOffset {
		logger.Warn("clock offset detected", "offset", resp.ClockOffset)
	}
}

// CreateRegister registers a new register for a tenant and submits its
// signed control transaction. The register stays at height zero until
// the docket builder commits the genesis docket.
func (n *Node) CreateRegister(meta *register.Register, genesisTx *tx.Transaction) error {
	if n.repo.CountByTenant(meta.TenantID) >= n.cfg.MaxRegistersPerTenant {
		return errors.Errorf("tenant %q reached the register cap %d", meta.TenantID, n.cfg.MaxRegistersPerTenant)
	}
	if !genesisTx.IsGenesis() {
		return errors.New("control transaction must use the genesis blueprint")
	}
	if genesisTx.RegisterID() != meta.ID {
		return errors.New("control transaction register mismatch")
	}
	payload := genesisTx.Payloads().First()
	if payload == nil {
		return errors.New("control transaction has no payload")
	}
	cr, err := quorum.Decode(payload.Data)
	if err != nil {
		return errors.Wrap(err, "control record")
	}
	if cr.RegisterID != meta.ID {
		return errors.New("control record register mismatch")
	}
	if _, ok := cr.Owner(); !ok {
		return errors.New("control record has no owner")
	}

	if err := n.repo.Create(meta); err != nil {
		return err
	}
	receipt := n.pl.Submit(context.Background(), genesisTx)
	if !receipt.Accepted {
		return errors.Errorf("control transaction rejected at %s: %s",
			receipt.StageReached, receipt.Err.Code)
	}
	return nil
}

// ControlRecord returns the current membership record of a register.
func (n *Node) ControlRecord(id sorcha.RegisterID) (*quorum.ControlRecord, error) {
	return n.control.Record(id)
}

// Repository exposes the register store.
func (n *Node) Repository() *register.Repository { return n.repo }

// Pipeline exposes the validation pipeline.
func (n *Node) Pipeline() *validator.Pipeline { return n.pl }

// Subscriptions exposes the subscription manager.
func (n *Node) Subscriptions() *subs.Manager { return n.subs }

// Blueprints exposes the blueprint cache.
func (n *Node) Blueprints() *blueprint.Cache { return n.bps }
