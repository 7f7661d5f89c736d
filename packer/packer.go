// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package packer builds dockets: per register it drains the verified
// queue on a tick or on an empty-to-non-empty transition, seals the
// candidate through the consensus engine and commits it to the register
// store.
package packer

import (
	"context"
	"time"

	"github.com/sorchain/sorcha/co"
	"github.com/sorchain/sorcha/consensus"
	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
	"github.com/sorchain/sorcha/validator"
)

var logger = log.WithContext("pkg", "packer")

var (
	metricDockets   = metrics.LazyLoadCounterVec("packer_docket_count", []string{"outcome"})
	metricPackedTxs = metrics.LazyLoadCounter("packer_packed_tx_count")
)

// Options tunes the docket builder. Zero values fall back to defaults.
type Options struct {
	TickInterval    time.Duration
	MaxTxsPerDocket int
	MaxDocketBytes  int
	DrainTimeout    time.Duration
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.TickInterval == 0 {
		opts.TickInterval = 10 * time.Second
	}
	if opts.MaxTxsPerDocket == 0 {
		opts.MaxTxsPerDocket = 100
	}
	if opts.MaxDocketBytes == 0 {
		opts.MaxDocketBytes = 1024 * 1024
	}
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = 60 * time.Second
	}
	return opts
}

// Packer owns the per-register docket building loop. Building and commit
// are strictly sequential per register; the loop itself serialises all
// registers, which keeps cross-register lock ordering trivial.
type Packer struct {
	repo   *register.Repository
	pl     *validator.Pipeline
	engine *consensus.Engine
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	goes   co.Goes
	now    func() time.Time
}

// New creates the packer.
func New(repo *register.Repository, pl *validator.Pipeline, engine *consensus.Engine, opts Options) *Packer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Packer{
		repo:   repo,
		pl:     pl,
		engine: engine,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}
}

// Start launches the building loop.
func (p *Packer) Start() {
	p.goes.Go(p.loop)
}

// Stop halts the loop, then runs one final drain pass under the drain
// deadline so verified work is not lost on shutdown.
func (p *Packer) Stop() {
	p.cancel()
	p.goes.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.DrainTimeout)
	defer cancel()
	p.packAll(ctx)
}

func (p *Packer) loop() {
	ticker := time.NewTicker(p.opts.TickInterval)
	defer ticker.Stop()

	queued := make(chan sorcha.RegisterID, 64)
	sub := p.pl.SubscribeQueued(queued)
	defer sub.Unsubscribe()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.packAll(p.ctx)
		case regID := <-queued:
			p.packRegister(p.ctx, regID)
		}
	}
}

// Pack runs one immediate build attempt for the register, outside the
// ticker. Callers that need a docket now use this instead of waiting for
// the next tick.
func (p *Packer) Pack(ctx context.Context, regID sorcha.RegisterID) {
	p.packRegister(ctx, regID)
}

func (p *Packer) packAll(ctx context.Context) {
	for _, meta := range p.repo.All() {
		switch meta.Status {
		case register.StatusCreated, register.StatusOnline:
		default:
			continue
		}
		if ctx.Err() != nil {
			return
		}
		p.packRegister(ctx, meta.ID)
	}
}

// packRegister runs one build attempt. An empty queue builds nothing,
// except the unconditional empty genesis docket while the register is at
// height zero.
func (p *Packer) packRegister(ctx context.Context, regID sorcha.RegisterID) {
	height, err := p.repo.Height(regID)
	if err != nil {
		return
	}
	if height == 0 {
		if !p.commitGenesis(ctx, regID) {
			return
		}
		height = 1
	}

	batch := p.pl.Drain(regID, p.opts.MaxTxsPerDocket, p.opts.MaxDocketBytes)
	if len(batch) == 0 {
		return
	}
	batch.SortByVerification()

	prev, err := p.repo.LatestDocket(regID)
	if err != nil {
		p.pl.Requeue(regID, batch, err)
		return
	}

	txs := make(tx.Transactions, len(batch))
	ids := make([]sorcha.Bytes32, len(batch))
	for i, vtx := range batch {
		txs[i] = vtx.Transaction
		ids[i] = vtx.ID()
	}
	candidate := docket.New(regID, height, prev.ID(), uint64(p.now().Unix()), ids)

	sealed, err := p.engine.Seal(ctx, candidate)
	if err != nil {
		logger.Warn("docket seal failed", "register", regID, "version", height, "err", err)
		metricDockets().AddWithLabel(1, map[string]string{"outcome": "seal_failed"})
		p.pl.Requeue(regID, batch, err)
		return
	}
	if err := p.repo.AppendDocket(sealed.WithCommitted(uint64(p.now().Unix())), txs); err != nil {
		logger.Error("docket commit failed", "register", regID, "version", height, "err", err)
		metricDockets().AddWithLabel(1, map[string]string{"outcome": "commit_failed"})
		p.pl.Requeue(regID, batch, err)
		return
	}
	p.pl.MarkCommitted(regID, batch)
	metricDockets().AddWithLabel(1, map[string]string{"outcome": "committed"})
	metricPackedTxs().Add(int64(len(batch)))
	logger.Info("docket committed", "register", regID, "version", height, "txs", len(batch))
}

func (p *Packer) commitGenesis(ctx context.Context, regID sorcha.RegisterID) bool {
	genesis := docket.NewGenesis(regID, uint64(p.now().Unix()))
	sealed, err := p.engine.Seal(ctx, genesis)
	if err != nil {
		logger.Warn("genesis seal failed", "register", regID, "err", err)
		metricDockets().AddWithLabel(1, map[string]string{"outcome": "seal_failed"})
		return false
	}
	if err := p.repo.AppendDocket(sealed.WithCommitted(uint64(p.now().Unix())), nil); err != nil {
		logger.Error("genesis commit failed", "register", regID, "err", err)
		metricDockets().AddWithLabel(1, map[string]string{"outcome": "commit_failed"})
		return false
	}
	metricDockets().AddWithLabel(1, map[string]string{"outcome": "committed"})
	logger.Info("genesis docket committed", "register", regID)
	return true
}
