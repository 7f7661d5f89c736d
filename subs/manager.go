// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/co"
	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/kv"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
)

var logger = log.WithContext("pkg", "subs")

var metricSyncAttempts = metrics.LazyLoadCounterVec("subs_sync_attempt_count", []string{"outcome"})

var (
	// ErrExists is returned when a register already has a subscription.
	ErrExists = errors.New("subscription already exists")
	// ErrNotFound is returned when a register has no subscription.
	ErrNotFound = errors.New("subscription not found")
)

// Fetcher performs network operations against source peers.
type Fetcher interface {
	Subscribe(ctx context.Context, peerID string, registerID sorcha.RegisterID, mode sorcha.SubscriptionMode) (*proto.SubscribeAck, error)
	PullDockets(ctx context.Context, peerID string, registerID sorcha.RegisterID, fromVersion uint64, limit uint32) (*proto.DocketData, error)
}

// Options tunes the sync engine. Zero values fall back to defaults.
type Options struct {
	NodeID             string
	BatchSize          uint32
	MaxConcurrentPulls int
	SweepInterval      time.Duration
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}
	if opts.MaxConcurrentPulls == 0 {
		opts.MaxConcurrentPulls = 3
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	return opts
}

// Manager owns every subscription. All mutations of one subscription go
// through its actor goroutine; readers get copy snapshots.
type Manager struct {
	subsDB kv.Store
	cpDB   kv.Store
	repo   *register.Repository
	store  *peerstore.Store
	fetch  Fetcher
	opts   Options

	lock   sync.Mutex
	actors map[sorcha.RegisterID]*actor

	ctx    context.Context
	cancel context.CancelFunc
	goes   co.Goes
	now    func() time.Time
}

type actorCmd int

const (
	cmdSync actorCmd = iota
	cmdReset
	cmdStop
)

// actor serialises all mutations of one subscription.
type actor struct {
	m        *Manager
	sub      *Subscription
	snapshot atomic.Pointer[Subscription]
	cmdCh    chan actorCmd
	candIdx  int
}

// New opens the manager over the kv store, restoring persisted
// subscriptions. Start launches the actors and the periodic sweep.
func New(db kv.Store, repo *register.Repository, store *peerstore.Store, fetch Fetcher, opts Options) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		subsDB: subsNS.NewStore(db),
		cpDB:   checkpointsNS.NewStore(db),
		repo:   repo,
		store:  store,
		fetch:  fetch,
		opts:   opts.withDefaults(),
		actors: make(map[sorcha.RegisterID]*actor),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}

	iter := m.subsDB.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		var sub Subscription
		if err := decodeSubscription(iter.Value(), &sub); err != nil {
			logger.Warn("skipping corrupted subscription record", "err", err)
			continue
		}
		m.actors[sub.RegisterID] = m.newActor(&sub)
	}
	if err := iter.Error(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "load subscriptions")
	}
	return m, nil
}

func (m *Manager) newActor(sub *Subscription) *actor {
	a := &actor{
		m:     m,
		sub:   sub,
		cmdCh: make(chan actorCmd, 8),
	}
	a.snapshot.Store(sub.copy())
	return a
}

// Start launches all actors and the sweep loop.
func (m *Manager) Start() {
	m.lock.Lock()
	for _, a := range m.actors {
		a := a
		m.goes.Go(a.run)
		a.trigger()
	}
	m.lock.Unlock()
	m.goes.Go(m.sweepLoop)
}

// Stop cancels all actors and waits for them.
func (m *Manager) Stop() {
	m.cancel()
	m.goes.Wait()
}

// Subscribe creates the subscription for a register. A register holds at
// most one.
func (m *Manager) Subscribe(registerID sorcha.RegisterID, mode sorcha.SubscriptionMode) (*Subscription, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.actors[registerID]; ok {
		return nil, ErrExists
	}

	now := uint64(m.now().Unix())
	sub := &Subscription{
		ID:         uuid.NewString(),
		RegisterID: registerID,
		Mode:       mode,
		State:      sorcha.SyncSubscribing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := saveSubscription(m.subsDB, sub); err != nil {
		return nil, errors.Wrap(err, "persist subscription")
	}

	a := m.newActor(sub)
	m.actors[registerID] = a
	m.goes.Go(a.run)
	a.trigger()
	return sub.copy(), nil
}

// Unsubscribe stops and removes the subscription.
func (m *Manager) Unsubscribe(registerID sorcha.RegisterID) error {
	m.lock.Lock()
	a, ok := m.actors[registerID]
	if ok {
		delete(m.actors, registerID)
	}
	m.lock.Unlock()
	if !ok {
		return ErrNotFound
	}

	a.stop()
	if err := m.subsDB.Delete(registerID.Bytes()); err != nil {
		return err
	}
	return m.cpDB.Delete(registerID.Bytes())
}

// Get returns a snapshot of the register's subscription.
func (m *Manager) Get(registerID sorcha.RegisterID) (*Subscription, error) {
	m.lock.Lock()
	a, ok := m.actors[registerID]
	m.lock.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return a.snapshot.Load().copy(), nil
}

// All returns snapshots of every subscription.
func (m *Manager) All() []*Subscription {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]*Subscription, 0, len(m.actors))
	for _, a := range m.actors {
		out = append(out, a.snapshot.Load().copy())
	}
	return out
}

// Reset clears the failure latch of an errored subscription. Only an
// operator action leaves the Error state.
func (m *Manager) Reset(registerID sorcha.RegisterID) error {
	m.lock.Lock()
	a, ok := m.actors[registerID]
	m.lock.Unlock()
	if !ok {
		return ErrNotFound
	}
	a.send(cmdReset)
	return nil
}

// SyncNow schedules an immediate sync attempt.
func (m *Manager) SyncNow(registerID sorcha.RegisterID) error {
	m.lock.Lock()
	a, ok := m.actors[registerID]
	m.lock.Unlock()
	if !ok {
		return ErrNotFound
	}
	a.trigger()
	return nil
}

// Advertisements derives the local advertisement set from subscriptions and
// locally hosted registers.
func (m *Manager) Advertisements() []proto.RegisterAd {
	seen := make(map[sorcha.RegisterID]struct{})
	var ads []proto.RegisterAd

	for _, sub := range m.All() {
		height, err := m.repo.Height(sub.RegisterID)
		if err != nil {
			continue
		}
		meta, err := m.repo.Get(sub.RegisterID)
		if err != nil || !meta.IsPublic {
			continue
		}
		seen[sub.RegisterID] = struct{}{}
		ads = append(ads, proto.RegisterAd{
			RegisterID:               sub.RegisterID,
			SyncState:                sub.State,
			LatestDocketVersion:      latestVersion(height),
			LatestTransactionVersion: sub.LastSyncedTransactionVersion,
			IsPublic:                 true,
		})
	}

	// locally hosted registers are full replicas by definition
	for _, meta := range m.repo.All() {
		if _, ok := seen[meta.ID]; ok || !meta.IsPublic || meta.Status == register.StatusDeleted {
			continue
		}
		height, err := m.repo.Height(meta.ID)
		if err != nil {
			continue
		}
		ads = append(ads, proto.RegisterAd{
			RegisterID:          meta.ID,
			SyncState:           sorcha.SyncFullyReplicated,
			LatestDocketVersion: latestVersion(height),
			IsPublic:            true,
		})
	}
	return ads
}

// sweepLoop periodically re-syncs every subscription whose checkpoint is
// due.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		m.lock.Lock()
		actors := make([]*actor, 0, len(m.actors))
		for _, a := range m.actors {
			actors = append(actors, a)
		}
		m.lock.Unlock()

		now := m.now()
		for _, a := range actors {
			sub := a.snapshot.Load()
			if sub.State == sorcha.SyncError {
				continue
			}
			cp, err := loadCheckpoint(m.cpDB, sub.RegisterID)
			if err == nil && !cp.IsSyncDue(now) {
				continue
			}
			a.trigger()
		}
	}
}

func latestVersion(height uint64) uint64 {
	if height == 0 {
		return 0
	}
	return height - 1
}

func (a *actor) run() {
	for {
		select {
		case <-a.m.ctx.Done():
			return
		case cmd := <-a.cmdCh:
			switch cmd {
			case cmdStop:
				return
			case cmdReset:
				a.reset()
			case cmdSync:
				a.syncOnce()
			}
		}
	}
}

// trigger schedules a sync without blocking; a full queue already implies a
// pending sync.
func (a *actor) trigger() {
	select {
	case a.cmdCh <- cmdSync:
	default:
	}
}

func (a *actor) send(cmd actorCmd) {
	select {
	case a.cmdCh <- cmd:
	case <-a.m.ctx.Done():
	}
}

func (a *actor) stop() {
	select {
	case a.cmdCh <- cmdStop:
	case <-a.m.ctx.Done():
	}
}

func (a *actor) reset() {
	sub := a.sub
	if sub.State != sorcha.SyncError {
		return
	}
	sub.ConsecutiveFailures = 0
	sub.ErrorMessage = ""
	sub.State = sorcha.SyncSubscribing
	a.persist()
	logger.Info("subscription reset by operator", "register", sub.RegisterID, "id", sub.ID)
	a.trigger()
}

func (a *actor) persist() {
	a.sub.UpdatedAt = uint64(a.m.now().Unix())
	if err := saveSubscription(a.m.subsDB, a.sub); err != nil {
		logger.Warn("failed to persist subscription", "register", a.sub.RegisterID, "err", err)
	}
	a.snapshot.Store(a.sub.copy())
}
