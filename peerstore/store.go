// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package peerstore

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/kv"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/sorcha"
)

var logger = log.WithContext("pkg", "peerstore")

var (
	metricPeerCount = metrics.LazyLoadGauge("peerstore_peer_count_gauge")
	metricEvictions = metrics.LazyLoadCounter("peerstore_eviction_count")
)

const (
	// a peer with this many failures is unhealthy; crossing it evicts
	// non-seeds
	failureThreshold = 6

	defaultFreshness = 30 * time.Minute
	defaultCapacity  = 1000
)

const peersNS = kv.Bucket("ps.p.")

// AddResult is the outcome of AddOrUpdate.
type AddResult int

const (
	Added AddResult = iota
	Updated
	Rejected
)

// Store is a bounded set of peers keyed by id. Mutations serialise on an
// internal lock; reads go through a copy-on-write snapshot and never block
// writers.
type Store struct {
	db        kv.Store
	capacity  int
	freshness time.Duration

	lock     sync.Mutex
	peers    map[string]*Peer
	dirty    map[string]bool // true = pending upsert, false = pending delete
	snapshot atomic.Pointer[[]*Peer]

	localLock sync.Mutex
	local     *ActivePeerInfo

	now func() time.Time
}

// Options tunes the store. Zero values fall back to defaults.
type Options struct {
	Capacity  int
	Freshness time.Duration
}

// New opens the store over the kv store, loading any previously persisted
// peers.
func New(db kv.Store, opts Options) (*Store, error) {
	if opts.Capacity == 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Freshness == 0 {
		opts.Freshness = defaultFreshness
	}
	s := &Store{
		db:        peersNS.NewStore(db),
		capacity:  opts.Capacity,
		freshness: opts.Freshness,
		peers:     make(map[string]*Peer),
		dirty:     make(map[string]bool),
		now:       time.Now,
	}

	iter := s.db.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		var p Peer
		if err := rlp.DecodeBytes(iter.Value(), &p); err != nil {
			logger.Warn("skipping corrupted peer record", "key", string(iter.Key()), "err", err)
			continue
		}
		s.peers[p.ID] = &p
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "load peers")
	}
	s.rebuildSnapshot()
	return s, nil
}

// Len returns the current number of peers.
func (s *Store) Len() int {
	return len(*s.snapshot.Load())
}

// AddOrUpdate inserts or refreshes a peer. Updates always succeed; new
// entries are rejected at capacity.
func (s *Store) AddOrUpdate(p *Peer) AddResult {
	if p.ID == "" {
		return Rejected
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.retryDirtyLocked()

	existing, ok := s.peers[p.ID]
	if !ok && len(s.peers) >= s.capacity {
		return Rejected
	}

	cpy := p.copy()
	now := uint64(s.now().Unix())
	if ok {
		cpy.FirstSeen = existing.FirstSeen
		if cpy.IsSeed != existing.IsSeed {
			cpy.IsSeed = cpy.IsSeed || existing.IsSeed
		}
	} else if cpy.FirstSeen == 0 {
		cpy.FirstSeen = now
	}
	if cpy.LastSeen == 0 {
		cpy.LastSeen = now
	}

	s.peers[cpy.ID] = cpy
	s.persistLocked(cpy.ID)
	s.rebuildSnapshot()
	if ok {
		return Updated
	}
	return Added
}

// Remove deletes a peer, reporting whether it was present.
func (s *Store) Remove(peerID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.removeLocked(peerID)
}

func (s *Store) removeLocked(peerID string) bool {
	if _, ok := s.peers[peerID]; !ok {
		return false
	}
	delete(s.peers, peerID)
	if err := s.db.Delete([]byte(peerID)); err != nil {
		logger.Warn("failed to delete peer record, will retry", "peer", peerID, "err", err)
		s.dirty[peerID] = false
	} else {
		delete(s.dirty, peerID)
	}
	s.rebuildSnapshot()
	return true
}

// Get returns a copy of the peer, or nil when unknown.
func (s *Store) Get(peerID string) *Peer {
	for _, p := range *s.snapshot.Load() {
		if p.ID == peerID {
			return p.copy()
		}
	}
	return nil
}

// All returns a copy of every known peer.
func (s *Store) All() []*Peer {
	snap := *s.snapshot.Load()
	out := make([]*Peer, 0, len(snap))
	for _, p := range snap {
		out = append(out, p.copy())
	}
	return out
}

// Healthy returns peers seen within the freshness window with failure counts
// under the threshold.
func (s *Store) Healthy() []*Peer {
	now := s.now()
	var out []*Peer
	for _, p := range *s.snapshot.Load() {
		if p.IsHealthy(now, s.freshness) {
			out = append(out, p.copy())
		}
	}
	return out
}

// Random returns up to n healthy peers in random order.
func (s *Store) Random(n int) []*Peer {
	healthy := s.Healthy()
	rand.Shuffle(len(healthy), func(i, j int) {
		healthy[i], healthy[j] = healthy[j], healthy[i]
	})
	if len(healthy) > n {
		healthy = healthy[:n]
	}
	return healthy
}

// UpdateLastSeen stamps the peer as just seen and clears its failure count.
func (s *Store) UpdateLastSeen(peerID string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.peers[peerID]
	if !ok {
		return
	}
	p.LastSeen = uint64(s.now().Unix())
	p.FailureCount = 0
	s.persistLocked(peerID)
	s.rebuildSnapshot()
}

// IncrementFailures bumps the failure count; a non-seed crossing the
// threshold is evicted.
func (s *Store) IncrementFailures(peerID string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.peers[peerID]
	if !ok {
		return
	}
	p.FailureCount++
	if p.FailureCount > failureThreshold-1 && !p.IsSeed {
		metricEvictions().Add(1)
		logger.Info("evicting failing peer", "peer", peerID, "failures", p.FailureCount)
		s.removeLocked(peerID)
		return
	}
	s.persistLocked(peerID)
	s.rebuildSnapshot()
}

// RecordLatency folds one round-trip sample into the peer's moving average.
func (s *Store) RecordLatency(peerID string, sample time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.peers[peerID]
	if !ok {
		return
	}
	ms := uint64(sample.Milliseconds())
	if p.AvgLatencyMS == 0 {
		p.AvgLatencyMS = ms
	} else {
		p.AvgLatencyMS = (p.AvgLatencyMS*7 + ms) / 8
	}
	s.persistLocked(peerID)
	s.rebuildSnapshot()
}

// SetAdvertisedRegisters replaces the peer's advertisement set.
func (s *Store) SetAdvertisedRegisters(peerID string, regs []AdvertisedRegister) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.peers[peerID]
	if !ok {
		return
	}
	p.AdvertisedRegisters = append([]AdvertisedRegister{}, regs...)
	s.persistLocked(peerID)
	s.rebuildSnapshot()
}

// PeersAdvertising returns peers advertising the register, most reliable
// first (failure count asc, last seen desc).
func (s *Store) PeersAdvertising(id sorcha.RegisterID) []*Peer {
	var out []*Peer
	for _, p := range *s.snapshot.Load() {
		if _, ok := p.Advertises(id); ok {
			out = append(out, p.copy())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailureCount != out[j].FailureCount {
			return out[i].FailureCount < out[j].FailureCount
		}
		return out[i].LastSeen > out[j].LastSeen
	})
	return out
}

// FullReplicaPeers returns peers holding a full replica of the register,
// lowest latency first. Only these may serve historical docket pulls.
func (s *Store) FullReplicaPeers(id sorcha.RegisterID) []*Peer {
	var out []*Peer
	for _, p := range *s.snapshot.Load() {
		if ar, ok := p.Advertises(id); ok && ar.SyncState == sorcha.SyncFullyReplicated {
			out = append(out, p.copy())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AvgLatencyMS < out[j].AvgLatencyMS
	})
	return out
}

// UpdateLocalStatus records this node's own connectivity. The record is
// initialised on first call; connectedHub may be empty when disconnected.
func (s *Store) UpdateLocalStatus(connectedHub string, status sorcha.PeerStatus) {
	s.localLock.Lock()
	defer s.localLock.Unlock()
	now := s.now()
	if s.local == nil {
		s.local = &ActivePeerInfo{StartedAt: now}
	}
	s.local.Status = status
	s.local.ConnectedHub = connectedHub
	if status == sorcha.PeerConnected {
		s.local.LastHeartbeat = now
	}
}

// LocalInfo returns a copy of the local connectivity record, or nil before
// the first status update.
func (s *Store) LocalInfo() *ActivePeerInfo {
	s.localLock.Lock()
	defer s.localLock.Unlock()
	if s.local == nil {
		return nil
	}
	cpy := *s.local
	return &cpy
}

// Flush retries any writes that previously failed.
func (s *Store) Flush() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.retryDirtyLocked()
}

func (s *Store) persistLocked(peerID string) {
	p, ok := s.peers[peerID]
	if !ok {
		return
	}
	enc, err := rlp.EncodeToBytes(p)
	if err == nil {
		err = s.db.Put([]byte(peerID), enc)
	}
	if err != nil {
		logger.Warn("failed to persist peer record, will retry", "peer", peerID, "err", err)
		s.dirty[peerID] = true
		return
	}
	delete(s.dirty, peerID)
}

func (s *Store) retryDirtyLocked() {
	for peerID, upsert := range s.dirty {
		if !upsert {
			if err := s.db.Delete([]byte(peerID)); err == nil {
				delete(s.dirty, peerID)
			}
			continue
		}
		delete(s.dirty, peerID)
		s.persistLocked(peerID)
	}
}

func (s *Store) rebuildSnapshot() {
	snap := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		snap = append(snap, p.copy())
	}
	s.snapshot.Store(&snap)
	metricPeerCount().Set(int64(len(snap)))
}
