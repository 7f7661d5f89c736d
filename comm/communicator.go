// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package comm implements the replication engine: seed bootstrap, peer
// exchange, register advertisement and transaction gossip over the peer
// protocol.
package comm

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/qianbin/directcache"

	"github.com/sorchain/sorcha/co"
	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/p2psrv"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

var logger = log.WithContext("pkg", "comm")

const (
	seenCacheBytes    = 4 * 1024 * 1024
	exchangeReplyCap  = 64
	advertiseCap      = 256
	bootstrapInterval = 10 * time.Second
)

// Seed is one bootstrap peer.
type Seed struct {
	PeerID string
	Addr   string
}

// SubmitFunc hands a transaction received from the network to the local
// validator pipeline.
type SubmitFunc func(trx *tx.Transaction, origin string) error

// AdvertiseFunc supplies the local advertisement set.
type AdvertiseFunc func() []proto.RegisterAd

// Options configures the communicator.
type Options struct {
	PeerID string
	Seeds  []Seed

	FanoutFactor       int
	GossipRounds       int
	TxCacheTTL         time.Duration
	StreamingThreshold int
	RefreshInterval    time.Duration
	MinHealthyPeers    int
}

// Communicator glues the connection pool, the peer store and the register
// store together.
type Communicator struct {
	opts   Options
	srv    *p2psrv.Server
	store  *peerstore.Store
	repo   *register.Repository
	submit SubmitFunc
	adsOf  AdvertiseFunc

	seen *directcache.Cache

	subLock     sync.Mutex
	subscribers map[sorcha.RegisterID]map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	goes   co.Goes
}

// New creates a communicator and registers its message handlers on the
// server. Start must be called before any traffic flows.
func New(srv *p2psrv.Server, store *peerstore.Store, repo *register.Repository, submit SubmitFunc, adsOf AdvertiseFunc, opts Options) *Communicator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Communicator{
		opts:        opts,
		srv:         srv,
		store:       store,
		repo:        repo,
		submit:      submit,
		adsOf:       adsOf,
		seen:        directcache.New(seenCacheBytes),
		subscribers: make(map[sorcha.RegisterID]map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.registerHandlers()
	return c
}

// Start launches the bootstrap, refresh and status loops.
func (c *Communicator) Start() {
	c.goes.Go(c.bootstrapLoop)
	c.goes.Go(c.refreshLoop)
	c.goes.Go(c.statusLoop)
}

// Stop cancels all loops and waits for them.
func (c *Communicator) Stop() {
	c.cancel()
	c.goes.Wait()
}

// bootstrapLoop dials seeds until at least one connection is up, then exits.
// Any successful seed connection primes the peer list.
func (c *Communicator) bootstrapLoop() {
	for {
		connected := 0
		for _, seed := range c.opts.Seeds {
			if c.ctx.Err() != nil {
				return
			}
			c.store.AddOrUpdate(&peerstore.Peer{
				ID:      seed.PeerID,
				Address: hostOf(seed.Addr),
				Port:    portOf(seed.Addr),
				IsSeed:  true,
			})
			if err := c.srv.Connect(c.ctx, seed.PeerID, seed.Addr); err != nil {
				logger.Debug("seed dial failed", "seed", seed.PeerID, "err", err)
				c.store.IncrementFailures(seed.PeerID)
				continue
			}
			connected++
		}
		if connected > 0 || len(c.opts.Seeds) == 0 {
			return
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(bootstrapInterval):
		}
	}
}

// refreshLoop periodically exchanges peer lists with a random healthy peer
// and re-broadcasts the local advertisement set.
func (c *Communicator) refreshLoop() {
	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		if healthy := len(c.store.Healthy()); healthy < c.opts.MinHealthyPeers {
			logger.Warn("healthy peer count below threshold", "healthy", healthy, "min", c.opts.MinHealthyPeers)
		}
		if peers := c.store.Random(1); len(peers) > 0 {
			c.exchangeWith(peers[0].ID)
		}
		c.advertise()
	}
}

// statusLoop folds session status changes back into the peer store.
func (c *Communicator) statusLoop() {
	statusCh := make(chan *p2psrv.StatusEvent, 64)
	sub := c.srv.SubscribeStatus(statusCh)
	defer sub.Unsubscribe()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-statusCh:
			switch ev.Status {
			case sorcha.PeerConnected:
				c.store.UpdateLastSeen(ev.PeerID)
				c.store.UpdateLocalStatus(ev.PeerID, sorcha.PeerConnected)
				// eager exchange on fresh connections
				c.goes.Go(func() {
					c.exchangeWith(ev.PeerID)
					c.advertise()
				})
			case sorcha.PeerDisconnected, sorcha.PeerHeartbeatTimeout:
				c.store.IncrementFailures(ev.PeerID)
				c.dropSubscriber(ev.PeerID)
				c.store.UpdateLocalStatus("", c.srv.NodeStatus())
			}
		}
	}
}

// exchangeWith performs one peer-list exchange with the given peer and
// merges the result subject to capacity. Peers without a live session are
// dialed first, so known peers come back after a heartbeat timeout once
// their circuit breaker admits the attempt.
func (c *Communicator) exchangeWith(peerID string) {
	session, err := c.sessionFor(c.ctx, peerID)
	if err != nil {
		logger.Debug("peer unreachable for exchange", "peer", peerID, "err", err)
		return
	}
	known := make([]string, 0, len(c.store.All())+1)
	known = append(known, c.opts.PeerID)
	for _, p := range c.store.All() {
		known = append(known, p.ID)
	}

	resp, err := (&proto.PeerExchangeRequest{Known: known}).Do(c.ctx, session)
	if err != nil {
		logger.Debug("peer exchange failed", "peer", peerID, "err", err)
		c.store.IncrementFailures(peerID)
		return
	}
	merged := 0
	for _, info := range resp.Peers {
		if info.ID == c.opts.PeerID {
			continue
		}
		if c.store.AddOrUpdate(&peerstore.Peer{
			ID:         info.ID,
			Address:    info.Address,
			Port:       info.Port,
			Transports: info.Transports,
		}) != peerstore.Rejected {
			merged++
		}
	}
	c.store.UpdateLastSeen(peerID)
	logger.Debug("peer exchange done", "peer", peerID, "got", len(resp.Peers), "merged", merged)
}

// advertise broadcasts the local register advertisement set to every
// connected peer.
func (c *Communicator) advertise() {
	ads := c.adsOf()
	if len(ads) == 0 {
		return
	}
	if len(ads) > advertiseCap {
		ads = ads[:advertiseCap]
	}
	ad := &proto.Advertisement{Origin: c.opts.PeerID, Registers: ads}
	for _, session := range c.srv.Sessions() {
		if err := ad.Send(c.ctx, session); err != nil {
			logger.Debug("advertise failed", "peer", session.PeerID(), "err", err)
		}
	}
}

// Subscribe opens a subscription handshake against a peer, connecting first
// when needed.
func (c *Communicator) Subscribe(ctx context.Context, peerID string, registerID sorcha.RegisterID, mode sorcha.SubscriptionMode) (*proto.SubscribeAck, error) {
	session, err := c.sessionFor(ctx, peerID)
	if err != nil {
		return nil, err
	}
	return (&proto.SubscribeRequest{
		RegisterID: registerID,
		Mode:       uint8(mode),
		PeerID:     c.opts.PeerID,
	}).Do(ctx, session)
}

// PullDockets fetches a batch of committed dockets from a peer.
func (c *Communicator) PullDockets(ctx context.Context, peerID string, registerID sorcha.RegisterID, fromVersion uint64, limit uint32) (*proto.DocketData, error) {
	session, err := c.sessionFor(ctx, peerID)
	if err != nil {
		return nil, err
	}
	return (&proto.DocketRequest{
		RegisterID:  registerID,
		FromVersion: fromVersion,
		Limit:       limit,
	}).Do(ctx, session)
}

// PullTransactions fetches transactions by id from a peer.
func (c *Communicator) PullTransactions(ctx context.Context, peerID string, registerID sorcha.RegisterID, txIDs []sorcha.Bytes32) (tx.Transactions, error) {
	session, err := c.sessionFor(ctx, peerID)
	if err != nil {
		return nil, err
	}
	resp, err := (&proto.TxRequest{RegisterID: registerID, TxIDs: txIDs}).Do(ctx, session)
	if err != nil {
		return nil, err
	}
	return resp.Txs, nil
}

func (c *Communicator) sessionFor(ctx context.Context, peerID string) (*p2psrv.Session, error) {
	if session := c.srv.Session(peerID); session != nil {
		return session, nil
	}
	p := c.store.Get(peerID)
	if p == nil {
		return nil, errors.Errorf("unknown peer %s", peerID)
	}
	addr := net.JoinHostPort(p.Address, strconv.Itoa(int(p.Port)))
	if err := c.srv.Connect(ctx, peerID, addr); err != nil {
		c.store.IncrementFailures(peerID)
		return nil, err
	}
	session := c.srv.Session(peerID)
	if session == nil {
		return nil, errors.Errorf("no session for peer %s", peerID)
	}
	return session, nil
}

func (c *Communicator) addSubscriber(registerID sorcha.RegisterID, peerID string) {
	c.subLock.Lock()
	defer c.subLock.Unlock()
	set, ok := c.subscribers[registerID]
	if !ok {
		set = make(map[string]struct{})
		c.subscribers[registerID] = set
	}
	set[peerID] = struct{}{}
}

func (c *Communicator) dropSubscriber(peerID string) {
	c.subLock.Lock()
	defer c.subLock.Unlock()
	for _, set := range c.subscribers {
		delete(set, peerID)
	}
}

func (c *Communicator) subscribersOf(registerID sorcha.RegisterID) []string {
	c.subLock.Lock()
	defer c.subLock.Unlock()
	out := make([]string, 0, len(c.subscribers[registerID]))
	for peerID := range c.subscribers[registerID] {
		out = append(out, peerID)
	}
	return out
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portOf(addr string) uint16 {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}
