// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package p2psrv maintains one logical session per remote peer: websocket
// transport, heartbeats, reconnect circuit breakers and per-peer status.
package p2psrv

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/co"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/p2psrv/rpc"
	"github.com/sorchain/sorcha/sorcha"
)

var logger = log.WithContext("pkg", "p2psrv")

var (
	metricSessionCount   = metrics.LazyLoadGauge("p2p_session_count_gauge")
	metricConnectFailure = metrics.LazyLoadCounter("p2p_connect_failure_count")
)

const (
	peerPath          = "/sorcha/v1/peer"
	headerPeerID      = "X-Sorcha-Peer-Id"
	headerCompress    = "X-Sorcha-Compress"
	compressSnappy    = "snappy"
	defaultMaxMsgSize = 10 * 1024 * 1024
)

var errPeerUnknown = errors.New("peer not connected")

// HandlerFunc handles one application message arriving on a session.
type HandlerFunc func(session *Session, msg *rpc.Msg, write func(any)) error

// StatusEvent reports a per-peer status change.
type StatusEvent struct {
	PeerID string
	Status sorcha.PeerStatus
}

// Options configures the server.
type Options struct {
	PeerID     string
	ListenAddr string

	HeartbeatInterval   time.Duration
	MaxMissedHeartbeats int
	ConnectTimeout      time.Duration
	BreakerThreshold    int
	BreakerReset        time.Duration
	EnableCompression   bool
	MaxMsgSize          uint32

	// OnHeartbeat observes round trips of successful heartbeats.
	OnHeartbeat func(peerID string, rtt time.Duration)
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.MaxMissedHeartbeats == 0 {
		opts.MaxMissedHeartbeats = 2
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset == 0 {
		opts.BreakerReset = 5 * time.Minute
	}
	if opts.MaxMsgSize == 0 {
		opts.MaxMsgSize = defaultMaxMsgSize
	}
	return opts
}

// Server is the connection pool.
type Server struct {
	opts     Options
	listener net.Listener
	httpSrv  *http.Server

	lock      sync.Mutex
	sessions  map[string]*Session
	breakers  map[string]*breaker
	handlers  map[uint64]HandlerFunc
	lastAlive time.Time

	statusFeed event.Feed
	scope      event.SubscriptionScope
	goes       co.Goes
	done       chan struct{}
}

// New creates a server. Handlers must be registered before Start.
func New(opts Options) *Server {
	return &Server{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
		breakers: make(map[string]*breaker),
		handlers: make(map[uint64]HandlerFunc),
		done:     make(chan struct{}),
	}
}

// HandleFunc registers the handler for a message code.
func (s *Server) HandleFunc(msgCode uint64, handler HandlerFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handlers[msgCode] = handler
}

// SubscribeStatus subscribes to per-peer status changes.
func (s *Server) SubscribeStatus(ch chan *StatusEvent) event.Subscription {
	return s.scope.Track(s.statusFeed.Subscribe(ch))
}

// Start begins listening for inbound peer sessions.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "p2p listen")
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(peerPath, s.handleUpgrade)
	s.httpSrv = &http.Server{Handler: mux}
	s.goes.Go(func() {
		if err := s.httpSrv.Serve(listener); err != http.ErrServerClosed {
			logger.Warn("p2p http server stopped", "err", err)
		}
	})
	logger.Info("p2p server started", "addr", listener.Addr(), "peer", s.opts.PeerID)
	return nil
}

// Stop closes every session and stops the listener.
func (s *Server) Stop() {
	close(s.done)
	s.scope.Close()
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.lock.Lock()
	for _, session := range s.sessions {
		session.close()
	}
	s.lock.Unlock()
	s.goes.Wait()
}

// ListenAddr returns the bound address, once started.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.opts.ListenAddr
	}
	return s.listener.Addr().String()
}

func (s *Server) handleUpgrade(w http.ResponseWriter, req *http.Request) {
	remoteID := req.Header.Get(headerPeerID)
	if remoteID == "" || remoteID == s.opts.PeerID {
		http.Error(w, "bad peer id", http.StatusBadRequest)
		return
	}
	compressed := s.opts.EnableCompression && req.Header.Get(headerCompress) == compressSnappy

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	header := http.Header{}
	header.Set(headerPeerID, s.opts.PeerID)
	if compressed {
		header.Set(headerCompress, compressSnappy)
	}
	conn, err := upgrader.Upgrade(w, req, header)
	if err != nil {
		logger.Debug("upgrade failed", "peer", remoteID, "err", err)
		return
	}

	transport := newWSTransport(conn, compressed, s.opts.MaxMsgSize, s.opts.ConnectTimeout)
	session := newSession(remoteID, req.RemoteAddr, false, transport)
	if !s.addSession(session) {
		// already have a live session for this peer
		transport.Close()
		return
	}
	s.goes.Go(func() { s.runSession(session) })
}

// Connect establishes an outbound session, idempotent per peer id.
func (s *Server) Connect(ctx context.Context, peerID, addr string) error {
	s.lock.Lock()
	if existing, ok := s.sessions[peerID]; ok && existing.Alive() {
		s.lock.Unlock()
		return nil
	}
	brk, ok := s.breakers[peerID]
	if !ok {
		brk = newBreaker(s.opts.BreakerThreshold, s.opts.BreakerReset)
		s.breakers[peerID] = brk
	}
	s.lock.Unlock()

	if !brk.Allow() {
		return errors.Errorf("circuit breaker open for peer %s", peerID)
	}
	s.notifyStatus(peerID, sorcha.PeerConnecting)

	session, err := s.dial(ctx, peerID, addr)
	if err != nil {
		brk.Failure()
		metricConnectFailure().Add(1)
		s.notifyStatus(peerID, sorcha.PeerDisconnected)
		return err
	}
	brk.Success()

	if !s.addSession(session) {
		session.close()
		return nil
	}
	s.goes.Go(func() { s.runSession(session) })
	return nil
}

func (s *Server) dial(ctx context.Context, peerID, addr string) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.opts.ConnectTimeout}
	u := url.URL{Scheme: "ws", Host: addr, Path: peerPath}

	header := http.Header{}
	header.Set(headerPeerID, s.opts.PeerID)
	if s.opts.EnableCompression {
		header.Set(headerCompress, compressSnappy)
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial peer %s", peerID)
	}
	remoteID := resp.Header.Get(headerPeerID)
	compressed := s.opts.EnableCompression && resp.Header.Get(headerCompress) == compressSnappy
	if remoteID == "" || (peerID != "" && remoteID != peerID) {
		conn.Close()
		return nil, errors.Errorf("peer identity mismatch: want %s, got %s", peerID, remoteID)
	}

	transport := newWSTransport(conn, compressed, s.opts.MaxMsgSize, s.opts.ConnectTimeout)
	return newSession(remoteID, addr, true, transport), nil
}

func (s *Server) addSession(session *Session) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if existing, ok := s.sessions[session.peerID]; ok && existing.Alive() {
		return false
	}
	s.sessions[session.peerID] = session
	s.lastAlive = time.Now()
	metricSessionCount().Set(int64(len(s.sessions)))
	return true
}

func (s *Server) runSession(session *Session) {
	s.notifyStatus(session.peerID, sorcha.PeerConnected)
	logger.Info("peer session up", "peer", session.peerID, "outbound", session.outbound)

	err := session.serve(s)

	s.lock.Lock()
	if s.sessions[session.peerID] == session {
		delete(s.sessions, session.peerID)
	}
	s.lastAlive = time.Now()
	metricSessionCount().Set(int64(len(s.sessions)))
	s.lock.Unlock()

	logger.Info("peer session down", "peer", session.peerID, "err", err)
	if session.Status() != sorcha.PeerHeartbeatTimeout {
		s.notifyStatus(session.peerID, sorcha.PeerDisconnected)
	}
}

func (s *Server) dispatch(session *Session, msg *rpc.Msg, write func(any)) error {
	if msg.Code == msgHeartbeat {
		var probe Heartbeat
		if err := msg.Decode(&probe); err != nil {
			return errors.WithMessage(err, "decode heartbeat")
		}
		write(&probe)
		return nil
	}

	s.lock.Lock()
	handler, ok := s.handlers[msg.Code]
	s.lock.Unlock()
	if !ok {
		logger.Debug("no handler for message", "msg", msg.Code, "peer", session.peerID)
		return nil
	}
	return handler(session, msg, write)
}

func (s *Server) notifyStatus(peerID string, status sorcha.PeerStatus) {
	s.statusFeed.Send(&StatusEvent{PeerID: peerID, Status: status})
}

// Session returns the live session for the peer, or nil.
func (s *Server) Session(peerID string) *Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	if session, ok := s.sessions[peerID]; ok && session.Alive() {
		return session
	}
	return nil
}

// Sessions returns all live sessions.
func (s *Server) Sessions() []*Session {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Alive() {
			out = append(out, session)
		}
	}
	return out
}

// Notify sends a message to the peer without waiting for a result.
func (s *Server) Notify(ctx context.Context, peerID string, msgCode uint64, arg any) error {
	session := s.Session(peerID)
	if session == nil {
		return errPeerUnknown
	}
	return session.Notify(ctx, msgCode, arg)
}

// Call sends a call to the peer and decodes its result.
func (s *Server) Call(ctx context.Context, peerID string, msgCode uint64, arg any, result any) error {
	session := s.Session(peerID)
	if session == nil {
		return errPeerUnknown
	}
	return session.Call(ctx, msgCode, arg, result)
}

// Broadcast notifies each listed peer, best effort.
func (s *Server) Broadcast(ctx context.Context, peerIDs []string, msgCode uint64, arg any) {
	for _, peerID := range peerIDs {
		if err := s.Notify(ctx, peerID, msgCode, arg); err != nil {
			logger.Debug("broadcast skipped peer", "peer", peerID, "msg", msgCode, "err", err)
		}
	}
}

// Disconnect closes the session to the peer, if any.
func (s *Server) Disconnect(peerID string) {
	if session := s.Session(peerID); session != nil {
		session.close()
	}
}

// NodeStatus derives the node-wide connectivity status: Isolated means no
// live session for at least one heartbeat window.
func (s *Server) NodeStatus() sorcha.PeerStatus {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, session := range s.sessions {
		if session.Alive() {
			return sorcha.PeerConnected
		}
	}
	if !s.lastAlive.IsZero() && time.Since(s.lastAlive) >= s.opts.HeartbeatInterval {
		return sorcha.PeerIsolated
	}
	return sorcha.PeerDisconnected
}
