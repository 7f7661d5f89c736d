// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sorchain/sorcha/co"
	"github.com/sorchain/sorcha/p2psrv/rpc"
	"github.com/sorchain/sorcha/sorcha"
)

// heartbeat frames live below the application message range
const msgHeartbeat uint64 = 0

// Heartbeat is the liveness probe payload; echoed back unchanged.
type Heartbeat struct {
	SentAt   uint64
	Sequence uint32
}

// Session is one logical connection to a remote peer.
type Session struct {
	peerID    string
	remote    string
	outbound  bool
	transport *wsTransport
	rpc       *rpc.RPC
	createdAt time.Time

	status atomic.Uint32
	missed atomic.Int32
	seq    atomic.Uint32

	closeOnce sync.Once
	goes      co.Goes
}

func newSession(peerID, remote string, outbound bool, transport *wsTransport) *Session {
	s := &Session{
		peerID:    peerID,
		remote:    remote,
		outbound:  outbound,
		transport: transport,
		rpc:       rpc.New(transport),
		createdAt: time.Now(),
	}
	s.status.Store(uint32(sorcha.PeerConnected))
	return s
}

// PeerID returns the remote peer's id.
func (s *Session) PeerID() string { return s.peerID }

// RemoteAddr returns the remote network address.
func (s *Session) RemoteAddr() string { return s.remote }

// Outbound reports whether we dialled the peer.
func (s *Session) Outbound() bool { return s.outbound }

// Status returns the session's connection status.
func (s *Session) Status() sorcha.PeerStatus {
	return sorcha.PeerStatus(s.status.Load())
}

// Alive reports whether the session's read loop is still running.
func (s *Session) Alive() bool {
	select {
	case <-s.rpc.Done():
		return false
	default:
		return true
	}
}

// Notify sends a message to the peer without waiting for a result.
func (s *Session) Notify(ctx context.Context, msgCode uint64, arg any) error {
	return s.rpc.Notify(ctx, msgCode, arg)
}

// Call sends a call and waits for the decoded result.
func (s *Session) Call(ctx context.Context, msgCode uint64, arg any, result any) error {
	return s.rpc.Call(ctx, msgCode, arg, result)
}

// Duration returns how long the session has been up.
func (s *Session) Duration() time.Duration {
	return time.Since(s.createdAt)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.transport.Close()
	})
}

// serve runs the read loop and the heartbeat loop; it blocks until the
// session ends.
func (s *Session) serve(srv *Server) error {
	var err error
	s.goes.Go(func() {
		err = s.rpc.Serve(func(msg *rpc.Msg, write func(any)) error {
			return srv.dispatch(s, msg, write)
		}, srv.opts.MaxMsgSize)
		s.close()
	})
	s.goes.Go(func() { s.heartbeatLoop(srv) })
	s.goes.Wait()
	return err
}

// heartbeatLoop probes the peer on the configured interval and counts
// consecutive misses.
func (s *Session) heartbeatLoop(srv *Server) {
	ticker := time.NewTicker(srv.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.rpc.Done():
			return
		case <-srv.done:
			return
		case <-ticker.C:
		}

		probe := &Heartbeat{
			SentAt:   uint64(time.Now().Unix()),
			Sequence: s.seq.Add(1),
		}
		var echo Heartbeat
		started := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), srv.opts.HeartbeatInterval)
		err := s.rpc.Call(ctx, msgHeartbeat, probe, &echo)
		cancel()

		if err != nil || echo.Sequence != probe.Sequence {
			missed := s.missed.Add(1)
			logger.Debug("heartbeat missed", "peer", s.peerID, "missed", missed, "err", err)
			if int(missed) >= srv.opts.MaxMissedHeartbeats {
				s.status.Store(uint32(sorcha.PeerHeartbeatTimeout))
				srv.notifyStatus(s.peerID, sorcha.PeerHeartbeatTimeout)
				logger.Warn("heartbeat timeout, closing session", "peer", s.peerID)
				s.close()
				return
			}
			continue
		}

		s.missed.Store(0)
		if srv.opts.OnHeartbeat != nil {
			srv.opts.OnHeartbeat(s.peerID, time.Since(started))
		}
	}
}
