// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/p2psrv/rpc"
	"github.com/sorchain/sorcha/sorcha"
)

const testMsgEcho uint64 = 0x10

type testEcho struct {
	Value string
}

func startServer(t *testing.T, peerID string, compress bool) *Server {
	srv := New(Options{
		PeerID:            peerID,
		ListenAddr:        "127.0.0.1:0",
		HeartbeatInterval: 100 * time.Millisecond,
		ConnectTimeout:    2 * time.Second,
		EnableCompression: compress,
	})
	srv.HandleFunc(testMsgEcho, func(_ *Session, msg *rpc.Msg, write func(any)) error {
		var arg testEcho
		if err := msg.Decode(&arg); err != nil {
			return err
		}
		write(&testEcho{Value: arg.Value + "/" + peerID})
		return nil
	})
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestConnectAndCall(t *testing.T) {
	alice := startServer(t, "alice", false)
	bob := startServer(t, "bob", false)

	require.NoError(t, alice.Connect(context.Background(), "bob", bob.ListenAddr()))

	var result testEcho
	require.NoError(t, alice.Call(context.Background(), "bob", testMsgEcho, &testEcho{Value: "ping"}, &result))
	assert.Equal(t, "ping/bob", result.Value)

	// the session is visible from both ends
	require.NotNil(t, alice.Session("bob"))
	waitFor(t, func() bool { return bob.Session("alice") != nil })

	// inbound side can call back
	require.NoError(t, bob.Call(context.Background(), "alice", testMsgEcho, &testEcho{Value: "pong"}, &result))
	assert.Equal(t, "pong/alice", result.Value)

	assert.Equal(t, sorcha.PeerConnected, alice.NodeStatus())
}

func TestConnectIdempotent(t *testing.T) {
	alice := startServer(t, "alice", false)
	bob := startServer(t, "bob", false)

	require.NoError(t, alice.Connect(context.Background(), "bob", bob.ListenAddr()))
	require.NoError(t, alice.Connect(context.Background(), "bob", bob.ListenAddr()))
	assert.Len(t, alice.Sessions(), 1)
}

func TestCompressedSession(t *testing.T) {
	alice := startServer(t, "alice", true)
	bob := startServer(t, "bob", true)

	require.NoError(t, alice.Connect(context.Background(), "bob", bob.ListenAddr()))

	var result testEcho
	require.NoError(t, alice.Call(context.Background(), "bob", testMsgEcho, &testEcho{Value: "ping"}, &result))
	assert.Equal(t, "ping/bob", result.Value)
}

func TestIdentityMismatch(t *testing.T) {
	alice := startServer(t, "alice", false)
	bob := startServer(t, "bob", false)

	err := alice.Connect(context.Background(), "carol", bob.ListenAddr())
	assert.ErrorContains(t, err, "identity mismatch")
}

func TestDisconnectAndStatus(t *testing.T) {
	alice := startServer(t, "alice", false)
	bob := startServer(t, "bob", false)

	statusCh := make(chan *StatusEvent, 16)
	sub := alice.SubscribeStatus(statusCh)
	defer sub.Unsubscribe()

	require.NoError(t, alice.Connect(context.Background(), "bob", bob.ListenAddr()))
	waitForStatus(t, statusCh, sorcha.PeerConnected)

	alice.Disconnect("bob")
	waitForStatus(t, statusCh, sorcha.PeerDisconnected)
	waitFor(t, func() bool { return alice.Session("bob") == nil })

	// with no live sessions the node eventually reports isolation
	waitFor(t, func() bool { return alice.NodeStatus() == sorcha.PeerIsolated })
}

func TestHeartbeatTimeout(t *testing.T) {
	alice := startServer(t, "alice", false)

	// a mute peer: accepts the session but never answers any frame
	mute := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		header := http.Header{}
		header.Set(headerPeerID, "mute")
		conn, err := upgrader.Upgrade(w, req, header)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer mute.Close()

	statusCh := make(chan *StatusEvent, 16)
	sub := alice.SubscribeStatus(statusCh)
	defer sub.Unsubscribe()

	addr := strings.TrimPrefix(mute.URL, "http://")
	require.NoError(t, alice.Connect(context.Background(), "mute", addr))
	waitForStatus(t, statusCh, sorcha.PeerConnected)
	waitForStatus(t, statusCh, sorcha.PeerHeartbeatTimeout)
	waitFor(t, func() bool { return alice.Session("mute") == nil })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func waitForStatus(t *testing.T, ch chan *StatusEvent, want sorcha.PeerStatus) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Status == want {
				return
			}
		case <-deadline:
			t.Fatalf("status %s not observed", want)
		}
	}
}
