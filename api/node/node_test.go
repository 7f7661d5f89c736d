// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/lvldb"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/subs"
)

var testRegID = sorcha.MustParseRegisterID("00112233445566778899aabbccddeeff")

type offlineFetcher struct{}

func (offlineFetcher) Subscribe(context.Context, string, sorcha.RegisterID, sorcha.SubscriptionMode) (*proto.SubscribeAck, error) {
	return nil, errors.New("offline")
}

func (offlineFetcher) PullDockets(context.Context, string, sorcha.RegisterID, uint64, uint32) (*proto.DocketData, error) {
	return nil, errors.New("offline")
}

type fixture struct {
	server *httptest.Server
	store  *peerstore.Store
	subs   *subs.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := peerstore.New(db, peerstore.Options{})
	require.NoError(t, err)
	repo, err := register.NewRepository(db, events.SinkFunc(func(*events.Event) {}))
	require.NoError(t, err)
	mgr, err := subs.New(db, repo, store, offlineFetcher{}, subs.Options{NodeID: "local"})
	require.NoError(t, err)
	t.Cleanup(mgr.Stop)

	router := mux.NewRouter()
	New("local", store, mgr).Mount(router, "/node")
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &fixture{server: server, store: store, subs: mgr}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestStatusIsolatedByDefault(t *testing.T) {
	f := newFixture(t)

	var status Status
	getJSON(t, f.server.URL+"/node/status", &status)
	assert.Equal(t, "local", status.NodeID)
	assert.Equal(t, sorcha.PeerIsolated.String(), status.Status)
	assert.Zero(t, status.PeerCount)
	assert.Empty(t, status.Subscriptions)
}

func TestStatusReflectsConnectivityAndSubscriptions(t *testing.T) {
	f := newFixture(t)

	f.store.AddOrUpdate(&peerstore.Peer{ID: "peer-1", Address: "10.0.0.1", Port: 7666})
	f.store.UpdateLocalStatus("hub-1", sorcha.PeerConnected)
	_, err := f.subs.Subscribe(testRegID, sorcha.ModeForwardOnly)
	require.NoError(t, err)

	var status Status
	getJSON(t, f.server.URL+"/node/status", &status)
	assert.Equal(t, sorcha.PeerConnected.String(), status.Status)
	assert.Equal(t, "hub-1", status.ConnectedHub)
	assert.Equal(t, 1, status.PeerCount)
	require.Len(t, status.Subscriptions, 1)
	assert.Equal(t, testRegID.String(), status.Subscriptions[0].RegisterID)
	assert.Equal(t, sorcha.ModeForwardOnly.String(), status.Subscriptions[0].Mode)
}

func TestPeersEndpoint(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrUpdate(&peerstore.Peer{ID: "peer-1", Address: "10.0.0.1", Port: 7666, IsSeed: true})
	f.store.AddOrUpdate(&peerstore.Peer{ID: "peer-2", Address: "10.0.0.2", Port: 7666})

	var peers []*PeerInfo
	getJSON(t, f.server.URL+"/node/peers", &peers)
	require.Len(t, peers, 2)

	byID := map[string]*PeerInfo{peers[0].ID: peers[0], peers[1].ID: peers[1]}
	require.Contains(t, byID, "peer-1")
	assert.True(t, byID["peer-1"].IsSeed)
	assert.Equal(t, "10.0.0.2", byID["peer-2"].Address)
}
