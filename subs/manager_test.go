// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/lvldb"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

var testRegID = sorcha.MustParseRegisterID("00112233445566778899aabbccddeeff")

// fakeFetcher serves handshake and docket pulls from an in-memory source
// repository.
type fakeFetcher struct {
	mu        sync.Mutex
	source    *register.Repository
	failWith  error
	subCalls  int
	pullCalls int
}

func (f *fakeFetcher) Subscribe(_ context.Context, _ string, registerID sorcha.RegisterID, _ sorcha.SubscriptionMode) (*proto.SubscribeAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	meta, err := f.source.Get(registerID)
	if err != nil {
		return &proto.SubscribeAck{Accepted: false}, nil
	}
	height, err := f.source.Height(registerID)
	if err != nil {
		return &proto.SubscribeAck{Accepted: false}, nil
	}
	return &proto.SubscribeAck{
		Accepted:     true,
		Name:         meta.Name,
		TenantID:     meta.TenantID,
		TotalDockets: height,
	}, nil
}

func (f *fakeFetcher) PullDockets(_ context.Context, _ string, registerID sorcha.RegisterID, fromVersion uint64, limit uint32) (*proto.DocketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	height, err := f.source.Height(registerID)
	if err != nil {
		return &proto.DocketData{}, nil
	}
	var data proto.DocketData
	for v := fromVersion; v < height && uint32(len(data.Dockets)) < limit; v++ {
		d, err := f.source.GetDocketByVersion(registerID, v)
		if err != nil {
			return nil, err
		}
		data.Dockets = append(data.Dockets, d)
		for _, txID := range d.TxIDs() {
			trx, err := f.source.GetTransaction(registerID, txID)
			if err != nil {
				return nil, err
			}
			data.Txs = append(data.Txs, trx)
		}
	}
	return &data, nil
}

func (f *fakeFetcher) calls() (subs, pulls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCalls, f.pullCalls
}

func newTestRepo(t *testing.T) *register.Repository {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := register.NewRepository(db, events.SinkFunc(func(*events.Event) {}))
	require.NoError(t, err)
	return repo
}

func seedSourceChain(t *testing.T, repo *register.Repository, txCount int) {
	require.NoError(t, repo.Create(&register.Register{
		ID: testRegID, Name: "orders", TenantID: "t1", IsPublic: true,
	}))
	genesis := docket.NewGenesis(testRegID, 1)
	require.NoError(t, repo.AppendDocket(genesis, nil))

	prev := genesis.ID()
	for i := 0; i < txCount; i++ {
		priv, _, err := cry.GenerateKey(cry.ED25519)
		require.NoError(t, err)
		trx, err := new(tx.Builder).
			RegisterID(testRegID).
			BlueprintID("bp").
			SenderWallet("wallet-a").
			Payload("wallet-a", []byte(`{"n":1}`)).
			SubmittedAt(uint64(1700000100+i)).
			Sign(cry.ED25519, priv)
		require.NoError(t, err)

		d := docket.New(testRegID, uint64(i+1), prev, uint64(2+i), []sorcha.Bytes32{trx.ID()})
		require.NoError(t, repo.AppendDocket(d, tx.Transactions{trx}))
		prev = d.ID()
	}
}

type testEnv struct {
	db    *lvldb.LevelDB
	repo  *register.Repository
	store *peerstore.Store
	fetch *fakeFetcher
	mgr   *Manager
}

func newTestEnv(t *testing.T, fetch *fakeFetcher) *testEnv {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := register.NewRepository(db, events.SinkFunc(func(*events.Event) {}))
	require.NoError(t, err)
	store, err := peerstore.New(db, peerstore.Options{})
	require.NoError(t, err)

	store.AddOrUpdate(&peerstore.Peer{ID: "src", Address: "198.51.100.7", Port: 4170})
	store.SetAdvertisedRegisters("src", []peerstore.AdvertisedRegister{{
		RegisterID: testRegID,
		SyncState:  sorcha.SyncFullyReplicated,
		IsPublic:   true,
	}})

	mgr, err := New(db, repo, store, fetch, Options{NodeID: "local", BatchSize: 2, SweepInterval: time.Hour})
	require.NoError(t, err)
	mgr.Start()
	t.Cleanup(mgr.Stop)

	return &testEnv{db: db, repo: repo, store: store, fetch: fetch, mgr: mgr}
}

func waitSub(t *testing.T, mgr *Manager, cond func(*Subscription) bool) *Subscription {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		sub, err := mgr.Get(testRegID)
		if err == nil && cond(sub) {
			return sub
		}
		time.Sleep(5 * time.Millisecond)
	}
	sub, _ := mgr.Get(testRegID)
	t.Fatalf("condition not reached, last state: %+v", sub)
	return nil
}

func TestForwardOnlyActivates(t *testing.T) {
	fetch := &fakeFetcher{source: newTestRepo(t)}
	seedSourceChain(t, fetch.source, 0)
	env := newTestEnv(t, fetch)

	_, err := env.mgr.Subscribe(testRegID, sorcha.ModeForwardOnly)
	require.NoError(t, err)

	sub := waitSub(t, env.mgr, func(s *Subscription) bool { return s.State == sorcha.SyncActive })
	assert.EqualValues(t, 100, sub.Progress())
	assert.True(t, sub.IsReceiving())
	assert.False(t, sub.CanParticipateInValidation())

	// forward-only never pulls history
	_, pulls := fetch.calls()
	assert.Zero(t, pulls)
}

func TestFullReplicaCatchUp(t *testing.T) {
	fetch := &fakeFetcher{source: newTestRepo(t)}
	seedSourceChain(t, fetch.source, 5)
	env := newTestEnv(t, fetch)

	_, err := env.mgr.Subscribe(testRegID, sorcha.ModeFullReplica)
	require.NoError(t, err)

	sub := waitSub(t, env.mgr, func(s *Subscription) bool { return s.State == sorcha.SyncFullyReplicated })
	assert.EqualValues(t, 6, sub.LastSyncedDocketVersion, "genesis plus five dockets")
	assert.EqualValues(t, 6, sub.TotalDocketsInChain)
	assert.EqualValues(t, 5, sub.LastSyncedTransactionVersion)
	assert.EqualValues(t, 100, sub.Progress())
	assert.True(t, sub.CanParticipateInValidation())

	height, err := env.repo.Height(testRegID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, height)

	// register metadata was adopted from the handshake
	meta, err := env.repo.Get(testRegID)
	require.NoError(t, err)
	assert.Equal(t, "orders", meta.Name)
	assert.Equal(t, "t1", meta.TenantID)

	cp, err := loadCheckpoint(env.mgr.cpDB, testRegID)
	require.NoError(t, err)
	assert.Equal(t, "src", cp.SourcePeerID)
	assert.EqualValues(t, 6, cp.CurrentVersion)
}

func TestDuplicateSubscribeRejected(t *testing.T) {
	fetch := &fakeFetcher{source: newTestRepo(t)}
	seedSourceChain(t, fetch.source, 0)
	env := newTestEnv(t, fetch)

	_, err := env.mgr.Subscribe(testRegID, sorcha.ModeForwardOnly)
	require.NoError(t, err)
	_, err = env.mgr.Subscribe(testRegID, sorcha.ModeFullReplica)
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, env.mgr.Unsubscribe(testRegID))
	_, err = env.mgr.Get(testRegID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.mgr.Unsubscribe(testRegID), ErrNotFound)

	_, err = env.mgr.Subscribe(testRegID, sorcha.ModeFullReplica)
	assert.NoError(t, err)
}

func TestFailureLatchAndReset(t *testing.T) {
	fetch := &fakeFetcher{source: newTestRepo(t), failWith: errors.New("peer unreachable")}
	env := newTestEnv(t, fetch)

	_, err := env.mgr.Subscribe(testRegID, sorcha.ModeFullReplica)
	require.NoError(t, err)

	for i := uint32(1); i < maxConsecutiveFailures; i++ {
		waitSub(t, env.mgr, func(s *Subscription) bool { return s.ConsecutiveFailures >= i })
		require.NoError(t, env.mgr.SyncNow(testRegID))
	}
	sub := waitSub(t, env.mgr, func(s *Subscription) bool { return s.State == sorcha.SyncError })
	assert.EqualValues(t, maxConsecutiveFailures, sub.ConsecutiveFailures)
	assert.Contains(t, sub.ErrorMessage, "peer unreachable")
	assert.False(t, sub.IsReceiving())

	// latched: further attempts are ignored
	before, _ := fetch.calls()
	require.NoError(t, env.mgr.SyncNow(testRegID))
	time.Sleep(50 * time.Millisecond)
	after, _ := fetch.calls()
	assert.Equal(t, before, after)

	// operator reset clears the latch and resumes syncing
	fetch.mu.Lock()
	fetch.failWith = nil
	fetch.mu.Unlock()
	seedSourceChain(t, fetch.source, 1)
	require.NoError(t, env.mgr.Reset(testRegID))

	sub = waitSub(t, env.mgr, func(s *Subscription) bool { return s.State == sorcha.SyncFullyReplicated })
	assert.Zero(t, sub.ConsecutiveFailures)
	assert.Empty(t, sub.ErrorMessage)
}

func TestRestartRestoresSubscriptions(t *testing.T) {
	fetch := &fakeFetcher{source: newTestRepo(t)}
	seedSourceChain(t, fetch.source, 2)
	env := newTestEnv(t, fetch)

	created, err := env.mgr.Subscribe(testRegID, sorcha.ModeFullReplica)
	require.NoError(t, err)
	waitSub(t, env.mgr, func(s *Subscription) bool { return s.State == sorcha.SyncFullyReplicated })
	env.mgr.Stop()

	mgr2, err := New(env.db, env.repo, env.store, fetch, Options{NodeID: "local"})
	require.NoError(t, err)
	t.Cleanup(mgr2.Stop)

	sub, err := mgr2.Get(testRegID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, sub.ID)
	assert.Equal(t, sorcha.SyncFullyReplicated, sub.State)
	assert.EqualValues(t, 3, sub.LastSyncedDocketVersion)
}

func TestProgressFormula(t *testing.T) {
	sub := &Subscription{Mode: sorcha.ModeFullReplica, State: sorcha.SyncSyncing}
	assert.EqualValues(t, 0, sub.Progress(), "unknown extent reports zero")

	sub.TotalDocketsInChain = 8
	sub.LastSyncedDocketVersion = 2
	assert.EqualValues(t, 25, sub.Progress())

	sub.LastSyncedDocketVersion = 12
	assert.EqualValues(t, 100, sub.Progress(), "clamped at 100")

	fwd := &Subscription{Mode: sorcha.ModeForwardOnly, State: sorcha.SyncSubscribing}
	assert.EqualValues(t, 0, fwd.Progress())
	fwd.State = sorcha.SyncActive
	assert.EqualValues(t, 100, fwd.Progress())
}

// growSourceChain extends an already seeded source chain by n more dockets.
func growSourceChain(t *testing.T, repo *register.Repository, n int) {
	t.Helper()
	height, err := repo.Height(testRegID)
	require.NoError(t, err)
	latest, err := repo.LatestDocket(testRegID)
	require.NoError(t, err)

	prev := latest.ID()
	for i := 0; i < n; i++ {
		v := height + uint64(i)
		priv, _, err := cry.GenerateKey(cry.ED25519)
		require.NoError(t, err)
		trx, err := new(tx.Builder).
			RegisterID(testRegID).
			BlueprintID("bp").
			SenderWallet("wallet-a").
			Payload("wallet-a", []byte(`{"n":2}`)).
			SubmittedAt(1700100000+v).
			Sign(cry.ED25519, priv)
		require.NoError(t, err)

		d := docket.New(testRegID, v, prev, 1700100001+v, []sorcha.Bytes32{trx.ID()})
		require.NoError(t, repo.AppendDocket(d, tx.Transactions{trx}))
		prev = d.ID()
	}
}

func TestFullReplicaTracksSourceGrowth(t *testing.T) {
	fetch := &fakeFetcher{source: newTestRepo(t)}
	seedSourceChain(t, fetch.source, 2)
	env := newTestEnv(t, fetch)

	_, err := env.mgr.Subscribe(testRegID, sorcha.ModeFullReplica)
	require.NoError(t, err)
	waitSub(t, env.mgr, func(s *Subscription) bool { return s.State == sorcha.SyncFullyReplicated })

	// the source chain keeps growing after the initial catch-up
	growSourceChain(t, fetch.source, 2)
	require.NoError(t, env.mgr.SyncNow(testRegID))

	sub := waitSub(t, env.mgr, func(s *Subscription) bool { return s.LastSyncedDocketVersion == 5 })
	assert.EqualValues(t, 5, sub.TotalDocketsInChain, "extent refreshed from the handshake")
	assert.Equal(t, sorcha.SyncFullyReplicated, sub.State)
	assert.EqualValues(t, 100, sub.Progress())

	height, err := env.repo.Height(testRegID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, height, "new dockets pulled")
}
