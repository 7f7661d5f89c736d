// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package packer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/blueprint"
	"github.com/sorchain/sorcha/consensus"
	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/lvldb"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
	"github.com/sorchain/sorcha/validator"
)

var testRegID = sorcha.MustParseRegisterID("00112233445566778899aabbccddeeff")

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Emit(ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	repo   *register.Repository
	pl     *validator.Pipeline
	packer *Packer
	sink   *recorder
	privA  []byte
	privB  []byte
}

func pingPong() *blueprint.Blueprint {
	return &blueprint.Blueprint{
		ID:      "bp-pingpong",
		Title:   "Ping Pong",
		Version: 1,
		Participants: []blueprint.Participant{
			{ID: "pinger", WalletAddress: "wallet-a"},
			{ID: "ponger", WalletAddress: "wallet-b"},
		},
		Actions: []blueprint.Action{
			{ID: 0, Title: "Ping", SenderID: "pinger", RecipientIDs: []string{"ponger"},
				DataSchema:    []blueprint.DataField{{ID: "count", Type: blueprint.FieldNumber, Required: true}},
				NextActionIDs: []uint32{1}},
			{ID: 1, Title: "Pong", SenderID: "ponger", RecipientIDs: []string{"pinger"},
				DataSchema:    []blueprint.DataField{{ID: "count", Type: blueprint.FieldNumber, Required: true}},
				NextActionIDs: []uint32{0}},
		},
	}
}

func newFixture(t *testing.T, engineOpts consensus.Options, valOpts validator.Options) *fixture {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sink := &recorder{}
	repo, err := register.NewRepository(db, sink)
	require.NoError(t, err)
	require.NoError(t, repo.Create(&register.Register{ID: testRegID, Name: "orders", TenantID: "t1"}))

	cache := blueprint.NewCache(blueprint.ResolverFunc(func(context.Context, string) (*blueprint.Blueprint, error) {
		return nil, blueprint.ErrNotFound
	}), 8)
	require.NoError(t, cache.Put(pingPong()))

	pl := validator.New(repo, cache, valOpts)

	engine := consensus.New(
		consensus.ValidatorProviderFunc(func(sorcha.RegisterID) []string { return nil }),
		&consensus.LocalApprover{},
		engineOpts,
	)

	privA, _, err := cry.GenerateKey(cry.ED25519)
	require.NoError(t, err)
	privB, _, err := cry.GenerateKey(cry.ED25519)
	require.NoError(t, err)

	return &fixture{
		repo:   repo,
		pl:     pl,
		packer: New(repo, pl, engine, Options{TickInterval: 20 * time.Millisecond}),
		sink:   sink,
		privA:  privA,
		privB:  privB,
	}
}

func (f *fixture) submitPing(t *testing.T, submittedAt uint64) *tx.Transaction {
	t.Helper()
	trx, err := new(tx.Builder).
		RegisterID(testRegID).
		BlueprintID("bp-pingpong").
		SenderWallet("wallet-a").
		Payload("wallet-a", []byte(`{"count":1}`)).
		SubmittedAt(submittedAt).
		Sign(cry.ED25519, f.privA)
	require.NoError(t, err)
	r := f.pl.Submit(context.Background(), trx)
	require.Nil(t, r.Err)
	require.True(t, r.Accepted)
	return trx
}

func waitHeight(t *testing.T, repo *register.Repository, want uint64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h, err := repo.Height(testRegID); err == nil && h >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h, _ := repo.Height(testRegID)
	t.Fatalf("height %d never reached, at %d", want, h)
}

func TestGenesisBuiltUnconditionally(t *testing.T) {
	f := newFixture(t, consensus.Options{AutoApprove: true}, validator.Options{})
	f.packer.Start()
	t.Cleanup(f.packer.Stop)

	waitHeight(t, f.repo, 1)
	genesis, err := f.repo.GetDocketByVersion(testRegID, 0)
	require.NoError(t, err)
	assert.True(t, genesis.IsGenesis())
	assert.Empty(t, genesis.TxIDs())

	// steady-state empty ticks build nothing further
	time.Sleep(100 * time.Millisecond)
	h, err := f.repo.Height(testRegID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h)
}

func TestPingPongCommits(t *testing.T) {
	f := newFixture(t, consensus.Options{AutoApprove: true}, validator.Options{})
	f.packer.Start()
	t.Cleanup(f.packer.Stop)
	waitHeight(t, f.repo, 1)

	ping := f.submitPing(t, 100)
	waitHeight(t, f.repo, 2)

	pong, err := new(tx.Builder).
		RegisterID(testRegID).
		BlueprintID("bp-pingpong").
		PrevTxID(ping.ID()).
		SenderWallet("wallet-b").
		Payload("wallet-a", []byte(`{"count":1}`)).
		Payload("wallet-b", []byte(`{"count":1}`)).
		SubmittedAt(101).
		Sign(cry.ED25519, f.privB)
	require.NoError(t, err)
	r := f.pl.Submit(context.Background(), pong)
	require.Nil(t, r.Err)
	waitHeight(t, f.repo, 3)

	d1, err := f.repo.GetDocketByVersion(testRegID, 1)
	require.NoError(t, err)
	assert.Equal(t, []sorcha.Bytes32{ping.ID()}, d1.TxIDs())
	d2, err := f.repo.GetDocketByVersion(testRegID, 2)
	require.NoError(t, err)
	assert.Equal(t, []sorcha.Bytes32{pong.ID()}, d2.TxIDs())
	assert.Equal(t, d1.ID(), d2.PrevDocketID())

	assert.Equal(t, 2, f.sink.count(events.KindTransactionConfirmed))
	assert.Equal(t, 3, f.sink.count(events.KindDocketConfirmed))
}

func TestBatchDrain(t *testing.T) {
	f := newFixture(t, consensus.Options{AutoApprove: true}, validator.Options{})
	// drive the packer synchronously
	require.NoError(t, f.repo.AppendDocket(docket.NewGenesis(testRegID, 1), nil))

	first := f.submitPing(t, 100)
	second := f.submitPing(t, 101)
	third := f.submitPing(t, 102)

	f.packer.Pack(context.Background(), testRegID)

	d, err := f.repo.GetDocketByVersion(testRegID, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]sorcha.Bytes32{first.ID(), second.ID(), third.ID()}, d.TxIDs())
	assert.Zero(t, f.pl.QueueLen(testRegID))
}

func TestSealFailureRequeues(t *testing.T) {
	f := newFixture(t, consensus.Options{AutoApprove: false}, validator.Options{MaxRetries: 100})
	// commit genesis out of band so only the tx docket needs sealing
	require.NoError(t, f.repo.AppendDocket(docket.NewGenesis(testRegID, 1), nil))

	f.submitPing(t, 100)
	f.packer.Pack(context.Background(), testRegID)

	h, err := f.repo.Height(testRegID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, h, "nothing committed without validators")
	assert.Equal(t, 1, f.pl.QueueLen(testRegID), "batch requeued")
}
