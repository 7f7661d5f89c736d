// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorchain/sorcha/comm/proto"
	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/p2psrv"
	"github.com/sorchain/sorcha/p2psrv/rpc"
	"github.com/sorchain/sorcha/peerstore"
	"github.com/sorchain/sorcha/quorum"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

var testRegID = sorcha.MustParseRegisterID("00112233445566778899aabbccddeeff")

type fixture struct {
	node      *Node
	ownerPriv []byte
	ownerPub  []byte
}

func newTestNode(t *testing.T, cfg sorcha.Config) *fixture {
	t.Helper()
	n, err := New(cfg, Options{NodeID: "n1"})
	require.NoError(t, err)
	t.Cleanup(func() {
		n.pl.Close()
		n.subs.Stop()
		n.srv.Stop()
		n.db.Close()
	})

	priv, pub, err := cry.GenerateKey(cry.ED25519)
	require.NoError(t, err)
	return &fixture{node: n, ownerPriv: priv, ownerPub: pub}
}

func (f *fixture) ownerAttestation() quorum.Attestation {
	return quorum.Attestation{
		Subject:   "owner",
		Wallet:    "wallet-owner",
		PublicKey: f.ownerPub,
		Algorithm: string(cry.ED25519),
		GrantedAt: 100,
	}
}

// controlTx wraps an encoded control payload in a signed genesis-blueprint
// transaction.
func (f *fixture) controlTx(t *testing.T, payload []byte, submittedAt uint64) *tx.Transaction {
	t.Helper()
	trx, err := new(tx.Builder).
		RegisterID(testRegID).
		BlueprintID(sorcha.GenesisBlueprintID).
		SenderWallet("wallet-owner").
		Payload("wallet-owner", payload).
		SubmittedAt(submittedAt).
		Sign(cry.ED25519, f.ownerPriv)
	require.NoError(t, err)
	return trx
}

func (f *fixture) createRegister(t *testing.T) *quorum.ControlRecord {
	t.Helper()
	cr, err := quorum.NewControlRecord(testRegID, "orders", "t1", f.ownerAttestation())
	require.NoError(t, err)
	payload, err := cr.Encode()
	require.NoError(t, err)

	meta := &register.Register{ID: testRegID, Name: "orders", TenantID: "t1"}
	require.NoError(t, f.node.CreateRegister(meta, f.controlTx(t, payload, 100)))
	return cr
}

func TestCreateRegisterCommitsControlRecord(t *testing.T) {
	f := newTestNode(t, sorcha.DefaultConfig())
	f.createRegister(t)

	// genesis docket plus the control transaction docket
	f.node.packer.Pack(context.Background(), testRegID)
	height, err := f.node.repo.Height(testRegID)
	require.NoError(t, err)
	require.EqualValues(t, 2, height)

	cr, err := f.node.ControlRecord(testRegID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, cr.Sequence)
	owner, ok := cr.Owner()
	require.True(t, ok)
	assert.Equal(t, "owner", owner.Subject)
}

func TestCreateRegisterTenantCap(t *testing.T) {
	cfg := sorcha.DefaultConfig()
	cfg.MaxRegistersPerTenant = 1
	f := newTestNode(t, cfg)
	f.createRegister(t)

	other := sorcha.MustParseRegisterID("ffeeddccbbaa99887766554433221100")
	meta := &register.Register{ID: other, Name: "invoices", TenantID: "t1"}
	err := f.node.CreateRegister(meta, f.controlTx(t, []byte{0x01}, 101))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register cap")
}

func TestCreateRegisterRejectsNonControlTx(t *testing.T) {
	f := newTestNode(t, sorcha.DefaultConfig())
	meta := &register.Register{ID: testRegID, Name: "orders", TenantID: "t1"}

	trx, err := new(tx.Builder).
		RegisterID(testRegID).
		BlueprintID("bp-something").
		SenderWallet("wallet-owner").
		Payload("wallet-owner", []byte(`{}`)).
		SubmittedAt(100).
		Sign(cry.ED25519, f.ownerPriv)
	require.NoError(t, err)

	err = f.node.CreateRegister(meta, trx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "genesis blueprint")
}

func TestControlMutationAdvancesRoster(t *testing.T) {
	f := newTestNode(t, sorcha.DefaultConfig())
	cr := f.createRegister(t)
	f.node.packer.Pack(context.Background(), testRegID)

	_, adminPub, err := cry.GenerateKey(cry.ED25519)
	require.NoError(t, err)
	m := quorum.Mutation{
		Kind: quorum.OpAddAttestation,
		Grant: &quorum.Attestation{
			Subject:   "admin-1",
			Wallet:    "wallet-admin",
			Role:      quorum.RoleAdmin,
			PublicKey: adminPub,
			Algorithm: string(cry.ED25519),
			GrantedAt: 200,
		},
	}
	sig, _, err := cry.Sign(cry.ED25519, f.ownerPriv, m.SigningMessage(cr))
	require.NoError(t, err)
	sm := &quorum.SignedMutation{
		Mutation:   m,
		Signatures: []quorum.MemberSignature{{Subject: "owner", Signature: sig}},
	}
	payload, err := sm.Encode()
	require.NoError(t, err)

	receipt := f.node.pl.Submit(context.Background(), f.controlTx(t, payload, 200))
	require.Nil(t, receipt.Err)
	require.True(t, receipt.Accepted)
	f.node.packer.Pack(context.Background(), testRegID)

	got, err := f.node.ControlRecord(testRegID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Sequence)
	assert.Len(t, got.Roster, 2)
	_, ok := got.Find("admin-1")
	assert.True(t, ok)
}

func TestNetworkSubmitIdempotent(t *testing.T) {
	f := newTestNode(t, sorcha.DefaultConfig())
	cr, err := quorum.NewControlRecord(testRegID, "orders", "t1", f.ownerAttestation())
	require.NoError(t, err)
	payload, err := cr.Encode()
	require.NoError(t, err)
	meta := &register.Register{ID: testRegID, Name: "orders", TenantID: "t1"}
	require.NoError(t, f.node.CreateRegister(meta, f.controlTx(t, payload, 100)))

	trx := f.controlTx(t, payload, 101)
	require.NoError(t, f.node.submitFromNetwork(trx, "peer-1"))
	require.NoError(t, f.node.submitFromNetwork(trx, "peer-1"), "duplicates are not errors")
	assert.Equal(t, 2, f.node.pl.QueueLen(testRegID))
}

// TestVerifiedTransactionGossipsToPeers covers the full path from a local
// submission through the verified hook to the wire: a connected peer must
// see a transaction notification without any packer or comm loop running.
func TestVerifiedTransactionGossipsToPeers(t *testing.T) {
	peer := p2psrv.New(p2psrv.Options{
		PeerID:            "peer-1",
		ListenAddr:        "127.0.0.1:0",
		HeartbeatInterval: time.Minute,
		ConnectTimeout:    2 * time.Second,
	})
	notified := make(chan *proto.TxNotification, 4)
	peer.HandleFunc(proto.MsgTransactionNotify, func(_ *p2psrv.Session, msg *rpc.Msg, _ func(any)) error {
		var n proto.TxNotification
		if err := msg.Decode(&n); err != nil {
			return err
		}
		notified <- &n
		return nil
	})
	require.NoError(t, peer.Start())
	t.Cleanup(peer.Stop)

	f := newTestNode(t, sorcha.DefaultConfig())
	host, portStr, err := net.SplitHostPort(peer.ListenAddr())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)
	f.node.store.AddOrUpdate(&peerstore.Peer{ID: "peer-1", Address: host, Port: uint16(port)})
	require.NoError(t, f.node.srv.Connect(context.Background(), "peer-1", peer.ListenAddr()))

	// the genesis control transaction goes through the pipeline like any
	// other submission
	f.createRegister(t)

	select {
	case n := <-notified:
		assert.Equal(t, testRegID, n.RegisterID)
		assert.Equal(t, "n1", n.Origin)
		assert.NotEqual(t, sorcha.Bytes32{}, n.TxID)
	case <-time.After(3 * time.Second):
		t.Fatal("verified transaction never announced to the peer")
	}
}
