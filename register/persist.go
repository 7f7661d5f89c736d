// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package register

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/kv"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

// Storage namespaces. The registry is shared; transactions and dockets get
// one physical namespace per register so a corrupted register cannot leak
// into its neighbours.
const registryNS = "rg.x."

func txNS(id sorcha.RegisterID) kv.Bucket {
	return kv.Bucket("rg.t." + id.String() + ".")
}

func docketNS(id sorcha.RegisterID) kv.Bucket {
	return kv.Bucket("rg.d." + id.String() + ".")
}

// Key flags inside the per-register namespaces.
const (
	docketFlag      = byte(0) // + 8-byte big-endian version -> docket blob
	txFlag          = byte(0) // + tx id -> tx blob
	txMetaFlag      = byte(1) // + tx id -> tx meta blob
	txSubmittedFlag = byte(2) // + 8-byte ts + tx id -> nil (submitted_at index)
)

var heightKey = []byte("height")

// TxMeta records where a committed transaction landed.
type TxMeta struct {
	DocketID      sorcha.Bytes32
	DocketVersion uint64
	Index         uint32
}

func docketKey(version uint64) []byte {
	key := make([]byte, 9)
	key[0] = docketFlag
	binary.BigEndian.PutUint64(key[1:], version)
	return key
}

func txKey(txID sorcha.Bytes32) []byte {
	return append([]byte{txFlag}, txID.Bytes()...)
}

func txMetaKey(txID sorcha.Bytes32) []byte {
	return append([]byte{txMetaFlag}, txID.Bytes()...)
}

func txSubmittedKey(submittedAt uint64, txID sorcha.Bytes32) []byte {
	key := make([]byte, 0, 41)
	key = append(key, txSubmittedFlag)
	key = binary.BigEndian.AppendUint64(key, submittedAt)
	return append(key, txID.Bytes()...)
}

// nsPutter prefixes every key written to a batch, mirroring kv.Bucket for
// batch writes.
type nsPutter struct {
	prefix string
	putter kv.Putter
}

func batchNamespace(batch kv.Batch, ns kv.Bucket) kv.Putter {
	return &nsPutter{string(ns), batch}
}

func (p *nsPutter) Put(key, val []byte) error {
	return p.putter.Put(append([]byte(p.prefix), key...), val)
}

func (p *nsPutter) Delete(key []byte) error {
	return p.putter.Delete(append([]byte(p.prefix), key...))
}

func saveRegister(w kv.Putter, meta *Register) error {
	enc, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	return w.Put(meta.ID.Bytes(), enc)
}

func decodeRegister(data []byte) (*Register, error) {
	var meta Register
	if err := rlp.DecodeBytes(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func saveHeight(w kv.Putter, height uint64) error {
	return w.Put(heightKey, binary.BigEndian.AppendUint64(nil, height))
}

func loadHeight(r kv.Getter) (uint64, error) {
	data, err := r.Get(heightKey)
	if err != nil {
		if r.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, errors.New("corrupted height value")
	}
	return binary.BigEndian.Uint64(data), nil
}

func saveDocket(w kv.Putter, d *docket.Docket) error {
	enc, err := rlp.EncodeToBytes(d)
	if err != nil {
		return err
	}
	return w.Put(docketKey(d.Version()), enc)
}

func loadDocket(r kv.Getter, version uint64) (*docket.Docket, error) {
	data, err := r.Get(docketKey(version))
	if err != nil {
		return nil, err
	}
	var d docket.Docket
	if err := rlp.DecodeBytes(data, &d); err != nil {
		return nil, errors.Wrap(err, "decode docket")
	}
	return &d, nil
}

func saveTransaction(w kv.Putter, trx *tx.Transaction, d *docket.Docket) error {
	enc, err := rlp.EncodeToBytes(trx)
	if err != nil {
		return err
	}
	txID := trx.ID()
	if err := w.Put(txKey(txID), enc); err != nil {
		return err
	}

	index := uint32(0)
	for i, id := range d.TxIDs() {
		if id == txID {
			index = uint32(i)
			break
		}
	}
	meta := TxMeta{DocketID: d.ID(), DocketVersion: d.Version(), Index: index}
	metaEnc, err := rlp.EncodeToBytes(&meta)
	if err != nil {
		return err
	}
	if err := w.Put(txMetaKey(txID), metaEnc); err != nil {
		return err
	}
	return w.Put(txSubmittedKey(trx.SubmittedAt(), txID), nil)
}

func loadTransaction(r kv.Getter, txID sorcha.Bytes32) (*tx.Transaction, error) {
	data, err := r.Get(txKey(txID))
	if err != nil {
		return nil, err
	}
	var trx tx.Transaction
	if err := rlp.DecodeBytes(data, &trx); err != nil {
		return nil, errors.Wrap(err, "decode tx")
	}
	return &trx, nil
}

func loadTxMeta(r kv.Getter, txID sorcha.Bytes32) (*TxMeta, error) {
	data, err := r.Get(txMetaKey(txID))
	if err != nil {
		return nil, err
	}
	var meta TxMeta
	if err := rlp.DecodeBytes(data, &meta); err != nil {
		return nil, errors.Wrap(err, "decode tx meta")
	}
	return &meta, nil
}
