// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package register

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/kv"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

var logger = log.WithContext("pkg", "register")

var (
	errNotFound = errors.New("not found")

	// ErrStatusDeleted is returned for status transitions out of Deleted.
	ErrStatusDeleted = errors.New("register deleted; status is terminal")
)

// Repository stores register metadata, transactions and dockets.
//
// Per-register isolation is physical: each register gets its own storage
// namespaces, plus a small registry namespace for enumeration. The height
// increment and docket append commit as one atomic batch under a per-register
// advisory lock.
//
// It's thread-safe.
type Repository struct {
	db   kv.Store
	sink events.Sink

	registry kv.Store

	lock      sync.Mutex
	registers map[sorcha.RegisterID]*regState
}

// regState is the in-memory authoritative view of one register, rebuilt from
// durable state on restart.
type regState struct {
	appendLock sync.Mutex // advisory lock for height increment + docket append
	height     atomic.Uint64
	meta       atomic.Pointer[Register]
}

// NewRepository creates a repository over the kv store. Existing registers
// are loaded from the registry namespace.
func NewRepository(db kv.Store, sink events.Sink) (*Repository, error) {
	repo := &Repository{
		db:        db,
		sink:      sink,
		registry:  kv.Bucket(registryNS).NewStore(db),
		registers: make(map[sorcha.RegisterID]*regState),
	}

	iter := repo.registry.NewIterator(kv.Range{})
	defer iter.Release()
	for iter.Next() {
		meta, err := decodeRegister(iter.Value())
		if err != nil {
			return nil, errors.Wrap(err, "load registry")
		}
		state := &regState{}
		state.meta.Store(meta)

		height, err := loadHeight(repo.docketStore(meta.ID))
		if err != nil {
			return nil, errors.Wrapf(err, "load height of %v", meta.ID)
		}
		state.height.Store(height)
		repo.registers[meta.ID] = state
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "scan registry")
	}
	return repo, nil
}

func (r *Repository) txStore(id sorcha.RegisterID) kv.Store {
	return kv.Bucket(txNS(id)).NewStore(r.db)
}

func (r *Repository) docketStore(id sorcha.RegisterID) kv.Store {
	return kv.Bucket(docketNS(id)).NewStore(r.db)
}

func (r *Repository) state(id sorcha.RegisterID) (*regState, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	state, ok := r.registers[id]
	if !ok {
		return nil, errNotFound
	}
	return state, nil
}

// IsNotFound checks if the error means the requested entity is missing.
func (r *Repository) IsNotFound(err error) bool {
	return errors.Is(err, errNotFound) || r.db.IsNotFound(err)
}

// Create registers a new register with height 0 and Created status.
// The genesis docket is appended separately by the docket builder.
func (r *Repository) Create(meta *Register) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.registers[meta.ID]; ok {
		return errors.Errorf("register %v already exists", meta.ID)
	}

	cpy := *meta
	if err := saveRegister(r.registry, &cpy); err != nil {
		return errors.Wrap(err, "save register")
	}
	state := &regState{}
	state.meta.Store(&cpy)
	r.registers[meta.ID] = state

	r.sink.Emit(&events.Event{
		Kind:       events.KindRegisterCreated,
		RegisterID: meta.ID,
		Status:     cpy.Status.String(),
		Time:       uint64(time.Now().Unix()),
	})
	logger.Info("register created", "id", meta.ID, "name", meta.Name, "tenant", meta.TenantID)
	return nil
}

// Get returns the register metadata.
func (r *Repository) Get(id sorcha.RegisterID) (*Register, error) {
	state, err := r.state(id)
	if err != nil {
		return nil, err
	}
	cpy := *state.meta.Load()
	return &cpy, nil
}

// All lists all register metadata.
func (r *Repository) All() []*Register {
	r.lock.Lock()
	defer r.lock.Unlock()

	all := make([]*Register, 0, len(r.registers))
	for _, state := range r.registers {
		cpy := *state.meta.Load()
		all = append(all, &cpy)
	}
	return all
}

// CountByTenant counts registers owned by a tenant, excluding deleted ones.
func (r *Repository) CountByTenant(tenantID string) int {
	n := 0
	for _, meta := range r.All() {
		if meta.TenantID == tenantID && meta.Status != StatusDeleted {
			n++
		}
	}
	return n
}

// Height returns the committed docket count of a register.
func (r *Repository) Height(id sorcha.RegisterID) (uint64, error) {
	state, err := r.state(id)
	if err != nil {
		return 0, err
	}
	return state.height.Load(), nil
}

// SetStatus transitions the register status. Deleted is terminal.
func (r *Repository) SetStatus(id sorcha.RegisterID, status Status) error {
	state, err := r.state(id)
	if err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	cur := state.meta.Load()
	if cur.Status == status {
		return nil
	}
	if cur.Status == StatusDeleted {
		return ErrStatusDeleted
	}

	cpy := *cur
	cpy.Status = status
	if err := saveRegister(r.registry, &cpy); err != nil {
		return errors.Wrap(err, "save register")
	}
	state.meta.Store(&cpy)

	r.sink.Emit(&events.Event{
		Kind:       events.KindRegisterStatusChanged,
		RegisterID: id,
		Status:     status.String(),
		Time:       uint64(time.Now().Unix()),
	})
	logger.Info("register status changed", "id", id, "status", status)
	return nil
}

// SoftDelete marks the register Deleted. Data is never hard-deleted.
func (r *Repository) SoftDelete(id sorcha.RegisterID) error {
	return r.SetStatus(id, StatusDeleted)
}

// AppendDocket appends the docket with its resolved transactions to the
// register. It verifies the chain invariants, commits docket, transactions,
// indexes and the height as one atomic batch, then emits docket.confirmed,
// per-tx transaction.confirmed and register.height_updated.
func (r *Repository) AppendDocket(d *docket.Docket, txs tx.Transactions) error {
	state, err := r.state(d.RegisterID())
	if err != nil {
		return err
	}

	state.appendLock.Lock()
	defer state.appendLock.Unlock()

	height := state.height.Load()
	if d.Version() != height {
		return errors.Errorf("docket version %d != current height %d", d.Version(), height)
	}
	if height > 0 {
		prev, err := r.GetDocketByVersion(d.RegisterID(), height-1)
		if err != nil {
			return errors.Wrap(err, "load previous docket")
		}
		if prev.ID() != d.PrevDocketID() {
			return errors.New("previous docket id mismatch")
		}
	} else if !d.PrevDocketID().IsZero() {
		return errors.New("genesis docket must have zero previous id")
	}
	if !d.VerifyMerkleRoot() {
		return errors.New("docket merkle root mismatch")
	}
	if err := matchTxSet(d, txs); err != nil {
		return err
	}

	batch := r.db.NewBatch()
	if err := saveDocket(batchNamespace(batch, docketNS(d.RegisterID())), d); err != nil {
		return errors.Wrap(err, "save docket")
	}
	txBatch := batchNamespace(batch, txNS(d.RegisterID()))
	for _, trx := range txs {
		if err := saveTransaction(txBatch, trx, d); err != nil {
			return errors.Wrap(err, "save tx")
		}
	}
	if err := saveHeight(batchNamespace(batch, docketNS(d.RegisterID())), height+1); err != nil {
		return errors.Wrap(err, "save height")
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "commit docket batch")
	}

	if !state.height.CompareAndSwap(height, height+1) {
		// the advisory lock makes this unreachable; a regression here means
		// the monotonic-height invariant broke
		panic("register height regressed")
	}

	now := uint64(time.Now().Unix())
	docketID := d.ID()
	r.sink.Emit(&events.Event{
		Kind:          events.KindDocketConfirmed,
		RegisterID:    d.RegisterID(),
		DocketID:      &docketID,
		DocketVersion: d.Version(),
		TxIDs:         d.TxIDs(),
		Time:          now,
	})
	for _, txID := range d.TxIDs() {
		id := txID
		r.sink.Emit(&events.Event{
			Kind:          events.KindTransactionConfirmed,
			RegisterID:    d.RegisterID(),
			TxID:          &id,
			DocketID:      &docketID,
			DocketVersion: d.Version(),
			Time:          now,
		})
	}
	r.sink.Emit(&events.Event{
		Kind:       events.KindRegisterHeightUpdated,
		RegisterID: d.RegisterID(),
		Height:     height + 1,
		Time:       now,
	})

	logger.Debug("docket committed",
		"register", d.RegisterID(),
		"version", d.Version(),
		"txs", len(d.TxIDs()),
	)
	return nil
}

func matchTxSet(d *docket.Docket, txs tx.Transactions) error {
	ids := d.TxIDs()
	if len(ids) != len(txs) {
		return errors.Errorf("docket carries %d tx ids but %d transactions resolved", len(ids), len(txs))
	}
	for i, trx := range txs {
		if trx.ID() != ids[i] {
			return errors.Errorf("tx at position %d does not match docket order", i)
		}
		if trx.RegisterID() != d.RegisterID() {
			return errors.New("tx belongs to another register")
		}
	}
	return nil
}

// GetDocketByVersion loads the docket at the given version.
func (r *Repository) GetDocketByVersion(id sorcha.RegisterID, version uint64) (*docket.Docket, error) {
	d, err := loadDocket(r.docketStore(id), version)
	if err != nil {
		if r.db.IsNotFound(err) {
			return nil, errNotFound
		}
		return nil, err
	}
	return d, nil
}

// LatestDocket returns the most recently committed docket.
func (r *Repository) LatestDocket(id sorcha.RegisterID) (*docket.Docket, error) {
	height, err := r.Height(id)
	if err != nil {
		return nil, err
	}
	if height == 0 {
		return nil, errNotFound
	}
	return r.GetDocketByVersion(id, height-1)
}

// GetTransaction loads a committed transaction by id.
func (r *Repository) GetTransaction(id sorcha.RegisterID, txID sorcha.Bytes32) (*tx.Transaction, error) {
	trx, err := loadTransaction(r.txStore(id), txID)
	if err != nil {
		if r.db.IsNotFound(err) {
			return nil, errNotFound
		}
		return nil, err
	}
	return trx, nil
}

// HasTransaction checks whether a transaction is committed.
func (r *Repository) HasTransaction(id sorcha.RegisterID, txID sorcha.Bytes32) (bool, error) {
	has, err := r.txStore(id).Has(txKey(txID))
	if err != nil {
		return false, err
	}
	return has, nil
}

// GetTransactionMeta returns the docket placement of a committed transaction.
func (r *Repository) GetTransactionMeta(id sorcha.RegisterID, txID sorcha.Bytes32) (*TxMeta, error) {
	meta, err := loadTxMeta(r.txStore(id), txID)
	if err != nil {
		if r.db.IsNotFound(err) {
			return nil, errNotFound
		}
		return nil, err
	}
	return meta, nil
}

// GetTransactionsSince returns transactions included in dockets with version
// greater than the given version, in commit order.
func (r *Repository) GetTransactionsSince(id sorcha.RegisterID, version uint64) (tx.Transactions, error) {
	height, err := r.Height(id)
	if err != nil {
		return nil, err
	}

	var all tx.Transactions
	for v := version + 1; v < height; v++ {
		d, err := r.GetDocketByVersion(id, v)
		if err != nil {
			return nil, err
		}
		for _, txID := range d.TxIDs() {
			trx, err := r.GetTransaction(id, txID)
			if err != nil {
				return nil, err
			}
			all = append(all, trx)
		}
	}
	return all, nil
}
