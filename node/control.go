// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package node

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/quorum"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

// controller tracks the membership control record of every hosted
// register. The record is seeded by the first committed control
// transaction and advanced by every later one; a restart replays the
// committed chain.
type controller struct {
	repo *register.Repository

	lock sync.Mutex
	regs map[sorcha.RegisterID]*controlState
}

type controlState struct {
	record *quorum.ControlRecord
	// hasTxs is set once any non-control transaction commits; it pins
	// the owner to the roster.
	hasTxs bool
}

func newController(repo *register.Repository) *controller {
	return &controller{
		repo: repo,
		regs: make(map[sorcha.RegisterID]*controlState),
	}
}

// Record returns the current control record of the register, replaying
// the committed chain on first access.
func (c *controller) Record(id sorcha.RegisterID) (*quorum.ControlRecord, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	st, err := c.loadLocked(id)
	if err != nil {
		return nil, err
	}
	if st.record == nil {
		return nil, errors.Errorf("register %v has no control record yet", id)
	}
	return st.record, nil
}

func (c *controller) loadLocked(id sorcha.RegisterID) (*controlState, error) {
	if st, ok := c.regs[id]; ok {
		return st, nil
	}

	st := &controlState{}
	txs, err := c.repo.GetTransactionsSince(id, 0)
	if err != nil && !c.repo.IsNotFound(err) {
		return nil, errors.Wrap(err, "replay control chain")
	}
	for _, trx := range txs {
		if err := st.apply(trx); err != nil {
			logger.Warn("skipping bad control transaction during replay",
				"register", id, "tx", trx.ID(), "err", err)
		}
	}
	c.regs[id] = st
	return st, nil
}

// apply advances the state by one committed transaction.
func (st *controlState) apply(trx *tx.Transaction) error {
	if !trx.IsGenesis() {
		st.hasTxs = true
		return nil
	}
	payload := trx.Payloads().First()
	if payload == nil {
		return errors.New("control transaction has no payload")
	}

	if st.record == nil {
		cr, err := quorum.Decode(payload.Data)
		if err != nil {
			return err
		}
		if cr.RegisterID != trx.RegisterID() {
			return errors.New("control record register mismatch")
		}
		st.record = cr
		return nil
	}

	sm, err := quorum.DecodeMutation(payload.Data)
	if err != nil {
		return err
	}
	next, err := st.record.Apply(&sm.Mutation, sm.Signatures, st.hasTxs)
	if err != nil {
		return err
	}
	st.record = next
	return nil
}

// onEvent feeds committed transactions into the cached state. Registers
// not yet cached are left alone; the lazy replay covers them.
func (c *controller) onEvent(ev *events.Event) {
	if ev.Kind != events.KindTransactionConfirmed || ev.TxID == nil {
		return
	}
	c.lock.Lock()
	st, ok := c.regs[ev.RegisterID]
	c.lock.Unlock()
	if !ok {
		return
	}

	trx, err := c.repo.GetTransaction(ev.RegisterID, *ev.TxID)
	if err != nil {
		logger.Warn("confirmed transaction not readable", "register", ev.RegisterID, "tx", ev.TxID, "err", err)
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := st.apply(trx); err != nil {
		logger.Warn("rejecting committed control mutation", "register", ev.RegisterID, "tx", trx.ID(), "err", err)
	}
}
