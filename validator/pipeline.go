// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package validator implements the submission pipeline: admission,
// deterministic validation stages, the per-register verified queue the
// docket builder drains, and the poison queue for commit-stage failures.
package validator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/sorchain/sorcha/blueprint"
	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/register"
	"github.com/sorchain/sorcha/sorcha"
	"github.com/sorchain/sorcha/tx"
)

var logger = log.WithContext("pkg", "validator")

var (
	metricSubmits    = metrics.LazyLoadCounterVec("validator_submit_count", []string{"outcome"})
	metricQueueGauge = metrics.LazyLoadGaugeVec("validator_verified_queue_gauge", []string{"register"})
)

// Stage names the pipeline stage a submission reached.
type Stage string

const (
	StageAdmission   Stage = "admission"
	StageStructural  Stage = "structural"
	StagePayloadHash Stage = "payload_hash"
	StageSignature   Stage = "signature"
	StageBlueprint   Stage = "blueprint"
	StageSchema      Stage = "schema"
	StageConformance Stage = "conformance"
	StageVerified    Stage = "verified"
)

// Receipt is the one synchronous decision a submission gets.
type Receipt struct {
	Accepted     bool
	StageReached Stage
	Duplicate    bool
	Err          *Error
}

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	UnverifiedSoftCap int
	VerifiedQueueCap  int
	MaxTxSize         int
	MaxRetries        int
	AdmitRate         rate.Limit
	AdmitBurst        int

	// Sink receives transaction.submitted events for accepted
	// submissions; nil disables emission.
	Sink events.Sink

	// OnVerified is invoked with every transaction newly accepted into
	// the verified queue. The replication layer hooks gossip here; nil
	// disables it.
	OnVerified func(trx *tx.Transaction)
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.UnverifiedSoftCap == 0 {
		opts.UnverifiedSoftCap = 1000
	}
	if opts.VerifiedQueueCap == 0 {
		opts.VerifiedQueueCap = 10000
	}
	if opts.MaxTxSize == 0 {
		opts.MaxTxSize = 10 * 1024 * 1024
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.AdmitRate == 0 {
		opts.AdmitRate = 200
	}
	if opts.AdmitBurst == 0 {
		opts.AdmitBurst = 400
	}
	return opts
}

// Poisoned is a verified transaction that repeatedly failed at commit
// stage, parked with full context for operator inspection.
type Poisoned struct {
	Tx       *tx.Verified
	Attempts int
	LastErr  string
	MovedAt  time.Time
}

// Pipeline runs validation stages 1..7 synchronously per submission and
// maintains per-register verified queues. Admission and verification run
// in parallel across transactions; everything from the verified queue
// onward is serialised per register by the docket builder.
type Pipeline struct {
	repo       *register.Repository
	blueprints *blueprint.Cache
	opts       Options

	lock sync.Mutex
	regs map[sorcha.RegisterID]*regPipeline

	queuedFeed event.Feed
	scope      event.SubscriptionScope
	closed     atomic.Bool
	now        func() time.Time
}

// regPipeline is the per-register pipeline state.
type regPipeline struct {
	lock       sync.Mutex
	unverified map[sorcha.Bytes32]struct{}
	queued     map[sorcha.Bytes32]struct{}
	verified   tx.VerifiedList
	attempts   map[sorcha.Bytes32]int
	poison     []*Poisoned
	limiter    *rate.Limiter

	// blueprint instance heads: last committed tx id -> its action id
	heads  map[sorcha.Bytes32]uint32
	loaded bool
}

// New creates the pipeline over the register store and blueprint cache.
func New(repo *register.Repository, blueprints *blueprint.Cache, opts Options) *Pipeline {
	return &Pipeline{
		repo:       repo,
		blueprints: blueprints,
		opts:       opts.withDefaults(),
		regs:       make(map[sorcha.RegisterID]*regPipeline),
		now:        time.Now,
	}
}

// Close stops admission. In-flight verified work stays drainable so the
// docket builder can finish its shutdown pass.
func (p *Pipeline) Close() {
	p.closed.Store(true)
	p.scope.Close()
}

// SubscribeQueued delivers the register id whenever its verified queue
// transitions from empty to non-empty. The docket builder uses this for
// immediate builds.
func (p *Pipeline) SubscribeQueued(ch chan<- sorcha.RegisterID) event.Subscription {
	return p.scope.Track(p.queuedFeed.Subscribe(ch))
}

func (p *Pipeline) reg(id sorcha.RegisterID) *regPipeline {
	p.lock.Lock()
	defer p.lock.Unlock()
	rp, ok := p.regs[id]
	if !ok {
		rp = &regPipeline{
			unverified: make(map[sorcha.Bytes32]struct{}),
			queued:     make(map[sorcha.Bytes32]struct{}),
			attempts:   make(map[sorcha.Bytes32]int),
			heads:      make(map[sorcha.Bytes32]uint32),
			limiter:    rate.NewLimiter(p.opts.AdmitRate, p.opts.AdmitBurst),
		}
		p.regs[id] = rp
	}
	return rp
}

// Submit runs the full validation pipeline and returns the one
// synchronous decision. Duplicates are accepted without re-entering the
// pipeline, which keeps gossip idempotent.
func (p *Pipeline) Submit(ctx context.Context, trx *tx.Transaction) *Receipt {
	receipt := p.submit(ctx, trx)
	outcome := "accepted"
	switch {
	case receipt.Duplicate:
		outcome = "duplicate"
	case !receipt.Accepted:
		outcome = string(receipt.Err.Code)
	}
	metricSubmits().AddWithLabel(1, map[string]string{"outcome": outcome})

	if receipt.Accepted && !receipt.Duplicate {
		if p.opts.Sink != nil {
			txID := trx.ID()
			p.opts.Sink.Emit(&events.Event{
				Kind:       events.KindTransactionSubmitted,
				RegisterID: trx.RegisterID(),
				TxID:       &txID,
				Time:       uint64(p.now().Unix()),
			})
		}
		if p.opts.OnVerified != nil {
			p.opts.OnVerified(trx)
		}
	}
	return receipt
}

func (p *Pipeline) submit(ctx context.Context, trx *tx.Transaction) *Receipt {
	regID := trx.RegisterID()
	txID := trx.ID()
	rp := p.reg(regID)

	// stage 1: admission
	if rejection := p.admit(rp, regID, trx); rejection != nil {
		if rejection.Code == "" {
			// duplicate marker
			return &Receipt{Accepted: true, StageReached: StageAdmission, Duplicate: true}
		}
		return &Receipt{StageReached: StageAdmission, Err: rejection}
	}
	defer func() {
		rp.lock.Lock()
		delete(rp.unverified, txID)
		rp.lock.Unlock()
	}()

	// stages 2..4 are blueprint-independent
	if rejection := p.checkStructure(trx); rejection != nil {
		return &Receipt{StageReached: StageStructural, Err: rejection}
	}
	if trx.Payloads().Hash() != trx.PayloadHash() {
		return &Receipt{StageReached: StagePayloadHash, Err: reject(CodeHash, "payload hash mismatch")}
	}
	if ok, err := trx.VerifySignature(); err != nil || !ok {
		return &Receipt{StageReached: StageSignature, Err: reject(CodeSignature, "signature verification failed")}
	}

	// stages 5..7: the genesis sentinel skips blueprint-bound checks
	var action *blueprint.Action
	if !trx.IsGenesis() {
		bp, err := p.blueprints.Get(ctx, trx.BlueprintID())
		if err != nil {
			if errors.Is(err, blueprint.ErrNotFound) {
				return &Receipt{StageReached: StageBlueprint, Err: reject(CodeBlueprint, "unknown blueprint %q", trx.BlueprintID())}
			}
			logger.Warn("blueprint resolve failed", "blueprint", trx.BlueprintID(), "err", err)
			return &Receipt{StageReached: StageBlueprint, Err: reject(CodeUnavailable, "blueprint cache unavailable")}
		}

		p.ensureInstances(rp, regID)

		action, err = p.resolveAction(rp, bp, trx)
		if err != nil {
			return &Receipt{StageReached: StageConformance, Err: Redact(err)}
		}
		if rejection := checkDisclosure(action, trx); rejection != nil {
			return &Receipt{StageReached: StageSchema, Err: rejection}
		}
	}

	// stage 8: promote
	if rejection := p.promote(rp, regID, trx); rejection != nil {
		return &Receipt{StageReached: StageVerified, Err: rejection}
	}
	return &Receipt{Accepted: true, StageReached: StageVerified}
}

func (p *Pipeline) admit(rp *regPipeline, regID sorcha.RegisterID, trx *tx.Transaction) *Error {
	if p.closed.Load() {
		return reject(CodeUnavailable, "node is shutting down")
	}
	if trx.Size() > p.opts.MaxTxSize {
		return reject(CodeStruct, "transaction exceeds %d bytes", p.opts.MaxTxSize)
	}
	if !rp.limiter.Allow() {
		return reject(CodeBusy, "admission rate exceeded")
	}

	txID := trx.ID()
	if committed, err := p.repo.HasTransaction(regID, txID); err == nil && committed {
		return &Error{} // duplicate marker
	}

	rp.lock.Lock()
	defer rp.lock.Unlock()
	if _, ok := rp.unverified[txID]; ok {
		return &Error{}
	}
	if _, ok := rp.queued[txID]; ok {
		return &Error{}
	}
	if len(rp.unverified) >= p.opts.UnverifiedSoftCap {
		return reject(CodeBusy, "unverified pool full")
	}
	rp.unverified[txID] = struct{}{}
	return nil
}

func (p *Pipeline) checkStructure(trx *tx.Transaction) *Error {
	if len(trx.Payloads()) == 0 {
		return reject(CodeStruct, "payloads required")
	}
	if trx.SenderWallet() == "" || len(trx.SenderWallet()) > sorcha.MaxAddressLen {
		return reject(CodeStruct, "sender wallet missing or too long")
	}
	if !trx.Algorithm().Supported() {
		return reject(CodeStruct, "unsupported algorithm %q", trx.Algorithm())
	}
	if trx.BlueprintID() == "" {
		return reject(CodeStruct, "blueprint id required")
	}
	if trx.PayloadHash().IsZero() {
		return reject(CodeStruct, "payload hash required")
	}

	meta, err := p.repo.Get(trx.RegisterID())
	if err != nil {
		return reject(CodeStruct, "unknown register %s", trx.RegisterID())
	}
	switch meta.Status {
	case register.StatusCreated, register.StatusOnline:
	default:
		return reject(CodeUnavailable, "register is %s", meta.Status)
	}
	return nil
}

// resolveAction infers which blueprint action the transaction performs
// and checks the conformance rules: route from the instance state, sender
// authorisation and the previous-transaction link.
func (p *Pipeline) resolveAction(rp *regPipeline, bp *blueprint.Blueprint, trx *tx.Transaction) (*blueprint.Action, error) {
	sender, ok := bp.ParticipantForWallet(trx.SenderWallet())
	if !ok {
		return nil, reject(CodeSender, "wallet %q is not a blueprint participant", trx.SenderWallet())
	}

	var candidates []uint32
	if prev := trx.PrevTxID(); prev != nil {
		rp.lock.Lock()
		prevAction, known := rp.heads[*prev]
		rp.lock.Unlock()
		if !known {
			return nil, reject(CodePrevTx, "previous transaction %s is not an instance head", prev)
		}
		a, ok := bp.Action(prevAction)
		if !ok {
			return nil, reject(CodeAction, "instance is at unknown action %d", prevAction)
		}
		candidates = a.NextActionIDs
	} else {
		candidates = []uint32{blueprint.StartActionID}
	}

	if len(candidates) == 0 {
		return nil, reject(CodeAction, "no action permitted from current instance state")
	}
	for _, id := range candidates {
		a, ok := bp.Action(id)
		if !ok {
			continue
		}
		if a.SenderID == sender.ID {
			return a, nil
		}
	}
	return nil, reject(CodeSender, "participant %q may not send any permitted action", sender.ID)
}

// checkDisclosure validates the sender-wallet disclosure against the
// action schema. The first payload under canonical ordering stands in
// when no entry addresses the sender directly.
func checkDisclosure(action *blueprint.Action, trx *tx.Transaction) *Error {
	disclosure := trx.Payloads().Get(trx.SenderWallet())
	if disclosure == nil {
		if first := trx.Payloads().First(); first != nil {
			disclosure = first.Data
		}
	}
	if err := action.ValidateDisclosure(disclosure); err != nil {
		return reject(CodeSchema, "%s", err.Error())
	}
	return nil
}

func (p *Pipeline) promote(rp *regPipeline, regID sorcha.RegisterID, trx *tx.Transaction) *Error {
	rp.lock.Lock()
	defer rp.lock.Unlock()
	if len(rp.verified) >= p.opts.VerifiedQueueCap {
		return reject(CodeBusy, "verified queue full")
	}

	wasEmpty := len(rp.verified) == 0
	txID := trx.ID()
	rp.verified = append(rp.verified, &tx.Verified{
		Transaction:         trx,
		VerifiedAt:          p.now(),
		BlueprintSnapshotID: trx.BlueprintID(),
	})
	rp.queued[txID] = struct{}{}
	metricQueueGauge().AddWithLabel(1, map[string]string{"register": regID.String()})

	if wasEmpty {
		p.queuedFeed.Send(regID)
	}
	return nil
}

// QueueLen reports the verified queue depth of a register.
func (p *Pipeline) QueueLen(id sorcha.RegisterID) int {
	rp := p.reg(id)
	rp.lock.Lock()
	defer rp.lock.Unlock()
	return len(rp.verified)
}

// Drain pops up to maxTxs verified transactions, stopping early once
// maxBytes of encoded transaction size is reached. FIFO by verification
// completion time.
func (p *Pipeline) Drain(id sorcha.RegisterID, maxTxs, maxBytes int) tx.VerifiedList {
	rp := p.reg(id)
	rp.lock.Lock()
	defer rp.lock.Unlock()

	var (
		batch tx.VerifiedList
		size  int
	)
	for len(rp.verified) > 0 && len(batch) < maxTxs {
		head := rp.verified[0]
		if len(batch) > 0 && size+head.Size() > maxBytes {
			break
		}
		rp.verified = rp.verified[1:]
		batch = append(batch, head)
		size += head.Size()
	}
	metricQueueGauge().AddWithLabel(int64(-len(batch)), map[string]string{"register": id.String()})
	return batch
}

// Requeue returns a drained batch after a failed commit. Transactions
// exhausting the retry budget move to the poison queue and are never
// retried automatically.
func (p *Pipeline) Requeue(id sorcha.RegisterID, batch tx.VerifiedList, cause error) {
	rp := p.reg(id)
	rp.lock.Lock()
	defer rp.lock.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	for _, vtx := range batch {
		txID := vtx.ID()
		rp.attempts[txID]++
		if rp.attempts[txID] >= p.opts.MaxRetries {
			delete(rp.attempts, txID)
			delete(rp.queued, txID)
			rp.poison = append(rp.poison, &Poisoned{
				Tx:       vtx,
				Attempts: p.opts.MaxRetries,
				LastErr:  msg,
				MovedAt:  p.now(),
			})
			logger.Error("transaction moved to poison queue",
				"register", id, "tx", txID, "err", msg)
			continue
		}
		rp.verified = append(rp.verified, vtx)
		metricQueueGauge().AddWithLabel(1, map[string]string{"register": id.String()})
	}
}

// Poison returns the poison queue of a register.
func (p *Pipeline) Poison(id sorcha.RegisterID) []*Poisoned {
	rp := p.reg(id)
	rp.lock.Lock()
	defer rp.lock.Unlock()
	return append([]*Poisoned{}, rp.poison...)
}

// MarkCommitted records a successful docket commit: queue bookkeeping is
// cleared and the blueprint instance heads advance.
func (p *Pipeline) MarkCommitted(id sorcha.RegisterID, batch tx.VerifiedList) {
	rp := p.reg(id)
	rp.lock.Lock()
	defer rp.lock.Unlock()
	for _, vtx := range batch {
		txID := vtx.ID()
		delete(rp.queued, txID)
		delete(rp.attempts, txID)
		p.advanceHeadLocked(rp, vtx.Transaction)
	}
}

// advanceHeadLocked moves the instance head to the committed transaction.
// The action id is re-inferred from the predecessor's head entry.
func (p *Pipeline) advanceHeadLocked(rp *regPipeline, trx *tx.Transaction) {
	if trx.IsGenesis() {
		return
	}
	actionID := blueprint.StartActionID
	if prev := trx.PrevTxID(); prev != nil {
		prevAction, known := rp.heads[*prev]
		if !known {
			return
		}
		delete(rp.heads, *prev)
		bp, err := p.blueprints.Get(context.Background(), trx.BlueprintID())
		if err != nil {
			return
		}
		a, ok := bp.Action(prevAction)
		if !ok {
			return
		}
		sender, ok := bp.ParticipantForWallet(trx.SenderWallet())
		if !ok {
			return
		}
		found := false
		for _, next := range a.NextActionIDs {
			if na, ok := bp.Action(next); ok && na.SenderID == sender.ID {
				actionID = next
				found = true
				break
			}
		}
		if !found {
			return
		}
	}
	rp.heads[trx.ID()] = actionID
}

// ensureInstances lazily rebuilds instance heads from durable state, so a
// restarted validator resumes conformance checks where the chain left
// off.
func (p *Pipeline) ensureInstances(rp *regPipeline, regID sorcha.RegisterID) {
	rp.lock.Lock()
	if rp.loaded {
		rp.lock.Unlock()
		return
	}
	rp.loaded = true
	rp.lock.Unlock()

	txs, err := p.repo.GetTransactionsSince(regID, 0)
	if err != nil {
		logger.Warn("instance rebuild failed", "register", regID, "err", err)
		return
	}
	rp.lock.Lock()
	defer rp.lock.Unlock()
	for _, trx := range txs {
		p.advanceHeadLocked(rp, trx)
	}
}
