// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package consensus seals candidate dockets: it collects approval
// signatures from the validators holding a full replica of the register
// and enforces the strict-majority threshold.
package consensus

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/docket"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
	"github.com/sorchain/sorcha/sorcha"
)

var logger = log.WithContext("pkg", "consensus")

var metricSeals = metrics.LazyLoadCounterVec("consensus_seal_count", []string{"outcome"})

var (
	// ErrNoValidators is returned when no validator holds a full replica
	// and auto-approval is off.
	ErrNoValidators = errors.New("no fully replicated validators")
	// ErrThresholdNotReached is returned when too few approvals arrive.
	ErrThresholdNotReached = errors.New("approval threshold not reached")
)

// ValidatorProvider enumerates the validator ids currently fully
// replicated for a register. The local node includes itself when its own
// subscription qualifies.
type ValidatorProvider interface {
	Validators(registerID sorcha.RegisterID) []string
}

// ValidatorProviderFunc adapts a function to ValidatorProvider.
type ValidatorProviderFunc func(registerID sorcha.RegisterID) []string

// Validators implements ValidatorProvider.
func (f ValidatorProviderFunc) Validators(registerID sorcha.RegisterID) []string {
	return f(registerID)
}

// Approver obtains one validator's approval signature over a docket.
type Approver interface {
	Approve(ctx context.Context, validatorID string, d *docket.Docket) (*docket.Approval, error)
}

// Options configures the engine.
type Options struct {
	// AutoApprove seals dockets without any approvals when the validator
	// set is empty. Development and bootstrap only; every use is logged
	// at Warn.
	AutoApprove bool
}

// Engine implements the approval collection protocol.
type Engine struct {
	provider ValidatorProvider
	approver Approver
	opts     Options
}

// New creates the engine.
func New(provider ValidatorProvider, approver Approver, opts Options) *Engine {
	return &Engine{provider: provider, approver: approver, opts: opts}
}

// Threshold returns the strict majority of n validators.
func Threshold(n int) int {
	return n/2 + 1
}

// Seal collects approvals for the candidate docket and returns it with
// the approval set attached once the strict-majority threshold is
// reached.
func (e *Engine) Seal(ctx context.Context, d *docket.Docket) (*docket.Docket, error) {
	validators := e.provider.Validators(d.RegisterID())
	if len(validators) == 0 {
		if !e.opts.AutoApprove {
			metricSeals().AddWithLabel(1, map[string]string{"outcome": "no_validators"})
			return nil, ErrNoValidators
		}
		logger.Warn("docket auto-approved with empty validator set",
			"register", d.RegisterID(), "version", d.Version(), "docket", d.ID())
		metricSeals().AddWithLabel(1, map[string]string{"outcome": "auto_approved"})
		return d.WithApprovals(nil), nil
	}

	threshold := Threshold(len(validators))

	var (
		wg        sync.WaitGroup
		lock      sync.Mutex
		approvals []docket.Approval
	)
	for _, id := range validators {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			approval, err := e.approver.Approve(ctx, id, d)
			if err != nil {
				logger.Debug("approval request failed", "validator", id, "docket", d.ID(), "err", err)
				return
			}
			lock.Lock()
			approvals = append(approvals, *approval)
			lock.Unlock()
		}()
	}
	wg.Wait()

	if len(approvals) < threshold {
		metricSeals().AddWithLabel(1, map[string]string{"outcome": "threshold_missed"})
		return nil, errors.WithMessagef(ErrThresholdNotReached,
			"%d of %d approvals, need %d", len(approvals), len(validators), threshold)
	}
	metricSeals().AddWithLabel(1, map[string]string{"outcome": "sealed"})
	return d.WithApprovals(approvals), nil
}

// VerifyApprovals checks every approval signature over the docket id and
// reports whether at least threshold of them validate.
func VerifyApprovals(d *docket.Docket, threshold int) bool {
	valid := 0
	msg := d.ID()
	for _, a := range d.Approvals() {
		ok, err := cry.Verify(cry.Algorithm(a.Algorithm), a.PublicKey, msg.Bytes(), a.Signature)
		if err == nil && ok {
			valid++
		}
	}
	return valid >= threshold
}

// LocalApprover signs approvals with this node's validator key. It serves
// the node's own entry in the validator set.
type LocalApprover struct {
	ValidatorID string
	Algorithm   cry.Algorithm
	PrivateKey  []byte
}

// Approve implements Approver for the local validator id; any other id is
// refused.
func (l *LocalApprover) Approve(_ context.Context, validatorID string, d *docket.Docket) (*docket.Approval, error) {
	if validatorID != l.ValidatorID {
		return nil, errors.Errorf("not the local validator: %s", validatorID)
	}
	id := d.ID()
	sig, pub, err := cry.Sign(l.Algorithm, l.PrivateKey, id.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "sign approval")
	}
	return &docket.Approval{
		ValidatorID: l.ValidatorID,
		Signature:   sig,
		PublicKey:   pub,
		Algorithm:   string(l.Algorithm),
	}, nil
}
