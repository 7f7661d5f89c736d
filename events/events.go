// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package events defines the domain events the node emits to the change-data
// backplane. Delivery is at-least-once; consumers must be idempotent on
// (Kind, PrimaryID).
package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/event"

	"github.com/sorchain/sorcha/sorcha"
)

// Kind names an event stream.
type Kind string

const (
	KindRegisterCreated       Kind = "register.created"
	KindRegisterStatusChanged Kind = "register.status_changed"
	KindRegisterHeightUpdated Kind = "register.height_updated"
	KindTransactionSubmitted  Kind = "transaction.submitted"
	KindTransactionConfirmed  Kind = "transaction.confirmed"
	KindDocketConfirmed       Kind = "docket.confirmed"
)

// Event is one emitted domain event. Only the fields relevant to the kind are
// populated.
type Event struct {
	Kind       Kind
	RegisterID sorcha.RegisterID

	TxID          *sorcha.Bytes32
	DocketID      *sorcha.Bytes32
	DocketVersion uint64
	TxIDs         []sorcha.Bytes32

	Status string
	Height uint64
	Time   uint64
}

// PrimaryID is the idempotency key of the event within its kind.
func (e *Event) PrimaryID() string {
	switch e.Kind {
	case KindTransactionSubmitted, KindTransactionConfirmed:
		if e.TxID != nil {
			return e.TxID.String()
		}
	case KindDocketConfirmed:
		if e.DocketID != nil {
			return e.DocketID.String()
		}
	case KindRegisterHeightUpdated:
		// one event per committed height
		return e.RegisterID.String() + "@" + strconv.FormatUint(e.Height, 10)
	}
	return e.RegisterID.String()
}

// Sink consumes emitted events. Emit must not block on downstream consumers.
type Sink interface {
	Emit(ev *Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev *Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ev *Event) { f(ev) }

// Feed is an in-process fan-out sink built on event.Feed. It backs the node's
// own subscribers (replication loops, tests); the durable outbound queue is a
// separate sink.
type Feed struct {
	feed  event.Feed
	scope event.SubscriptionScope
}

// Emit implements Sink.
func (f *Feed) Emit(ev *Event) {
	f.feed.Send(ev)
}

// Subscribe registers a channel to receive all emitted events.
func (f *Feed) Subscribe(ch chan *Event) event.Subscription {
	return f.scope.Track(f.feed.Subscribe(ch))
}

// Close unsubscribes all subscribers.
func (f *Feed) Close() {
	f.scope.Close()
}

// Tee duplicates events to every sink, in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ev *Event) {
		for _, s := range sinks {
			s.Emit(ev)
		}
	})
}
