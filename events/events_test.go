// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sorchain/sorcha/cry"
	"github.com/sorchain/sorcha/sorcha"
)

func TestPrimaryID(t *testing.T) {
	regID := sorcha.MustParseRegisterID("00112233445566778899aabbccddeeff")
	txID := cry.HashSum([]byte("tx"))
	docketID := cry.HashSum([]byte("docket"))

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"tx confirmed", Event{Kind: KindTransactionConfirmed, RegisterID: regID, TxID: &txID}, txID.String()},
		{"docket confirmed", Event{Kind: KindDocketConfirmed, RegisterID: regID, DocketID: &docketID}, docketID.String()},
		{"height updated", Event{Kind: KindRegisterHeightUpdated, RegisterID: regID, Height: 7}, regID.String() + "@7"},
		{"register created", Event{Kind: KindRegisterCreated, RegisterID: regID}, regID.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.PrimaryID())
		})
	}
}

func TestFeedFanOut(t *testing.T) {
	var feed Feed
	defer feed.Close()

	ch := make(chan *Event, 1)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	feed.Emit(&Event{Kind: KindRegisterCreated})
	select {
	case ev := <-ch:
		assert.Equal(t, KindRegisterCreated, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestTee(t *testing.T) {
	var got []Kind
	sink := Tee(
		SinkFunc(func(ev *Event) { got = append(got, ev.Kind) }),
		SinkFunc(func(ev *Event) { got = append(got, ev.Kind) }),
	)
	sink.Emit(&Event{Kind: KindDocketConfirmed})
	assert.Equal(t, []Kind{KindDocketConfirmed, KindDocketConfirmed}, got)
}
