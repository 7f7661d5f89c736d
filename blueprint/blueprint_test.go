// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blueprint

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pingPong is the canonical two-party looping workflow.
func pingPong() *Blueprint {
	return &Blueprint{
		ID:      "bp-pingpong",
		Title:   "Ping Pong",
		Version: 1,
		Participants: []Participant{
			{ID: "pinger", Name: "Pinger", WalletAddress: "wallet-a"},
			{ID: "ponger", Name: "Ponger", WalletAddress: "wallet-b"},
		},
		Actions: []Action{
			{
				ID: 0, Title: "Ping", SenderID: "pinger", RecipientIDs: []string{"ponger"},
				DataSchema:    []DataField{{ID: "count", Type: FieldNumber, Required: true}},
				NextActionIDs: []uint32{1},
			},
			{
				ID: 1, Title: "Pong", SenderID: "ponger", RecipientIDs: []string{"pinger"},
				DataSchema:    []DataField{{ID: "count", Type: FieldNumber, Required: true}},
				NextActionIDs: []uint32{0},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, pingPong().Validate())

	tests := []struct {
		name   string
		mutate func(*Blueprint)
		errStr string
	}{
		{"empty id", func(bp *Blueprint) { bp.ID = "" }, "id required"},
		{"no actions", func(bp *Blueprint) { bp.Actions = nil }, "at least one action"},
		{"duplicate action", func(bp *Blueprint) { bp.Actions[1].ID = 0 }, "duplicate action"},
		{"unknown sender", func(bp *Blueprint) { bp.Actions[0].SenderID = "ghost" }, "sender"},
		{"unknown recipient", func(bp *Blueprint) { bp.Actions[0].RecipientIDs = []string{"ghost"} }, "recipient"},
		{"unknown route", func(bp *Blueprint) { bp.Actions[0].NextActionIDs = []uint32{9} }, "unknown action"},
		{"missing start", func(bp *Blueprint) {
			bp.Actions[0].ID = 7
			bp.Actions[1].NextActionIDs = nil
			bp.Actions[0].NextActionIDs = nil
		}, "start action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := pingPong()
			tt.mutate(bp)
			err := bp.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errStr)
		})
	}
}

func TestHasCycles(t *testing.T) {
	assert.True(t, pingPong().HasCycles(), "ping-pong routes loop")

	linear := pingPong()
	linear.Actions[1].NextActionIDs = nil
	assert.False(t, linear.HasCycles())
}

func TestLookups(t *testing.T) {
	bp := pingPong()

	a, ok := bp.Action(1)
	require.True(t, ok)
	assert.Equal(t, "Pong", a.Title)
	_, ok = bp.Action(9)
	assert.False(t, ok)

	p, ok := bp.ParticipantForWallet("wallet-b")
	require.True(t, ok)
	assert.Equal(t, "ponger", p.ID)
	_, ok = bp.ParticipantForWallet("wallet-z")
	assert.False(t, ok)

	assert.True(t, bp.Actions[0].RoutesTo(1))
	assert.False(t, bp.Actions[0].RoutesTo(0))
}

func TestValidateDisclosure(t *testing.T) {
	action := &Action{
		ID: 0,
		DataSchema: []DataField{
			{ID: "count", Type: FieldNumber, Required: true},
			{ID: "note", Type: FieldString},
			{ID: "tags", Type: FieldArray},
		},
	}

	assert.NoError(t, action.ValidateDisclosure([]byte(`{"count":1}`)))
	assert.NoError(t, action.ValidateDisclosure([]byte(`{"count":2,"note":"hi","tags":["a"]}`)))
	assert.NoError(t, action.ValidateDisclosure([]byte(`{"count":3,"note":null}`)))

	err := action.ValidateDisclosure([]byte(`{"note":"hi"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required field "count" missing`)

	err = action.ValidateDisclosure([]byte(`{"count":"one"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a number")

	err = action.ValidateDisclosure([]byte(`{"count":null}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")

	assert.Error(t, action.ValidateDisclosure([]byte(`[1,2]`)), "top level must be an object")
}

func TestCacheReadThrough(t *testing.T) {
	var calls atomic.Int32
	cache := NewCache(ResolverFunc(func(_ context.Context, id string) (*Blueprint, error) {
		calls.Add(1)
		if id != "bp-pingpong" {
			return nil, ErrNotFound
		}
		return pingPong(), nil
	}), 8)

	bp, err := cache.Get(context.Background(), "bp-pingpong")
	require.NoError(t, err)
	assert.Equal(t, "Ping Pong", bp.Title)

	_, err = cache.Get(context.Background(), "bp-pingpong")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "second read served from cache")

	_, err = cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachePublish(t *testing.T) {
	resolveErr := errors.New("resolver must not be called")
	cache := NewCache(ResolverFunc(func(context.Context, string) (*Blueprint, error) {
		return nil, resolveErr
	}), 8)

	require.NoError(t, cache.Put(pingPong()))
	bp, err := cache.Get(context.Background(), "bp-pingpong")
	require.NoError(t, err)
	assert.Equal(t, "Ping Pong", bp.Title)

	bad := pingPong()
	bad.Actions[0].SenderID = "ghost"
	assert.Error(t, cache.Put(bad))
}

func TestCacheSingleflight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	cache := NewCache(ResolverFunc(func(context.Context, string) (*Blueprint, error) {
		calls.Add(1)
		<-release
		return pingPong(), nil
	}), 8)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), "bp-pingpong")
			assert.NoError(t, err)
		}()
	}
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load(), "concurrent misses collapse")
}
