// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rpc implements the call/notify envelope carried over a peer
// session. Every frame is the RLP list [code, callID, isResult, payload];
// callID 0 is reserved for notifications, which never produce a result frame.
package rpc

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/log"
)

const rpcDefaultTimeout = 30 * time.Second

var (
	errPeerDisconnected = errors.New("peer disconnected")
	errMsgTooLarge      = errors.New("msg too large")
	logger              = log.WithContext("pkg", "rpc")
)

// FrameReadWriter moves opaque frames across a session. WriteFrame must be
// safe for concurrent use.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
}

// Msg is one received envelope.
type Msg struct {
	Code    uint64
	Payload rlp.RawValue
}

// Decode decodes the payload into val.
func (m *Msg) Decode(val any) error {
	return rlp.DecodeBytes(m.Payload, val)
}

type msgData struct {
	Code     uint64
	CallID   uint32
	IsResult bool
	Payload  any
}

// HandleFunc handles an incoming call or notification. write sends the
// result back to the caller; for notifications it is a no-op.
type HandleFunc func(msg *Msg, write func(any)) error

type resultListener struct {
	msgCode  uint64
	onResult func(*Msg) error
}

// RPC dispatches calls and results over one session.
type RPC struct {
	rw       FrameReadWriter
	doneCh   chan struct{}
	pendings map[uint32]*resultListener
	lock     sync.Mutex
}

// New creates an RPC instance over the transport.
func New(rw FrameReadWriter) *RPC {
	return &RPC{
		rw:       rw,
		doneCh:   make(chan struct{}),
		pendings: make(map[uint32]*resultListener),
	}
}

// Done returns a channel closed when the read loop exits.
func (r *RPC) Done() <-chan struct{} {
	return r.doneCh
}

// Serve runs the read loop, dispatching calls to handleFunc and results to
// their pending listeners. It returns on the first transport error.
func (r *RPC) Serve(handleFunc HandleFunc, maxMsgSize uint32) error {
	defer close(r.doneCh)

	processFrame := func() error {
		frame, err := r.rw.ReadFrame()
		if err != nil {
			return err
		}
		if uint32(len(frame)) > maxMsgSize {
			return errMsgTooLarge
		}

		stream := rlp.NewStream(bytes.NewReader(frame), uint64(len(frame)))
		if _, err := stream.List(); err != nil {
			return errors.WithMessage(err, "decode envelope")
		}
		var (
			code     uint64
			callID   uint32
			isResult bool
		)
		if err := stream.Decode(&code); err != nil {
			return errors.WithMessage(err, "decode msg code")
		}
		if err := stream.Decode(&callID); err != nil {
			return errors.WithMessage(err, "decode call id")
		}
		if err := stream.Decode(&isResult); err != nil {
			return errors.WithMessage(err, "decode result flag")
		}
		payload, err := stream.Raw()
		if err != nil {
			return errors.WithMessage(err, "decode payload")
		}
		msg := &Msg{Code: code, Payload: payload}

		if isResult {
			r.handleResult(callID, msg)
			return nil
		}
		return handleFunc(msg, func(result any) {
			if callID == 0 {
				// notification, no result expected
				return
			}
			if err := r.send(code, callID, true, result); err != nil {
				logger.Debug("failed to write result", "msg", code, "callid", callID, "err", err)
			}
		})
	}

	for {
		if err := processFrame(); err != nil {
			return err
		}
	}
}

func (r *RPC) handleResult(callID uint32, msg *Msg) {
	r.lock.Lock()
	listener, ok := r.pendings[callID]
	if ok {
		delete(r.pendings, callID)
	}
	r.lock.Unlock()

	if !ok {
		logger.Debug("unexpected call result", "msg", msg.Code, "callid", callID)
		return
	}
	if listener.msgCode != msg.Code {
		logger.Debug("call result msg code mismatch", "msg", msg.Code, "callid", callID)
		return
	}
	if err := listener.onResult(msg); err != nil {
		logger.Debug("handle result", "msg", msg.Code, "callid", callID, "err", err)
	}
}

func (r *RPC) send(code uint64, callID uint32, isResult bool, payload any) error {
	frame, err := rlp.EncodeToBytes(&msgData{code, callID, isResult, payload})
	if err != nil {
		return errors.WithMessage(err, "encode envelope")
	}
	return r.rw.WriteFrame(frame)
}

func (r *RPC) prepareCall(msgCode uint64, onResult func(*Msg) error) uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	for {
		id := rand.Uint32()
		if id == 0 {
			// 0 id is taken by Notify
			continue
		}
		if _, ok := r.pendings[id]; !ok {
			r.pendings[id] = &resultListener{msgCode, onResult}
			return id
		}
	}
}

func (r *RPC) finalizeCall(id uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.pendings, id)
}

// Notify sends a message without waiting for any result.
func (r *RPC) Notify(_ context.Context, msgCode uint64, arg any) error {
	return r.send(msgCode, 0, false, arg)
}

// Call sends a call and waits for its result, decoded into result.
func (r *RPC) Call(ctx context.Context, msgCode uint64, arg any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, rpcDefaultTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	id := r.prepareCall(msgCode, func(msg *Msg) error {
		err := msg.Decode(result)
		if err != nil {
			err = errors.WithMessage(err, "decode result")
		}
		errCh <- err
		return err
	})
	defer r.finalizeCall(id)

	if err := r.send(msgCode, id, false, arg); err != nil {
		return err
	}

	select {
	case <-r.doneCh:
		return errPeerDisconnected
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
