// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package proto defines the peer protocol messages.
package proto

import "fmt"

// Constants
const (
	Name              = "sorcha"
	Version    uint   = 1
	MaxMsgSize uint32 = 10 * 1024 * 1024
)

// Protocol messages of sorcha. Codes below 0x10 are reserved for the
// session layer.
const (
	MsgPeerExchange uint64 = 0x10 + iota
	MsgRegisterAdvertise
	MsgTransactionNotify
	MsgTransactionPull
	MsgDocketPull
	MsgSubscribe
)

// MsgName converts a msg code to string.
func MsgName(msgCode uint64) string {
	switch msgCode {
	case MsgPeerExchange:
		return "MsgPeerExchange"
	case MsgRegisterAdvertise:
		return "MsgRegisterAdvertise"
	case MsgTransactionNotify:
		return "MsgTransactionNotify"
	case MsgTransactionPull:
		return "MsgTransactionPull"
	case MsgDocketPull:
		return "MsgDocketPull"
	case MsgSubscribe:
		return "MsgSubscribe"
	default:
		return fmt.Sprintf("unknown msg code(%v)", msgCode)
	}
}
