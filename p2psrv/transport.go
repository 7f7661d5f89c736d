// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package p2psrv

import (
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// wsTransport frames messages over one websocket connection. Writes are
// serialised; the websocket only tolerates one concurrent writer.
type wsTransport struct {
	conn         *websocket.Conn
	compressed   bool
	writeTimeout time.Duration

	writeLock sync.Mutex
}

func newWSTransport(conn *websocket.Conn, compressed bool, maxMsgSize uint32, writeTimeout time.Duration) *wsTransport {
	// allow for snappy expansion overhead
	conn.SetReadLimit(int64(maxMsgSize) + int64(maxMsgSize)/8 + 64)
	return &wsTransport{
		conn:         conn,
		compressed:   compressed,
		writeTimeout: writeTimeout,
	}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.BinaryMessage {
		return nil, errors.New("unexpected websocket message type")
	}
	if t.compressed {
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, errors.WithMessage(err, "snappy decode")
		}
		return decoded, nil
	}
	return data, nil
}

func (t *wsTransport) WriteFrame(frame []byte) error {
	if t.compressed {
		frame = snappy.Encode(nil, frame)
	}
	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
