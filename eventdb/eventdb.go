// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package eventdb persists the outbound event queue in sqlite. The queue
// is bounded; when full the oldest entries are dropped so the node keeps
// running while the downstream consumer is away. Delivery is
// at-least-once: entries stay queued until the consumer acknowledges a
// sequence number.
package eventdb

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sorchain/sorcha/events"
	"github.com/sorchain/sorcha/log"
	"github.com/sorchain/sorcha/metrics"
)

var logger = log.WithContext("pkg", "eventdb")

var (
	metricEmitted = metrics.LazyLoadCounter("eventdb_emitted_count")
	metricDropped = metrics.LazyLoadCounter("eventdb_dropped_count")
)

// DefaultCap bounds the queue when no explicit capacity is given.
const DefaultCap = 10000

const schema = `CREATE TABLE IF NOT EXISTS outbound (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	registerID TEXT NOT NULL,
	primaryID TEXT NOT NULL,
	payload BLOB NOT NULL,
	createdAt INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cursor (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	ackedSeq INTEGER NOT NULL
);
INSERT OR IGNORE INTO cursor(id, ackedSeq) VALUES(0, 0);`

// Entry is one queued event with its queue sequence number.
type Entry struct {
	Seq       uint64
	Event     *events.Event
	CreatedAt uint64
}

// Queue is the sqlite-backed outbound event queue. It implements
// events.Sink.
type Queue struct {
	path  string
	db    *sql.DB
	stmts *stmtCache
	cap   int
	now   func() int64
}

// New creates or opens the queue at the given path. cap <= 0 selects
// DefaultCap.
func New(path string, cap int) (queue *Queue, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if queue == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Queue{
		path:  path,
		db:    db,
		stmts: newStmtCache(db),
		cap:   cap,
		now:   func() int64 { return time.Now().Unix() },
	}, nil
}

// NewMem creates a queue in ram.
func NewMem() (*Queue, error) {
	return New(":memory:", DefaultCap)
}

// Close closes the queue.
func (q *Queue) Close() error {
	q.stmts.Clear()
	return q.db.Close()
}

// Path returns the database path.
func (q *Queue) Path() string {
	return q.path
}

// Emit implements events.Sink. Failures are logged, never surfaced: the
// emitter must not stall on the outbound queue.
func (q *Queue) Emit(ev *events.Event) {
	if err := q.push(ev); err != nil {
		logger.Error("failed to queue outbound event", "kind", ev.Kind, "err", err)
	}
}

func (q *Queue) push(ev *events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	tx, err := q.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO outbound(kind, registerID, primaryID, payload, createdAt) VALUES(?,?,?,?,?)",
		string(ev.Kind), ev.RegisterID.String(), ev.PrimaryID(), payload, q.now(),
	); err != nil {
		return err
	}
	// drop-oldest beyond capacity
	res, err := tx.Exec(
		`DELETE FROM outbound WHERE seq IN (
			SELECT seq FROM outbound ORDER BY seq ASC
			LIMIT max((SELECT count(*) FROM outbound) - ?, 0))`,
		q.cap,
	)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	metricEmitted().Add(1)
	if dropped, _ := res.RowsAffected(); dropped > 0 {
		metricDropped().Add(dropped)
		logger.Warn("outbound queue full, dropped oldest events", "dropped", dropped, "cap", q.cap)
	}
	return nil
}

// Pending returns up to limit entries past the ack cursor, oldest first.
func (q *Queue) Pending(limit int) ([]*Entry, error) {
	stmt, err := q.stmts.Prepare(
		`SELECT seq, payload, createdAt FROM outbound
		 WHERE seq > (SELECT ackedSeq FROM cursor WHERE id = 0)
		 ORDER BY seq ASC LIMIT ?`)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			entry   Entry
			payload []byte
		)
		if err := rows.Scan(&entry.Seq, &payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Event = &events.Event{}
		if err := json.Unmarshal(payload, entry.Event); err != nil {
			return nil, errors.Wrapf(err, "decode event seq %d", entry.Seq)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// Ack advances the cursor to seq and deletes delivered entries. Acking
// backwards is a no-op.
func (q *Queue) Ack(seq uint64) error {
	tx, err := q.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE cursor SET ackedSeq = max(ackedSeq, ?) WHERE id = 0", seq,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"DELETE FROM outbound WHERE seq <= (SELECT ackedSeq FROM cursor WHERE id = 0)",
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Cursor returns the last acknowledged sequence number.
func (q *Queue) Cursor() (uint64, error) {
	stmt, err := q.stmts.Prepare("SELECT ackedSeq FROM cursor WHERE id = 0")
	if err != nil {
		return 0, err
	}
	var seq uint64
	if err := stmt.QueryRow().Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// Len returns the number of undelivered entries.
func (q *Queue) Len() (int, error) {
	stmt, err := q.stmts.Prepare(
		"SELECT count(*) FROM outbound WHERE seq > (SELECT ackedSeq FROM cursor WHERE id = 0)")
	if err != nil {
		return 0, err
	}
	var n int
	if err := stmt.QueryRow().Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
