// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package recorder logs evolve sessions of a dynapse.Layer into an
// SQLite database, with one row per session and one row per played batch.
// A Recorder is a dynapse.BatchObserver.
package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"cogentcore.org/core/base/errors"
	"github.com/emer/dynapse/dynapse"
	"github.com/emer/dynapse/tick"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	layer TEXT NOT NULL,
	n_in INTEGER NOT NULL,
	n_neurons INTEGER NOT NULL,
	dt REAL NOT NULL,
	max_events INTEGER NOT NULL,
	max_trials INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT,
	evolves INTEGER NOT NULL DEFAULT 0,
	ticks INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS batches(
	session INTEGER NOT NULL REFERENCES sessions(id),
	evolve INTEGER NOT NULL,
	batch INTEGER NOT NULL,
	start_tick INTEGER NOT NULL,
	ticks INTEGER NOT NULL,
	trials INTEGER NOT NULL,
	events_in INTEGER NOT NULL,
	events_out INTEGER NOT NULL,
	layer_ticks INTEGER NOT NULL
);
`

// BatchRow is one logged batch.
type BatchRow struct {
	Evolve    int
	Batch     int
	StartTick int64
	Ticks     int64
	Trials    int
	EventsIn  int
	EventsOut int

	// layer hardware time in ticks after the batch
	LayerTicks int64
}

// Recorder writes sessions and batches to the database.
type Recorder struct {

	// current session id, 0 if none
	Session int64

	// first error from BatchDone, which cannot return one
	Err error

	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path, which can be ":memory:".
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %q: %w", path, err)
	}
	// a single connection keeps in-memory databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: create tables in %q: %w", path, err)
	}
	return &Recorder{db: db}, nil
}

// Close closes the database.
func (rc *Recorder) Close() error {
	return rc.db.Close()
}

// Begin starts a new session for layer ly.
func (rc *Recorder) Begin(ly *dynapse.Layer) (int64, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	res, err := rc.db.Exec(`INSERT INTO sessions(layer, n_in, n_neurons, dt, max_events, max_trials, start_time) VALUES(?,?,?,?,?,?,?)`,
		ly.Name, ly.SizeIn(), ly.Size(), ly.Dt, ly.Batch.MaxEvents, ly.Batch.MaxTrials, time.Now().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("recorder: begin session: %w", err)
	}
	rc.Session, err = res.LastInsertId()
	rc.Err = nil
	return rc.Session, err
}

// End closes the current session with the final layer time.
func (rc *Recorder) End(ly *dynapse.Layer) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.Session == 0 {
		return nil
	}
	_, err := rc.db.Exec(`UPDATE sessions SET end_time=?, evolves=?, ticks=? WHERE id=?`,
		time.Now().Format(time.RFC3339), ly.Time.Evolves, ly.Time.Ticks, rc.Session)
	if err != nil {
		return fmt.Errorf("recorder: end session %d: %w", rc.Session, err)
	}
	rc.Session = 0
	return rc.Err
}

// BatchDone logs one batch of the current session.
func (rc *Recorder) BatchDone(ly *dynapse.Layer, bt *dynapse.Batch, out []tick.Event) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.Session == 0 {
		log.Printf("recorder: batch %d of layer %q outside of a session\n", bt.Index, ly.Name)
		return
	}
	_, err := rc.db.Exec(`INSERT INTO batches(session, evolve, batch, start_tick, ticks, trials, events_in, events_out, layer_ticks) VALUES(?,?,?,?,?,?,?,?,?)`,
		rc.Session, ly.Time.Evolves, bt.Index, bt.StartTick, bt.Ticks, bt.Trials, bt.Len(), len(out), ly.Time.Ticks)
	if err != nil && rc.Err == nil {
		rc.Err = errors.Log(fmt.Errorf("recorder: batch %d: %w", bt.Index, err))
	}
}

// Batches returns the logged batches of a session, in order.
func (rc *Recorder) Batches(session int64) ([]BatchRow, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rows, err := rc.db.Query(`SELECT evolve, batch, start_tick, ticks, trials, events_in, events_out, layer_ticks FROM batches WHERE session=? ORDER BY evolve, batch`, session)
	if err != nil {
		return nil, fmt.Errorf("recorder: query batches: %w", err)
	}
	defer rows.Close()
	var bts []BatchRow
	for rows.Next() {
		var br BatchRow
		if err := rows.Scan(&br.Evolve, &br.Batch, &br.StartTick, &br.Ticks, &br.Trials, &br.EventsIn, &br.EventsOut, &br.LayerTicks); err != nil {
			return nil, err
		}
		bts = append(bts, br)
	}
	return bts, rows.Err()
}

// SessionTicks returns the evolve count and final ticks of a session.
func (rc *Recorder) SessionTicks(session int64) (evolves int, ticks int64, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	err = rc.db.QueryRow(`SELECT evolves, ticks FROM sessions WHERE id=?`, session).Scan(&evolves, &ticks)
	return
}
