// Package journal persists reconciliation cycles to SQLite so that the
// engine's decisions can be inspected after the fact.
//
// All persistence is async and non-blocking: buffer overflow silently drops
// cycles rather than applying backpressure to the engine.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tabweave/tabweave/reconcile"
)

// Open opens (or creates) a journal database at path with the production
// pragmas applied and the schema initialized. Use ":memory:" in tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return db, nil
}

// Schema contains the DDL for the cycle journal.
const Schema = `
CREATE TABLE IF NOT EXISTS reconcile_cycles (
    cycle_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    prev_state INTEGER NOT NULL,
    next_state INTEGER NOT NULL,
    rule TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT '',
    duration_us INTEGER NOT NULL DEFAULT 0,
    stale INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_cycles_timestamp
    ON reconcile_cycles(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_rule
    ON reconcile_cycles(rule, timestamp DESC);
`

// Init applies the journal schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Entry is a persisted cycle with its wall-clock timestamp.
type Entry struct {
	At time.Time
	reconcile.Cycle
}

// Summary aggregates the journal for the status surfaces.
type Summary struct {
	Total  int64
	Stale  int64
	ByRule map[string]int64
}

// Journal buffers cycles and flushes them to SQLite in batches. It
// implements reconcile.CycleRecorder.
type Journal struct {
	db            *sql.DB
	logger        *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Entry

	stop chan struct{}
	done chan struct{}
}

// New creates a journal over db and starts the flush loop. The schema must
// already be applied (Init). bufferSize bounds the in-memory queue;
// recommended defaults: bufferSize=256, flushInterval=2s.
func New(db *sql.DB, bufferSize int, flushInterval time.Duration, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	j := &Journal{
		db:            db,
		logger:        logger,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]Entry, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go j.flushLoop()
	return j
}

// RecordCycle queues a cycle for async persistence. Non-blocking; when the
// buffer is full the cycle is dropped.
func (j *Journal) RecordCycle(c reconcile.Cycle) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.buffer) >= j.bufferSize {
		j.logger.Debug("journal: buffer full, dropping cycle", "rule", c.Rule)
		return
	}
	j.buffer = append(j.buffer, Entry{At: time.Now(), Cycle: c})
}

// Recent returns the n most recent cycles, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	rows, err := j.db.Query(`SELECT cycle_id, timestamp, prev_state, next_state,
		rule, action, duration_us, stale
		FROM reconcile_cycles ORDER BY timestamp DESC, cycle_id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts, durUS int64
		var stale int
		var prev, next uint8
		if err := rows.Scan(&e.ID, &ts, &prev, &next, &e.Rule, &e.Action, &durUS, &stale); err != nil {
			return nil, fmt.Errorf("journal: scan cycle: %w", err)
		}
		e.At = time.Unix(0, ts)
		e.Prev = reconcile.StateWord(prev)
		e.Next = reconcile.StateWord(next)
		e.Duration = time.Duration(durUS) * time.Microsecond
		e.Stale = stale != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summarize aggregates all persisted cycles.
func (j *Journal) Summarize() (Summary, error) {
	s := Summary{ByRule: make(map[string]int64)}

	if err := j.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(stale), 0) FROM reconcile_cycles`).Scan(&s.Total, &s.Stale); err != nil {
		return Summary{}, fmt.Errorf("journal: summarize: %w", err)
	}

	rows, err := j.db.Query(`SELECT rule, COUNT(*) FROM reconcile_cycles
		WHERE rule != '' GROUP BY rule`)
	if err != nil {
		return Summary{}, fmt.Errorf("journal: summarize rules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rule string
		var n int64
		if err := rows.Scan(&rule, &n); err != nil {
			return Summary{}, fmt.Errorf("journal: scan rule count: %w", err)
		}
		s.ByRule[rule] = n
	}
	return s, rows.Err()
}

// Flush synchronously persists everything currently buffered.
func (j *Journal) Flush() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.flushLocked()
}

// Close flushes remaining cycles and stops the background goroutine.
func (j *Journal) Close() error {
	close(j.stop)
	<-j.done
	return nil
}

func (j *Journal) flushLoop() {
	defer close(j.done)
	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			j.Flush()
			return
		case <-ticker.C:
			j.Flush()
		}
	}
}

func (j *Journal) flushLocked() {
	if len(j.buffer) == 0 {
		return
	}

	tx, err := j.db.Begin()
	if err != nil {
		j.logger.Error("journal: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO reconcile_cycles
		(cycle_id, timestamp, prev_state, next_state, rule, action, duration_us, stale)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		j.logger.Error("journal: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range j.buffer {
		stale := 0
		if e.Stale {
			stale = 1
		}
		if _, err := stmt.Exec(e.ID, e.At.UnixNano(), int(e.Prev), int(e.Next),
			e.Rule, e.Action, e.Duration.Microseconds(), stale); err != nil {
			j.logger.Error("journal: insert", "error", err, "cycle", e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		j.logger.Error("journal: commit", "error", err)
	}
	j.buffer = j.buffer[:0]
}
