// Package audit implements a secondary, non-authoritative SQLite log of
// signals and completed trades, for historical inspection only — it never
// participates in any position invariant (internal/positions is the sole
// authoritative open/closed-position store). Grounded on the teacher's
// internal/storage/db.go, with its "positions" table dropped since this
// engine's authoritative state lives elsewhere.
package audit

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Log wraps a SQLite connection holding append-only signal/trade history.
type Log struct {
	db *sql.DB
}

// Signal is one logged buy-signal detection.
type Signal struct {
	ID        int64
	Wallet    string
	Mint      string
	Signature string
	SolSpent  float64
	Timestamp int64
}

// Trade is one logged completed buy or sell fill.
type Trade struct {
	ID        int64
	Mint      string
	Side      string // "BUY" or "SELL"
	PriceUSD  float64
	AtomsStr  string // decimal string, avoids float64 truncation of big.Int atom counts
	Signature string
	Timestamp int64
}

// Open creates or opens the audit database at path, creating its schema
// if absent.
func Open(path string) (*Log, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("audit log initialized")
	return &Log{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet TEXT NOT NULL,
		mint TEXT NOT NULL,
		signature TEXT NOT NULL,
		sol_spent REAL NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mint TEXT NOT NULL,
		side TEXT NOT NULL,
		price_usd REAL NOT NULL DEFAULT 0,
		atoms TEXT NOT NULL DEFAULT '0',
		signature TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordSignal logs a detected buy signal. Failures are the caller's to
// handle, but per spec §7 callers should log-and-swallow rather than
// abort the pipeline on an audit-write failure.
func (l *Log) RecordSignal(s Signal) error {
	_, err := l.db.Exec(`
		INSERT INTO signals (wallet, mint, signature, sol_spent, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		s.Wallet, s.Mint, s.Signature, s.SolSpent, s.Timestamp)
	return err
}

// RecordTrade logs a completed buy or sell fill.
func (l *Log) RecordTrade(t Trade) error {
	_, err := l.db.Exec(`
		INSERT INTO trades (mint, side, price_usd, atoms, signature, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Mint, t.Side, t.PriceUSD, t.AtomsStr, t.Signature, t.Timestamp)
	return err
}

// RecentTrades retrieves the most recent trades, newest first.
func (l *Log) RecentTrades(limit int) ([]*Trade, error) {
	rows, err := l.db.Query(`
		SELECT id, mint, side, price_usd, atoms, signature, timestamp
		FROM trades ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.Mint, &t.Side, &t.PriceUSD, &t.AtomsStr, &t.Signature, &t.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// RecentSignals retrieves the most recent signals, newest first.
func (l *Log) RecentSignals(limit int) ([]*Signal, error) {
	rows, err := l.db.Query(`
		SELECT id, wallet, mint, signature, sol_spent, timestamp
		FROM signals ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.Wallet, &s.Mint, &s.Signature, &s.SolSpent, &s.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// Now returns the current Unix millisecond timestamp, matching
// internal/positions.Now()'s resolution.
func Now() int64 {
	return time.Now().UnixMilli()
}
