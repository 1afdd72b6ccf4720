// Package positions is the durable Position Store: open positions keyed by
// mint plus an append-only closed-position log, snapshotted to disk via
// temp-file-then-rename. Grounded on the teacher's trading.Position
// Snapshot() safe-copy pattern and its keycache.go persistence idiom.
package positions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/model"
)

type snapshot struct {
	Open   map[string]*model.OpenPosition `json:"open"`
	Closed []*model.ClosedPosition        `json:"closed"`
}

// Store manages open/closed positions with a single-writer discipline:
// openPosition and closePosition are serialized by mu; concurrent readers
// are allowed.
type Store struct {
	mu     sync.RWMutex
	open   map[string]*model.OpenPosition
	closed []*model.ClosedPosition
	path   string
}

// New loads a Store from path, treating a missing or corrupt file as empty.
func New(path string) *Store {
	s := &Store{
		open: make(map[string]*model.OpenPosition),
		path: path,
	}
	s.load()
	return s
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("positions snapshot corrupt, starting empty")
		return
	}
	if snap.Open == nil {
		snap.Open = make(map[string]*model.OpenPosition)
	}
	s.mu.Lock()
	s.open = snap.Open
	s.closed = snap.Closed
	s.mu.Unlock()
}

// Open returns the open position for mint, or nil.
func (s *Store) Open(mint string) *model.OpenPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open[mint]
}

// Has reports whether a position is open for mint.
func (s *Store) Has(mint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.open[mint]
	return ok
}

// Count returns the number of currently open positions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open)
}

// CanOpen reports whether a new position can be opened given maxPositions.
func (s *Store) CanOpen(maxPositions int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.open) < maxPositions
}

// AllOpen returns value copies of all open positions.
func (s *Store) AllOpen() []*model.OpenPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.OpenPosition, 0, len(s.open))
	for _, p := range s.open {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// OpenPosition overwrites the record for pos.Mint, enforcing the
// at-most-one-per-mint invariant, and flushes best-effort.
func (s *Store) OpenPosition(pos *model.OpenPosition) {
	s.mu.Lock()
	s.open[pos.Mint] = pos
	s.mu.Unlock()
	s.flushAsync()
}

// ClosePosition moves mint from open to closed, computing pnl_pct, and
// flushes best-effort. Returns the closed record, or nil if mint was not
// open.
func (s *Store) ClosePosition(mint string, exitPriceUSD *float64, exitTx *string, reason model.CloseReason, tsClose int64) *model.ClosedPosition {
	s.mu.Lock()
	open, ok := s.open[mint]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.open, mint)

	closedRec := &model.ClosedPosition{
		Mint:          open.Mint,
		OriginWallet:  open.OriginWallet,
		EntryPriceUSD: open.EntryPriceUSD,
		QtyAtoms:      open.QtyAtoms,
		Decimals:      open.Decimals,
		SolSpent:      open.SolSpent,
		TsOpen:        open.TsOpen,
		SourceTx:      open.SourceTx,
		Mode:          open.Mode,
		Strategy:      open.Strategy,
		ExitPriceUSD:  exitPriceUSD,
		ExitTx:        exitTx,
		TsClose:       tsClose,
		PnLPercent:    model.PnLPercent(open.EntryPriceUSD, exitPriceUSD),
		Reason:        reason,
	}
	s.closed = append(s.closed, closedRec)
	s.mu.Unlock()

	s.flushAsync()
	return closedRec
}

// AllClosed returns the append-only closed-position log.
func (s *Store) AllClosed() []*model.ClosedPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ClosedPosition, len(s.closed))
	copy(out, s.closed)
	return out
}

func (s *Store) flushAsync() {
	go func() {
		if err := s.Flush(); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to flush positions snapshot")
		}
	}()
}

// Flush writes the current open/closed state to disk atomically.
func (s *Store) Flush() error {
	s.mu.RLock()
	snap := snapshot{
		Open:   make(map[string]*model.OpenPosition, len(s.open)),
		Closed: s.closed,
	}
	for k, v := range s.open {
		snap.Open[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Now is a small helper mirroring the teacher's storage.Now().
func Now() int64 {
	return time.Now().UnixMilli()
}
