package positions

import (
	"path/filepath"
	"testing"

	"copytrade-engine/internal/model"
)

func newTestOpen(mint string, entry float64) *model.OpenPosition {
	e := entry
	return &model.OpenPosition{
		Mint:          mint,
		OriginWallet:  "W",
		EntryPriceUSD: &e,
		TsOpen:        1000,
		SourceTx:      "sig1",
		Mode:          model.ModePaper,
		Strategy:      model.StrategyDirectPreferred,
	}
}

func TestOpenPosition_AtMostOnePerMint(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "positions.json"))
	s.OpenPosition(newTestOpen("M", 0.01))
	s.OpenPosition(newTestOpen("M", 0.02))

	if s.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", s.Count())
	}
	if got := s.Open("M").EntryPriceUSD; got == nil || *got != 0.02 {
		t.Errorf("expected overwrite to latest entry price, got %v", got)
	}
}

func TestClosePosition_ComputesPnLAndMoves(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "positions.json"))
	s.OpenPosition(newTestOpen("M", 0.01))

	exit := 0.013
	sig := "exitsig"
	closed := s.ClosePosition("M", &exit, &sig, model.TakeProfitReason(30), 2000)

	if s.Has("M") {
		t.Error("expected position removed from open set after close")
	}
	if closed == nil {
		t.Fatal("expected non-nil closed record")
	}
	if closed.PnLPercent == nil {
		t.Fatal("expected non-nil pnl_pct")
	}
	if *closed.PnLPercent < 29.9 || *closed.PnLPercent > 30.1 {
		t.Errorf("pnl_pct = %v, want ~30.0", *closed.PnLPercent)
	}
	if len(s.AllClosed()) != 1 {
		t.Errorf("AllClosed() len = %d, want 1", len(s.AllClosed()))
	}
}

func TestClosePosition_AbsentMint(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "positions.json"))
	if got := s.ClosePosition("nope", nil, nil, model.ReasonManual, 0); got != nil {
		t.Errorf("expected nil for absent mint, got %+v", got)
	}
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	s := New(path)
	s.OpenPosition(newTestOpen("M", 0.01))
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reloaded := New(path)
	if !reloaded.Has("M") {
		t.Error("expected reloaded store to have open position for M")
	}
}

func TestCanOpen(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "positions.json"))
	if !s.CanOpen(1) {
		t.Fatal("expected CanOpen true with 0 positions, max 1")
	}
	s.OpenPosition(newTestOpen("M", 0.01))
	if s.CanOpen(1) {
		t.Error("expected CanOpen false at capacity")
	}
}
