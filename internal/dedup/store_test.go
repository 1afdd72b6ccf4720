package dedup

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHas_WithinTTL(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "seen.json"))
	now := time.Now()
	key := Key("W", "M")

	if s.Has(key, 10*time.Minute, now) {
		t.Fatal("expected not-seen before Set")
	}

	s.Set(key, now)

	if !s.Has(key, 10*time.Minute, now.Add(5*time.Minute)) {
		t.Error("expected seen within TTL window")
	}
	if s.Has(key, 10*time.Minute, now.Add(11*time.Minute)) {
		t.Error("expected not-seen after TTL expiry")
	}
}

func TestFlushAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")
	s := New(path)
	now := time.Now()
	s.Set(Key("W", "M"), now)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reloaded := New(path)
	if !reloaded.Has(Key("W", "M"), time.Hour, now) {
		t.Error("expected reloaded store to retain entry within TTL")
	}
}

func TestNew_MissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for missing file", s.Len())
	}
}

func TestPrune(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "seen.json"))
	now := time.Now()
	s.Set(Key("W1", "M1"), now.Add(-time.Hour))
	s.Set(Key("W2", "M2"), now)

	removed := s.Prune(10*time.Minute, now)
	if removed != 1 {
		t.Errorf("Prune removed = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() after prune = %d, want 1", s.Len())
	}
}
