// Package dedup implements the SeenCache: an idempotency cache keyed by
// (wallet, mint) with TTL-based debounce semantics, durably snapshotted to
// disk using the teacher's read/write-with-TTL idiom (keycache.go) extended
// with temp-file-then-rename atomicity.
package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is a concurrent map from opaque key to last-seen timestamp (ms),
// with a best-effort durable snapshot.
type Store struct {
	mu   sync.RWMutex
	data map[string]int64 // key -> timestamp_ms
	path string
}

// New creates a Store backed by the given snapshot file path. A missing or
// corrupt file is treated as empty, per the durable-state-races design note.
func New(path string) *Store {
	s := &Store{
		data: make(map[string]int64),
		path: path,
	}
	s.load()
	return s
}

// Key builds the canonical debounce key for a (wallet, mint) pair.
func Key(wallet, mint string) string {
	return fmt.Sprintf("buy:%s:%s", wallet, mint)
}

// Has reports whether key was set within the given TTL of now.
func (s *Store) Has(key string, ttl time.Duration, now time.Time) bool {
	s.mu.RLock()
	ts, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(time.UnixMilli(ts)) < ttl
}

// Set records key as seen at now and triggers a best-effort async flush.
func (s *Store) Set(key string, now time.Time) {
	s.mu.Lock()
	s.data[key] = now.UnixMilli()
	s.mu.Unlock()
	s.flushAsync()
}

// Get returns the stored timestamp (ms) for key, if any.
func (s *Store) Get(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.data[key]
	return ts, ok
}

// Delete removes key from the cache.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	s.flushAsync()
}

// Prune removes all entries older than ttl relative to now, returning the
// number removed. Intended to be called periodically to bound memory.
func (s *Store) Prune(ttl time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ts := range s.data {
		if now.Sub(time.UnixMilli(ts)) >= ttl {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var data map[string]int64
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("dedup snapshot corrupt, starting empty")
		return
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

// flushAsync writes the snapshot best-effort; failures are logged only, per
// the best-effort-adapters design note — store-write failures never
// propagate into the pipeline.
func (s *Store) flushAsync() {
	go func() {
		if err := s.Flush(); err != nil {
			log.Warn().Err(err).Str("path", s.path).Msg("failed to flush dedup snapshot")
		}
	}()
}

// Flush writes the current snapshot to disk via temp-file-then-rename.
func (s *Store) Flush() error {
	s.mu.RLock()
	snapshot := make(map[string]int64, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snapshot)
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

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
