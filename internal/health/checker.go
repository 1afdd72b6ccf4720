// Package health tracks readiness of the engine's external dependencies
// (the read RPC endpoint and each broadcast RPC endpoint), probed
// periodically, with reachability changes logged for operators. Grounded on the teacher's
// internal/health/checker.go periodic-ticker shape, re-pointed from a
// Telegram-listener self-check (irrelevant once the HTTP surface is this
// engine's own webhook server) to the RPC endpoints this engine actually
// depends on.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the last observed reachability of one dependency endpoint.
type Status struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Error   string
}

// Checker periodically probes the configured endpoints and logs
// transitions; GetStatuses exposes the last snapshot for diagnostics.
type Checker struct {
	mu        sync.RWMutex
	statuses  []Status
	endpoints map[string]string // name -> URL
	interval  time.Duration
}

// NewChecker builds a Checker over the given named endpoints (e.g.
// "read_rpc" -> the read RPC URL, "broadcast_N" -> each race endpoint).
func NewChecker(endpoints map[string]string, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Checker{endpoints: endpoints, interval: interval}
}

// Start begins periodic probing until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.check()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check()
			}
		}
	}()
}

func (c *Checker) check() {
	statuses := make([]Status, 0, len(c.endpoints))
	for name, url := range c.endpoints {
		statuses = append(statuses, c.probe(name, url))
	}

	c.mu.Lock()
	prev := c.statuses
	c.statuses = statuses
	c.mu.Unlock()

	logTransitions(prev, statuses)
}

func (c *Checker) probe(name, url string) Status {
	start := time.Now()
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err == nil {
		req.Header.Set("Content-Type", "application/json")
		_, err = client.Do(req)
	}
	latency := time.Since(start)

	status := Status{Name: name, Latency: latency, Healthy: err == nil}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func logTransitions(prev, next []Status) {
	prevHealthy := make(map[string]bool, len(prev))
	for _, s := range prev {
		prevHealthy[s.Name] = s.Healthy
	}
	for _, s := range next {
		if had, ok := prevHealthy[s.Name]; ok && had == s.Healthy {
			continue
		}
		if s.Healthy {
			log.Info().Str("endpoint", s.Name).Dur("latency", s.Latency).Msg("rpc endpoint healthy")
		} else {
			log.Warn().Str("endpoint", s.Name).Str("error", s.Error).Msg("rpc endpoint unreachable")
		}
	}
}

// GetStatuses returns the last probe snapshot.
func (c *Checker) GetStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Status, len(c.statuses))
	copy(out, c.statuses)
	return out
}
