// Package wallets implements the Wallet Selection Adapter: the external
// boundary providing getTopWallets(). The core only ever consumes the
// resulting address set; this package owns the polling/caching mechanics.
// Grounded on the KOL-tracker's FreshWalletMonitor periodic-scan shape
// (other_examples/851d1947_wtfspiff-KOLTracker__pkg-monitor-fresh_wallet.go.go),
// adapted from a per-token watch map into a single periodically refreshed
// top-traders list.
package wallets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/model"
)

// TrackedWallet is one entry of getTopWallets()'s result: an address
// enriched with recency/performance signals the core treats as opaque.
type TrackedWallet struct {
	Address          string  `json:"address"`
	WinRatePercent   float64 `json:"win_rate_percent"`
	LastActiveMsAgo  int64   `json:"last_active_ms_ago"`
}

// Source is the Wallet Selection Adapter boundary. The core depends only
// on this interface, never on a concrete HTTP shape.
type Source interface {
	GetTopWallets(ctx context.Context) ([]TrackedWallet, error)
}

// HTTPSource polls a top-traders HTTP endpoint on a fixed interval,
// caching the last good result so transient fetch failures don't blank
// out the tracked-wallet set.
type HTTPSource struct {
	baseURL     string
	http        *http.Client
	minWinRate  float64

	mu        sync.RWMutex
	cached    []TrackedWallet
	fetchedAt time.Time
}

// NewHTTPSource builds an HTTPSource. minWinRate filters out wallets below
// the given win-rate percentage when the upstream doesn't pre-filter.
func NewHTTPSource(baseURL string, timeout time.Duration, minWinRate float64) *HTTPSource {
	return &HTTPSource{
		baseURL:    baseURL,
		http:       &http.Client{Timeout: timeout},
		minWinRate: minWinRate,
	}
}

type topWalletsResponse struct {
	Wallets []TrackedWallet `json:"wallets"`
}

// GetTopWallets fetches the current top-traders list. On fetch failure it
// falls back to the last cached result (possibly empty on first call).
func (s *HTTPSource) GetTopWallets(ctx context.Context) ([]TrackedWallet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return s.cachedOrErr(err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return s.cachedOrErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.cachedOrErr(fmt.Errorf("top wallets source: unexpected status %d", resp.StatusCode))
	}

	var out topWalletsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return s.cachedOrErr(err)
	}

	filtered := make([]TrackedWallet, 0, len(out.Wallets))
	for _, w := range out.Wallets {
		if w.Address == "" || w.WinRatePercent < s.minWinRate {
			continue
		}
		filtered = append(filtered, w)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].WinRatePercent > filtered[j].WinRatePercent
	})

	s.mu.Lock()
	s.cached = filtered
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	return filtered, nil
}

func (s *HTTPSource) cachedOrErr(fetchErr error) ([]TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cached) == 0 {
		return nil, fetchErr
	}
	log.Warn().Err(fetchErr).Time("last_good_fetch", s.fetchedAt).Msg("top wallets refresh failed, serving cached list")
	return s.cached, nil
}

// Refresher periodically refreshes a TrackedWalletSet from a Source,
// publishing replace-by-snapshot so readers never observe a partial
// update. Grounded on spec §5's "replace-by-snapshot" discipline for
// TrackedWalletSet.
type Refresher struct {
	source   Source
	interval time.Duration
	onUpdate func(*model.TrackedWalletSet)

	mu      sync.RWMutex
	current *model.TrackedWalletSet
}

// NewRefresher builds a Refresher. onUpdate, if non-nil, is called (e.g.
// to trigger a webhook re-registration) every time a refresh succeeds.
func NewRefresher(source Source, interval time.Duration, onUpdate func(*model.TrackedWalletSet)) *Refresher {
	return &Refresher{
		source:   source,
		interval: interval,
		onUpdate: onUpdate,
		current:  model.NewTrackedWalletSet(nil),
	}
}

// Current returns the most recently published TrackedWalletSet.
func (r *Refresher) Current() *model.TrackedWalletSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// RefreshOnce performs a single fetch-and-publish cycle, used both by Run
// and by the admin refresh endpoint.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	top, err := r.source.GetTopWallets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("wallet refresh failed, keeping previous tracked set")
		return err
	}

	addrs := make([]string, 0, len(top))
	for _, w := range top {
		addrs = append(addrs, w.Address)
	}
	next := model.NewTrackedWalletSet(addrs)

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	log.Info().Int("count", len(addrs)).Msg("tracked wallet set refreshed")

	if r.onUpdate != nil {
		r.onUpdate(next)
	}
	return nil
}

// Run refreshes on the configured interval until ctx is cancelled, per
// spec §5's "one hourly refresh task" scheduling model.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}
