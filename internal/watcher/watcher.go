// Package watcher implements the Watcher: one independent supervision
// loop per open mint, evaluating take-profit/stop-loss/settlement-timeout
// on each tick and driving the exit through the Executor with exponential
// backoff on failed sells. Grounded on the teacher's
// internal/trading/executor_fast.go monitorPositions loop, restructured
// from one shared loop over all positions into one goroutine per mint.
package watcher

import (
	"context"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/executor"
	"copytrade-engine/internal/model"
	"copytrade-engine/internal/positions"
	"copytrade-engine/internal/price"
	"copytrade-engine/internal/txerr"
)

const (
	baseBackoff      = 1500 * time.Millisecond
	maxBackoff       = 60 * time.Second
	backoffJitterMs  = 250
	sellRetries      = 4
)

// BalanceResolver resolves the wallet's current balance (in atoms) for a
// mint, e.g. backed by blockchain.RPCClient.GetTokenAccountsByOwner.
type BalanceResolver func(ctx context.Context, mint string) (*big.Int, error)

// Notifier sends a best-effort exit notice; failures are logged, never
// propagated.
type Notifier interface {
	NotifyExit(closed *model.ClosedPosition)
}

// Config carries the tunables a Watcher needs per spec §4.8.
type Config struct {
	PricePollInterval  time.Duration // lower-bounded at 500ms by New
	TakeProfitPercent  float64
	StopLossPercent    float64
	BuySettleTimeout   time.Duration
	PreferVenueOnSell  bool
}

// Watcher supervises exactly one open mint until it closes or disappears.
type Watcher struct {
	mint     string
	cfg      Config
	store    *positions.Store
	oracle   *price.Oracle
	exec     *executor.Executor
	balances BalanceResolver
	notifier Notifier

	mu           sync.Mutex
	cooldownUntil time.Time
	exiting      bool
	backoff      time.Duration

	cancel context.CancelFunc
}

// New builds a Watcher for mint. Call Run in its own goroutine; call Stop
// to cancel it early (e.g. on graceful shutdown).
func New(mint string, cfg Config, store *positions.Store, oracle *price.Oracle, exec *executor.Executor, balances BalanceResolver, notifier Notifier) *Watcher {
	if cfg.PricePollInterval < 500*time.Millisecond {
		cfg.PricePollInterval = 500 * time.Millisecond
	}
	return &Watcher{
		mint:     mint,
		cfg:      cfg,
		store:    store,
		oracle:   oracle,
		exec:     exec,
		balances: balances,
		notifier: notifier,
		backoff:  baseBackoff,
	}
}

// Run ticks until the position closes, disappears, or ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ticker := time.NewTicker(w.cfg.PricePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.tick(ctx) {
				return
			}
		}
	}
}

// Stop cancels this watcher's Run loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// tick runs one per-tick algorithm pass. Returns false when the watcher
// should stop (position closed or absent).
func (w *Watcher) tick(ctx context.Context) bool {
	open := w.store.Open(w.mint)
	if open == nil {
		return false
	}

	w.mu.Lock()
	if time.Now().Before(w.cooldownUntil) {
		w.mu.Unlock()
		return true
	}
	w.mu.Unlock()

	// Balance/settlement-timeout is unconditional: it must run even when
	// entry price is still null, or a no-balance position with a null
	// entry price would never reach its settlement timeout.
	balance, err := w.balances(ctx, w.mint)
	if err != nil {
		log.Debug().Err(err).Str("mint", w.mint).Msg("balance resolution failed, will retry next tick")
		return true
	}

	if balance == nil || balance.Sign() == 0 {
		if time.Since(time.UnixMilli(open.TsOpen)) >= w.cfg.BuySettleTimeout {
			closed := w.store.ClosePosition(w.mint, nil, nil, model.ReasonNoBalanceSettlement, positions.Now())
			if closed != nil && w.notifier != nil {
				w.notifier.NotifyExit(closed)
			}
			return false
		}
		w.scheduleBackoff()
		return true
	}

	if open.EntryPriceUSD == nil {
		return true
	}

	quote := w.oracle.SpotPriceUSD(ctx, w.mint, 0, 0)
	if quote == nil {
		return true
	}

	entry := *open.EntryPriceUSD
	changePct := (quote.PriceUSD - entry) / entry * 100
	hitTP := changePct >= w.cfg.TakeProfitPercent
	hitSL := changePct <= -absFloat(w.cfg.StopLossPercent)

	if !hitTP && !hitSL {
		return true
	}

	w.mu.Lock()
	if w.exiting {
		w.mu.Unlock()
		return true
	}
	w.exiting = true
	w.mu.Unlock()

	w.attemptExit(ctx, open, balance, changePct, hitTP, quote.PriceUSD)
	return w.store.Has(w.mint)
}

// attemptExit runs the up-to-4-retry sell ladder, closing the position on
// success or extending the cooldown on definitive failure.
func (w *Watcher) attemptExit(ctx context.Context, open *model.OpenPosition, balance *big.Int, changePct float64, hitTP bool, exitPrice float64) {
	var lastErr error

	for attempt := 0; attempt < sellRetries; attempt++ {
		if attempt > 0 {
			wait := 600*time.Millisecond + time.Duration(attempt)*500*time.Millisecond
			select {
			case <-ctx.Done():
				w.clearExiting()
				return
			case <-time.After(wait):
			}
		}

		report, err := w.exec.ExecuteSell(ctx, executor.SellRequest{
			Mint:                w.mint,
			QtyAtoms:            balance,
			SellAll:             true,
			PreferVenue:         w.cfg.PreferVenueOnSell,
			NativeUSD:           exitPrice,
			CurrentBalanceAtoms: balance,
		})
		if err == nil {
			w.mu.Lock()
			w.backoff = baseBackoff
			w.exiting = false
			w.mu.Unlock()

			reason := model.StopLossReason(absFloat(w.cfg.StopLossPercent))
			if hitTP {
				reason = model.TakeProfitReason(w.cfg.TakeProfitPercent)
			}

			var exitPriceUSD *float64
			if report.EntryOrExitPrice != nil {
				exitPriceUSD = report.EntryOrExitPrice
			} else {
				exitPriceUSD = &exitPrice
			}
			sig := report.Signature

			closed := w.store.ClosePosition(w.mint, exitPriceUSD, &sig, reason, positions.Now())
			if closed != nil && w.notifier != nil {
				w.notifier.NotifyExit(closed)
			}
			return
		}

		lastErr = err
		kind := txerr.Classify(err)
		if kind == txerr.RateLimit || kind == txerr.NoRoute || kind == txerr.NoBalance {
			// extend backoff immediately; still retries within this ladder
			w.mu.Lock()
			w.backoff = nextBackoff(w.backoff)
			w.mu.Unlock()
		}
	}

	log.Warn().Err(lastErr).Str("mint", w.mint).Msg("exit attempt exhausted retries, scheduling cooldown")
	w.scheduleBackoff()
	w.clearExiting()
}

func (w *Watcher) scheduleBackoff() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backoff = nextBackoff(w.backoff)
	w.cooldownUntil = time.Now().Add(w.backoff)
}

func (w *Watcher) clearExiting() {
	w.mu.Lock()
	w.exiting = false
	w.mu.Unlock()
}

// nextBackoff doubles cur, capped at maxBackoff, with jitter up to 250ms.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	if next < baseBackoff {
		next = baseBackoff
	}
	return next + time.Duration(rand.Intn(backoffJitterMs))*time.Millisecond
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
