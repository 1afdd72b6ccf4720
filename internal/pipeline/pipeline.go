// Package pipeline implements the Event Router: idempotent, non-blocking
// dispatch of buy signals into buy-open-watcher tasks, guarded by a
// per-mint in-flight lock. Grounded on the teacher's
// internal/trading/executor_fast.go duplicate-signal/position guards
// (isDuplicateSignal, hasMintPosition), generalized into an explicit
// per-mint lock set instead of ad hoc map checks scattered across one
// executor struct.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/executor"
	"copytrade-engine/internal/model"
	"copytrade-engine/internal/positions"
)

// Notifier sends best-effort "signal detected" and "position opened"
// notices.
type Notifier interface {
	NotifySignalDetected(sig model.BuySignal)
	NotifyPositionOpen(pos *model.OpenPosition)
}

// WatcherStarter starts a Watcher for a newly opened mint. Implementations
// are expected to run the watcher in its own goroutine and return quickly.
type WatcherStarter func(mint string)

// Router dispatches BuySignals into buy-open-watcher tasks, enforcing
// at-most-one in-flight buy per mint.
type Router struct {
	store        *positions.Store
	exec         *executor.Executor
	notifier     Notifier
	startWatcher WatcherStarter
	buySolAmount float64
	nativeUSD    func() float64

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// New builds a Router. nativeUSD supplies the current native-token USD
// price passed with each buy: the Swap Router derives the entry price from
// it, and paper mode uses it when the oracle has no quote.
func New(store *positions.Store, exec *executor.Executor, notifier Notifier, startWatcher WatcherStarter, buySolAmount float64, nativeUSD func() float64) *Router {
	return &Router{
		store:        store,
		exec:         exec,
		notifier:     notifier,
		startWatcher: startWatcher,
		buySolAmount: buySolAmount,
		nativeUSD:    nativeUSD,
		inFlight:     make(map[string]struct{}),
	}
}

// HandleSignal implements handle_event(enhanced_tx)'s per-signal sequence:
// notify, skip if already open or in-flight, else acquire the lock and
// spawn an independent buy-open-watcher task.
func (r *Router) HandleSignal(ctx context.Context, sig model.BuySignal) {
	if r.notifier != nil {
		r.notifier.NotifySignalDetected(sig)
	}

	if r.store.Has(sig.Mint) {
		return
	}

	if !r.tryAcquire(sig.Mint) {
		return
	}

	go r.runBuyOpenWatcher(ctx, sig)
}

func (r *Router) tryAcquire(mint string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if _, busy := r.inFlight[mint]; busy {
		return false
	}
	r.inFlight[mint] = struct{}{}
	return true
}

func (r *Router) release(mint string) {
	r.inFlightMu.Lock()
	delete(r.inFlight, mint)
	r.inFlightMu.Unlock()
}

func (r *Router) runBuyOpenWatcher(ctx context.Context, sig model.BuySignal) {
	defer r.release(sig.Mint)

	lamports := uint64(r.buySolAmount * 1_000_000_000)
	native := 0.0
	if r.nativeUSD != nil {
		native = r.nativeUSD()
	}

	report, err := r.exec.ExecuteBuy(ctx, executor.BuyRequest{
		Mint:              sig.Mint,
		BuyAmountLamports: lamports,
		NativeUSD:         native,
	})
	if err != nil {
		log.Error().Err(err).Str("mint", sig.Mint).Str("wallet", sig.Wallet).Msg("executeBuy failed, releasing in-flight lock")
		return
	}

	pos := &model.OpenPosition{
		Mint:          sig.Mint,
		OriginWallet:  sig.Wallet,
		EntryPriceUSD: report.EntryOrExitPrice,
		QtyAtoms:      report.ReceivedAtoms,
		SolSpent:      solSpentPtr(sig.SolSpent),
		TsOpen:        positions.Now(),
		SourceTx:      report.Signature,
		Mode:          modeOf(report),
		Strategy:      report.Strategy,
	}
	r.store.OpenPosition(pos)

	if r.notifier != nil {
		r.notifier.NotifyPositionOpen(pos)
	}

	if r.startWatcher != nil {
		r.startWatcher(sig.Mint)
	}
}

func modeOf(report *model.FillReport) model.PositionMode {
	if report.EndpointUsed == "paper" {
		return model.ModePaper
	}
	return model.ModeLive
}

func solSpentPtr(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// InFlightCount reports the number of mints with a pending buy, for
// diagnostics.
func (r *Router) InFlightCount() int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return len(r.inFlight)
}
