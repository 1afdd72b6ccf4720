// Package executor implements the Executor: executeBuy/executeSell
// orchestration behind a process-wide trade throttle, with a paper/live
// mode toggle that skips the Swap Router entirely in paper mode (only the
// price oracle is queried there).
// Grounded on the teacher's internal/trading/executor_fast.go buy/sell
// sequencing (balance check, allocation sizing, exponential-backoff retry
// ladder), restructured around the Swap Router instead of a direct
// Jupiter call.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/model"
	"copytrade-engine/internal/price"
	"copytrade-engine/internal/router"
	"copytrade-engine/internal/txerr"
)

// Mode toggles between synthesized paper fills and live swaps.
type Mode int

const (
	ModeLive Mode = iota
	ModePaper
)

// throttleJitterMs bounds the random jitter added atop the configured
// minimum inter-call interval.
const throttleJitterMs = 150

// Executor serializes all trade calls through a single throttle gate and
// dispatches to the Swap Router (or a paper-mode synthesis) per call.
type Executor struct {
	router     *router.Router
	oracle     *price.Oracle
	mode       Mode
	minInterval time.Duration

	throttleMu sync.Mutex
	lastCall   time.Time
}

// New builds an Executor. minInterval is min_trade_interval_ms.
func New(r *router.Router, oracle *price.Oracle, mode Mode, minInterval time.Duration) *Executor {
	return &Executor{router: r, oracle: oracle, mode: mode, minInterval: minInterval}
}

// SetMode switches between paper and live trading.
func (e *Executor) SetMode(mode Mode) {
	e.mode = mode
}

// throttle blocks until at least minInterval (plus jitter) has elapsed
// since the previous call, serializing all trade calls through this gate.
func (e *Executor) throttle() {
	e.throttleMu.Lock()
	defer e.throttleMu.Unlock()

	if !e.lastCall.IsZero() {
		elapsed := time.Since(e.lastCall)
		wait := e.minInterval - elapsed
		if wait > 0 {
			wait += time.Duration(rand.Intn(throttleJitterMs)) * time.Millisecond
			time.Sleep(wait)
		}
	}
	e.lastCall = time.Now()
}

// BuyRequest describes a buy call.
type BuyRequest struct {
	Mint           string
	BuyAmountLamports uint64
	NativeUSD      float64
}

// ExecuteBuy converts the configured native buy amount to base units and
// swaps native -> mint via the Swap Router. In paper mode it returns a
// synthesized fill priced by the oracle (or req.NativeUSD when the oracle
// has no quote) without swapping or broadcasting anything.
func (e *Executor) ExecuteBuy(ctx context.Context, req BuyRequest) (*model.FillReport, error) {
	e.throttle()

	if e.mode == ModePaper {
		return e.paperBuy(ctx, req), nil
	}

	report, err := e.router.Swap(ctx, router.Request{
		InputMint:      router.SOLMint,
		OutputMint:     req.Mint,
		AmountLamports: req.BuyAmountLamports,
		NativeUSD:      req.NativeUSD,
	})
	if err != nil {
		return nil, fmt.Errorf("execute buy: %w", err)
	}

	if report.EntryOrExitPrice == nil {
		if q := e.oracle.SpotPriceUSD(ctx, req.Mint, 0, 0); q != nil {
			p := q.PriceUSD
			report.EntryOrExitPrice = &p
		}
	}

	return report, nil
}

func (e *Executor) paperBuy(ctx context.Context, req BuyRequest) *model.FillReport {
	priceUSD := req.NativeUSD
	if q := e.oracle.SpotPriceUSD(ctx, req.Mint, 0, 0); q != nil {
		priceUSD = q.PriceUSD
	}
	return &model.FillReport{
		Signature:        "PAPER",
		ReceivedAtoms:    big.NewInt(int64(req.BuyAmountLamports)),
		EntryOrExitPrice: &priceUSD,
		Strategy:         model.StrategyDirectPreferred,
		EndpointUsed:     "paper",
	}
}

// SellRequest describes a sell call.
type SellRequest struct {
	Mint              string
	QtyAtoms          *big.Int // nil => CurrentBalanceAtoms is used; the Executor does not read balances on-chain itself
	SellAll           bool
	PreferVenue       bool
	NativeUSD         float64
	CurrentBalanceAtoms *big.Int // caller-resolved wallet balance; live mode sells it when QtyAtoms is nil, failing with NoBalance when it is zero
}

// ExecuteSell routes through the venue path first when PreferVenue is set
// (attempting a 100% sell), falling through to the aggregator on failure.
// Classifies errors per the RateLimit/NoBalance/NoRoute/other taxonomy.
func (e *Executor) ExecuteSell(ctx context.Context, req SellRequest) (*model.FillReport, error) {
	e.throttle()

	if e.mode == ModePaper {
		return e.paperSell(ctx, req), nil
	}

	qty := req.QtyAtoms
	if qty == nil {
		qty = req.CurrentBalanceAtoms
	}
	if qty == nil || qty.Sign() <= 0 {
		return nil, txerr.New(txerr.NoBalance, fmt.Errorf("no balance to sell for mint %s", req.Mint))
	}

	report, err := e.router.Swap(ctx, router.Request{
		InputMint:      req.Mint,
		OutputMint:     router.SOLMint,
		AmountLamports: qty.Uint64(),
		PreferVenue:    req.PreferVenue,
		SellAll:        req.SellAll,
		NativeUSD:      req.NativeUSD,
	})
	if err != nil {
		kind := txerr.Classify(err)
		log.Warn().Err(err).Str("mint", req.Mint).Str("kind", string(kind)).Msg("execute sell failed")
		return nil, txerr.New(kind, err)
	}

	return report, nil
}

func (e *Executor) paperSell(ctx context.Context, req SellRequest) *model.FillReport {
	priceUSD := req.NativeUSD
	if q := e.oracle.SpotPriceUSD(ctx, req.Mint, 0, 0); q != nil {
		priceUSD = q.PriceUSD
	}
	received := req.QtyAtoms
	if received == nil {
		received = big.NewInt(0)
	}
	return &model.FillReport{
		Signature:        "PAPER",
		ReceivedAtoms:    received,
		EntryOrExitPrice: &priceUSD,
		Strategy:         model.StrategyDirectPreferred,
		EndpointUsed:     "paper",
	}
}
