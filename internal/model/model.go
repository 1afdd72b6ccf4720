// Package model holds the domain types shared across the copy-trading
// pipeline: signals, tracked wallets, positions, and swap results.
package model

import (
	"math"
	"math/big"
	"strconv"
	"time"
)

// BuySignal is the normalized output of parsing one enhanced transaction
// against one tracked wallet.
type BuySignal struct {
	Wallet    string   `json:"wallet"`
	Mint      string   `json:"mint"`
	Amount    *big.Int `json:"amount"`
	Signature string   `json:"signature"`
	SolSpent  float64  `json:"sol_spent,omitempty"`
	TxType    string   `json:"tx_type,omitempty"`
}

// TrackedWalletSet is a snapshot of the wallets currently subscribed to.
// Readers should treat instances as immutable; refreshes replace the whole
// set rather than mutating it in place.
type TrackedWalletSet struct {
	Addresses map[string]struct{}
	FetchedAt time.Time
}

// NewTrackedWalletSet builds a TrackedWalletSet from a slice of addresses.
func NewTrackedWalletSet(addrs []string) *TrackedWalletSet {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return &TrackedWalletSet{Addresses: set, FetchedAt: time.Now()}
}

// Has reports whether the given wallet address is tracked.
func (s *TrackedWalletSet) Has(addr string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Addresses[addr]
	return ok
}

// List returns the tracked addresses as a slice.
func (s *TrackedWalletSet) List() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Addresses))
	for a := range s.Addresses {
		out = append(out, a)
	}
	return out
}

// PositionMode distinguishes simulated (paper) execution from live swaps.
type PositionMode string

const (
	ModePaper PositionMode = "paper"
	ModeLive  PositionMode = "live"
)

// CloseReason enumerates why a position was closed.
type CloseReason string

const (
	ReasonManual              CloseReason = "manual"
	ReasonNoBalanceSettlement CloseReason = "buy_failed_no_balance"
)

// TakeProfitReason formats the exit_reason string for a take-profit close.
func TakeProfitReason(pct float64) CloseReason {
	return CloseReason(formatPctReason("take_profit", pct))
}

// StopLossReason formats the exit_reason string for a stop-loss close.
func StopLossReason(pct float64) CloseReason {
	return CloseReason(formatPctReason("stop_loss", pct))
}

func formatPctReason(tag string, pct float64) string {
	return tag + "_" + trimTrailingZeros(pct) + "%"
}

func trimTrailingZeros(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}

// OpenPosition is the per-mint record present exactly once while a position
// is active.
type OpenPosition struct {
	Mint          string       `json:"mint"`
	OriginWallet  string       `json:"origin_wallet"`
	EntryPriceUSD *float64     `json:"entry_price_usd"`
	QtyAtoms      *big.Int     `json:"qty_atoms"`
	Decimals      *int         `json:"decimals"`
	SolSpent      *float64     `json:"sol_spent"`
	TsOpen        int64        `json:"ts_open"`
	SourceTx      string       `json:"source_tx"`
	Mode          PositionMode `json:"mode"`
	Strategy      string       `json:"strategy"`
}

// ClosedPosition is an append-only record of a position that has been
// closed, carrying the fields of OpenPosition plus exit details.
type ClosedPosition struct {
	Mint          string       `json:"mint"`
	OriginWallet  string       `json:"origin_wallet"`
	EntryPriceUSD *float64     `json:"entry_price_usd"`
	QtyAtoms      *big.Int     `json:"qty_atoms"`
	Decimals      *int         `json:"decimals"`
	SolSpent      *float64     `json:"sol_spent"`
	TsOpen        int64        `json:"ts_open"`
	SourceTx      string       `json:"source_tx"`
	Mode          PositionMode `json:"mode"`
	Strategy      string       `json:"strategy"`

	ExitPriceUSD *float64    `json:"exit_price_usd"`
	ExitTx       *string     `json:"exit_tx"`
	TsClose      int64       `json:"ts_close"`
	PnLPercent   *float64    `json:"pnl_pct"`
	Reason       CloseReason `json:"reason"`
}

// PnLPercent computes (exit-entry)/entry*100 when both prices are finite,
// returning nil otherwise.
func PnLPercent(entry, exit *float64) *float64 {
	if entry == nil || exit == nil || *entry == 0 {
		return nil
	}
	if math.IsNaN(*entry) || math.IsInf(*entry, 0) || math.IsNaN(*exit) || math.IsInf(*exit, 0) {
		return nil
	}
	v := (*exit - *entry) / *entry * 100
	return &v
}

// RouteQuote is the ephemeral result of a Swap Router quote resolution.
type RouteQuote struct {
	InputAmount  *big.Int
	OutputAmount *big.Int
	PriceImpact  float64
	Strategy     string // direct-preferred|any-route|bridge|venue-fallback
	ContextID    string
}

// FillReport is the ephemeral outcome of a completed swap.
type FillReport struct {
	Signature        string
	ReceivedAtoms    *big.Int
	Decimals         *int
	EntryOrExitPrice *float64
	Strategy         string
	EndpointUsed     string
}

// Swap routing strategy tags.
const (
	StrategyDirectPreferred = "direct-preferred"
	StrategyAnyRoute        = "any-route"
	StrategyBridge          = "bridge"
	StrategyVenueFallback   = "venue-fallback"
)
