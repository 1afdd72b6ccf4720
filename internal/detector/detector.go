// Package detector implements the Buy Detector: parsing one Helius-style
// enhanced transaction into zero or more normalized BuySignals, gated by
// the tracked wallet set and the seen cache. Grounded on the teacher's
// internal/signal parser/handler shape, re-pointed at token-transfer
// enumeration instead of chat-message text parsing.
package detector

import (
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/dedup"
	"copytrade-engine/internal/model"
	"copytrade-engine/internal/walletkey"
)

// TokenTransfer is one entry of an enhanced transaction's tokenTransfers
// list (Helius-style webhook payload).
type TokenTransfer struct {
	Mint            string
	TokenAmount     float64 // UI-normalized amount; decoded but not read, positivity is tested on RawTokenAmount only
	RawTokenAmount  string  // raw base-unit (atoms) amount, the value carried onward
	ToUserAccount   string  // receiver owner address
	FromUserAccount string
}

// NativeTransfer is one entry of an enhanced transaction's
// nativeTransfers list.
type NativeTransfer struct {
	FromUserAccount string
	Amount          uint64 // lamports
}

// EnhancedTransaction is the opaque structured record the detector reads;
// a minimal projection of the Helius enhanced-transaction webhook shape.
type EnhancedTransaction struct {
	Signature       string
	Type            string
	TokenTransfers  []TokenTransfer
	NativeTransfers []NativeTransfer
}

// Detector turns enhanced transactions into normalized buy signals.
type Detector struct {
	excludedMints map[string]struct{}
	buyDebounce   time.Duration
}

// New builds a Detector. excludedMints lists mints that never qualify as
// buy signals (e.g. the native wrap mint itself).
func New(excludedMints []string, buyDebounce time.Duration) *Detector {
	excluded := make(map[string]struct{}, len(excludedMints))
	for _, m := range excludedMints {
		excluded[m] = struct{}{}
	}
	return &Detector{excludedMints: excluded, buyDebounce: buyDebounce}
}

// Detect enumerates tx's token transfers and emits a BuySignal for each
// accepted transfer: positive amount, mint not excluded, receiver tracked,
// and not recently seen for (wallet, mint). Never panics or returns an
// error — malformed entries are skipped with a warning.
func (d *Detector) Detect(tx EnhancedTransaction, tracked *model.TrackedWalletSet, seen *dedup.Store, now time.Time) []model.BuySignal {
	if tx.TokenTransfers == nil {
		return nil
	}

	var signals []model.BuySignal
	malformed := 0

	for _, tt := range tx.TokenTransfers {
		if tt.Mint == "" || tt.ToUserAccount == "" {
			malformed++
			continue
		}
		if !walletkey.IsValidAddress(tt.Mint) || !walletkey.IsValidAddress(tt.ToUserAccount) {
			malformed++
			continue
		}

		amountAtoms := d.resolveAtoms(tt)
		if amountAtoms == nil || amountAtoms.Sign() <= 0 {
			malformed++
			continue
		}

		if _, excluded := d.excludedMints[tt.Mint]; excluded {
			continue
		}
		if !tracked.Has(tt.ToUserAccount) {
			continue
		}

		key := dedup.Key(tt.ToUserAccount, tt.Mint)
		if seen.Has(key, d.buyDebounce, now) {
			continue
		}
		seen.Set(key, now)

		signals = append(signals, model.BuySignal{
			Wallet:    tt.ToUserAccount,
			Mint:      tt.Mint,
			Amount:    amountAtoms,
			Signature: tx.Signature,
			SolSpent:  d.solSpentBy(tx.NativeTransfers, tt.ToUserAccount),
			TxType:    tx.Type,
		})
	}

	if malformed > 0 {
		log.Warn().Int("malformed", malformed).Str("signature", tx.Signature).Msg("skipped malformed token transfer entries")
	}

	return signals
}

// resolveAtoms parses the raw base-unit amount string into atoms.
func (d *Detector) resolveAtoms(tt TokenTransfer) *big.Int {
	if tt.RawTokenAmount == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(tt.RawTokenAmount, 10)
	if !ok {
		return nil
	}
	return n
}

// solSpentBy sums native transfers sent by wallet, converting lamports to
// canonical decimal native units. Returns 0 when wallet sent nothing.
func (d *Detector) solSpentBy(transfers []NativeTransfer, wallet string) float64 {
	var total uint64
	for _, nt := range transfers {
		if nt.FromUserAccount == wallet {
			total += nt.Amount
		}
	}
	return float64(total) / 1_000_000_000
}
