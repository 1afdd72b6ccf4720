package detector

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"copytrade-engine/internal/dedup"
	"copytrade-engine/internal/model"
)

// addr returns a 32-byte base58 address stand-in, distinct per fill byte,
// so detector's walletkey.IsValidAddress gate accepts it like a real
// Solana pubkey without hardcoding one.
func addr(fill byte) string {
	return base58.Encode(bytes.Repeat([]byte{fill}, 32))
}

var (
	wallet1     = addr(1)
	wallet2     = addr(2)
	mint1       = addr(10)
	mint2       = addr(11)
	excludedMint = addr(99)
)

func newStore(t *testing.T) *dedup.Store {
	t.Helper()
	return dedup.New(filepath.Join(t.TempDir(), "seen.json"))
}

func TestDetect_BasicBuy(t *testing.T) {
	tracked := model.NewTrackedWalletSet([]string{wallet1})
	seen := newStore(t)
	d := New(nil, 10*time.Minute)

	tx := EnhancedTransaction{
		Signature: "sig1",
		Type:      "SWAP",
		TokenTransfers: []TokenTransfer{
			{Mint: mint1, RawTokenAmount: "1000000", ToUserAccount: wallet1},
		},
		NativeTransfers: []NativeTransfer{
			{FromUserAccount: wallet1, Amount: 1_000_000_000},
		},
	}

	signals := d.Detect(tx, tracked, seen, time.Now())
	if len(signals) != 1 {
		t.Fatalf("len(signals) = %d, want 1", len(signals))
	}
	s := signals[0]
	if s.Wallet != wallet1 || s.Mint != mint1 || s.Amount.Sign() <= 0 {
		t.Errorf("unexpected signal: %+v", s)
	}
	if s.SolSpent != 1.0 {
		t.Errorf("SolSpent = %v, want 1.0", s.SolSpent)
	}
}

func TestDetect_DebouncesWithinTTL(t *testing.T) {
	tracked := model.NewTrackedWalletSet([]string{wallet1})
	seen := newStore(t)
	d := New(nil, 10*time.Minute)
	now := time.Now()

	tx := EnhancedTransaction{
		Signature: "sig1",
		TokenTransfers: []TokenTransfer{
			{Mint: mint1, RawTokenAmount: "1000000", ToUserAccount: wallet1},
		},
	}

	first := d.Detect(tx, tracked, seen, now)
	second := d.Detect(tx, tracked, seen, now.Add(time.Minute))

	if len(first) != 1 {
		t.Fatalf("first len = %d, want 1", len(first))
	}
	if len(second) != 0 {
		t.Fatalf("second (debounced) len = %d, want 0", len(second))
	}
}

func TestDetect_ExcludedMintIgnored(t *testing.T) {
	tracked := model.NewTrackedWalletSet([]string{wallet1})
	seen := newStore(t)
	d := New([]string{excludedMint}, 10*time.Minute)

	tx := EnhancedTransaction{
		Signature: "sig1",
		TokenTransfers: []TokenTransfer{
			{Mint: excludedMint, RawTokenAmount: "1000000", ToUserAccount: wallet1},
		},
	}

	signals := d.Detect(tx, tracked, seen, time.Now())
	if len(signals) != 0 {
		t.Errorf("expected excluded mint to be ignored, got %d signals", len(signals))
	}
}

func TestDetect_UntrackedWalletIgnored(t *testing.T) {
	tracked := model.NewTrackedWalletSet([]string{wallet1})
	seen := newStore(t)
	d := New(nil, 10*time.Minute)

	tx := EnhancedTransaction{
		Signature: "sig1",
		TokenTransfers: []TokenTransfer{
			{Mint: mint1, RawTokenAmount: "1000000", ToUserAccount: wallet2},
		},
	}

	signals := d.Detect(tx, tracked, seen, time.Now())
	if len(signals) != 0 {
		t.Errorf("expected untracked wallet to be ignored, got %d signals", len(signals))
	}
}

func TestDetect_MalformedEntrySkippedSilently(t *testing.T) {
	tracked := model.NewTrackedWalletSet([]string{wallet1})
	seen := newStore(t)
	d := New(nil, 10*time.Minute)

	tx := EnhancedTransaction{
		Signature: "sig1",
		TokenTransfers: []TokenTransfer{
			{Mint: "", RawTokenAmount: "1000000", ToUserAccount: wallet1},
			{Mint: "not-a-valid-address", RawTokenAmount: "1000000", ToUserAccount: wallet1},
			{Mint: mint1, RawTokenAmount: "not-a-number", ToUserAccount: wallet1},
			{Mint: mint2, RawTokenAmount: "500", ToUserAccount: wallet1},
		},
	}

	signals := d.Detect(tx, tracked, seen, time.Now())
	if len(signals) != 1 {
		t.Fatalf("len(signals) = %d, want 1 (only the well-formed entry)", len(signals))
	}
	if signals[0].Mint != mint2 {
		t.Errorf("Mint = %q, want %q", signals[0].Mint, mint2)
	}
}
