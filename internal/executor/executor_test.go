package executor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"copytrade-engine/internal/price"
)

func TestExecuteBuy_PaperMode_NeverTouchesNetwork(t *testing.T) {
	oracle := price.New("http://unused.invalid")
	e := New(nil, oracle, ModePaper, time.Millisecond)

	report, err := e.ExecuteBuy(context.Background(), BuyRequest{
		Mint:              "MINT",
		BuyAmountLamports: 1_000_000_000,
		NativeUSD:         150,
	})
	if err != nil {
		t.Fatalf("ExecuteBuy failed in paper mode: %v", err)
	}
	if report.Signature != "PAPER" {
		t.Errorf("Signature = %q, want PAPER", report.Signature)
	}
	if report.EntryOrExitPrice == nil || *report.EntryOrExitPrice != 150 {
		t.Errorf("EntryOrExitPrice = %v, want 150", report.EntryOrExitPrice)
	}
}

func TestExecuteSell_PaperMode_NeverTouchesNetwork(t *testing.T) {
	oracle := price.New("http://unused.invalid")
	e := New(nil, oracle, ModePaper, time.Millisecond)

	report, err := e.ExecuteSell(context.Background(), SellRequest{
		Mint:      "MINT",
		QtyAtoms:  big.NewInt(500),
		NativeUSD: 140,
	})
	if err != nil {
		t.Fatalf("ExecuteSell failed in paper mode: %v", err)
	}
	if report.ReceivedAtoms.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("ReceivedAtoms = %v, want 500", report.ReceivedAtoms)
	}
}

func TestExecuteSell_NoBalanceInLiveMode(t *testing.T) {
	oracle := price.New("http://unused.invalid")
	e := New(nil, oracle, ModeLive, time.Millisecond)

	_, err := e.ExecuteSell(context.Background(), SellRequest{Mint: "MINT"})
	if err == nil {
		t.Fatal("expected NoBalance error when no qty and no cached balance")
	}
}

func TestThrottle_SerializesTradeCalls(t *testing.T) {
	oracle := price.New("http://unused.invalid")
	e := New(nil, oracle, ModePaper, 50*time.Millisecond)

	start := time.Now()
	e.ExecuteBuy(context.Background(), BuyRequest{Mint: "M1", BuyAmountLamports: 1})
	e.ExecuteBuy(context.Background(), BuyRequest{Mint: "M2", BuyAmountLamports: 1})
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("expected second call to wait for throttle interval, elapsed = %v", elapsed)
	}
}
