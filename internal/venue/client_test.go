package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSellAll_SendsPercent100(t *testing.T) {
	var got TradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(TradeResponse{Transaction: "dGVzdA=="})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	tx, err := c.SellAll(context.Background(), "pubkey", "MINT", 100, 1000)
	if err != nil {
		t.Fatalf("SellAll failed: %v", err)
	}
	if tx != "dGVzdA==" {
		t.Errorf("tx = %q, want dGVzdA==", tx)
	}
	if got.Action != "sell" || got.Percent != 100 {
		t.Errorf("request = %+v, want action=sell percent=100", got)
	}
}

func TestBuy_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.Buy(context.Background(), "pubkey", "MINT", 1_000_000, 100, 0)
	if err == nil {
		t.Fatal("expected rate-limit error")
	}
}

func TestSimulationMode_ReturnsDummyTransaction(t *testing.T) {
	c := New("http://unused.invalid", time.Second)
	c.SetSimulation(true)

	tx, err := c.Buy(context.Background(), "pubkey", "MINT", 1_000_000, 100, 0)
	if err != nil {
		t.Fatalf("Buy failed in simulation mode: %v", err)
	}
	if tx == "" {
		t.Error("expected non-empty dummy transaction")
	}
}
