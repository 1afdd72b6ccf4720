package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"copytrade-engine/internal/dedup"
	"copytrade-engine/internal/detector"
	"copytrade-engine/internal/model"
)

// addr returns a 32-byte base58 address stand-in distinct per fill byte,
// so the detector's address-sanity gate accepts it like a real pubkey.
func addr(fill byte) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill
	}
	return base58.Encode(b)
}

var (
	wallet1     = addr(1)
	refreshedWallet = addr(2)
	mint1       = addr(10)
)

type fakeWalletSet struct {
	set *model.TrackedWalletSet
}

func (f *fakeWalletSet) Current() *model.TrackedWalletSet { return f.set }
func (f *fakeWalletSet) RefreshOnce(ctx context.Context) error {
	f.set = model.NewTrackedWalletSet([]string{refreshedWallet})
	return nil
}

func newTestServer(t *testing.T, secret string) (*Server, *[]model.BuySignal) {
	t.Helper()
	det := detector.New(nil, time.Minute)
	seen := dedup.New(filepath.Join(t.TempDir(), "dedup.json"))
	tracked := model.NewTrackedWalletSet([]string{wallet1})

	var received []model.BuySignal
	srv := New(det, func() *model.TrackedWalletSet { return tracked }, seen,
		func(sig model.BuySignal) { received = append(received, sig) },
		secret, &fakeWalletSet{set: tracked})
	return srv, &received
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := srv.App().Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	srv, _ := newTestServer(t, "super-secret")
	req, _ := http.NewRequest(http.MethodPost, "/helius-webhook", bytes.NewReader([]byte("[]")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", "wrong")

	resp, err := srv.App().Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebhook_EmitsSignalForTrackedBuyer(t *testing.T) {
	srv, received := newTestServer(t, "")

	txs := []detector.EnhancedTransaction{{
		Signature: "SIG1",
		TokenTransfers: []detector.TokenTransfer{{
			Mint:           mint1,
			RawTokenAmount: "1000000",
			ToUserAccount:  wallet1,
		}},
	}}
	body, _ := json.Marshal(txs)

	req, _ := http.NewRequest(http.MethodPost, "/helius-webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(*received) != 1 || (*received)[0].Mint != mint1 {
		t.Fatalf("expected one signal for %q, got %+v", mint1, *received)
	}
}

func TestAdminRefreshWallets(t *testing.T) {
	srv, _ := newTestServer(t, "")
	req, _ := http.NewRequest(http.MethodPost, "/admin/refresh-wallets", nil)

	resp, err := srv.App().Test(req, 1000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
