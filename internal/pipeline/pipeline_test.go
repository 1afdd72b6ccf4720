package pipeline

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"copytrade-engine/internal/executor"
	"copytrade-engine/internal/model"
	"copytrade-engine/internal/positions"
	"copytrade-engine/internal/price"
)

type recordingNotifier struct {
	mu     sync.Mutex
	seen   []string
	opened []string
}

func (n *recordingNotifier) NotifySignalDetected(sig model.BuySignal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, sig.Mint)
}

func (n *recordingNotifier) NotifyPositionOpen(pos *model.OpenPosition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened = append(n.opened, pos.Mint)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

func waitForOpen(t *testing.T, store *positions.Store, mint string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Has(mint) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("position for %s never opened", mint)
}

func TestHandleSignal_OpensPositionAndStartsWatcher(t *testing.T) {
	store := positions.New(filepath.Join(t.TempDir(), "positions.json"))
	oracle := price.New("http://unused.invalid")
	exec := executor.New(nil, oracle, executor.ModePaper, time.Millisecond)
	notifier := &recordingNotifier{}

	var started int32
	startWatcher := func(mint string) {
		atomic.AddInt32(&started, 1)
	}

	r := New(store, exec, notifier, startWatcher, 0.5, func() float64 { return 150 })

	sig := model.BuySignal{Wallet: "WALLET1", Mint: "MINT1", Amount: big.NewInt(1000), Signature: "SIG1"}
	r.HandleSignal(context.Background(), sig)

	waitForOpen(t, store, "MINT1")

	if notifier.count() != 1 {
		t.Errorf("expected exactly one signal-detected notification, got %d", notifier.count())
	}
	notifier.mu.Lock()
	opened := append([]string(nil), notifier.opened...)
	notifier.mu.Unlock()
	if len(opened) != 1 || opened[0] != "MINT1" {
		t.Errorf("expected one position-open notification for MINT1, got %v", opened)
	}
	if atomic.LoadInt32(&started) != 1 {
		t.Errorf("expected watcher to be started once, got %d", started)
	}
	if r.InFlightCount() != 0 {
		t.Errorf("expected in-flight lock released after completion, got count %d", r.InFlightCount())
	}
}

func TestHandleSignal_SkipsWhenAlreadyOpen(t *testing.T) {
	store := positions.New(filepath.Join(t.TempDir(), "positions.json"))
	entry := 1.0
	store.OpenPosition(&model.OpenPosition{Mint: "MINT1", EntryPriceUSD: &entry, TsOpen: positions.Now()})

	oracle := price.New("http://unused.invalid")
	exec := executor.New(nil, oracle, executor.ModePaper, time.Millisecond)
	notifier := &recordingNotifier{}

	var started int32
	r := New(store, exec, notifier, func(string) { atomic.AddInt32(&started, 1) }, 0.5, nil)

	r.HandleSignal(context.Background(), model.BuySignal{Wallet: "W", Mint: "MINT1", Amount: big.NewInt(1)})

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&started) != 0 {
		t.Error("expected watcher not to start for a mint with an already-open position")
	}
}

func TestHandleSignal_ConcurrentDuplicatesOnlyBuyOnce(t *testing.T) {
	store := positions.New(filepath.Join(t.TempDir(), "positions.json"))
	oracle := price.New("http://unused.invalid")
	exec := executor.New(nil, oracle, executor.ModePaper, 10*time.Millisecond)
	notifier := &recordingNotifier{}

	var started int32
	r := New(store, exec, notifier, func(string) { atomic.AddInt32(&started, 1) }, 0.5, nil)

	sig := model.BuySignal{Wallet: "W", Mint: "MINT1", Amount: big.NewInt(1)}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.HandleSignal(context.Background(), sig)
		}()
	}
	wg.Wait()

	waitForOpen(t, store, "MINT1")
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&started) != 1 {
		t.Errorf("expected exactly one buy-open-watcher task to run for concurrent duplicate signals, got %d", started)
	}
}
