package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestNewManager_Defaults(t *testing.T) {
	path := writeTempConfig(t, `
rpc:
    endpoints: https://a.example,https://b.example
`)

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Trading.TradeMode != "paper" {
		t.Errorf("TradeMode = %q, want paper", cfg.Trading.TradeMode)
	}
	if cfg.Watcher.PricePollMs != 2000 {
		t.Errorf("PricePollMs = %d, want 2000", cfg.Watcher.PricePollMs)
	}
}

func TestNewManager_PricePollFloor(t *testing.T) {
	path := writeTempConfig(t, `
watcher:
    price_poll_ms: 10
`)

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if got := m.Get().Watcher.PricePollMs; got != 500 {
		t.Errorf("PricePollMs = %d, want floor of 500", got)
	}
}

func TestBroadcastEndpoints(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"dedupes and trims", "https://a,  https://a ,https://b", []string{"https://a", "https://b"}},
		{"drops non-http schemes", "https://a,ws://b,ftp://c", []string{"https://a"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, "rpc:\n    endpoints: \""+tt.raw+"\"\n")
			m, err := NewManager(path)
			if err != nil {
				t.Fatalf("NewManager failed: %v", err)
			}

			got := m.BroadcastEndpoints()
			if len(got) != len(tt.want) {
				t.Fatalf("BroadcastEndpoints() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("BroadcastEndpoints()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSecretKey_FromEnv(t *testing.T) {
	os.Setenv("TEST_WALLET_SECRET", "abc123")
	defer os.Unsetenv("TEST_WALLET_SECRET")

	path := writeTempConfig(t, `
wallet:
    secret_key_env: TEST_WALLET_SECRET
`)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if got := m.SecretKey(); got != "abc123" {
		t.Errorf("SecretKey() = %q, want abc123", got)
	}
}

func TestUpdate_PersistsAndNotifies(t *testing.T) {
	path := writeTempConfig(t, `
trading:
    trade_mode: paper
`)
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	var notified *Config
	m.SetOnChange(func(c *Config) { notified = c })

	if err := m.Update(func(c *Config) { c.Trading.TradeMode = "live" }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if m.Get().Trading.TradeMode != "live" {
		t.Errorf("TradeMode = %q, want live", m.Get().Trading.TradeMode)
	}
	if notified == nil || notified.Trading.TradeMode != "live" {
		t.Errorf("onChange callback not invoked with updated config")
	}
}
