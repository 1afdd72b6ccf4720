// Package config loads and hot-reloads the engine's YAML configuration
// via viper, mirroring the teacher bot's Manager pattern.
package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	Wallet  WalletConfig  `mapstructure:"wallet"`
	RPC     RPCConfig     `mapstructure:"rpc"`
	Trading TradingConfig `mapstructure:"trading"`
	Swap    SwapConfig    `mapstructure:"swap"`
	Venue   VenueConfig   `mapstructure:"venue"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Price   PriceConfig   `mapstructure:"price"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Wallets WalletsConfig `mapstructure:"wallets"`
	Storage StorageConfig `mapstructure:"storage"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

type WalletConfig struct {
	SecretKeyEnv string `mapstructure:"secret_key_env"`
}

// RPCConfig carries the comma-separated endpoint list the Broadcaster races
// against, plus a single read endpoint used for balance/token lookups.
type RPCConfig struct {
	Endpoints          string `mapstructure:"endpoints"`
	ReadURL            string `mapstructure:"read_url"`
	ReadAPIKeyEnv      string `mapstructure:"read_api_key_env"`
	MaxBroadcastWaitMs int    `mapstructure:"max_broadcast_wait_ms"`
	WebsocketURL       string `mapstructure:"websocket_url"`
}

type TradingConfig struct {
	TradeMode          string  `mapstructure:"trade_mode"` // paper|live
	BuySolAmount       float64 `mapstructure:"buy_sol_amount"`
	TakeProfitPercent  float64 `mapstructure:"take_profit_percent"`
	StopLossPercent    float64 `mapstructure:"stop_loss_percent"`
	MaxOpenPositions   int     `mapstructure:"max_open_positions"`
	MinTokenAmount     float64 `mapstructure:"min_token_amount"`
	MinTradeIntervalMs int     `mapstructure:"min_trade_interval_ms"`
	BuySettleTimeoutMs int     `mapstructure:"buy_settle_timeout_ms"`
	BuyDebounceMinutes int     `mapstructure:"buy_debounce_minutes"`
	ExcludedMints      []string `mapstructure:"excluded_mints"`
}

type SwapConfig struct {
	JupBaseURL           string `mapstructure:"jup_base_url"`
	JupSlippageBps       int    `mapstructure:"jup_slippage_bps"`
	JupPriorityFee       string `mapstructure:"jup_priority_fee_lamports"` // "auto" or integer
	JupTimeoutSeconds    int    `mapstructure:"jup_timeout_seconds"`
	QuoteRetryCount      int    `mapstructure:"quote_retry_count"`
	QuoteRetryBackoffMs  int    `mapstructure:"quote_retry_backoff_ms"`
}

type VenueConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	SlippageBps    int    `mapstructure:"slippage_bps"`
	PriorityFee    uint64 `mapstructure:"priority_fee_lamports"`
	PoolSelector   string `mapstructure:"pool_selector"`
	ForceFallback  bool   `mapstructure:"force_venue_fallback"`
	MintMarkers    []string `mapstructure:"mint_markers"`
}

type WatcherConfig struct {
	PricePollMs       int `mapstructure:"price_poll_ms"`
	BaseBackoffMs     int `mapstructure:"watcher_base_backoff_ms"`
	MaxBackoffMs      int `mapstructure:"watcher_max_backoff_ms"`
	BackoffJitterMs   int `mapstructure:"watcher_backoff_jitter_ms"`
}

type PriceConfig struct {
	SecondaryAPIURL string `mapstructure:"secondary_api_url"`
	SecondaryAPIKeyEnv string `mapstructure:"secondary_api_key_env"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
}

type NotifyConfig struct {
	Provider       string `mapstructure:"provider"` // telegram|none
	TelegramToken  string `mapstructure:"telegram_bot_token_env"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

type WalletsConfig struct {
	SourceURL      string `mapstructure:"source_url"`
	RefreshHours   int    `mapstructure:"refresh_hours"`
}

type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	AuditDBPath  string `mapstructure:"audit_db_path"`
}

type HTTPConfig struct {
	ListenHost   string `mapstructure:"listen_host"`
	ListenPort   int    `mapstructure:"listen_port"`
	WebhookSecret string `mapstructure:"webhook_secret_env"`
}

// Manager handles config loading and hot-reload.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads configuration from configPath and starts watching it
// for changes.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("trading.trade_mode", "paper")
	v.SetDefault("trading.buy_sol_amount", 0.05)
	v.SetDefault("trading.take_profit_percent", 50.0)
	v.SetDefault("trading.stop_loss_percent", 20.0)
	v.SetDefault("trading.max_open_positions", 5)
	v.SetDefault("trading.min_token_amount", 1.0)
	v.SetDefault("trading.min_trade_interval_ms", 1500)
	v.SetDefault("trading.buy_settle_timeout_ms", 45000)
	v.SetDefault("trading.buy_debounce_minutes", 10)

	v.SetDefault("rpc.read_api_key_env", "RPC_API_KEY")
	v.SetDefault("rpc.max_broadcast_wait_ms", 15000)

	v.SetDefault("swap.jup_base_url", "https://api.jup.ag/swap/v1")
	v.SetDefault("swap.jup_slippage_bps", 500)
	v.SetDefault("swap.jup_priority_fee_lamports", "auto")
	v.SetDefault("swap.jup_timeout_seconds", 8)
	v.SetDefault("swap.quote_retry_count", 3)
	v.SetDefault("swap.quote_retry_backoff_ms", 400)

	v.SetDefault("venue.slippage_bps", 500)

	v.SetDefault("watcher.price_poll_ms", 2000)
	v.SetDefault("watcher.watcher_base_backoff_ms", 1500)
	v.SetDefault("watcher.watcher_max_backoff_ms", 60000)
	v.SetDefault("watcher.watcher_backoff_jitter_ms", 250)

	v.SetDefault("price.timeout_ms", 2500)

	v.SetDefault("wallets.refresh_hours", 1)

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.audit_db_path", "./data/audit.db")

	v.SetDefault("http.listen_host", "0.0.0.0")
	v.SetDefault("http.listen_port", 8080)
	v.SetDefault("wallet.secret_key_env", "WALLET_SECRET_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Watcher.PricePollMs < 500 {
		cfg.Watcher.PricePollMs = 500
	}

	m := &Manager{config: &cfg, viper: v}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

// Get returns the current config snapshot (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetTrading returns the trading config section.
func (m *Manager) GetTrading() TradingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Trading
}

// SetOnChange registers a callback invoked after a successful hot-reload
// or Update.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Update mutates the in-memory config and persists it to the backing file.
func (m *Manager) Update(fn func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(m.config)

	m.viper.Set("trading.trade_mode", m.config.Trading.TradeMode)
	m.viper.Set("trading.max_open_positions", m.config.Trading.MaxOpenPositions)
	m.viper.Set("trading.take_profit_percent", m.config.Trading.TakeProfitPercent)
	m.viper.Set("trading.stop_loss_percent", m.config.Trading.StopLossPercent)

	if err := m.viper.WriteConfig(); err != nil {
		return err
	}
	if m.onChange != nil {
		m.onChange(m.config)
	}
	return nil
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}
	if cfg.Watcher.PricePollMs < 500 {
		cfg.Watcher.PricePollMs = 500
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// SecretKey reads the trader's secret key from the configured environment
// variable.
func (m *Manager) SecretKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.SecretKeyEnv)
}

// ReadAPIKey returns the API key for the single-endpoint read RPC client.
func (m *Manager) ReadAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.ReadAPIKeyEnv)
}

// BroadcastEndpoints parses the comma-separated RPC endpoint list,
// deduplicating and keeping only http/https URLs.
func (m *Manager) BroadcastEndpoints() []string {
	m.mu.RLock()
	raw := m.config.RPC.Endpoints
	m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		ep := strings.TrimSpace(part)
		if ep == "" {
			continue
		}
		if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
			continue
		}
		if _, dup := seen[ep]; dup {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}

// TelegramToken reads the Telegram bot token from its configured env var.
func (m *Manager) TelegramToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config.Notify.TelegramToken == "" {
		return ""
	}
	return os.Getenv(m.config.Notify.TelegramToken)
}

// WebhookSecret reads the webhook shared-secret from its configured env var.
func (m *Manager) WebhookSecret() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config.HTTP.WebhookSecret == "" {
		return ""
	}
	return os.Getenv(m.config.HTTP.WebhookSecret)
}

// MaxBroadcastWait returns the Broadcaster's race timeout as a Duration.
func (m *Manager) MaxBroadcastWait() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.RPC.MaxBroadcastWaitMs) * time.Millisecond
}
