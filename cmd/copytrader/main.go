// Command copytrader runs the copy-trading engine headlessly: webhook
// ingestion, buy detection, swap routing, and per-position watching.
// Grounded on the teacher's cmd/bot/main.go runHeadless/initComponents
// wiring, with the TUI branch dropped entirely (no headless-service
// analog) and the component graph re-pointed at this engine's packages.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/audit"
	"copytrade-engine/internal/blockchain"
	"copytrade-engine/internal/broadcast"
	"copytrade-engine/internal/config"
	"copytrade-engine/internal/dedup"
	"copytrade-engine/internal/detector"
	"copytrade-engine/internal/executor"
	"copytrade-engine/internal/health"
	"copytrade-engine/internal/jupiter"
	"copytrade-engine/internal/model"
	"copytrade-engine/internal/notify"
	"copytrade-engine/internal/pipeline"
	"copytrade-engine/internal/positions"
	"copytrade-engine/internal/price"
	"copytrade-engine/internal/router"
	"copytrade-engine/internal/server"
	"copytrade-engine/internal/venue"
	"copytrade-engine/internal/wallets"
	"copytrade-engine/internal/watcher"
	"copytrade-engine/internal/wsconfirm"
)

func main() {
	setupLogger()
	log.Info().Msg("copy-trading engine starting")

	cfg, err := config.NewManager(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	wallet, err := loadWallet(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load trading wallet")
	}

	comps := initComponents(cfg, wallet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := comps.walletRefresher.RefreshOnce(ctx); err != nil {
			log.Warn().Err(err).Msg("initial wallet refresh failed, starting with an empty tracked set")
		}
		comps.walletRefresher.Run(ctx)
	}()

	if err := comps.blockhashCache.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start blockhash cache")
	}

	comps.healthChecker.Start(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Get().HTTP.ListenHost, cfg.Get().HTTP.ListenPort)
	go func() {
		if err := comps.httpServer.Start(addr); err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("http server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	comps.httpServer.Shutdown()
	comps.blockhashCache.Stop()
	comps.auditLog.Close()
	log.Info().Msg("goodbye")
}

type components struct {
	httpServer      *server.Server
	walletRefresher *wallets.Refresher
	blockhashCache  *blockchain.BlockhashCache
	auditLog        *audit.Log
	healthChecker   *health.Checker
}

// initComponents wires every package built for this engine into a running
// graph, mirroring the teacher's initComponents but without any TUI path.
func initComponents(cfg *config.Manager, wallet *blockchain.Wallet) *components {
	trading := cfg.GetTrading()
	swapCfg := cfg.Get().Swap
	venueCfg := cfg.Get().Venue
	watcherCfg := cfg.Get().Watcher
	notifyCfg := cfg.Get().Notify
	walletsCfg := cfg.Get().Wallets
	storageCfg := cfg.Get().Storage

	readRPC := blockchain.NewRPCClient(cfg.Get().RPC.ReadURL, cfg.Get().RPC.ReadURL, cfg.ReadAPIKey())
	blockhashCache := blockchain.NewBlockhashCache(readRPC, 5*time.Second, 60*time.Second)

	b := broadcast.New(cfg.BroadcastEndpoints()).WithWSConfirm(wsconfirm.New(cfg.Get().RPC.WebsocketURL))

	jupiterClient := jupiter.NewClientWithKeys(
		swapCfg.JupBaseURL, swapCfg.JupSlippageBps,
		time.Duration(swapCfg.JupTimeoutSeconds)*time.Second, nil,
	)

	var venueClient *venue.Client
	if venueCfg.Enabled {
		venueClient = venue.New(venueCfg.BaseURL, 8*time.Second)
	}

	swapRouter := router.New(jupiterClient, venueClient, b, wallet, blockhashCache, readRPC,
		time.Duration(cfg.Get().RPC.MaxBroadcastWaitMs)*time.Millisecond)

	oracle := price.New(swapCfg.JupBaseURL)

	mode := executor.ModeLive
	if trading.TradeMode == "paper" {
		mode = executor.ModePaper
	}
	exec := executor.New(swapRouter, oracle, mode, time.Duration(trading.MinTradeIntervalMs)*time.Millisecond)

	dataDir := storageCfg.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}
	store := positions.New(dataDir + "/positions.json")
	seen := dedup.New(dataDir + "/dedup.json")

	auditPath := storageCfg.AuditDBPath
	if auditPath == "" {
		auditPath = dataDir + "/audit.db"
	}
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit log")
	}

	var notifier notify.Notifier = notify.NoOp{}
	if notifyCfg.Provider == "telegram" {
		token := cfg.TelegramToken()
		if token != "" {
			tg, err := notify.NewTelegram(token, notifyCfg.TelegramChatID)
			if err != nil {
				log.Warn().Err(err).Msg("telegram notifier init failed, falling back to no-op")
			} else {
				notifier = tg
			}
		}
	}

	det := detector.New(trading.ExcludedMints, time.Duration(trading.BuyDebounceMinutes)*time.Minute)

	watcherSupervisor := &watcherSupervisor{
		store:    store,
		oracle:   oracle,
		exec:     exec,
		notifier: notifier,
		rpc:      readRPC,
		wallet:   wallet,
		cfg: watcher.Config{
			PricePollInterval: time.Duration(watcherCfg.PricePollMs) * time.Millisecond,
			TakeProfitPercent: trading.TakeProfitPercent,
			StopLossPercent:   trading.StopLossPercent,
			BuySettleTimeout:  time.Duration(trading.BuySettleTimeoutMs) * time.Millisecond,
			PreferVenueOnSell: venueCfg.Enabled,
		},
	}

	pipe := pipeline.New(store, exec, notifyAdapter{notifier}, watcherSupervisor.start, trading.BuySolAmount,
		func() float64 {
			q := oracle.SpotPriceUSD(context.Background(), jupiter.SOLMint, 0, 0)
			if q == nil {
				return 0
			}
			return q.PriceUSD
		})

	walletSource := wallets.NewHTTPSource(walletsCfg.SourceURL, 10*time.Second, 0)
	refreshHours := walletsCfg.RefreshHours
	if refreshHours <= 0 {
		refreshHours = 1
	}
	refresher := wallets.NewRefresher(walletSource, time.Duration(refreshHours)*time.Hour, nil)

	httpSrv := server.New(det, func() *model.TrackedWalletSet { return refresher.Current() }, seen,
		func(sig model.BuySignal) { pipe.HandleSignal(context.Background(), sig) },
		cfg.WebhookSecret(), refresher)

	healthEndpoints := map[string]string{"read_rpc": cfg.Get().RPC.ReadURL}
	for i, ep := range cfg.BroadcastEndpoints() {
		healthEndpoints[fmt.Sprintf("broadcast_%d", i)] = ep
	}
	healthChecker := health.NewChecker(healthEndpoints, 30*time.Second)

	return &components{
		httpServer:      httpSrv,
		walletRefresher: refresher,
		blockhashCache:  blockhashCache,
		auditLog:        auditLog,
		healthChecker:   healthChecker,
	}
}

// watcherSupervisor starts and tracks one Watcher goroutine per mint,
// giving pipeline.WatcherStarter a concrete backing implementation.
type watcherSupervisor struct {
	store    *positions.Store
	oracle   *price.Oracle
	exec     *executor.Executor
	notifier notify.Notifier
	rpc      *blockchain.RPCClient
	wallet   *blockchain.Wallet
	cfg      watcher.Config

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher
}

func (s *watcherSupervisor) start(mint string) {
	s.mu.Lock()
	if s.watchers == nil {
		s.watchers = make(map[string]*watcher.Watcher)
	}
	if _, running := s.watchers[mint]; running {
		s.mu.Unlock()
		return
	}
	w := watcher.New(mint, s.cfg, s.store, s.oracle, s.exec, s.resolveBalance, notifyExitAdapter{s.notifier})
	s.watchers[mint] = w
	s.mu.Unlock()

	go func() {
		w.Run(context.Background())
		s.mu.Lock()
		delete(s.watchers, mint)
		s.mu.Unlock()
	}()
}

func (s *watcherSupervisor) resolveBalance(ctx context.Context, mint string) (*big.Int, error) {
	accounts, err := s.rpc.GetTokenAccountsByOwner(ctx, s.wallet.Address(), mint)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, a := range accounts {
		total.Add(total, new(big.Int).SetUint64(a.Amount))
	}
	return total, nil
}

// notifyAdapter narrows notify.Notifier to pipeline.Notifier's two
// methods.
type notifyAdapter struct{ notify.Notifier }

func (n notifyAdapter) NotifySignalDetected(sig model.BuySignal) {
	n.Notifier.NotifySignalDetected(sig)
}

func (n notifyAdapter) NotifyPositionOpen(pos *model.OpenPosition) {
	n.Notifier.NotifyPositionOpen(pos)
}

// notifyExitAdapter narrows notify.Notifier to watcher.Notifier's single
// method.
type notifyExitAdapter struct{ notify.Notifier }

func (n notifyExitAdapter) NotifyExit(closed *model.ClosedPosition) {
	n.Notifier.NotifyExit(closed)
}

func loadWallet(cfg *config.Manager) (*blockchain.Wallet, error) {
	secret := cfg.SecretKey()
	if secret == "" {
		return nil, fmt.Errorf("no trading wallet secret key configured")
	}
	return blockchain.NewWallet(secret)
}

func configPath() string {
	if p := os.Getenv("COPYTRADER_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
