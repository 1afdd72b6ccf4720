// Package server implements the HTTP surface: the Helius-style enhanced
// transaction webhook, an admin wallet-refresh trigger, and a health
// check. Grounded on the teacher's internal/signal/server.go fiber
// wiring (route setup, JSON body parsing, non-blocking dispatch),
// generalized from a single Telegram-signal endpoint to a webhook secret
// -gated batch-of-transactions endpoint per spec §4.1/§6.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/dedup"
	"copytrade-engine/internal/detector"
	"copytrade-engine/internal/model"
)

// SignalHandler receives one decoded buy signal extracted from a webhook
// payload. Implemented by internal/pipeline.Router.HandleSignal.
type SignalHandler func(sig model.BuySignal)

// WalletSetProvider exposes the currently tracked wallet set and a
// trigger to refresh it out-of-band, for the admin endpoint. Satisfied by
// internal/wallets.Refresher.
type WalletSetProvider interface {
	Current() *model.TrackedWalletSet
	RefreshOnce(ctx context.Context) error
}

// Server is the engine's single HTTP listener task, covering the webhook,
// admin, and health endpoints (spec §5's "one HTTP listener task").
type Server struct {
	app           *fiber.App
	detector      *detector.Detector
	tracked       func() *model.TrackedWalletSet
	dedupStore    *dedup.Store
	onSignal      SignalHandler
	webhookSecret string
	wallets       WalletSetProvider
}

// New builds a Server. webhookSecret, when non-empty, is compared against
// the request's X-Webhook-Secret header; a mismatch yields 401.
func New(det *detector.Detector, tracked func() *model.TrackedWalletSet, seen *dedup.Store, onSignal SignalHandler, webhookSecret string, wallets WalletSetProvider) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:           app,
		detector:      det,
		tracked:       tracked,
		dedupStore:    seen,
		onSignal:      onSignal,
		webhookSecret: webhookSecret,
		wallets:       wallets,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	s.app.Post("/helius-webhook", s.handleWebhook)
	s.app.Post("/admin/refresh-wallets", s.handleRefreshWallets)
}

func (s *Server) checkSecret(c *fiber.Ctx) bool {
	if s.webhookSecret == "" {
		return true
	}
	return c.Get("X-Webhook-Secret") == s.webhookSecret
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	if !s.checkSecret(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"ok": false, "error": "invalid webhook secret"})
	}

	var txs []detector.EnhancedTransaction
	if err := c.BodyParser(&txs); err != nil {
		log.Error().Err(err).Msg("failed to parse webhook payload")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "invalid payload"})
	}

	trackedSet := s.tracked()
	now := time.Now()

	for _, tx := range txs {
		sigs := s.detector.Detect(tx, trackedSet, s.dedupStore, now)
		for _, sig := range sigs {
			if s.onSignal != nil {
				s.onSignal(sig)
			}
		}
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleRefreshWallets(c *fiber.Ctx) error {
	if s.wallets == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "error": "wallet source not configured"})
	}
	if err := s.wallets.RefreshOnce(c.Context()); err != nil {
		log.Error().Err(err).Msg("admin wallet refresh failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"ok": false, "error": "refresh failed"})
	}
	set := s.wallets.Current()
	return c.JSON(fiber.Map{"ok": true, "tracked": set.List()})
}

// Start begins listening on addr (host:port).
func (s *Server) Start(addr string) error {
	log.Info().Str("addr", addr).Msg("starting copy-trading engine http server")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for in-process testing via
// app.Test(req, timeout), matching the teacher's test idiom.
func (s *Server) App() *fiber.App {
	return s.app
}
