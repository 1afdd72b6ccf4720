// Package venue implements the direct-to-venue fallback path used when a
// mint is not yet routable through the aggregator: a single "trade-local"
// endpoint that returns a pre-built, unsigned transaction to sign and
// broadcast identically to an aggregator swap. Modeled on the request/
// response and HTTP-client shape of internal/jupiter, since the pack
// carries no dedicated venue SDK.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// TradeRequest is the body posted to the venue's trade-local endpoint.
type TradeRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"` // "buy" or "sell"
	Mint             string  `json:"mint"`
	AmountLamports   uint64  `json:"amountLamports,omitempty"`
	Percent          float64 `json:"percentage,omitempty"` // 100 for a full-position sell
	SlippageBps      int     `json:"slippageBps"`
	PriorityFeeLamports uint64 `json:"priorityFeeLamports,omitempty"`
	Pool             string  `json:"pool,omitempty"` // pool selector override
}

// TradeResponse carries the pre-built, unsigned transaction.
type TradeResponse struct {
	Transaction string `json:"transaction"`
}

// Client talks to a single venue "trade-local" HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client

	simMode bool
}

// New builds a venue Client pointed at baseURL (e.g. a pump.fun-style
// local-transaction-builder endpoint).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetSimulation toggles paper-mode interception, matching jupiter.Client's
// simulation interceptor idiom.
func (c *Client) SetSimulation(enabled bool) {
	c.simMode = enabled
}

// Buy requests a pre-built "buy" transaction for mint, spending
// amountLamports of the native wrap token.
func (c *Client) Buy(ctx context.Context, publicKey, mint string, amountLamports uint64, slippageBps int, priorityFeeLamports uint64) (string, error) {
	return c.tradeLocal(ctx, TradeRequest{
		PublicKey:           publicKey,
		Action:              "buy",
		Mint:                mint,
		AmountLamports:      amountLamports,
		SlippageBps:         slippageBps,
		PriorityFeeLamports: priorityFeeLamports,
	})
}

// SellAll requests a pre-built "100%" sell transaction for mint — the
// venue path's preferred exit, per spec's "attempt a 100% sell via the
// venue path first" rule.
func (c *Client) SellAll(ctx context.Context, publicKey, mint string, slippageBps int, priorityFeeLamports uint64) (string, error) {
	return c.tradeLocal(ctx, TradeRequest{
		PublicKey:           publicKey,
		Action:              "sell",
		Mint:                mint,
		Percent:             100,
		SlippageBps:         slippageBps,
		PriorityFeeLamports: priorityFeeLamports,
	})
}

func (c *Client) tradeLocal(ctx context.Context, req TradeRequest) (string, error) {
	if c.simMode {
		// Dummy transaction identical in shape to jupiter's simulation
		// stub: one empty signature slot, minimal message.
		return "AQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAA==", nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal trade-local request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/trade-local", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("trade-local request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("venue rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("trade-local failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var tradeResp TradeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tradeResp); err != nil {
		return "", fmt.Errorf("decode trade-local response: %w", err)
	}
	if tradeResp.Transaction == "" {
		return "", fmt.Errorf("trade-local: empty transaction in response")
	}

	log.Debug().
		Dur("latency", time.Since(start)).
		Str("mint", req.Mint).
		Str("action", req.Action).
		Msg("venue trade-local")

	return tradeResp.Transaction, nil
}
