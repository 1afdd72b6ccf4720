// Package jupiter implements the aggregator leg of the Swap Router: a
// tiered quote ladder (direct-preferred, any-route, bridge) against the
// Jupiter Metis swap API, with HTTP/2 connection pooling and API-key
// round robin.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
)

// MetisSwapURL is the Jupiter Metis API endpoint.
const MetisSwapURL = "https://api.jup.ag/swap/v1"

// SOLMint is the native wrap mint address.
const SOLMint = "So11111111111111111111111111111111111111112"

// canonical stable used as the sole allowed intermediate for the bridge tier.
const canonicalStableMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" // USDC

// Tier identifies one rung of the tiered quote ladder.
type Tier string

const (
	TierDirectPreferred Tier = "direct-preferred"
	TierAnyRoute        Tier = "any-route"
	TierBridge          Tier = "bridge"
)

// tierLadder is the fixed evaluation order: first non-empty quote wins.
var tierLadder = []Tier{TierDirectPreferred, TierAnyRoute, TierBridge}

// quoteRetries is N in spec's "retry up to N=3 with linear backoff" between
// tiers.
const quoteRetries = 3

// Client handles Jupiter Metis API calls with HTTP/2 pooling and API key rotation.
type Client struct {
	baseURL     string
	slippageBps int
	clientPool  *HTTPClientPool
	apiKeys     []string
	keyIdx      atomic.Uint32
	maxLamports uint64 // Max priority fee cap

	// Simulation
	simMode       bool
	simMultiplier float64
	simMu         sync.RWMutex
}

// DefaultAPIKeys returns fallback API keys (should use env vars in production).
func DefaultAPIKeys() []string {
	return []string{
		"public-key", // Fallback - use JUPITER_API_KEYS env var
	}
}

// HTTPClientPool provides HTTP/2 connection pooling.
type HTTPClientPool struct {
	clients []*http.Client
	mu      sync.Mutex
	idx     uint32
}

// NewHTTPClientPool creates an HTTP/2 optimized client pool.
func NewHTTPClientPool(size int, timeout time.Duration) *HTTPClientPool {
	pool := &HTTPClientPool{
		clients: make([]*http.Client, size),
	}

	for i := 0; i < size; i++ {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}

		http2.ConfigureTransport(transport)

		pool.clients[i] = &http.Client{
			Transport: transport,
			Timeout:   timeout,
		}
	}

	log.Info().Int("poolSize", size).Msg("HTTP/2 client pool initialized")
	return pool
}

func (p *HTTPClientPool) Get() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	client := p.clients[p.idx%uint32(len(p.clients))]
	p.idx++
	return client
}

// NewClient creates a Jupiter Metis API client.
func NewClient(baseURL string, slippageBps int, timeout time.Duration) *Client {
	return NewClientWithKeys(baseURL, slippageBps, timeout, nil)
}

// NewClientWithKeys creates a Jupiter client with custom API keys.
func NewClientWithKeys(baseURL string, slippageBps int, timeout time.Duration, apiKeys []string) *Client {
	if len(apiKeys) == 0 {
		if envKeys := os.Getenv("JUPITER_API_KEYS"); envKeys != "" {
			apiKeys = strings.Split(envKeys, ",")
		} else {
			apiKeys = DefaultAPIKeys()
		}
	}

	return &Client{
		baseURL:       MetisSwapURL,
		slippageBps:   slippageBps,
		clientPool:    NewHTTPClientPool(4, timeout),
		apiKeys:       apiKeys,
		maxLamports:   1_250_000,
		simMultiplier: 1.0,
	}
}

// SetSimulation configures the simulation mode.
func (c *Client) SetSimulation(enabled bool, multiplier float64) {
	c.simMu.Lock()
	defer c.simMu.Unlock()
	c.simMode = enabled
	c.simMultiplier = multiplier
	log.Info().Bool("enabled", enabled).Float64("mult", multiplier).Msg("jupiter simulation mode configured")
}

func (c *Client) getAPIKey() string {
	idx := c.keyIdx.Add(1) % uint32(len(c.apiKeys))
	return c.apiKeys[idx]
}

// QuoteResponse from Jupiter.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot"`
	TimeTaken            float64         `json:"timeTaken"`
}

type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// SwapResponse from Jupiter Metis.
type SwapResponse struct {
	SwapTransaction           string `json:"swapTransaction"`
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
}

// priorityLevelMaxLamports requests a dynamic priority fee capped at
// MaxLamports, used when no explicit compute-unit-price override applies.
type priorityLevelMaxLamports struct {
	PriorityLevel string `json:"priorityLevel"` // medium, high, veryHigh
	MaxLamports   uint64 `json:"maxLamports"`
	Global        bool   `json:"global,omitempty"`
}

// quoteOneTier fetches a single-tier quote. onlyDirectRoutes restricts to
// single-hop AMMs; restrictIntermediates, when non-empty, limits the route
// planner to those intermediate mints (used by the bridge tier).
func (c *Client) quoteOneTier(ctx context.Context, inputMint, outputMint string, amountLamports uint64, onlyDirectRoutes bool, restrictIntermediates []string) (*QuoteResponse, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&outputMint=%s&amount=%d&slippageBps=%d",
		c.baseURL, inputMint, outputMint, amountLamports, c.slippageBps)
	if onlyDirectRoutes {
		url += "&onlyDirectRoutes=true"
	}
	for _, mint := range restrictIntermediates {
		url += "&restrictIntermediateTokens=true&intermediateMint=" + mint
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.getAPIKey())

	client := c.clientPool.Get()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote failed (%d): %s", resp.StatusCode, string(body))
	}

	var quote QuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if quote.OutAmount == "" || quote.OutAmount == "0" {
		return nil, nil
	}
	return &quote, nil
}

func tierParams(tier Tier) (onlyDirect bool, intermediates []string) {
	switch tier {
	case TierDirectPreferred:
		return true, nil
	case TierAnyRoute:
		return false, nil
	case TierBridge:
		return false, []string{canonicalStableMint}
	default:
		return false, nil
	}
}

// GetTieredQuote runs the tiered quote ladder: direct-preferred, then
// any-route, then bridge, returning the first tier that yields a non-empty
// quote. Each tier is retried up to quoteRetries times with linear backoff
// to accommodate fresh-pool indexing latency.
func (c *Client) GetTieredQuote(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (*QuoteResponse, Tier, error) {
	c.simMu.RLock()
	isSim := c.simMode
	mult := c.simMultiplier
	c.simMu.RUnlock()

	if isSim {
		return c.simulatedQuote(inputMint, outputMint, amountLamports, mult), TierDirectPreferred, nil
	}

	var lastErr error
	for _, tier := range tierLadder {
		onlyDirect, intermediates := tierParams(tier)

		for attempt := 1; attempt <= quoteRetries; attempt++ {
			start := time.Now()
			quote, err := c.quoteOneTier(ctx, inputMint, outputMint, amountLamports, onlyDirect, intermediates)
			if err != nil {
				lastErr = err
				log.Debug().Err(err).Str("tier", string(tier)).Int("attempt", attempt).Msg("jupiter quote attempt failed")
			} else if quote != nil {
				log.Debug().
					Dur("latency", time.Since(start)).
					Str("tier", string(tier)).
					Str("outAmount", quote.OutAmount).
					Msg("jupiter quote")
				return quote, tier, nil
			}

			if attempt < quoteRetries {
				select {
				case <-ctx.Done():
					return nil, "", ctx.Err()
				case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
				}
			}
		}
	}

	if lastErr != nil {
		return nil, "", fmt.Errorf("no route across all tiers: %w", lastErr)
	}
	return nil, "", fmt.Errorf("no route across all tiers")
}

func (c *Client) simulatedQuote(inputMint, outputMint string, amountLamports uint64, mult float64) *QuoteResponse {
	if inputMint != SOLMint {
		outAmt := float64(amountLamports) * mult
		return &QuoteResponse{
			InputMint:      inputMint,
			InAmount:       fmt.Sprintf("%d", amountLamports),
			OutputMint:     outputMint,
			OutAmount:      fmt.Sprintf("%.0f", outAmt),
			PriceImpactPct: "0.0",
		}
	}
	return &QuoteResponse{
		InputMint:      inputMint,
		InAmount:       fmt.Sprintf("%d", amountLamports),
		OutputMint:     outputMint,
		OutAmount:      fmt.Sprintf("%d", amountLamports),
		PriceImpactPct: "0.0",
	}
}

// GetSwapTransaction builds a swap transaction for an already-resolved
// quote. computeUnitPriceMicroLamports, when non-zero, overrides the
// veryHigh dynamic priority-fee estimate with an explicit value (typically
// the 75th percentile of recent prioritization fees).
func (c *Client) GetSwapTransaction(ctx context.Context, quote *QuoteResponse, userPubkey string, computeUnitPriceMicroLamports uint64) (string, error) {
	c.simMu.RLock()
	isSim := c.simMode
	c.simMu.RUnlock()

	if isSim {
		// Byte 0: signature count = 1; bytes 1-64: empty signature slot;
		// bytes 65-66: minimal dummy message. Lets SignSerializedTransaction
		// locate the signature slot without crashing.
		return "AQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAA==", nil
	}

	start := time.Now()

	var feeField interface{}
	if computeUnitPriceMicroLamports > 0 {
		feeField = computeUnitPriceMicroLamports
	} else {
		feeField = priorityLevelMaxLamports{
			PriorityLevel: "veryHigh",
			MaxLamports:   c.maxLamports,
			Global:        false,
		}
	}

	reqBody := struct {
		QuoteResponse             *QuoteResponse `json:"quoteResponse"`
		UserPublicKey             string         `json:"userPublicKey"`
		WrapAndUnwrapSol          bool           `json:"wrapAndUnwrapSol"`
		DynamicComputeUnitLimit   bool           `json:"dynamicComputeUnitLimit"`
		SkipUserAccountsRpcCalls  bool           `json:"skipUserAccountsRpcCalls"`
		PrioritizationFeeLamports interface{}    `json:"prioritizationFeeLamports"`
	}{
		QuoteResponse:             quote,
		UserPublicKey:             userPubkey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		SkipUserAccountsRpcCalls:  true,
		PrioritizationFeeLamports: feeField,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/swap", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.getAPIKey())

	client := c.clientPool.Get()
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("swap failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var swapResp SwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&swapResp); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}

	log.Info().
		Dur("latency", time.Since(start)).
		Uint64("priorityFee", swapResp.PrioritizationFeeLamports).
		Msg("jupiter swap tx")

	return swapResp.SwapTransaction, nil
}

// SetMaxPriorityFee sets the max priority fee cap in lamports.
func (c *Client) SetMaxPriorityFee(lamports uint64) {
	c.maxLamports = lamports
}
