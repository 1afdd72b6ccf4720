// Package broadcast implements the RPC Broadcaster: a multi-endpoint
// race-send-and-confirm, generalizing the teacher's single primary/fallback
// RPCClient.call into an N-way concurrent race with endpoint affinity,
// optionally accelerated by internal/wsconfirm's websocket
// signature-subscription channel.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/wsconfirm"
)

// Result is the outcome of a successful broadcast-and-confirm race.
type Result struct {
	Signature    string
	EndpointUsed string
}

// Broadcaster races raw transaction sends across a fixed set of HTTP RPC
// endpoints, returning as soon as one confirms.
type Broadcaster struct {
	endpoints []string
	clients   map[string]*http.Client
	wsconfirm *wsconfirm.Confirmer
}

// New builds a Broadcaster over the deduplicated, http(s)-only endpoint
// list. One HTTP client (one connection pool) is opened per endpoint.
func New(endpoints []string) *Broadcaster {
	clients := make(map[string]*http.Client, len(endpoints))
	for _, ep := range endpoints {
		clients[ep] = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 30 * time.Second,
		}
	}
	return &Broadcaster{endpoints: endpoints, clients: clients, wsconfirm: wsconfirm.New("")}
}

// WithWSConfirm attaches an accelerated signature-confirmation channel,
// raced against every endpoint's HTTP poll once a signature is sent.
func (b *Broadcaster) WithWSConfirm(c *wsconfirm.Confirmer) *Broadcaster {
	b.wsconfirm = c
	return b
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// BroadcastAndConfirm sends signedTxBase64 to every endpoint concurrently
// (skipping preflight, max 3 internal retries each) and confirms at
// commitment "confirmed". The first endpoint to confirm wins; the rest
// continue and are allowed to fail silently. maxWait bounds the race.
func (b *Broadcaster) BroadcastAndConfirm(ctx context.Context, signedTxBase64 string, maxWait time.Duration) (*Result, error) {
	if len(b.endpoints) == 0 {
		return nil, fmt.Errorf("broadcast: no endpoints configured")
	}

	// Not cancelled on return: losing endpoints keep running until they
	// finish or maxWait expires; the closer goroutine below releases it.
	ctx, cancel := context.WithTimeout(ctx, maxWait)

	type outcome struct {
		res *Result
		err error
	}
	resultCh := make(chan outcome, len(b.endpoints))
	var wg sync.WaitGroup

	for _, ep := range b.endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.sendAndConfirm(ctx, ep, signedTxBase64)
			select {
			case resultCh <- outcome{res, err}:
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
		cancel()
	}()

	var firstErr error
	for {
		select {
		case o, ok := <-resultCh:
			if !ok {
				if firstErr == nil {
					firstErr = fmt.Errorf("broadcast: all endpoints failed")
				}
				return nil, firstErr
			}
			if o.err != nil {
				if firstErr == nil {
					firstErr = o.err
				}
				continue
			}
			return o.res, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("broadcast: maxWaitMs exceeded: %w", ctx.Err())
		}
	}
}

func (b *Broadcaster) sendAndConfirm(ctx context.Context, endpoint, signedTxBase64 string) (*Result, error) {
	sig, err := b.sendTransaction(ctx, endpoint, signedTxBase64)
	if err != nil {
		return nil, err
	}

	if err := b.confirm(ctx, endpoint, sig); err != nil {
		return nil, err
	}

	return &Result{Signature: sig, EndpointUsed: endpoint}, nil
}

// confirm races the HTTP getSignatureStatuses poll against the websocket
// signature-subscription channel (when configured) and returns as soon
// as either succeeds. A lone failure (e.g. the ws endpoint being
// unreachable) does not short-circuit the race; both must fail for
// confirm to report an error.
func (b *Broadcaster) confirm(ctx context.Context, endpoint, sig string) error {
	if b.wsconfirm == nil || !b.wsconfirm.Enabled() {
		return b.pollConfirmed(ctx, endpoint, sig)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan error, 2)

	go func() {
		resultCh <- b.pollConfirmed(ctx, endpoint, sig)
	}()
	go func() {
		res, err := b.wsconfirm.WaitForSignature(ctx, sig)
		if err != nil {
			resultCh <- err
			return
		}
		if res.Err != "" {
			resultCh <- fmt.Errorf("transaction failed on-chain: %s", res.Err)
			return
		}
		resultCh <- nil
	}()

	first := <-resultCh
	if first == nil {
		return nil
	}
	second := <-resultCh
	if second == nil {
		return nil
	}
	return second
}

func (b *Broadcaster) sendTransaction(ctx context.Context, endpoint, signedTxBase64 string) (string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendTransaction",
		Params: []interface{}{
			signedTxBase64,
			map[string]interface{}{
				"encoding":            "base64",
				"skipPreflight":       true,
				"preflightCommitment": "processed",
				"maxRetries":          3,
			},
		},
	}

	var sig string
	if err := b.call(ctx, endpoint, req, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (b *Broadcaster) pollConfirmed(ctx context.Context, endpoint, signature string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			req := rpcRequest{
				JSONRPC: "2.0",
				ID:      1,
				Method:  "getSignatureStatuses",
				Params: []interface{}{
					[]string{signature},
					map[string]bool{"searchTransactionHistory": true},
				},
			}

			var result struct {
				Value []*struct {
					Err                interface{} `json:"err"`
					ConfirmationStatus string      `json:"confirmationStatus"`
				} `json:"value"`
			}

			if err := b.call(ctx, endpoint, req, &result); err != nil {
				log.Debug().Err(err).Str("endpoint", endpoint).Msg("confirm poll failed, retrying")
				continue
			}
			if len(result.Value) == 0 || result.Value[0] == nil {
				continue
			}
			status := result.Value[0]
			if status.Err != nil {
				errBytes, _ := json.Marshal(status.Err)
				return fmt.Errorf("transaction failed on-chain: %s", string(errBytes))
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}
	}
}

func (b *Broadcaster) call(ctx context.Context, endpoint string, req rpcRequest, result interface{}) error {
	client := b.clients[endpoint]
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// Endpoints returns the configured endpoint list (for diagnostics).
func (b *Broadcaster) Endpoints() []string {
	return b.endpoints
}
