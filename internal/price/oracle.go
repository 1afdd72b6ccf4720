// Package price implements the Price Oracle: spot USD pricing with a
// primary aggregator source, a sol_spent-derived fallback, and an optional
// secondary provider. Every path is best-effort — callers never see an
// error, only a possibly-nil result.
package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// providerTimeout bounds every individual HTTP call the oracle makes.
const providerTimeout = 2500 * time.Millisecond

// Quote is the result of a successful price lookup.
type Quote struct {
	PriceUSD float64
	Source   string // "primary" | "derived" | "secondary"
}

// SecondaryProvider is an optional alternate price source, used only when
// configured with credentials.
type SecondaryProvider interface {
	SpotPriceUSD(ctx context.Context, mint string) (float64, error)
}

// Oracle resolves spot USD prices via the aggregator's price endpoint,
// falling back to a fill-implied derivation, then an optional secondary
// provider.
type Oracle struct {
	baseURL    string
	httpClient *http.Client
	secondary  SecondaryProvider // nil when not configured
}

// New builds an Oracle pointed at the aggregator's price API base URL
// (e.g. "https://api.jup.ag/price/v2").
func New(baseURL string) *Oracle {
	return &Oracle{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: providerTimeout,
		},
	}
}

// SetSecondaryProvider wires an optional alternate price source.
func (o *Oracle) SetSecondaryProvider(p SecondaryProvider) {
	o.secondary = p
}

// SpotPriceUSD resolves mint's spot USD price. amount (whole tokens) and
// solSpent are optional and enable the derived fallback when the primary
// source has no listing yet. Returns nil rather than an error on any
// failure — every path here is best-effort per spec.
func (o *Oracle) SpotPriceUSD(ctx context.Context, mint string, amount float64, solSpent float64) *Quote {
	if q := o.primary(ctx, mint); q != nil {
		return q
	}

	if amount > 0 && solSpent > 0 {
		if q := o.derived(ctx, mint, amount, solSpent); q != nil {
			return q
		}
	}

	if o.secondary != nil {
		cctx, cancel := context.WithTimeout(ctx, providerTimeout)
		defer cancel()
		p, err := o.secondary.SpotPriceUSD(cctx, mint)
		if err != nil {
			log.Debug().Err(err).Str("mint", mint).Msg("secondary price provider failed")
			return nil
		}
		if p > 0 {
			return &Quote{PriceUSD: p, Source: "secondary"}
		}
	}

	return nil
}

type priceAPIResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

func (o *Oracle) primary(ctx context.Context, mint string) *Quote {
	p, err := o.fetchPrice(ctx, mint)
	if err != nil {
		log.Debug().Err(err).Str("mint", mint).Msg("primary price lookup failed")
		return nil
	}
	if p <= 0 {
		return nil
	}
	return &Quote{PriceUSD: p, Source: "primary"}
}

// derived computes price = (sol_spent / amount) * native_usd using the
// same primary source for the native-token USD price.
func (o *Oracle) derived(ctx context.Context, mint string, amount, solSpent float64) *Quote {
	nativeUSD, err := o.fetchPrice(ctx, NativeMint)
	if err != nil || nativeUSD <= 0 {
		return nil
	}
	price := (solSpent / amount) * nativeUSD
	if price <= 0 {
		return nil
	}
	return &Quote{PriceUSD: price, Source: "derived"}
}

// NativeMint is the native wrap token's mint address, used as the pricing
// key for native-USD lookups.
const NativeMint = "So11111111111111111111111111111111111111112"

func (o *Oracle) fetchPrice(ctx context.Context, mint string) (float64, error) {
	cctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?ids=%s", o.baseURL, mint)
	req, err := http.NewRequestWithContext(cctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price api status %d", resp.StatusCode)
	}

	var body priceAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	entry, ok := body.Data[mint]
	if !ok {
		return 0, fmt.Errorf("no price entry for mint %s", mint)
	}

	var price float64
	if _, err := fmt.Sscanf(entry.Price, "%g", &price); err != nil {
		return 0, fmt.Errorf("parse price: %w", err)
	}
	return price, nil
}
