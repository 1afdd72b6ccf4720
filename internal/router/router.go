// Package router implements the Swap Router: the Quote -> Build -> Sign ->
// Broadcast -> Confirm -> Reconstruct state machine that turns a buy or
// sell request into a FillReport, per-call choosing between the aggregator
// tiered ladder (internal/jupiter) and the direct-to-venue fallback
// (internal/venue), then racing the signed transaction across every
// configured RPC endpoint (internal/broadcast).
package router

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/blockchain"
	"copytrade-engine/internal/broadcast"
	"copytrade-engine/internal/jupiter"
	"copytrade-engine/internal/model"
	"copytrade-engine/internal/venue"
)

// SOLMint is the native wrap mint address.
const SOLMint = jupiter.SOLMint

// Request describes a single exact-in swap call.
type Request struct {
	InputMint      string
	OutputMint     string
	AmountLamports uint64 // exact-in amount, in input-mint base units

	// PreferVenue routes the call through the venue path first, falling
	// back to the aggregator ladder on failure. The router takes it as
	// given from the caller; it does not check venue mint markers or a
	// force-fallback setting itself.
	PreferVenue bool
	// SellAll requests a 100% sell via the venue path (exit flow only).
	SellAll bool

	NativeUSD float64 // current native-token USD price, for fill-price derivation
}

// Router wires the aggregator and venue clients to the wallet, the
// blockhash cache, the RPC broadcaster, and a read RPC client used for
// priority-fee estimation and fill reconstruction.
type Router struct {
	jupiterClient *jupiter.Client
	venueClient   *venue.Client // nil if venue fallback is disabled
	broadcaster   *broadcast.Broadcaster
	wallet        *blockchain.Wallet
	blockhash     *blockchain.BlockhashCache
	readRPC       *blockchain.RPCClient

	priorityFeeOverride uint64 // explicit compute-unit-price override, 0 = auto
	maxBroadcastWait    time.Duration
}

// New builds a Router. venueClient may be nil to disable venue fallback
// entirely.
func New(jupiterClient *jupiter.Client, venueClient *venue.Client, b *broadcast.Broadcaster, wallet *blockchain.Wallet, blockhashCache *blockchain.BlockhashCache, readRPC *blockchain.RPCClient, maxBroadcastWait time.Duration) *Router {
	return &Router{
		jupiterClient:    jupiterClient,
		venueClient:      venueClient,
		broadcaster:      b,
		wallet:           wallet,
		blockhash:        blockhashCache,
		readRPC:          readRPC,
		maxBroadcastWait: maxBroadcastWait,
	}
}

// SetPriorityFeeOverride pins the compute-unit-price instead of deriving it
// from recent prioritization fees.
func (r *Router) SetPriorityFeeOverride(microLamports uint64) {
	r.priorityFeeOverride = microLamports
}

// priorityFee resolves the compute-unit-price in micro-native-units: the
// configured override, or the 75th percentile of recent prioritization
// fees reported by RPC.
func (r *Router) priorityFee(ctx context.Context) uint64 {
	if r.priorityFeeOverride > 0 {
		return r.priorityFeeOverride
	}
	fee, err := r.readRPC.RecentPriorityFeePercentile(ctx, 75)
	if err != nil {
		log.Warn().Err(err).Msg("priority fee lookup failed, using zero")
		return 0
	}
	return fee
}

// Swap executes a single exact-in swap, returning a FillReport. req.PreferVenue
// routes through the venue "trade-local" path first with fallback to the
// aggregator ladder; otherwise the aggregator ladder is used directly.
func (r *Router) Swap(ctx context.Context, req Request) (*model.FillReport, error) {
	if req.PreferVenue && r.venueClient != nil {
		report, err := r.swapViaVenue(ctx, req)
		if err == nil {
			return report, nil
		}
		log.Warn().Err(err).Msg("venue route failed, falling back to aggregator")
	}
	return r.swapViaAggregator(ctx, req)
}

func (r *Router) swapViaAggregator(ctx context.Context, req Request) (*model.FillReport, error) {
	quote, tier, err := r.jupiterClient.GetTieredQuote(ctx, req.InputMint, req.OutputMint, req.AmountLamports)
	if err != nil {
		return nil, fmt.Errorf("no route: %w", err)
	}

	fee := r.priorityFee(ctx)
	signedTx, err := r.buildAndSign(ctx, func() (string, error) {
		return r.jupiterClient.GetSwapTransaction(ctx, quote, r.wallet.Address(), fee)
	})
	if err != nil {
		return nil, err
	}

	res, err := r.broadcaster.BroadcastAndConfirm(ctx, signedTx, r.maxBroadcastWait)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	receivedAtoms, _ := new(big.Int).SetString(quote.OutAmount, 10)

	// Buys swap native -> mint; derive a per-token price from the native
	// amount actually spent rather than passing through the native-token
	// USD price itself, mirroring the venue path's derivePrice.
	var price *float64
	if req.InputMint == SOLMint {
		decimals := r.resolveDecimals(ctx, req.OutputMint)
		nativeSpentUSD := req.NativeUSD * float64(req.AmountLamports) / 1e9
		price = derivePrice(receivedAtoms, int(decimals), nativeSpentUSD)
	} else if req.NativeUSD > 0 && receivedAtoms != nil && receivedAtoms.Sign() > 0 {
		p := req.NativeUSD
		price = &p
	}

	return &model.FillReport{
		Signature:        res.Signature,
		ReceivedAtoms:    receivedAtoms,
		EntryOrExitPrice: price,
		Strategy:         string(tier),
		EndpointUsed:     res.EndpointUsed,
	}, nil
}

func (r *Router) swapViaVenue(ctx context.Context, req Request) (*model.FillReport, error) {
	var rawTx string
	var err error
	fee := r.priorityFee(ctx)

	if req.SellAll {
		rawTx, err = r.venueClient.SellAll(ctx, r.wallet.Address(), req.InputMint, 100, fee)
	} else {
		rawTx, err = r.venueClient.Buy(ctx, r.wallet.Address(), req.OutputMint, req.AmountLamports, 100, fee)
	}
	if err != nil {
		return nil, fmt.Errorf("venue trade-local: %w", err)
	}

	signedTx, err := r.signTransaction(rawTx)
	if err != nil {
		return nil, err
	}

	res, err := r.broadcaster.BroadcastAndConfirm(ctx, signedTx, r.maxBroadcastWait)
	if err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	mint := req.OutputMint
	nativeSpentUSD := req.NativeUSD * float64(req.AmountLamports) / 1e9
	if req.SellAll {
		mint = req.InputMint
		nativeSpentUSD = req.NativeUSD
	}
	return r.reconstructFill(ctx, res, mint, nativeSpentUSD)
}

// reconstructFill implements spec's venue-path fill reconstruction:
// fetch confirmed tx meta on the confirming endpoint, diff pre/post token
// balances, and fall back to a polled-token-account retry ladder when the
// meta isn't yet indexed.
func (r *Router) reconstructFill(ctx context.Context, res *broadcast.Result, mint string, nativeUSD float64) (*model.FillReport, error) {
	affinity := blockchain.NewRPCClient(res.EndpointUsed, res.EndpointUsed, "")
	pre, post, decimals, found, err := affinity.TokenBalanceDelta(ctx, res.Signature, r.wallet.Address(), mint)

	var receivedAtoms *big.Int
	if err == nil && found {
		delta := int64(post) - int64(pre)
		if delta < 0 {
			delta = 0
		}
		receivedAtoms = big.NewInt(delta)
	} else {
		receivedAtoms, decimals = r.pollTokenAccountDelta(ctx, mint)
	}
	if decimals == 0 {
		decimals = r.resolveDecimals(ctx, mint)
	}

	price := derivePrice(receivedAtoms, int(decimals), nativeUSD)

	return &model.FillReport{
		Signature:        res.Signature,
		ReceivedAtoms:    receivedAtoms, // nil if still unindexed after both retry tiers
		EntryOrExitPrice: price,
		Strategy:         model.StrategyVenueFallback,
		EndpointUsed:     res.EndpointUsed,
	}, nil
}

// pollTokenAccountDelta retries the wallet's parsed token accounts for mint
// across a two-tier ladder (an initial read, then one retry after the node
// has had time to advance from confirmed to finalized) when transaction
// meta isn't yet indexed.
func (r *Router) pollTokenAccountDelta(ctx context.Context, mint string) (*big.Int, uint8) {
	for attempt := 0; attempt < 2; attempt++ {
		accounts, err := r.readRPC.GetTokenAccountsByOwner(ctx, r.wallet.Address(), mint)
		if err == nil {
			for _, acct := range accounts {
				if acct.Mint == mint {
					return new(big.Int).SetUint64(acct.Amount), acct.Decimals
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil, 0
		case <-time.After(time.Second):
		}
	}
	return nil, 0
}

// defaultTokenDecimals is used only when a mint's on-chain decimals can't
// be resolved from either the confirmed transaction's balance entries or
// a direct token-account lookup.
const defaultTokenDecimals uint8 = 6

// resolveDecimals looks up mint's real on-chain decimals via the wallet's
// token account for it.
func (r *Router) resolveDecimals(ctx context.Context, mint string) uint8 {
	accounts, err := r.readRPC.GetTokenAccountsByOwner(ctx, r.wallet.Address(), mint)
	if err == nil {
		for _, acct := range accounts {
			if acct.Mint == mint {
				return acct.Decimals
			}
		}
	}
	log.Warn().Str("mint", mint).Msg("could not resolve token decimals, using default")
	return defaultTokenDecimals
}

func pow10(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 10
	}
	return f
}

// derivePrice implements entry_price_usd = (native_usd * native_sent) /
// (received_atoms / 10^decimals), returning nil when any input is
// non-finite or received_atoms is zero/unknown. native_usd here already
// folds in native_sent (callers pass the native USD value of the amount
// actually spent), matching FillReport.EntryOrExitPrice's single-scalar
// contract.
func derivePrice(receivedAtoms *big.Int, decimals int, nativeUSD float64) *float64 {
	if receivedAtoms == nil || receivedAtoms.Sign() <= 0 || nativeUSD <= 0 {
		return nil
	}
	atomsF := new(big.Float).SetInt(receivedAtoms)
	scaled := new(big.Float).Quo(atomsF, new(big.Float).SetFloat64(pow10(decimals)))
	f, _ := scaled.Float64()
	if f <= 0 {
		return nil
	}
	p := nativeUSD / f
	return &p
}

// buildAndSign fetches the swap transaction via getTx and signs it.
func (r *Router) buildAndSign(ctx context.Context, getTx func() (string, error)) (string, error) {
	rawTx, err := getTx()
	if err != nil {
		return "", fmt.Errorf("build swap tx: %w", err)
	}
	return r.signTransaction(rawTx)
}

func (r *Router) signTransaction(rawTxBase64 string) (string, error) {
	builder := blockchain.NewTransactionBuilder(r.wallet, r.blockhash, 0)
	signed, err := builder.SignSerializedTransaction(rawTxBase64)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
