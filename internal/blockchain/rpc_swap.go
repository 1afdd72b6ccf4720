package blockchain

import (
	"context"
	"fmt"
	"sort"
)

// PrioritizationFee is one entry of getRecentPrioritizationFees.
type PrioritizationFee struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

// RecentPriorityFeePercentile returns the requested percentile (0-100) of
// recent prioritization fees reported by the RPC node, in micro-native
// units per compute unit. Returns 0 if the node reports no recent fees.
func (c *RPCClient) RecentPriorityFeePercentile(ctx context.Context, percentile int) (uint64, error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getRecentPrioritizationFees",
	}

	var result []PrioritizationFee
	if err := c.call(ctx, req, &result); err != nil {
		return 0, err
	}
	if len(result) == 0 {
		return 0, nil
	}

	fees := make([]uint64, len(result))
	for i, f := range result {
		fees[i] = f.PrioritizationFee
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })

	idx := (len(fees) * percentile) / 100
	if idx >= len(fees) {
		idx = len(fees) - 1
	}
	return fees[idx], nil
}

// TokenBalanceEntry is one entry of getTransaction's pre/post token balance
// lists.
type TokenBalanceEntry struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

// TokenBalanceDelta reads a confirmed transaction's meta and returns the
// owner's balance for mint before and after the transaction, if present,
// along with the mint's on-chain decimals as reported in the same
// response.
func (c *RPCClient) TokenBalanceDelta(ctx context.Context, signature, owner, mint string) (pre, post uint64, decimals uint8, found bool, err error) {
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []interface{}{
			signature,
			map[string]interface{}{
				"encoding":                       "jsonParsed",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	var result struct {
		Meta struct {
			PreTokenBalances  []TokenBalanceEntry `json:"preTokenBalances"`
			PostTokenBalances []TokenBalanceEntry `json:"postTokenBalances"`
		} `json:"meta"`
	}

	if err := c.call(ctx, req, &result); err != nil {
		return 0, 0, 0, false, fmt.Errorf("getTransaction: %w", err)
	}

	preAmt, preDecimals, preOK := findOwnerMintBalance(result.Meta.PreTokenBalances, owner, mint)
	postAmt, postDecimals, postOK := findOwnerMintBalance(result.Meta.PostTokenBalances, owner, mint)
	if !preOK && !postOK {
		return 0, 0, 0, false, nil
	}
	decimals = postDecimals
	if !postOK {
		decimals = preDecimals
	}
	return preAmt, postAmt, decimals, true, nil
}

func findOwnerMintBalance(entries []TokenBalanceEntry, owner, mint string) (amount uint64, decimals uint8, ok bool) {
	for _, e := range entries {
		if e.Owner != owner || e.Mint != mint {
			continue
		}
		fmt.Sscanf(e.UITokenAmount.Amount, "%d", &amount)
		return amount, e.UITokenAmount.Decimals, true
	}
	return 0, 0, false
}
