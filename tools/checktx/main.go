// Command checktx is an operator diagnostic: look up the confirmation
// status of a single transaction signature against the configured read
// RPC endpoint. Adapted from the teacher's tools/checktx, re-pointed at
// this engine's config and module path.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"copytrade-engine/internal/blockchain"
	"copytrade-engine/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: checktx <TX_SIGNATURE>")
		os.Exit(1)
	}
	txSig := os.Args[1]

	configPath := "config/config.yaml"
	if p := os.Getenv("COPYTRADER_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.NewManager(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	rpc := blockchain.NewRPCClient(cfg.Get().RPC.ReadURL, cfg.Get().RPC.ReadURL, cfg.ReadAPIKey())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := rpc.CheckTransaction(ctx, txSig)
	if err != nil {
		fmt.Printf("rpc error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.String())
	if result.Status == "FAILED" {
		fmt.Printf("error details: %+v\n", result.ErrorDetails)
	}
	if result.Status == "SUCCESS" {
		fmt.Printf("slot: %d, confirmations: %d, status: %s\n",
			result.Slot, result.Confirmations, result.ConfirmationStatus)
	}
}
