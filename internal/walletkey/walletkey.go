// Package walletkey decodes base58-encoded Solana keypairs and validates
// base58 address strings. Extracted from the teacher's
// blockchain.NewWallet (which inlined the same decode-and-derive steps)
// so internal/blockchain's Wallet and internal/detector's address sanity
// check share one implementation instead of two copies of the same
// base58/ed25519 plumbing.
package walletkey

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
)

// DecodeKeypair decodes a base58 private key (64-byte seed+pubkey, or
// 32-byte seed-only) into an ed25519 keypair.
func DecodeKeypair(privateKeyBase58 string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, nil, fmt.Errorf("decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, nil, fmt.Errorf("invalid private key length: %d (expected %d or %d)",
			len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// Address base58-encodes a public key into its wallet-address form.
func Address(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// IsValidAddress reports whether s decodes as base58 to a 32-byte Solana
// public key. Used to sanity-check mint and owner addresses lifted from
// untrusted webhook payloads before they're treated as real pubkeys.
func IsValidAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == ed25519.PublicKeySize
}
