package walletkey

import (
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
)

func TestDecodeKeypair_SeedOnly(t *testing.T) {
	_, seed, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded := base58.Encode(seed.Seed())

	priv, pub, err := DecodeKeypair(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(priv) != ed25519.PrivateKeySize || len(pub) != ed25519.PublicKeySize {
		t.Fatalf("unexpected key sizes: priv=%d pub=%d", len(priv), len(pub))
	}
}

func TestDecodeKeypair_FullKeypair(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded := base58.Encode(priv)

	gotPriv, gotPub, err := DecodeKeypair(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotPriv) != string(priv) || string(gotPub) != string(pub) {
		t.Fatal("decoded keypair does not match original")
	}
}

func TestDecodeKeypair_InvalidLength(t *testing.T) {
	encoded := base58.Encode([]byte{1, 2, 3})
	if _, _, err := DecodeKeypair(encoded); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestAddress_RoundTrips(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	addr := Address(pub)
	if !IsValidAddress(addr) {
		t.Fatalf("expected %q to be a valid address", addr)
	}
}

func TestIsValidAddress_RejectsGarbage(t *testing.T) {
	cases := []string{"", "not-base58-!!!", "123", base58.Encode([]byte{1, 2, 3})}
	for _, c := range cases {
		if IsValidAddress(c) {
			t.Errorf("expected %q to be invalid", c)
		}
	}
}
