package clob

import (
	"strings"
	"testing"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Address().Hex() != "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23" {
		t.Fatalf("unexpected address: %s", s.Address().Hex())
	}
	if _, err := NewSigner("0x" + testKey); err != nil {
		t.Fatalf("expected 0x prefix accepted: %v", err)
	}
	if _, err := NewSigner(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NewSigner("zz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}

func TestSignOrderProducesStableSignature(t *testing.T) {
	s, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := OrderPayload{
		Salt:        42,
		Maker:       s.Address().Hex(),
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "123456",
		MakerAmount: 50_000_000,
		TakerAmount: 100_000_000,
	}
	sig, err := s.SignOrder(order)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Fatalf("expected 65-byte hex signature, got %q", sig)
	}
	again, err := s.SignOrder(order)
	if err != nil {
		t.Fatalf("second sign failed: %v", err)
	}
	if sig != again {
		t.Fatalf("expected deterministic signature for identical payload")
	}
}
