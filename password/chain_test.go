package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestChainVerifiesBothFormats(t *testing.T) {
	argon := newTestArgon2(t, testConfig())
	legacy, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	chain := NewChain(argon, legacy)

	modern, err := chain.Hash("modern-password-1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !argon.Recognizes(modern) {
		t.Fatalf("expected chain to hash with argon2id, got %s", modern)
	}

	old, err := legacy.Hash("legacy-password-1")
	if err != nil {
		t.Fatalf("bcrypt Hash error: %v", err)
	}

	if ok, err := chain.Verify("modern-password-1", modern); err != nil || !ok {
		t.Fatalf("expected argon2 verify success, ok=%v err=%v", ok, err)
	}
	if ok, err := chain.Verify("legacy-password-1", old); err != nil || !ok {
		t.Fatalf("expected bcrypt verify success, ok=%v err=%v", ok, err)
	}
	if ok, err := chain.Verify("nope-nope-nope", old); err != nil || ok {
		t.Fatalf("expected bcrypt mismatch, ok=%v err=%v", ok, err)
	}
	if _, err := chain.Verify("anything-at-all", "plaintext"); err == nil {
		t.Fatal("expected unrecognized hash to fail")
	}
}

func TestBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(99); err == nil {
		t.Fatal("expected cost out of range error")
	}
	if _, err := NewBcrypt(0); err != nil {
		t.Fatalf("expected default cost to be accepted: %v", err)
	}
}
