package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestArgon2(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestArgon2HashAndVerify(t *testing.T) {
	h := newTestArgon2(t, testConfig())

	encoded, err := h.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("correct-horse-battery", encoded)
	if err != nil || !ok {
		t.Fatalf("expected verification success, ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify("wrong-horse-battery", encoded)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestArgon2HashesAreSalted(t *testing.T) {
	h := newTestArgon2(t, testConfig())
	a, err := h.Hash("same-password-twice")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("same-password-twice")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := newTestArgon2(t, testConfig())
	encoded, err := weak.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strongCfg := testConfig()
	strongCfg.Time = 2
	strong := newTestArgon2(t, strongCfg)

	if up, err := strong.NeedsUpgrade(encoded); err != nil || !up {
		t.Fatalf("expected upgrade for weaker params, up=%v err=%v", up, err)
	}
	if up, err := weak.NeedsUpgrade(encoded); err != nil || up {
		t.Fatalf("expected no upgrade for current params, up=%v err=%v", up, err)
	}
}

func TestArgon2RejectsMalformedHashes(t *testing.T) {
	h := newTestArgon2(t, testConfig())
	encoded, err := h.Hash("malformed-cases")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := map[string]string{
		"not phc":       "not-a-phc-hash",
		"wrong version": strings.Replace(encoded, "$v=19$", "$v=18$", 1),
		"bad params":    strings.Replace(encoded, "m=8192", "m=12", 1),
		"extra param":   strings.Replace(encoded, ",p=1", ",p=1,x=2", 1),
		"bad salt":      strings.Replace(encoded, "$m=8192,t=1,p=1$", "$m=8192,t=1,p=1$!!$", 1),
	}
	for name, bad := range cases {
		if _, err := h.Verify("malformed-cases", bad); err == nil {
			t.Fatalf("%s: expected verification error", name)
		}
	}
	if _, err := h.Verify("malformed-cases", "$2a$10$abc"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash for bcrypt input, got %v", err)
	}
}

func TestArgon2PasswordLengthBounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasswordBytes = 64
	h := newTestArgon2(t, cfg)

	if _, err := h.Hash("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	encoded, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("expected max-length password to hash: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), encoded); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected Verify to reject long password, got %v", err)
	}
}

func TestArgon2DefaultMaxPasswordBytes(t *testing.T) {
	h := newTestArgon2(t, testConfig())
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); err == nil {
		t.Fatalf("expected password > %d bytes to be rejected", DefaultMaxPasswordBytes)
	}
}

func TestArgon2ConfigValidation(t *testing.T) {
	bad := testConfig()
	bad.Memory = 1024
	if _, err := NewArgon2(bad); err == nil {
		t.Fatal("expected low memory config to be rejected")
	}
	bad = testConfig()
	bad.SaltLength = 8
	if _, err := NewArgon2(bad); err == nil {
		t.Fatal("expected short salt config to be rejected")
	}
}
