package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func edManager(t *testing.T, priv ed25519.PrivateKey, now *time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "tokenguard",
		Audience:      "api",
		Leeway:        30 * time.Second,
		Now:           func() time.Time { return *now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func signed(t *testing.T, priv ed25519.PrivateKey, claims gjwt.RegisteredClaims) string {
	t.Helper()
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, AccessClaims{RegisteredClaims: claims})
	s, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestCreateAccessCarriesSubjectAndUniqueID(t *testing.T) {
	_, priv := newEdKeys(t)
	now := fixedNow
	m := edManager(t, priv, &now)

	a, exp, err := m.CreateAccess("user-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if !exp.Equal(fixedNow.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	b, _, err := m.CreateAccess("user-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if a == b {
		t.Fatal("expected two tokens for the same user to differ")
	}

	claims, err := m.ParseAccess(a)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID() != "user-1" || claims.ID == "" {
		t.Fatalf("unexpected claims: sub=%q jti=%q", claims.Subject, claims.ID)
	}
}

func TestParseAccessExpiryFollowsInjectedClock(t *testing.T) {
	_, priv := newEdKeys(t)
	now := fixedNow
	m := edManager(t, priv, &now)

	access, _, err := m.CreateAccess("user-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	now = fixedNow.Add(5*time.Minute + 15*time.Second)
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	now = fixedNow.Add(10 * time.Minute)
	if _, err := m.ParseAccess(access); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessRejectsWrongIssuerAudienceAndAlgorithm(t *testing.T) {
	_, priv := newEdKeys(t)
	now := fixedNow
	m := edManager(t, priv, &now)

	base := gjwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "tokenguard",
		Audience:  gjwt.ClaimStrings{"api"},
		IssuedAt:  gjwt.NewNumericDate(fixedNow),
		ExpiresAt: gjwt.NewNumericDate(fixedNow.Add(time.Minute)),
	}
	if _, err := m.ParseAccess(signed(t, priv, base)); err != nil {
		t.Fatalf("expected baseline token to parse: %v", err)
	}

	wrongIssuer := base
	wrongIssuer.Issuer = "other"
	if _, err := m.ParseAccess(signed(t, priv, wrongIssuer)); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := base
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	if _, err := m.ParseAccess(signed(t, priv, wrongAudience)); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	noSubject := base
	noSubject.Subject = ""
	if _, err := m.ParseAccess(signed(t, priv, noSubject)); err == nil {
		t.Fatal("expected token without subject to fail")
	}

	hs := gjwt.NewWithClaims(gjwt.SigningMethodHS256, AccessClaims{RegisteredClaims: base})
	hsToken, err := hs.SignedString([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("sign hs256: %v", err)
	}
	if _, err := m.ParseAccess(hsToken); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessKeyRotation(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, priv2 := newEdKeys(t)

	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv2,
		KeyID:         "k2",
		VerifyKeys:    map[string][]byte{"k1": pub1, "k2": pub2},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	current, _, err := m.CreateAccess("user-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(current); err != nil {
		t.Fatalf("expected current key to verify: %v", err)
	}

	claims := gjwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	old := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, AccessClaims{RegisteredClaims: claims})
	old.Header["kid"] = "k1"
	oldToken, _ := old.SignedString(priv1)
	if _, err := m.ParseAccess(oldToken); err != nil {
		t.Fatalf("expected previous key to verify: %v", err)
	}

	unknown := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, AccessClaims{RegisteredClaims: claims})
	unknown.Header["kid"] = "k9"
	unknownToken, _ := unknown.SignedString(priv1)
	if _, err := m.ParseAccess(unknownToken); err == nil {
		t.Fatal("expected unknown kid failure")
	}
}

func TestNewManagerRejectsWeakConfig(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)}); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs256"}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
}
