package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authcore/permission"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func edClaims(iss string, aud ...string) AccessClaims {
	return AccessClaims{
		Role: permission.RoleUser,
		Type: TokenTypeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    iss,
			Audience:  aud,
			IssuedAt:  gjwt.NewNumericDate(epoch),
			ExpiresAt: gjwt.NewNumericDate(epoch.Add(time.Minute)),
		},
	}
}

func TestVerifyAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token := signHS(t, edClaims(""))
	if _, err := m.VerifyAccess(token, epoch); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestVerifyAccessIssuerAudience(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "authcore",
		Audience:      "api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, _, err := m.IssueAccess("u-1", permission.RoleUser, epoch)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := m.VerifyAccess(access, epoch); err != nil {
		t.Fatalf("expected valid token to verify: %v", err)
	}

	badIssuer, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, edClaims("other", "api")).SignedString(priv)
	if _, err := m.VerifyAccess(badIssuer, epoch); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected wrong issuer to fail, got %v", err)
	}

	badAudience, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, edClaims("authcore", "other-api")).SignedString(priv)
	if _, err := m.VerifyAccess(badAudience, epoch); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected wrong audience to fail, got %v", err)
	}
}

func TestVerifyAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, edClaims(""))
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.VerifyAccess(token, epoch); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected unknown kid failure, got %v", err)
	}

	good, _, err := m.IssueAccess("u-1", permission.RoleUser, epoch)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.VerifyAccess(good, epoch); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m2.VerifyAccess(good, epoch); err == nil {
		t.Fatal("expected failure with mismatched key set")
	}
}

func TestVerifyOnlyManagerCannotIssue(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, _, err := m.IssueAccess("u-1", permission.RoleUser, epoch); err == nil {
		t.Fatal("expected issue without private key to fail")
	}
}
