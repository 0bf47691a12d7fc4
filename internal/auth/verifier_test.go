package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func sign(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	head := enc(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + enc(claims)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(head))
	return head + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestDevToken(t *testing.T) {
	v := NewVerifier("", "")
	p, err := v.Verify("acme:Admin")
	if err != nil || p.Tenant != "acme" || !p.IsAdmin() || !p.CanPlan() {
		t.Fatalf("dev token: %+v %v", p, err)
	}
	if _, err := v.Verify("acme"); err == nil {
		t.Fatal("expected error for token without role")
	}
}

func TestHMACToken(t *testing.T) {
	v := NewVerifier("hmac", "k")
	v.now = func() time.Time { return time.Unix(1000, 0) }

	p, err := v.Verify(sign(t, "k", map[string]any{"tenant": "acme", "role": "planner", "exp": 2000}))
	if err != nil || p.Tenant != "acme" || p.Role != RolePlanner || p.IsAdmin() || !p.CanPlan() {
		t.Fatalf("valid token: %+v %v", p, err)
	}
	p, err = v.Verify(sign(t, "k", map[string]any{"tenant": "acme"}))
	if err != nil || p.Role != RoleViewer || p.CanPlan() {
		t.Fatalf("role should default to viewer: %+v %v", p, err)
	}

	bad := []string{
		sign(t, "other", map[string]any{"tenant": "acme"}),
		sign(t, "k", map[string]any{"tenant": "acme", "exp": 999}),
		sign(t, "k", map[string]any{"role": "admin"}),
		"not.a.jwt",
		"acme:admin",
	}
	for _, tok := range bad {
		if _, err := v.Verify(tok); err == nil {
			t.Fatalf("expected rejection for %q", tok)
		}
	}
}
