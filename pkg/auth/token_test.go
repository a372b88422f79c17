package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour, nil, TokenOptions{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("user-1", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "admin" || claims.TokenID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.After(time.Now().Add(59 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestTokenIssuerRejectsForeignTokens(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour, nil, TokenOptions{})
	other, _ := NewTokenIssuer(strings.Repeat("x", 32), time.Hour, nil, TokenOptions{})
	otherAudience, _ := NewTokenIssuer(testSecret, time.Hour, nil, TokenOptions{Audience: "elsewhere"})

	foreign, _ := other.Issue("user-1", "user")
	if _, err := issuer.Verify(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
	wrongAud, _ := otherAudience.Issue("user-1", "user")
	if _, err := issuer.Verify(wrongAud); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong audience, got %v", err)
	}
	if _, err := issuer.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for garbage, got %v", err)
	}
	if _, err := issuer.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for empty input, got %v", err)
	}
}

func TestNewTokenIssuerValidatesSecret(t *testing.T) {
	if _, err := NewTokenIssuer("short", time.Hour, nil, TokenOptions{}); err == nil {
		t.Fatalf("expected short secret to fail")
	}
	if _, err := NewTokenIssuer(testSecret, 0, nil, TokenOptions{}); err == nil {
		t.Fatalf("expected zero ttl to fail")
	}
}

func TestTokenIssuerRevokeSingleToken(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour, NewMemoryTokenRevoker(), TokenOptions{})
	first, _ := issuer.Issue("user-1", "user")
	second, _ := issuer.Issue("user-1", "user")

	if err := issuer.Revoke(first); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := issuer.Verify(first); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked token, got %v", err)
	}
	if _, err := issuer.Verify(second); err != nil {
		t.Fatalf("expected other token to stay valid, got %v", err)
	}
	if err := issuer.Revoke("garbage"); err != nil {
		t.Fatalf("expected garbage revoke to be ignored, got %v", err)
	}
}

func TestTokenIssuerRevokeUser(t *testing.T) {
	issuer, _ := NewTokenIssuer(testSecret, time.Hour, NewMemoryTokenRevoker(), TokenOptions{})
	mine, _ := issuer.Issue("user-1", "user")
	theirs, _ := issuer.Issue("user-2", "user")

	if err := issuer.RevokeUser("user-1"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, err := issuer.Verify(mine); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected user tokens revoked, got %v", err)
	}
	if _, err := issuer.Verify(theirs); err != nil {
		t.Fatalf("expected other user unaffected, got %v", err)
	}
}

func TestMemoryTokenRevokerUserCutoffMonotonic(t *testing.T) {
	r := NewMemoryTokenRevoker()
	first := time.Now().UTC().Add(-time.Minute)
	second := time.Now().UTC()

	if err := r.RevokeUser("user-1", first); err != nil {
		t.Fatalf("revoke user first: %v", err)
	}
	if err := r.RevokeUser("user-1", first.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke user older cutoff: %v", err)
	}
	got, err := r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after first: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("expected first cutoff to be kept, got %v", got)
	}

	if err := r.RevokeUser("user-1", second); err != nil {
		t.Fatalf("revoke user second: %v", err)
	}
	got, err = r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after second: %v", err)
	}
	if !got.Equal(second) {
		t.Fatalf("expected newest cutoff, got %v", got)
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "", time.Hour)
	defer r.Close()

	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	mr.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked("jti-1")
	if err != nil || revoked {
		t.Fatalf("expected revocation to expire, got %v err=%v", revoked, err)
	}

	cutoff, err := r.RevokedAfter("user-1")
	if err != nil || !cutoff.IsZero() {
		t.Fatalf("expected no cutoff, got %v err=%v", cutoff, err)
	}
	newer := time.Now().UTC()
	if err := r.RevokeUser("user-1", newer); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if err := r.RevokeUser("user-1", newer.Add(-time.Hour)); err != nil {
		t.Fatalf("revoke user older: %v", err)
	}
	cutoff, err = r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after: %v", err)
	}
	if !cutoff.Equal(newer) {
		t.Fatalf("expected newest cutoff %v, got %v", newer, cutoff)
	}
}
