package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPBehindLoadBalancer(t *testing.T) {
	lb, err := NewTrustedProxies([]string{"10.20.0.0/16", " ", "192.168.1.10"})
	if err != nil {
		t.Fatalf("trusted proxies: %v", err)
	}

	cases := []struct {
		name    string
		peer    string
		xff     []string
		realIP  string
		trusted *TrustedProxies
		want    string
	}{
		{name: "direct candidate ignores spoofed headers", peer: "198.51.100.10:5050", xff: []string{"203.0.113.5"}, realIP: "203.0.113.6", want: "198.51.100.10"},
		{name: "untrusted peer ignores headers", peer: "198.51.100.10:5050", xff: []string{"203.0.113.5"}, trusted: lb, want: "198.51.100.10"},
		{name: "load balancer forwards candidate", peer: "10.20.3.4:443", xff: []string{"203.0.113.5"}, trusted: lb, want: "203.0.113.5"},
		{name: "skips trusted hops from the right", peer: "10.20.3.4:443", xff: []string{"203.0.113.9, 203.0.113.5, 192.168.1.10"}, trusted: lb, want: "203.0.113.5"},
		{name: "joins repeated header lines", peer: "10.20.3.4:443", xff: []string{"203.0.113.9", "203.0.113.5"}, trusted: lb, want: "203.0.113.5"},
		{name: "real ip fallback", peer: "10.20.3.4:443", xff: []string{"garbage"}, realIP: "203.0.113.7", trusted: lb, want: "203.0.113.7"},
		{name: "every hop trusted", peer: "10.20.3.4:443", xff: []string{"10.20.9.9"}, trusted: lb, want: "10.20.9.9"},
		{name: "ipv4 mapped peer", peer: "[::ffff:10.20.3.4]:443", xff: []string{"203.0.113.5"}, trusted: lb, want: "203.0.113.5"},
		{name: "ipv6 candidate", peer: "[2001:db8::1]:5050", want: "2001:db8::1"},
		{name: "unparseable peer returned as is", peer: "pipe", want: "pipe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/auth/login", nil)
			req.RemoteAddr = tc.peer
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxiesRejectsBadEntries(t *testing.T) {
	for _, entry := range []string{"10.0.0.0/33", "proxy.internal"} {
		if _, err := NewTrustedProxies([]string{entry}); err == nil {
			t.Fatalf("expected error for %q", entry)
		}
	}
	trusted, err := NewTrustedProxies(nil)
	if err != nil || trusted != nil {
		t.Fatalf("expected nil allowlist, got %v %v", trusted, err)
	}
}
