package http

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestResolveClientIP(t *testing.T) {
	t.Parallel()

	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.10/32"),
	}
	cases := []struct {
		name    string
		remote  string
		xff     string
		realIP  string
		trusted []netip.Prefix
		want    string
	}{
		{name: "no proxies configured ignores headers", remote: "203.0.113.9:5000", xff: "1.2.3.4", want: "203.0.113.9"},
		{name: "untrusted peer ignores headers", remote: "203.0.113.9:5000", xff: "1.2.3.4", realIP: "5.6.7.8", trusted: trusted, want: "203.0.113.9"},
		{name: "trusted peer uses forwarded client", remote: "10.1.2.3:443", xff: "198.51.100.7", trusted: trusted, want: "198.51.100.7"},
		{name: "spoofed leftmost entry is skipped", remote: "10.1.2.3:443", xff: "1.1.1.1, 198.51.100.7, 10.9.9.9", trusted: trusted, want: "198.51.100.7"},
		{name: "malformed hop falls back to peer", remote: "10.1.2.3:443", xff: "198.51.100.7, garbage", trusted: trusted, want: "10.1.2.3"},
		{name: "real ip header when chain is all proxies", remote: "192.0.2.10:443", xff: "10.0.0.5", realIP: "198.51.100.8", trusted: trusted, want: "198.51.100.8"},
		{name: "no headers from trusted peer", remote: "10.1.2.3:443", trusted: trusted, want: "10.1.2.3"},
		{name: "ipv4-mapped hop is unmapped", remote: "10.1.2.3:443", xff: "::ffff:198.51.100.7", trusted: trusted, want: "198.51.100.7"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := resolveClientIP(r, tc.trusted); got != tc.want {
				t.Fatalf("resolveClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
