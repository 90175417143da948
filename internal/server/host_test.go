package server

import (
	"net/http/httptest"
	"testing"
)

func TestEffectiveHostStripsPortAndCase(t *testing.T) {
	r := httptest.NewRequest("GET", "http://Acme.Luma.Test:8080/config/api/sub-modules", nil)
	if got := effectiveHost(r); got != "acme.luma.test" {
		t.Fatalf("host = %q", got)
	}
}

func TestEffectiveHostIgnoresForwardedWithoutTrust(t *testing.T) {
	r := httptest.NewRequest("GET", "http://direct.luma.test/", nil)
	r.Header.Set("X-Forwarded-Host", "spoofed.luma.test")

	if got := effectiveHost(r); got != "direct.luma.test" {
		t.Fatalf("host = %q, forwarded header must be ignored", got)
	}
}

func TestEffectiveHostTrustsProxyWhenEnabled(t *testing.T) {
	t.Setenv("TRUST_PROXY", "1")

	r := httptest.NewRequest("GET", "http://edge.internal/", nil)
	r.Header.Set("X-Forwarded-Host", "Acme.Luma.Test, edge.internal")

	if got := effectiveHost(r); got != "acme.luma.test" {
		t.Fatalf("host = %q, want first forwarded host", got)
	}
}
