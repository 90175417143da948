package server

import (
	"net/http"
	"os"
	"strings"
)

// effectiveHost returns the lowercased hostname the request was addressed
// to, without port. X-Forwarded-Host is honored only behind a trusted proxy
// (TRUST_PROXY=1); a spoofable host header must never pick the tenant.
func effectiveHost(r *http.Request) string {
	host := r.Host
	if os.Getenv("TRUST_PROXY") == "1" {
		if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			// Proxies append hops comma-separated; the first entry is the client-facing host.
			if first, _, found := strings.Cut(fwd, ","); found {
				fwd = first
			}
			host = fwd
		}
	}
	return normalizeHostname(host)
}

func normalizeHostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	return strings.ToLower(host)
}
