package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/lumacrm/luma/pkg/authz"
)

// Principal is the authenticated caller. The reverse proxy terminates
// authentication and forwards identity in trusted headers; the core trusts
// (tenant, user) pairs it is handed.
type Principal struct {
	ID       string
	TenantID string
	RoleSlug string
}

const (
	headerUser = "X-Luma-User"
	headerRole = "X-Luma-Role"
)

type principalCtxKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}

// principalFromHeaders reads the proxy-asserted identity. Absent or blank
// headers mean an anonymous caller; an unknown role is downgraded to
// anonymous rather than rejected, so authz decides the outcome.
func principalFromHeaders(r *http.Request, tenant Tenant) (Principal, bool) {
	userID := strings.TrimSpace(r.Header.Get(headerUser))
	if userID == "" {
		return Principal{}, false
	}

	role := strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole)))
	switch role {
	case authz.RoleTenantAdmin, authz.RoleTenantMember:
	default:
		role = authz.RoleAnonymous
	}

	return Principal{ID: userID, TenantID: tenant.ID, RoleSlug: role}, true
}
