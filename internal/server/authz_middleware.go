package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lumacrm/luma/internal/routing"
	"github.com/lumacrm/luma/pkg/authz"
)

func loadAuthorizer() (*authz.Authorizer, error) {
	modelPath := os.Getenv("AUTHZ_MODEL_PATH")
	if modelPath == "" {
		p, err := defaultConfigPath("config/access/model.conf", "server: authz model not found")
		if err != nil {
			return nil, err
		}
		modelPath = p
	}

	policyPath := os.Getenv("AUTHZ_POLICY_PATH")
	if policyPath == "" {
		p, err := defaultConfigPath("config/access/policy.csv", "server: authz policy not found")
		if err != nil {
			return nil, err
		}
		policyPath = p
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(modelPath, policyPath, mode)
}

func defaultConfigPath(rel string, missing string) (string, error) {
	path := rel
	for i := 0; i < 8; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", errors.New(missing)
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (allowed bool, enforced bool, err error)
}

// authzRequirementForRoute maps a request onto the (object, action) pair the
// policy speaks. Paths outside the domain surfaces skip the check.
func authzRequirementForRoute(method string, path string) (object string, action string, shouldCheck bool) {
	write := method != http.MethodGet && method != http.MethodHead

	switch {
	case strings.HasPrefix(path, "/config/api/sub-modules"):
		object = authz.ObjectConfigSubModules
		if strings.Contains(path, "/fields") {
			object = authz.ObjectConfigFields
		}
	case strings.HasPrefix(path, "/data/api/"):
		object = authz.ObjectDataRecords
	case strings.HasPrefix(path, "/automation/api/workflows"):
		object = authz.ObjectAutomationWorkflows
	case strings.HasPrefix(path, "/notify/api/notifications"):
		object = authz.ObjectNotifyNotifications
	default:
		return "", "", false
	}

	action = authz.ActionRead
	if write {
		action = authz.ActionWrite
	}
	// Schema changes are admin surface regardless of verb shape.
	if (object == authz.ObjectConfigSubModules || object == authz.ObjectConfigFields) && write {
		action = authz.ActionAdmin
	}
	return object, action, true
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(path)
		}

		if path == "/health" || path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		object, action, shouldCheck := authzRequirementForRoute(r.Method, path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}

		tenant, ok := currentTenant(r.Context())
		if !ok {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_missing", "tenant missing")
			return
		}

		roleSlug := authz.RoleAnonymous
		if p, ok := currentPrincipal(r.Context()); ok {
			roleSlug = p.RoleSlug
		}

		allowed, enforced, err := a.Authorize(authz.SubjectFromRoleSlug(roleSlug), authz.DomainFromTenantID(tenant.ID), object, action)
		if err != nil {
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if enforced && !allowed {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}
