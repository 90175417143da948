package authz

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeEnforce {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Shadow(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "shadow")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeShadow {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_DisabledRequiresUnsafe(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "disabled")
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeDisabled {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Invalid(t *testing.T) {
	t.Setenv("AUTHZ_MODE", "nope")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubjectFromRoleSlug(t *testing.T) {
	if got := SubjectFromRoleSlug(" Tenant-Admin "); got != "role:tenant-admin" {
		t.Fatalf("subject=%q", got)
	}
	if got := SubjectFromRoleSlug(""); got != "role:anonymous" {
		t.Fatalf("subject=%q", got)
	}
}

func TestDomainFromTenantID(t *testing.T) {
	if got := DomainFromTenantID(" T1 "); got != "t1" {
		t.Fatalf("domain=%q", got)
	}
}

func writeTestPolicy(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.conf")
	policy := filepath.Join(dir, "policy.csv")

	if err := os.WriteFile(model, []byte(`
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policy, []byte(
		"p, role:tenant-admin, t1, data.records, read\n"+
			"p, role:tenant-admin, t1, data.records, write\n"+
			"p, role:tenant-member, t1, data.records, read\n",
	), 0o644); err != nil {
		t.Fatal(err)
	}
	return model, policy
}

func TestNewAuthorizer_AndAuthorize(t *testing.T) {
	model, policy := writeTestPolicy(t)

	a, err := NewAuthorizer(model, policy, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	allowed, enforced, err := a.Authorize("role:tenant-admin", "t1", ObjectDataRecords, ActionWrite)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !enforced || !allowed {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	allowed, enforced, err = a.Authorize("role:tenant-member", "t1", ObjectDataRecords, ActionWrite)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !enforced || allowed {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}

	// Cross-tenant domain never matches.
	allowed, _, err = a.Authorize("role:tenant-admin", "t2", ObjectDataRecords, ActionRead)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if allowed {
		t.Fatal("expected cross-tenant deny")
	}
}

func TestAuthorize_ShadowAndDisabled(t *testing.T) {
	model, policy := writeTestPolicy(t)

	aShadow, err := NewAuthorizer(model, policy, ModeShadow)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err := aShadow.Authorize("role:tenant-member", "t1", ObjectDataRecords, ActionWrite)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if enforced {
		t.Fatal("shadow mode must not enforce")
	}
	if allowed {
		t.Fatal("shadow decision should still be computed")
	}

	aOff, err := NewAuthorizer(model, policy, ModeDisabled)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, enforced, err = aOff.Authorize("role:anonymous", "t1", ObjectDataRecords, ActionAdmin)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !allowed || enforced {
		t.Fatalf("allowed=%v enforced=%v", allowed, enforced)
	}
}
