package raftnode

import (
	"context"
	"testing"

	"github.com/conflux-sh/conflux/internal/confluxerr"
)

type fakeMetadataStore struct {
	tenants map[string]bool
	subject map[string]string
	quotas  map[string]int64
}

func (f fakeMetadataStore) TenantExists(_ context.Context, tenant string) (bool, error) {
	return f.tenants[tenant], nil
}

func (f fakeMetadataStore) Quota(_ context.Context, tenant string) (int64, error) {
	q, ok := f.quotas[tenant]
	if !ok {
		return -1, nil
	}
	return q, nil
}

func (f fakeMetadataStore) SubjectTenant(_ context.Context, subjectID string) (string, error) {
	return f.subject[subjectID], nil
}

func TestTenantAuthorizer(t *testing.T) {
	a := TenantAuthorizer{Meta: fakeMetadataStore{
		tenants: map[string]bool{"t1": true},
		subject: map[string]string{"alice": "t1", "mallory": "t9"},
		quotas:  map[string]int64{"t1": -1},
	}}
	ctx := context.Background()

	if err := a.Authorize(ctx, Subject{ID: "alice"}, ActionRead, "t1/a1/e1/db.toml"); err != nil {
		t.Fatalf("expected alice to read her own tenant: %v", err)
	}
	if err := a.Authorize(ctx, Subject{}, ActionRead, ""); err == nil {
		t.Fatalf("expected anonymous subject to be denied")
	}
	if err := a.Authorize(ctx, Subject{ID: "mallory"}, ActionRead, ""); err == nil {
		t.Fatalf("expected unknown tenant to be denied")
	}

	err := a.Authorize(ctx, Subject{ID: "alice"}, ActionCreateConfig, "t2/a1/e1/db.toml")
	if err == nil {
		t.Fatalf("expected cross-tenant create to be denied")
	}
	if code, _ := confluxerr.CodeOf(err); code != confluxerr.CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %v", code)
	}

	// Numeric resources carry no tenant and skip the ownership check.
	if err := a.Authorize(ctx, Subject{ID: "alice"}, ActionDeleteConfig, "config/7"); err != nil {
		t.Fatalf("expected numeric resource to pass: %v", err)
	}
}

func TestTenantAuthorizerQuota(t *testing.T) {
	a := TenantAuthorizer{Meta: fakeMetadataStore{
		tenants: map[string]bool{"t1": true},
		subject: map[string]string{"alice": "t1"},
		quotas:  map[string]int64{"t1": 0},
	}}

	err := a.Authorize(context.Background(), Subject{ID: "alice"}, ActionCreateConfig, "t1/a1/e1/db.toml")
	if err == nil {
		t.Fatalf("expected exhausted quota to deny create")
	}
	if code, _ := confluxerr.CodeOf(err); code != confluxerr.CodeResourceExhausted {
		t.Fatalf("expected RESOURCE_EXHAUSTED, got %v", code)
	}
}
