package raftnode

import (
	"context"
	"strings"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/external"
)

// TenantAuthorizer is an Authorizer backed by the external metadata store:
// the subject must resolve to a live tenant, and for namespace-shaped
// resources ("tenant/app/env/name") the resource's tenant must match the
// subject's. Nothing is cached here; every check consults the store, which
// is expected to cache on its side.
type TenantAuthorizer struct {
	Meta external.MetadataStore
}

func (a TenantAuthorizer) Authorize(ctx context.Context, subject Subject, action Action, resource Resource) error {
	if subject.ID == "" {
		return confluxerr.New(confluxerr.CodePermissionDenied, "anonymous subject")
	}
	tenant, err := a.Meta.SubjectTenant(ctx, subject.ID)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeUnavailable, err, "resolve tenant for subject %s", subject.ID)
	}
	exists, err := a.Meta.TenantExists(ctx, tenant)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeUnavailable, err, "check tenant %s", tenant)
	}
	if !exists {
		return confluxerr.New(confluxerr.CodePermissionDenied, "tenant %s does not exist", tenant)
	}

	if rt, ok := resourceTenant(resource); ok && rt != tenant {
		return confluxerr.New(confluxerr.CodePermissionDenied, "subject of tenant %s cannot %s %s", tenant, action, resource)
	}

	if action == ActionCreateConfig {
		quota, err := a.Meta.Quota(ctx, tenant)
		if err != nil {
			return confluxerr.Wrap(confluxerr.CodeUnavailable, err, "read quota for tenant %s", tenant)
		}
		if quota == 0 {
			return confluxerr.New(confluxerr.CodeResourceExhausted, "tenant %s config quota exhausted", tenant)
		}
	}
	return nil
}

// resourceTenant extracts the tenant segment from a namespace-shaped
// resource; numeric "config/<id>" resources carry no tenant and are skipped.
func resourceTenant(resource Resource) (string, bool) {
	s := string(resource)
	if s == "" || strings.HasPrefix(s, "config/") {
		return "", false
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

var _ Authorizer = TenantAuthorizer{}
