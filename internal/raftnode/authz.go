package raftnode

import "context"

// Subject identifies the caller of client_write/client_read, opaque to the
// node itself.
type Subject struct {
	ID     string
	Labels map[string]string
}

// Action names the operation being authorized, one per Command/Query
// variant plus the membership operations, so a policy evaluator can permit
// e.g. read-only subjects to resolve configs but not approve proposals.
type Action string

const (
	ActionRead               Action = "read"
	ActionCreateConfig       Action = "create_config"
	ActionCreateVersion      Action = "create_version"
	ActionUpdateReleaseRules Action = "update_release_rules"
	ActionDeleteConfig       Action = "delete_config"
	ActionPurgeVersions      Action = "purge_versions"
	ActionPublish            Action = "publish"
	ActionDecideProposal     Action = "decide_proposal"
	ActionExecuteProposal    Action = "execute_proposal"
	ActionChangeMembership   Action = "change_membership"
)

// Resource is the object an Action targets, typically a namespace/config
// pair; left as a plain string since the node does not interpret it, only
// forwards it to the evaluator.
type Resource string

// Authorizer is the injected policy evaluator the node consults with
// (subject, action, resource) before proposing; denial returns
// PermissionDenied without touching consensus. It is a small interface
// taken at construction time rather than an imported policy engine, so the
// core never depends on a concrete authorization implementation.
type Authorizer interface {
	Authorize(ctx context.Context, subject Subject, action Action, resource Resource) error
}

// AllowAll is the permissive default used when no external policy
// evaluator is configured.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Subject, Action, Resource) error { return nil }
