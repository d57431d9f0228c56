// Package external declares the interfaces Conflux's core consumes from
// its collaborators: the relational metadata store, the KMS-backed
// envelope-encryption plumbing, and the GC policy evaluator. The core only
// ever holds these by interface, injected at construction time; the
// concrete implementations live outside this repository.
package external

import "context"

// MetadataStore is the read-only view of the relational metadata store
// holding tenants, quotas and user identity. The core caches nothing from
// it; every check consults it directly, and the store itself is expected to
// cache.
type MetadataStore interface {
	// TenantExists reports whether the tenant is known and live.
	TenantExists(ctx context.Context, tenant string) (bool, error)

	// Quota returns the tenant's remaining config-count quota; a negative
	// value means unlimited.
	Quota(ctx context.Context, tenant string) (int64, error)

	// SubjectTenant resolves a caller's subject id to the tenant it belongs
	// to, for scoping authorization decisions.
	SubjectTenant(ctx context.Context, subjectID string) (string, error)
}

// KMS wraps and unwraps data-encryption keys. The core never calls Unwrap
// itself: ciphertext and wrapped keys are opaque payloads stored verbatim on
// ConfigVersion, and decryption happens in callers. Wrap is declared so a
// protocol layer sitting on this core can envelope-encrypt before proposing.
type KMS interface {
	Wrap(ctx context.Context, kekID string, dek []byte) (wrapped []byte, err error)
	Unwrap(ctx context.Context, kekID string, wrapped []byte) (dek []byte, err error)
}

// RetentionPolicyEvaluator decides which versions are purgeable. The GC
// command semantics are in scope (internal/gc issues PurgeVersions); the
// policy evaluation that picks the victims is not, so it enters through this
// interface.
type RetentionPolicyEvaluator interface {
	// PurgeCandidates returns, per config id, the version ids whose
	// retention has expired. Versions still referenced by a release rule or
	// by latest_version_id are rejected by the state machine regardless of
	// what the evaluator returns.
	PurgeCandidates(ctx context.Context) (map[uint64][]uint64, error)
}
