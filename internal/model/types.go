// Package model holds the Conflux domain entities shared by the state
// machine, the persistent store and the watch hub: Namespace, Config,
// ConfigVersion, Release and ChangeEvent, as defined by the data model.
package model

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Namespace identifies a configuration scope by (tenant, app, env). Equality
// of all three labels defines identity.
type Namespace struct {
	Tenant string
	App    string
	Env    string
}

// Key returns the watch-key / name-index string "tenant/app/env".
func (n Namespace) Key() string {
	return n.Tenant + "/" + n.App + "/" + n.Env
}

func (n Namespace) String() string { return n.Key() }

// WatchKey returns the full subscribable key "tenant/app/env/name".
func WatchKey(ns Namespace, name string) string {
	return ns.Key() + "/" + name
}

// Format enumerates the supported ConfigVersion content encodings.
type Format string

const (
	FormatJSON       Format = "JSON"
	FormatTOML       Format = "TOML"
	FormatYAML       Format = "YAML"
	FormatXML        Format = "XML"
	FormatINI        Format = "INI"
	FormatProperties Format = "PROPERTIES"
	FormatRaw        Format = "RAW"
)

// ValidFormat reports whether f is one of the enumerated formats.
func ValidFormat(f Format) bool {
	switch f {
	case FormatJSON, FormatTOML, FormatYAML, FormatXML, FormatINI, FormatProperties, FormatRaw:
		return true
	default:
		return false
	}
}

// Release is a targeting rule mapping a label set to a version id with a
// priority. Ordering: strictly descending Priority, ties broken by
// lexicographic order of the labels serialized as "k1=v1,k2=v2,...".
type Release struct {
	Labels    map[string]string
	VersionID uint64
	Priority  int32
}

// SerializedLabels renders Labels as the deterministic "k1=v1,k2=v2,..."
// string used both for the tie-break order and for display.
func (r Release) SerializedLabels() string {
	if len(r.Labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Labels))
	for k := range r.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, r.Labels[k]))
	}
	return strings.Join(parts, ",")
}

// Matches reports whether r.Labels is a subset of clientLabels: every (k,v)
// in r.Labels must appear in clientLabels with the same value. An empty
// Labels map always matches (the default rule).
func (r Release) Matches(clientLabels map[string]string) bool {
	for k, v := range r.Labels {
		if clientLabels[k] != v {
			return false
		}
	}
	return true
}

// SortReleases orders releases by priority descending, then
// serialized-labels ascending. The sort is deterministic so every replica,
// independently executing it, gets the same answer.
func SortReleases(releases []Release) []Release {
	sorted := make([]Release, len(releases))
	copy(sorted, releases)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].SerializedLabels() < sorted[j].SerializedLabels()
	})
	return sorted
}

// RetentionPolicy bounds how many versions of a Config are kept. The state
// machine stores it with the Config; no core component reads it. internal/gc
// takes its purge candidates from an external.RetentionPolicyEvaluator.
type RetentionPolicy struct {
	MaxVersions   int
	MaxAgeSeconds int64
}

// ApprovalSettings marks whether publishing a Config requires a
// ReleaseProposal to reach APPROVED before Execute is accepted. The approval
// workflow orchestrator itself is external; Publish reads this flag and stages
// a proposal instead of publishing, and Execute accepts only an APPROVED
// proposal.
type ApprovalSettings struct {
	RequireApproval bool
}

// Config is one record per logical configuration file.
type Config struct {
	ID              uint64
	Namespace       Namespace
	Name            string
	LatestVersionID uint64
	Releases        []Release
	Schema          string // optional JSON-Schema-shaped string; "" if absent
	Retention       *RetentionPolicy
	Approval        *ApprovalSettings
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NameKey returns the unique-name-index key for this Config.
func (c *Config) NameKey() string {
	return c.Namespace.Key() + "/" + c.Name
}

// ConfigVersion is an immutable content snapshot belonging to a Config.
type ConfigVersion struct {
	ID          uint64
	ConfigID    uint64
	Content     []byte
	ContentHash [32]byte
	Format      Format
	IsEncrypted bool
	WrappedDEK  []byte // opaque to the core, see internal/external.KMS
	KEKID       string
	CreatorID   uint64
	Description string
	CreatedAt   time.Time
}

// ComputeHash returns sha256(content).
func ComputeHash(content []byte) [32]byte {
	return sha256.Sum256(content)
}

// VerifyIntegrity reports whether ContentHash matches sha256(Content).
func (v *ConfigVersion) VerifyIntegrity() bool {
	return ComputeHash(v.Content) == v.ContentHash
}

// ChangeEventKind enumerates the notification record kinds.
type ChangeEventKind uint8

const (
	ChangeEventUpsert ChangeEventKind = iota
	ChangeEventDelete
	ChangeEventReleaseUpdated
)

func (k ChangeEventKind) String() string {
	switch k {
	case ChangeEventUpsert:
		return "UPSERT"
	case ChangeEventDelete:
		return "DELETE"
	case ChangeEventReleaseUpdated:
		return "RELEASE_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent is the notification record published by the state machine and
// fanned out by the watch hub.
type ChangeEvent struct {
	Kind         ChangeEventKind
	Namespace    Namespace
	ConfigName   string
	NewVersionID uint64 // 0 for DELETE
	Description  string
	Timestamp    time.Time
}

// WatchKey returns the subscribable key this event was published under.
func (e ChangeEvent) WatchKey() string {
	return WatchKey(e.Namespace, e.ConfigName)
}

// ProposalStatus enumerates ReleaseProposal lifecycle states.
type ProposalStatus uint8

const (
	ProposalPending ProposalStatus = iota
	ProposalApproved
	ProposalRejected
	ProposalExecuted
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalPending:
		return "PENDING"
	case ProposalApproved:
		return "APPROVED"
	case ProposalRejected:
		return "REJECTED"
	case ProposalExecuted:
		return "EXECUTED"
	default:
		return "UNKNOWN"
	}
}

// ReleaseProposal is a pending request to publish a new version/release set
// that requires approval before Execute is accepted.
type ReleaseProposal struct {
	ID          uint64
	ConfigID    uint64
	NewVersion  *ConfigVersion
	NewReleases []Release
	Status      ProposalStatus
	ProposerID  uint64
	ApproverID  uint64
	CreatedAt   time.Time
	DecidedAt   time.Time
}
