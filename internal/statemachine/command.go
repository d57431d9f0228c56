// Package statemachine implements the replicated state machine that owns
// the configuration data model: the command apply path, release
// resolution, snapshotting and the non-consensus query surface. It is
// built as a dragonboat sm.IConcurrentStateMachine over the Conflux domain
// model.
package statemachine

import (
	"time"

	"github.com/conflux-sh/conflux/internal/model"
)

// CommandType tags the variant of a Command, dispatched on in Update.
type CommandType uint8

const (
	CmdCreateConfig CommandType = iota
	CmdCreateVersion
	CmdUpdateReleaseRules
	CmdDeleteConfig
	CmdPurgeVersions
	CmdPublish
	CmdApproveProposal
	CmdRejectProposal
	CmdExecuteProposal
)

func (t CommandType) String() string {
	switch t {
	case CmdCreateConfig:
		return "CreateConfig"
	case CmdCreateVersion:
		return "CreateVersion"
	case CmdUpdateReleaseRules:
		return "UpdateReleaseRules"
	case CmdDeleteConfig:
		return "DeleteConfig"
	case CmdPurgeVersions:
		return "PurgeVersions"
	case CmdPublish:
		return "Publish"
	case CmdApproveProposal:
		return "ApproveProposal"
	case CmdRejectProposal:
		return "RejectProposal"
	case CmdExecuteProposal:
		return "ExecuteProposal"
	default:
		return "Unknown"
	}
}

// Command is the single, flat, self-describing payload for every Raft log
// entry's command bytes: a Type-tagged struct with per-variant fields left
// zero, rather than a Go interface, which would require registering every
// command's concrete type with gob for interface decoding.
//
// Timestamp is minted once by the proposer (the leader, at propose time)
// and carried verbatim through replication, never re-read during apply;
// wall-clock reads inside apply would break replica determinism.
type Command struct {
	Type      CommandType
	Timestamp time.Time

	// IdempotencyKey is minted client-side (rpc/client) once per logical
	// write attempt and carried unchanged across retries/forwards, so a
	// proposer that times out waiting on SyncPropose and retries does not
	// risk double-applying. Empty on commands
	// built directly in tests or tooling, which skip dedup entirely.
	IdempotencyKey string

	// CreateConfig
	Namespace model.Namespace
	Name      string
	Schema    string
	Retention *model.RetentionPolicy
	Approval  *model.ApprovalSettings

	// Shared by CreateConfig (initial version), CreateVersion, Publish.
	Content        []byte
	Format         model.Format
	FormatOverride bool
	Description    string
	CreatorID      uint64

	// Shared by CreateVersion, UpdateReleaseRules, DeleteConfig, Publish,
	// PurgeVersions (per-entry), and the proposal commands.
	ConfigID uint64

	// UpdateReleaseRules, CreateConfig (initial rule set), Publish.
	Releases  []model.Release
	UpdaterID uint64

	// PurgeVersions
	VersionsByConfig map[uint64][]uint64

	// Proposal commands
	ProposalID uint64
	ApproverID uint64
}

// Encode serializes c using the shared versioned gob codec.
func (c *Command) Encode() ([]byte, error) {
	return model.Encode(c)
}

// DecodeCommand is the inverse of Encode.
func DecodeCommand(data []byte) (*Command, error) {
	var c Command
	if err := model.Decode(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
