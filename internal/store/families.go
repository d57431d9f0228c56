package store

import "encoding/binary"

// Family is a one-byte tag prefixed onto every pebble key to emulate
// RocksDB-style column families. Pebble has no native column-family
// concept; a leading family byte is its documented idiom for keyspace
// partitioning while keeping ordered iteration and atomic batches intact.
type Family byte

const (
	// FamilyMeta holds Raft and state-machine scalar metadata: vote,
	// last_applied, membership, last_purged, snapshot_meta.
	FamilyMeta Family = iota + 1
	// FamilyLog holds the dense Raft log, keyed by 8-byte big-endian index.
	FamilyLog
	// FamilyConfig holds Config metadata + release rules, keyed by config_id.
	FamilyConfig
	// FamilyVersion holds immutable ConfigVersion payloads, keyed by
	// config_id ‖ version_id.
	FamilyVersion
	// FamilyNameIndex holds the unique (tenant,app,env,name) -> config_id index.
	FamilyNameIndex
	// FamilyProposal holds pending/decided ReleaseProposal records, keyed
	// by proposal_id.
	FamilyProposal
	// FamilyIdempotency holds the cached Response for each client write's
	// idempotency key, keyed by the raw key string.
	FamilyIdempotency
)

// Meta tags (keys within FamilyMeta).
const (
	MetaVote           = "vote"
	MetaLastApplied    = "last_applied"
	MetaMembership     = "membership"
	MetaLastPurged     = "last_purged"
	MetaSnapshotMeta   = "snapshot_meta"
	MetaNextConfigID   = "next_config_id"
	MetaNextProposalID = "next_proposal_id"
)

// prefixedKey prepends the family tag to key, forming the actual pebble key.
func prefixedKey(f Family, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(f)
	copy(out[1:], key)
	return out
}

// familyPrefix returns the single-byte prefix for f, usable as an iteration
// lower bound and (via prefixUpperBound) an exclusive upper bound.
func familyPrefix(f Family) []byte {
	return []byte{byte(f)}
}

// EncodeLogIndex renders a Raft log index as the 8-byte big-endian key used
// in FamilyLog.
func EncodeLogIndex(index uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, index)
	return b
}

// DecodeLogIndex parses an 8-byte big-endian log index key.
func DecodeLogIndex(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// EncodeConfigKey renders a config_id as the 8-byte big-endian key used in
// FamilyConfig.
func EncodeConfigKey(configID uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, configID)
	return b
}

// EncodeVersionKey renders config_id ‖ version_id as the 16-byte key used in
// FamilyVersion.
func EncodeVersionKey(configID, versionID uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], configID)
	binary.BigEndian.PutUint64(b[8:16], versionID)
	return b
}

// EncodeVersionPrefix renders the config_id prefix alone, for range-scanning
// all versions of one Config.
func EncodeVersionPrefix(configID uint64) []byte {
	return EncodeConfigKey(configID)
}

// DecodeVersionKey parses a 16-byte FamilyVersion key.
func DecodeVersionKey(key []byte) (configID, versionID uint64) {
	return binary.BigEndian.Uint64(key[0:8]), binary.BigEndian.Uint64(key[8:16])
}

// EncodeNameIndexKey renders the "tenant/app/env/name" name-index key.
func EncodeNameIndexKey(path string) []byte {
	return []byte(path)
}

// EncodeProposalKey renders a proposal_id as the 8-byte big-endian key used
// in FamilyProposal.
func EncodeProposalKey(proposalID uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, proposalID)
	return b
}

// DecodeProposalKey parses an 8-byte FamilyProposal key.
func DecodeProposalKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// EncodeIdempotencyKey renders a client-minted idempotency key as the raw
// key used in FamilyIdempotency.
func EncodeIdempotencyKey(key string) []byte {
	return []byte(key)
}
