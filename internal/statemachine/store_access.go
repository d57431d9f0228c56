package statemachine

import (
	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/store"
)

// loadVersion reads a single ConfigVersion from the store, returning (nil, nil) if
// it does not exist rather than a NotFound error: callers that must
// distinguish "not found" from "storage failure" check the returned error,
// and every caller here already treats a nil version as its own
// not-found case.
func (m *Machine) loadVersion(configID, versionID uint64) (*model.ConfigVersion, error) {
	data, err := m.s.Get(store.FamilyVersion, store.EncodeVersionKey(configID, versionID))
	if err != nil {
		if code, ok := confluxerr.CodeOf(err); ok && code == confluxerr.CodeNotFound {
			return nil, nil
		}
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "load version %d/%d", configID, versionID)
	}
	var v model.ConfigVersion
	if err := model.Decode(data, &v); err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeCorruption, err, "decode version %d/%d", configID, versionID)
	}
	return &v, nil
}

// listVersions returns up to limit versions of configID with VersionID >
// cursor, in ascending VersionID order.
func (m *Machine) listVersions(configID, cursor uint64, limit int) (ListVersionsResult, error) {
	lower := store.EncodeVersionKey(configID, cursor+1)
	upper := store.EncodeVersionPrefix(configID + 1)

	var out []model.ConfigVersion
	var decodeErr error
	var more bool
	err := store.IterateRange(m.s, store.FamilyVersion, lower, upper, func(kv store.KV) bool {
		if len(out) >= limit {
			more = true
			return false
		}
		var v model.ConfigVersion
		if err := model.Decode(kv.Value, &v); err != nil {
			decodeErr = err
			return false
		}
		out = append(out, v)
		return true
	})
	if err != nil {
		return ListVersionsResult{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "list versions for config %d", configID)
	}
	if decodeErr != nil {
		return ListVersionsResult{}, confluxerr.Wrap(confluxerr.CodeCorruption, decodeErr, "decode version while listing")
	}

	hasMore := more
	var next uint64
	if hasMore {
		next = out[len(out)-1].ID
	}
	return ListVersionsResult{Versions: out, NextCursor: next, HasMore: hasMore}, nil
}

// loadProposal reads a single ReleaseProposal from the store.
func (m *Machine) loadProposal(proposalID uint64) (*model.ReleaseProposal, error) {
	data, err := m.s.Get(store.FamilyProposal, store.EncodeProposalKey(proposalID))
	if err != nil {
		if code, ok := confluxerr.CodeOf(err); ok && code == confluxerr.CodeNotFound {
			return nil, nil
		}
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "load proposal %d", proposalID)
	}
	var p model.ReleaseProposal
	if err := model.Decode(data, &p); err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeCorruption, err, "decode proposal %d", proposalID)
	}
	return &p, nil
}
