package statemachine

import (
	"sort"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/store"
)

// Update applies a batch of committed log entries in ascending index
// order, recording each entry's Response in its Result slot.
func (m *Machine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	start := time.Now()
	for i, e := range entries {
		resp, err := m.applyOne(e)
		if err != nil {
			// Decode failure or a storage batch failure: both are fatal, so
			// the error propagates and dragonboat stops driving this replica
			// rather than silently skipping the entry.
			return entries, err
		}
		data, encErr := model.Encode(&resp)
		if encErr != nil {
			return entries, confluxerr.Wrap(confluxerr.CodeStorageFailure, encErr, "encode response for index %d", e.Index)
		}
		entries[i].Result = sm.Result{Value: uint64(resp.Status), Data: data}
	}
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("apply took long: %d entries, %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// applyOne decodes and applies a single entry, returning the per-entry
// Response. A non-nil error here always means "fatal": it is returned only
// for decode failure or storage failure, never for business validation.
func (m *Machine) applyOne(e sm.Entry) (Response, error) {
	cmd, err := DecodeCommand(e.Cmd)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeCorruption, err, "decode command at log index %d", e.Index)
	}

	if cmd.IdempotencyKey != "" {
		if cached, ok, err := m.lookupIdempotent(cmd.IdempotencyKey); err != nil {
			return Response{}, err
		} else if ok {
			// A retried/forwarded propose of an already-applied write: replay
			// the cached Response instead of re-running business logic, but
			// last_applied still advances since this log position was
			// genuinely consumed.
			if err := m.commitLastApplied(nil, e.Index); err != nil {
				return Response{}, err
			}
			return cached, nil
		}
	}

	var resp Response
	var applyErr error
	switch cmd.Type {
	case CmdCreateConfig:
		resp, applyErr = m.applyCreateConfig(cmd, e.Index)
	case CmdCreateVersion:
		resp, applyErr = m.applyCreateVersion(cmd, e.Index)
	case CmdUpdateReleaseRules:
		resp, applyErr = m.applyUpdateReleaseRules(cmd, e.Index)
	case CmdDeleteConfig:
		resp, applyErr = m.applyDeleteConfig(cmd, e.Index)
	case CmdPurgeVersions:
		resp, applyErr = m.applyPurgeVersions(cmd, e.Index)
	case CmdPublish:
		resp, applyErr = m.applyPublish(cmd, e.Index)
	case CmdApproveProposal:
		resp, applyErr = m.applyDecideProposal(cmd, e.Index, model.ProposalApproved)
	case CmdRejectProposal:
		resp, applyErr = m.applyDecideProposal(cmd, e.Index, model.ProposalRejected)
	case CmdExecuteProposal:
		resp, applyErr = m.applyExecuteProposal(cmd, e.Index)
	default:
		resp, applyErr = m.finish(cmd, e.Index, nil, rejected(confluxerr.CodeInvalidArgument, "unknown command type %d", cmd.Type))
	}
	if applyErr != nil {
		return Response{}, applyErr
	}
	return resp, nil
}

// commitLastApplied appends the meta.last_applied bookkeeping update to ops
// and commits the resulting batch in one shot:
// last_applied advances for every applied entry, whether the command
// succeeded or was rejected by validation, since a rejected command was
// still applied to this log position.
func (m *Machine) commitLastApplied(ops []store.Op, index uint64) error {
	ops = append(ops, store.PutMetaUint64Op(store.MetaLastApplied, index))
	if err := m.s.WriteBatch(ops); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "commit batch for index %d", index)
	}
	return nil
}

// finish commits an entry's mutations, its last_applied advance and, for a
// keyed command, the cached Response for later idempotent replay, all in one
// batch: a replica must never hold the state mutation without the cached
// response or vice versa, or two replicas could diverge on a retried key.
// Rejected responses are cached the same as successes, so a retry of a
// rejected command replays the rejection instead of re-validating against
// newer state.
func (m *Machine) finish(cmd *Command, index uint64, ops []store.Op, resp Response) (Response, error) {
	if cmd.IdempotencyKey != "" {
		data, err := model.Encode(&resp)
		if err != nil {
			return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode response for idempotency cache")
		}
		ops = append(ops, store.Put(store.FamilyIdempotency, store.EncodeIdempotencyKey(cmd.IdempotencyKey), data))
	}
	if err := m.commitLastApplied(ops, index); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (m *Machine) nextConfigID() (uint64, error) {
	cur, _, err := m.s.GetMetaUint64(store.MetaNextConfigID)
	if err != nil {
		return 0, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read next_config_id")
	}
	return cur + 1, nil
}

func (m *Machine) nextProposalID() (uint64, error) {
	cur, _, err := m.s.GetMetaUint64(store.MetaNextProposalID)
	if err != nil {
		return 0, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read next_proposal_id")
	}
	return cur + 1, nil
}

func (m *Machine) publish(kind model.ChangeEventKind, ns model.Namespace, name string, newVersionID uint64, desc string, ts time.Time) {
	m.hub.Publish(model.WatchKey(ns, name), model.ChangeEvent{
		Kind:         kind,
		Namespace:    ns,
		ConfigName:   name,
		NewVersionID: newVersionID,
		Description:  desc,
		Timestamp:    ts,
	})
}

// swapIndexes installs a new indexState built from a copy-on-write clone of
// the current one, mutated by fn.
func (m *Machine) swapIndexes(fn func(*indexState)) {
	next := m.current().clone()
	fn(next)
	m.idx.Store(next)
}

func (m *Machine) applyCreateConfig(cmd *Command, index uint64) (Response, error) {
	idx := m.current()
	nameKey := cmd.Namespace.Key() + "/" + cmd.Name
	if _, exists := idx.nameIndex[nameKey]; exists {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeAlreadyExists, "config %s already exists", nameKey))
	}
	if err := validateContent(cmd.Format, cmd.Content); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvalidArgument, "%v", err))
	}
	if err := validateSchema(cmd.Schema, cmd.Format, cmd.Content); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvalidArgument, "%v", err))
	}

	releases := cmd.Releases
	if len(releases) == 0 {
		releases = []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}}
	}
	for _, r := range releases {
		if r.VersionID != 1 {
			return m.finish(cmd, index, nil, rejected(confluxerr.CodePreconditionFailed, "release targets version %d, only version 1 exists", r.VersionID))
		}
	}

	configID, err := m.nextConfigID()
	if err != nil {
		return Response{}, err
	}

	cfg := &model.Config{
		ID:              configID,
		Namespace:       cmd.Namespace,
		Name:            cmd.Name,
		LatestVersionID: 1,
		Releases:        releases,
		Schema:          cmd.Schema,
		Retention:       cmd.Retention,
		Approval:        cmd.Approval,
		CreatedAt:       cmd.Timestamp,
		UpdatedAt:       cmd.Timestamp,
	}
	version := &model.ConfigVersion{
		ID:          1,
		ConfigID:    configID,
		Content:     cmd.Content,
		ContentHash: model.ComputeHash(cmd.Content),
		Format:      cmd.Format,
		CreatorID:   cmd.CreatorID,
		Description: cmd.Description,
		CreatedAt:   cmd.Timestamp,
	}

	ops, err := m.stageConfigAndVersion(cfg, version, configID)
	if err != nil {
		return Response{}, err
	}
	resp, err := m.finish(cmd, index, ops, okWithIDs("config created", configID, 1))
	if err != nil {
		return Response{}, err
	}

	m.swapIndexes(func(s *indexState) {
		s.configs[cfg.ID] = cfg
		s.nameIndex[cfg.NameKey()] = cfg.ID
	})
	m.publish(model.ChangeEventUpsert, cfg.Namespace, cfg.Name, 1, "config created", cmd.Timestamp)

	return resp, nil
}

// stageConfigAndVersion builds the ops for a new Config plus its initial
// version plus the incremented next_config_id counter, the meta update for
// a newly allocated id always riding in the same batch that consumes it.
func (m *Machine) stageConfigAndVersion(cfg *model.Config, version *model.ConfigVersion, newConfigID uint64) ([]store.Op, error) {
	cfgBytes, err := model.Encode(cfg)
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode config")
	}
	verBytes, err := model.Encode(version)
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode version")
	}
	return []store.Op{
		store.Put(store.FamilyConfig, store.EncodeConfigKey(cfg.ID), cfgBytes),
		store.Put(store.FamilyVersion, store.EncodeVersionKey(cfg.ID, version.ID), verBytes),
		store.Put(store.FamilyNameIndex, store.EncodeNameIndexKey(cfg.NameKey()), store.EncodeConfigKey(cfg.ID)),
		store.PutMetaUint64Op(store.MetaNextConfigID, newConfigID),
	}, nil
}

func (m *Machine) applyCreateVersion(cmd *Command, index uint64) (Response, error) {
	idx := m.current()
	cfg, ok := idx.configs[cmd.ConfigID]
	if !ok {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "config %d not found", cmd.ConfigID))
	}

	format := cmd.Format
	if !cmd.FormatOverride {
		latest, err := m.loadVersion(cfg.ID, cfg.LatestVersionID)
		if err != nil {
			return Response{}, err
		}
		if latest == nil {
			return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvariantViolation, "config %d latest_version_id %d missing", cfg.ID, cfg.LatestVersionID))
		}
		format = latest.Format
	}
	if err := validateContent(format, cmd.Content); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvalidArgument, "%v", err))
	}
	if err := validateSchema(cfg.Schema, format, cmd.Content); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvalidArgument, "%v", err))
	}

	newVersionID := cfg.LatestVersionID + 1
	version := &model.ConfigVersion{
		ID:          newVersionID,
		ConfigID:    cfg.ID,
		Content:     cmd.Content,
		ContentHash: model.ComputeHash(cmd.Content),
		Format:      format,
		CreatorID:   cmd.CreatorID,
		Description: cmd.Description,
		CreatedAt:   cmd.Timestamp,
	}
	newCfg := cloneConfig(cfg)
	newCfg.LatestVersionID = newVersionID
	newCfg.UpdatedAt = cmd.Timestamp

	verBytes, err := model.Encode(version)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode version")
	}
	cfgBytes, err := model.Encode(newCfg)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode config")
	}
	ops := []store.Op{
		store.Put(store.FamilyVersion, store.EncodeVersionKey(cfg.ID, newVersionID), verBytes),
		store.Put(store.FamilyConfig, store.EncodeConfigKey(cfg.ID), cfgBytes),
	}
	resp, err := m.finish(cmd, index, ops, okWithIDs("version created", cfg.ID, newVersionID))
	if err != nil {
		return Response{}, err
	}

	m.swapIndexes(func(s *indexState) { s.configs[newCfg.ID] = newCfg })
	m.publish(model.ChangeEventUpsert, newCfg.Namespace, newCfg.Name, newVersionID, cmd.Description, cmd.Timestamp)

	return resp, nil
}

func (m *Machine) applyUpdateReleaseRules(cmd *Command, index uint64) (Response, error) {
	idx := m.current()
	cfg, ok := idx.configs[cmd.ConfigID]
	if !ok {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "config %d not found", cmd.ConfigID))
	}
	for _, r := range cmd.Releases {
		v, err := m.loadVersion(cfg.ID, r.VersionID)
		if err != nil {
			return Response{}, err
		}
		if v == nil {
			return m.finish(cmd, index, nil, rejected(confluxerr.CodePreconditionFailed, "release targets missing version %d", r.VersionID))
		}
	}

	newCfg := cloneConfig(cfg)
	newCfg.Releases = cmd.Releases
	newCfg.UpdatedAt = cmd.Timestamp

	cfgBytes, err := model.Encode(newCfg)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode config")
	}
	var newVersionID uint64
	if len(cmd.Releases) > 0 {
		newVersionID = cmd.Releases[0].VersionID
	}
	ops := []store.Op{store.Put(store.FamilyConfig, store.EncodeConfigKey(cfg.ID), cfgBytes)}
	resp, err := m.finish(cmd, index, ops, okWithIDs("release rules updated", cfg.ID, newVersionID))
	if err != nil {
		return Response{}, err
	}

	m.swapIndexes(func(s *indexState) { s.configs[newCfg.ID] = newCfg })
	m.publish(model.ChangeEventReleaseUpdated, newCfg.Namespace, newCfg.Name, newVersionID, "release rules updated", cmd.Timestamp)

	return resp, nil
}

func (m *Machine) applyDeleteConfig(cmd *Command, index uint64) (Response, error) {
	idx := m.current()
	cfg, ok := idx.configs[cmd.ConfigID]
	if !ok {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "config %d not found", cmd.ConfigID))
	}

	var toDelete [][]byte
	scanErr := store.IterateRange(m.s, store.FamilyVersion, store.EncodeVersionKey(cfg.ID, 0), store.EncodeVersionPrefix(cfg.ID+1), func(kv store.KV) bool {
		toDelete = append(toDelete, append([]byte(nil), kv.Key...))
		return true
	})
	if scanErr != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, scanErr, "scan versions of config %d", cfg.ID)
	}

	ops := make([]store.Op, 0, len(toDelete)+2)
	for _, k := range toDelete {
		ops = append(ops, store.Del(store.FamilyVersion, k))
	}
	ops = append(ops,
		store.Del(store.FamilyConfig, store.EncodeConfigKey(cfg.ID)),
		store.Del(store.FamilyNameIndex, store.EncodeNameIndexKey(cfg.NameKey())),
	)
	resp, err := m.finish(cmd, index, ops, okWithIDs("config deleted", cfg.ID, 0))
	if err != nil {
		return Response{}, err
	}

	m.swapIndexes(func(s *indexState) {
		delete(s.configs, cfg.ID)
		delete(s.nameIndex, cfg.NameKey())
	})
	m.publish(model.ChangeEventDelete, cfg.Namespace, cfg.Name, 0, "config deleted", cmd.Timestamp)

	return resp, nil
}

func (m *Machine) applyPurgeVersions(cmd *Command, index uint64) (Response, error) {
	if len(cmd.VersionsByConfig) == 0 {
		return m.finish(cmd, index, nil, ok("no-op"))
	}

	idx := m.current()
	configIDs := make([]uint64, 0, len(cmd.VersionsByConfig))
	for id := range cmd.VersionsByConfig {
		configIDs = append(configIDs, id)
	}
	sort.Slice(configIDs, func(i, j int) bool { return configIDs[i] < configIDs[j] })

	var ops []store.Op
	for _, configID := range configIDs {
		cfg, found := idx.configs[configID]
		if !found {
			return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "config %d not found", configID))
		}
		protected := make(map[uint64]bool, len(cfg.Releases)+1)
		protected[cfg.LatestVersionID] = true
		for _, r := range cfg.Releases {
			protected[r.VersionID] = true
		}

		versionIDs := append([]uint64(nil), cmd.VersionsByConfig[configID]...)
		sort.Slice(versionIDs, func(i, j int) bool { return versionIDs[i] < versionIDs[j] })
		for _, versionID := range versionIDs {
			if protected[versionID] {
				return m.finish(cmd, index, nil,
					rejected(confluxerr.CodePreconditionFailed, "version %d/%d is referenced and cannot be purged", configID, versionID))
			}
			ops = append(ops, store.Del(store.FamilyVersion, store.EncodeVersionKey(configID, versionID)))
		}
	}

	return m.finish(cmd, index, ops, ok("versions purged"))
}

func (m *Machine) applyPublish(cmd *Command, index uint64) (Response, error) {
	idx := m.current()
	cfg, found := idx.configs[cmd.ConfigID]
	if !found {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "config %d not found", cmd.ConfigID))
	}
	if err := validateContent(cmd.Format, cmd.Content); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvalidArgument, "%v", err))
	}
	if err := validateSchema(cfg.Schema, cmd.Format, cmd.Content); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeInvalidArgument, "%v", err))
	}

	candidateVersionID := cfg.LatestVersionID + 1
	if err := validatePublishReleases(cmd.Releases, cfg, candidateVersionID, m); err != nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodePreconditionFailed, "%v", err))
	}

	if cfg.Approval != nil && cfg.Approval.RequireApproval {
		return m.stagePublishProposal(cmd, cfg, candidateVersionID, index)
	}
	return m.executePublish(cmd, cfg, candidateVersionID, cmd.Content, cmd.Format, cmd.Releases, nil, index)
}

// validatePublishReleases checks that every release in the proposed rule
// set targets either an existing version of cfg or the newly minted
// candidateVersionID.
func validatePublishReleases(releases []model.Release, cfg *model.Config, candidateVersionID uint64, m *Machine) error {
	for _, r := range releases {
		if r.VersionID == candidateVersionID {
			continue
		}
		v, err := m.loadVersion(cfg.ID, r.VersionID)
		if err != nil {
			return err
		}
		if v == nil {
			return confluxerr.New(confluxerr.CodePreconditionFailed, "release targets missing version %d", r.VersionID)
		}
	}
	return nil
}

// executePublish writes the new version and release set. extraOps ride the
// same batch, used by the proposal path to flip the proposal to EXECUTED
// atomically with the publish itself.
func (m *Machine) executePublish(cmd *Command, cfg *model.Config, versionID uint64, content []byte, format model.Format, releases []model.Release, extraOps []store.Op, index uint64) (Response, error) {
	version := &model.ConfigVersion{
		ID:          versionID,
		ConfigID:    cfg.ID,
		Content:     content,
		ContentHash: model.ComputeHash(content),
		Format:      format,
		CreatorID:   cmd.CreatorID,
		Description: cmd.Description,
		CreatedAt:   cmd.Timestamp,
	}
	newCfg := cloneConfig(cfg)
	newCfg.LatestVersionID = versionID
	newCfg.Releases = releases
	newCfg.UpdatedAt = cmd.Timestamp

	verBytes, err := model.Encode(version)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode version")
	}
	cfgBytes, err := model.Encode(newCfg)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode config")
	}
	ops := []store.Op{
		store.Put(store.FamilyVersion, store.EncodeVersionKey(cfg.ID, versionID), verBytes),
		store.Put(store.FamilyConfig, store.EncodeConfigKey(cfg.ID), cfgBytes),
	}
	ops = append(ops, extraOps...)
	resp, err := m.finish(cmd, index, ops, okWithIDs("published", cfg.ID, versionID))
	if err != nil {
		return Response{}, err
	}

	m.swapIndexes(func(s *indexState) { s.configs[newCfg.ID] = newCfg })
	m.publish(model.ChangeEventUpsert, newCfg.Namespace, newCfg.Name, versionID, cmd.Description, cmd.Timestamp)

	return resp, nil
}

func (m *Machine) stagePublishProposal(cmd *Command, cfg *model.Config, candidateVersionID uint64, index uint64) (Response, error) {
	proposalID, err := m.nextProposalID()
	if err != nil {
		return Response{}, err
	}
	candidate := &model.ConfigVersion{
		ID:          candidateVersionID,
		ConfigID:    cfg.ID,
		Content:     cmd.Content,
		ContentHash: model.ComputeHash(cmd.Content),
		Format:      cmd.Format,
		CreatorID:   cmd.CreatorID,
		Description: cmd.Description,
		CreatedAt:   cmd.Timestamp,
	}
	proposal := &model.ReleaseProposal{
		ID:          proposalID,
		ConfigID:    cfg.ID,
		NewVersion:  candidate,
		NewReleases: cmd.Releases,
		Status:      model.ProposalPending,
		ProposerID:  cmd.CreatorID,
		CreatedAt:   cmd.Timestamp,
	}
	propBytes, err := model.Encode(proposal)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode proposal")
	}
	ops := []store.Op{
		store.Put(store.FamilyProposal, store.EncodeProposalKey(proposalID), propBytes),
		store.PutMetaUint64Op(store.MetaNextProposalID, proposalID),
	}
	return m.finish(cmd, index, ops, Response{Status: StatusOK, Message: "proposal pending approval", ConfigID: cfg.ID, ProposalID: proposalID})
}

func (m *Machine) applyDecideProposal(cmd *Command, index uint64, decision model.ProposalStatus) (Response, error) {
	p, err := m.loadProposal(cmd.ProposalID)
	if err != nil {
		return Response{}, err
	}
	if p == nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "proposal %d not found", cmd.ProposalID))
	}
	if p.Status != model.ProposalPending {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodePreconditionFailed, "proposal %d is not pending (status %s)", p.ID, p.Status))
	}
	p.Status = decision
	p.ApproverID = cmd.ApproverID
	p.DecidedAt = cmd.Timestamp

	propBytes, err := model.Encode(p)
	if err != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "encode proposal")
	}
	ops := []store.Op{store.Put(store.FamilyProposal, store.EncodeProposalKey(p.ID), propBytes)}
	return m.finish(cmd, index, ops, Response{Status: StatusOK, Message: "proposal " + decision.String(), ConfigID: p.ConfigID, ProposalID: p.ID})
}

func (m *Machine) applyExecuteProposal(cmd *Command, index uint64) (Response, error) {
	p, err := m.loadProposal(cmd.ProposalID)
	if err != nil {
		return Response{}, err
	}
	if p == nil {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "proposal %d not found", cmd.ProposalID))
	}
	if p.Status != model.ProposalApproved {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodePreconditionFailed, "proposal %d is not approved (status %s)", p.ID, p.Status))
	}
	idx := m.current()
	cfg, found := idx.configs[p.ConfigID]
	if !found {
		return m.finish(cmd, index, nil, rejected(confluxerr.CodeNotFound, "config %d not found", p.ConfigID))
	}

	versionID := cfg.LatestVersionID + 1
	placeholder := p.NewVersion.ID
	releases := make([]model.Release, len(p.NewReleases))
	for i, r := range p.NewReleases {
		if r.VersionID == placeholder {
			r.VersionID = versionID
		}
		releases[i] = r
	}

	p.Status = model.ProposalExecuted
	p.DecidedAt = cmd.Timestamp
	propBytes, encErr := model.Encode(p)
	if encErr != nil {
		return Response{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, encErr, "encode proposal")
	}
	executedOp := store.Put(store.FamilyProposal, store.EncodeProposalKey(p.ID), propBytes)

	resp, execErr := m.executePublish(cmd, cfg, versionID, p.NewVersion.Content, p.NewVersion.Format, releases, []store.Op{executedOp}, index)
	if execErr != nil {
		return Response{}, execErr
	}
	resp.ProposalID = p.ID
	return resp, nil
}

func cloneConfig(cfg *model.Config) *model.Config {
	c := *cfg
	c.Releases = append([]model.Release(nil), cfg.Releases...)
	return &c
}
