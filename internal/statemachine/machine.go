package statemachine

import (
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/confluxlog"
	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/store"
	"github.com/conflux-sh/conflux/internal/watchhub"
)

var log = confluxlog.Get("statemachine")

// missingCrossReferenceTotal counts queries that hit a dangling
// cross-reference (a name-index entry or release rule pointing at a
// missing record), which should never happen on an intact store.
var missingCrossReferenceTotal = metrics.NewCounter(`conflux_statemachine_missing_cross_reference_total`)

// Machine is the replicated state machine: a dragonboat
// sm.IConcurrentStateMachine dispatching Command/Query variants over the
// Conflux domain model.
type Machine struct {
	shardID   uint64
	replicaID uint64

	s   *store.Store
	hub *watchhub.Hub

	idx atomic.Pointer[indexState]
}

// NewFactory returns a dragonboat state machine factory closing over s
// and hub; dragonboat instantiates the machine itself when the replica
// starts.
func NewFactory(s *store.Store, hub *watchhub.Hub) func(shardID, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID, replicaID uint64) sm.IConcurrentStateMachine {
		m := &Machine{shardID: shardID, replicaID: replicaID, s: s, hub: hub}
		idx, err := m.rebuildIndexes()
		if err != nil {
			// A node that cannot even read its own store at startup cannot
			// safely participate in consensus.
			log.Panicf("rebuild indexes for shard %d replica %d: %v", shardID, replicaID, err)
		}
		m.idx.Store(idx)
		return m
	}
}

func (m *Machine) current() *indexState { return m.idx.Load() }

// rebuildIndexes scans sm_config fully and reconstructs configs/nameIndex,
// used both at startup and after snapshot install.
func (m *Machine) rebuildIndexes() (*indexState, error) {
	next := newIndexState()
	var scanErr error
	err := store.IteratePrefix(m.s, store.FamilyConfig, func(kv store.KV) bool {
		var cfg model.Config
		if decErr := model.Decode(kv.Value, &cfg); decErr != nil {
			scanErr = decErr
			return false
		}
		next.configs[cfg.ID] = &cfg
		next.nameIndex[cfg.NameKey()] = cfg.ID
		return true
	})
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "rebuild indexes: scan sm_config")
	}
	if scanErr != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeCorruption, scanErr, "rebuild indexes: decode config")
	}
	return next, nil
}

// Lookup answers a Query without going through consensus.
func (m *Machine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(Query)
	if !ok {
		return nil, confluxerr.New(confluxerr.CodeInvalidArgument, "invalid query type %T", itf)
	}
	idx := m.current()

	switch q.Type {
	case QueryResolve:
		return m.lookupResolve(idx, q)
	case QueryGetConfig:
		cfg, found := idx.configs[q.ConfigID]
		return GetConfigResult{Config: cfg, Found: found}, nil
	case QueryListVersions:
		return m.lookupListVersions(idx, q)
	case QueryGetVersion:
		return m.lookupGetVersion(q)
	default:
		return nil, confluxerr.New(confluxerr.CodeInvalidArgument, "unknown query type %d", q.Type)
	}
}

func (m *Machine) lookupResolve(idx *indexState, q Query) (interface{}, error) {
	configID, ok := idx.nameIndex[q.Namespace.Key()+"/"+q.Name]
	if !ok {
		return ResolveResult{Found: false}, nil
	}
	cfg, ok := idx.configs[configID]
	if !ok {
		log.Warningf("name index pointed at missing config %d", configID)
		missingCrossReferenceTotal.Inc()
		return ResolveResult{Found: false}, nil
	}
	versionID, ok := resolveVersionID(cfg, q.ClientLabels)
	if !ok {
		return ResolveResult{Found: false}, nil
	}
	v, err := m.loadVersion(cfg.ID, versionID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		log.Warningf("release rule for config %d points at missing version %d", cfg.ID, versionID)
		missingCrossReferenceTotal.Inc()
		return ResolveResult{Found: false}, nil
	}
	return ResolveResult{Version: v, Found: true}, nil
}

func (m *Machine) lookupListVersions(idx *indexState, q Query) (interface{}, error) {
	if _, ok := idx.configs[q.ConfigID]; !ok {
		return ListVersionsResult{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	return m.listVersions(q.ConfigID, q.Cursor, limit)
}

func (m *Machine) lookupGetVersion(q Query) (interface{}, error) {
	v, err := m.loadVersion(q.ConfigID, q.VersionID)
	if err != nil {
		return nil, err
	}
	return GetVersionResult{Version: v, Found: v != nil}, nil
}

// PrepareSnapshot is unused: snapshot building reads directly off a
// point-in-time store iterator, so there is nothing to prepare.
func (m *Machine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

func (m *Machine) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, stop <-chan struct{}) error {
	return m.buildSnapshot(w, stop)
}

func (m *Machine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, stop <-chan struct{}) error {
	if err := m.installSnapshot(r, stop); err != nil {
		return err
	}
	idx, err := m.rebuildIndexes()
	if err != nil {
		return err
	}
	m.idx.Store(idx)
	return nil
}

// Close performs no cleanup: the store outlives the state machine, owned
// by whoever called NewFactory.
func (m *Machine) Close() error {
	return nil
}

var _ sm.IConcurrentStateMachine = (*Machine)(nil)
