package statemachine

import "github.com/conflux-sh/conflux/internal/model"

// indexState is the in-memory read cache the apply path maintains: a
// snapshot of every live Config plus the unique name index. Only the apply
// task mutates it; readers (Lookup calls, which dragonboat may run
// concurrently with Update) see a consistent view via atomic pointer swap
// rather than a shared mutex.
type indexState struct {
	configs   map[uint64]*model.Config // by Config.ID
	nameIndex map[string]uint64        // "tenant/app/env/name" -> Config.ID
}

func newIndexState() *indexState {
	return &indexState{
		configs:   make(map[uint64]*model.Config),
		nameIndex: make(map[string]uint64),
	}
}

// clone returns a shallow copy-on-write snapshot: the two maps are copied
// (so mutating the clone never affects readers of the original), but
// individual *model.Config values are not deep-copied since ConfigVersion
// content never lives on Config and Config itself is only ever replaced
// wholesale, never mutated in place, by the apply path below.
func (s *indexState) clone() *indexState {
	next := &indexState{
		configs:   make(map[uint64]*model.Config, len(s.configs)),
		nameIndex: make(map[string]uint64, len(s.nameIndex)),
	}
	for k, v := range s.configs {
		next.configs[k] = v
	}
	for k, v := range s.nameIndex {
		next.nameIndex[k] = v
	}
	return next
}
