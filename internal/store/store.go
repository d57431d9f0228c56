// Package store implements Conflux's persistent store: an embedded
// ordered key/value backend with column families (emulated via a family
// byte prefix), atomic multi-key batched writes, and consistent
// point-in-time iteration suitable for streaming snapshots without
// blocking writers. It is built on github.com/cockroachdb/pebble.
package store

import (
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/confluxlog"
)

var log = confluxlog.Get("store")

// Store wraps a single pebble database and exposes the column-family
// emulation every Conflux component is built on.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if necessary) the pebble database rooted at dataDir.
func Open(dataDir string) (*Store, error) {
	db, err := pebble.Open(dataDir, &pebble.Options{})
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "open pebble store at %s", dataDir)
	}
	log.Infof("opened pebble store at %s", dataDir)
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "close pebble store")
	}
	return nil
}

// Op is a single put/delete operation scoped to a family, used to build an
// atomic write_batch.
type Op struct {
	Family Family
	Key    []byte
	Value  []byte // ignored when Delete is true
	Delete bool
}

// Put returns a put Op.
func Put(f Family, key, value []byte) Op { return Op{Family: f, Key: key, Value: value} }

// Del returns a delete Op.
func Del(f Family, key []byte) Op { return Op{Family: f, Key: key, Delete: true} }

// WriteBatch is the only mutating API: ops either fully commit durably or
// fail, with no partial application observable. The batch is synced before
// returning, so log appends and vote records survive a crash once this
// returns success.
func (s *Store) WriteBatch(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, op := range ops {
		k := prefixedKey(op.Family, op.Key)
		if op.Delete {
			if err := batch.Delete(k, nil); err != nil {
				return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "stage delete")
			}
			continue
		}
		if err := batch.Set(k, op.Value, nil); err != nil {
			return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "stage set")
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "commit write batch")
	}
	return nil
}

// Get performs a point lookup, returning confluxerr.CodeNotFound when the
// key is absent.
func (s *Store) Get(f Family, key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(prefixedKey(f, key))
	if err == pebble.ErrNotFound {
		return nil, confluxerr.New(confluxerr.CodeNotFound, "key not found in family %d", f)
	}
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "get")
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Has reports whether key exists in family f.
func (s *Store) Has(f Family, key []byte) (bool, error) {
	_, err := s.Get(f, key)
	if err == nil {
		return true, nil
	}
	if code, ok := confluxerr.CodeOf(err); ok && code == confluxerr.CodeNotFound {
		return false, nil
	}
	return false, err
}

// KV is a decoded key/value pair returned by iteration, with the family
// prefix already stripped from Key.
type KV struct {
	Key   []byte
	Value []byte
}

// snapshotter is satisfied by both *pebble.DB and *pebble.Snapshot, letting
// IterateRange and IteratePrefix share one implementation for live and
// point-in-time reads.
type snapshotter interface {
	NewIter(o *pebble.IterOptions) *pebble.Iterator
}

// prefixUpperBound returns the smallest key strictly greater than every key
// with the given prefix, usable as an exclusive iteration upper bound; nil
// when the prefix is all 0xff bytes.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Snapshot is a consistent point-in-time view of the store, used by
// statemachine snapshot building so that a long-running scan never observes
// a write that commits after the snapshot was taken, and never blocks the
// writer that issues that later write.
type Snapshot struct {
	snap *pebble.Snapshot
}

// NewSnapshot acquires a consistent point-in-time iterator source.
func (s *Store) NewSnapshot() *Snapshot {
	return &Snapshot{snap: s.db.NewSnapshot()}
}

// Close releases the snapshot.
func (sn *Snapshot) Close() error {
	return sn.snap.Close()
}

// IteratePrefix calls fn for every key in family f in ascending order,
// stopping (without error) as soon as fn returns false.
func IteratePrefix(src snapshotter, f Family, fn func(KV) bool) error {
	prefix := familyPrefix(f)
	iter := src.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()[1:] // strip family byte
		if !fn(KV{Key: append([]byte(nil), key...), Value: append([]byte(nil), iter.Value()...)}) {
			break
		}
	}
	return iter.Error()
}

// IterateRange calls fn for every key in family f whose unprefixed key lies
// in the half-open range [lower, upper), in ascending order.
func IterateRange(src snapshotter, f Family, lower, upper []byte, fn func(KV) bool) error {
	lo := prefixedKey(f, lower)
	var hi []byte
	if upper == nil {
		hi = prefixUpperBound(familyPrefix(f))
	} else {
		hi = prefixedKey(f, upper)
	}
	iter := src.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()[1:]
		if !fn(KV{Key: append([]byte(nil), key...), Value: append([]byte(nil), iter.Value()...)}) {
			break
		}
	}
	return iter.Error()
}

// NewIter satisfies snapshotter for *Store by delegating to the live db, so
// IteratePrefix/IterateRange work against both live and Snapshot sources.
func (s *Store) NewIter(o *pebble.IterOptions) *pebble.Iterator {
	return s.db.NewIter(o)
}

// NewIter satisfies snapshotter for *Snapshot.
func (sn *Snapshot) NewIter(o *pebble.IterOptions) *pebble.Iterator {
	return sn.snap.NewIter(o)
}

var _ io.Closer = (*Store)(nil)
