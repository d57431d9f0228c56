// Package raftlog implements the log-persistence contract of the consensus
// engine, built atop the store's meta and log families: vote records, log
// state, range reads, contiguous appends, conflict truncation and prefix
// purges. Dragonboat manages its own internal log storage; this component
// is a durable, independently tested log store. The state machine keeps its
// last-applied/membership bookkeeping in the meta family directly and does
// not use this package.
package raftlog

import (
	"encoding/binary"
	"fmt"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/store"
)

// EntryType distinguishes the three payload shapes a Raft log entry can carry.
type EntryType uint8

const (
	EntryCommand EntryType = iota
	EntryMembership
	EntryBlank
)

// LogID identifies a log entry by (term, index).
type LogID struct {
	Term  uint64
	Index uint64
}

// Less orders LogIDs by Index; within a single Raft group indices are
// assigned in strictly increasing order so Index alone totally orders them.
func (l LogID) Less(other LogID) bool { return l.Index < other.Index }

// EncodeLogID renders a LogID as a 16-byte big-endian (term, index) pair.
func EncodeLogID(id LogID) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], id.Term)
	binary.BigEndian.PutUint64(b[8:16], id.Index)
	return b
}

// DecodeLogID is the inverse of EncodeLogID.
func DecodeLogID(data []byte) (LogID, error) {
	if len(data) != 16 {
		return LogID{}, fmt.Errorf("raftlog: log id malformed: %d bytes", len(data))
	}
	return LogID{
		Term:  binary.BigEndian.Uint64(data[0:8]),
		Index: binary.BigEndian.Uint64(data[8:16]),
	}, nil
}

// Entry is a single Raft log entry.
type Entry struct {
	ID      LogID
	Type    EntryType
	Payload []byte // command bytes or membership-change bytes; nil for EntryBlank
}

func encodeEntry(e Entry) []byte {
	out := make([]byte, 8+1+len(e.Payload))
	binary.BigEndian.PutUint64(out[0:8], e.ID.Term)
	out[8] = byte(e.Type)
	copy(out[9:], e.Payload)
	return out
}

func decodeEntry(index uint64, data []byte) (Entry, error) {
	if len(data) < 9 {
		return Entry{}, fmt.Errorf("raftlog: entry too short: %d bytes", len(data))
	}
	term := binary.BigEndian.Uint64(data[0:8])
	typ := EntryType(data[8])
	var payload []byte
	if len(data) > 9 {
		payload = append([]byte(nil), data[9:]...)
	}
	return Entry{ID: LogID{Term: term, Index: index}, Type: typ, Payload: payload}, nil
}

// Vote is the persistent current-term vote record.
type Vote struct {
	Term      uint64
	VotedFor  uint64
	Committed bool
}

func encodeVote(v Vote) []byte {
	out := make([]byte, 17)
	binary.BigEndian.PutUint64(out[0:8], v.Term)
	binary.BigEndian.PutUint64(out[8:16], v.VotedFor)
	if v.Committed {
		out[16] = 1
	}
	return out
}

func decodeVote(data []byte) (Vote, error) {
	if len(data) != 17 {
		return Vote{}, fmt.Errorf("raftlog: vote record malformed: %d bytes", len(data))
	}
	return Vote{
		Term:      binary.BigEndian.Uint64(data[0:8]),
		VotedFor:  binary.BigEndian.Uint64(data[8:16]),
		Committed: data[16] != 0,
	}, nil
}

// LogState is the derived (last_purged_log_id, last_log_id) pair.
type LogState struct {
	LastPurgedIndex uint64
	LastIndex       uint64
}

// Log wraps a store.Store to implement the log-persistence contract.
type Log struct {
	s *store.Store
}

// New wraps s as a Log.
func New(s *store.Store) *Log {
	return &Log{s: s}
}

// ReadVote returns the persisted vote, or the zero Vote if none was ever saved.
func (l *Log) ReadVote() (Vote, error) {
	data, ok, err := l.s.GetMetaBytes(store.MetaVote)
	if err != nil {
		return Vote{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read vote")
	}
	if !ok {
		return Vote{}, nil
	}
	v, err := decodeVote(data)
	if err != nil {
		return Vote{}, confluxerr.Wrap(confluxerr.CodeCorruption, err, "decode vote")
	}
	return v, nil
}

// SaveVote persists v. The batch is fsynced before returning (store.WriteBatch
// always syncs), satisfying the precondition that consensus safety depends on.
func (l *Log) SaveVote(v Vote) error {
	err := l.s.WriteBatch([]store.Op{store.PutMetaBytesOp(store.MetaVote, encodeVote(v))})
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "save vote")
	}
	return nil
}

// GetLogState derives {last_purged_log_id, last_log_id} from meta plus the
// maximum key in the log family.
func (l *Log) GetLogState() (LogState, error) {
	lastPurged, _, err := l.s.GetMetaUint64(store.MetaLastPurged)
	if err != nil {
		return LogState{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read last_purged")
	}

	var lastIndex uint64
	err = store.IteratePrefix(l.s, store.FamilyLog, func(kv store.KV) bool {
		idx := store.DecodeLogIndex(kv.Key)
		if idx > lastIndex {
			lastIndex = idx
		}
		return true // family is dense and small-ish per segment; full scan keeps this simple and correct
	})
	if err != nil {
		return LogState{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "scan log family")
	}
	if lastIndex < lastPurged {
		lastIndex = lastPurged
	}
	return LogState{LastPurgedIndex: lastPurged, LastIndex: lastIndex}, nil
}

// ReadLogEntries returns entries in [low, high) in ascending index order.
func (l *Log) ReadLogEntries(low, high uint64) ([]Entry, error) {
	if high < low {
		return nil, confluxerr.New(confluxerr.CodeInvalidArgument, "high %d < low %d", high, low)
	}
	var entries []Entry
	var decodeErr error
	err := store.IterateRange(l.s, store.FamilyLog, store.EncodeLogIndex(low), store.EncodeLogIndex(high), func(kv store.KV) bool {
		idx := store.DecodeLogIndex(kv.Key)
		e, err := decodeEntry(idx, kv.Value)
		if err != nil {
			decodeErr = err
			return false
		}
		entries = append(entries, e)
		return true
	})
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read log entries [%d,%d)", low, high)
	}
	if decodeErr != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeCorruption, decodeErr, "decode log entry")
	}
	return entries, nil
}

// AppendToLog batches entries into the log family. Entries must be
// contiguous and strictly increasing in index; violating this is a caller
// bug, reported as CodeInvalidArgument rather than silently
// accepted, since an out-of-order append would corrupt log determinism.
func (l *Log) AppendToLog(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID.Index != entries[i-1].ID.Index+1 {
			return confluxerr.New(confluxerr.CodeInvalidArgument,
				"append_to_log: entries not contiguous at position %d (index %d after %d)",
				i, entries[i].ID.Index, entries[i-1].ID.Index)
		}
	}
	ops := make([]store.Op, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, store.Put(store.FamilyLog, store.EncodeLogIndex(e.ID.Index), encodeEntry(e)))
	}
	if err := l.s.WriteBatch(ops); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "append_to_log")
	}
	return nil
}

// DeleteConflictLogsSince deletes all entries with index >= index; used
// when a follower's tail diverges from the leader.
func (l *Log) DeleteConflictLogsSince(index uint64) error {
	var toDelete [][]byte
	err := store.IterateRange(l.s, store.FamilyLog, store.EncodeLogIndex(index), nil, func(kv store.KV) bool {
		toDelete = append(toDelete, append([]byte(nil), kv.Key...))
		return true
	})
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "scan conflicting logs")
	}
	if len(toDelete) == 0 {
		return nil
	}
	ops := make([]store.Op, 0, len(toDelete))
	for _, k := range toDelete {
		ops = append(ops, store.Del(store.FamilyLog, k))
	}
	if err := l.s.WriteBatch(ops); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "delete_conflict_logs_since %d", index)
	}
	return nil
}

// PurgeLogsUpto deletes all entries with index <= index, updating
// last_purged atomically within the same batch.
func (l *Log) PurgeLogsUpto(index uint64) error {
	var toDelete [][]byte
	err := store.IterateRange(l.s, store.FamilyLog, store.EncodeLogIndex(0), store.EncodeLogIndex(index+1), func(kv store.KV) bool {
		toDelete = append(toDelete, append([]byte(nil), kv.Key...))
		return true
	})
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "scan logs to purge")
	}
	ops := make([]store.Op, 0, len(toDelete)+1)
	for _, k := range toDelete {
		ops = append(ops, store.Del(store.FamilyLog, k))
	}
	ops = append(ops, store.PutMetaUint64Op(store.MetaLastPurged, index))
	if err := l.s.WriteBatch(ops); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "purge_logs_upto %d", index)
	}
	return nil
}
