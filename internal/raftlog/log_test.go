package raftlog

import (
	"testing"

	"github.com/conflux-sh/conflux/internal/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s)
}

func TestVoteRoundTrip(t *testing.T) {
	l := newTestLog(t)

	v, err := l.ReadVote()
	if err != nil {
		t.Fatalf("read vote: %v", err)
	}
	if v != (Vote{}) {
		t.Fatalf("expected zero vote, got %+v", v)
	}

	want := Vote{Term: 3, VotedFor: 2, Committed: true}
	if err := l.SaveVote(want); err != nil {
		t.Fatalf("save vote: %v", err)
	}
	got, err := l.ReadVote()
	if err != nil {
		t.Fatalf("read vote: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestAppendReadPurgeConflict(t *testing.T) {
	l := newTestLog(t)

	entries := []Entry{
		{ID: LogID{Term: 1, Index: 1}, Type: EntryCommand, Payload: []byte("a")},
		{ID: LogID{Term: 1, Index: 2}, Type: EntryCommand, Payload: []byte("b")},
		{ID: LogID{Term: 1, Index: 3}, Type: EntryBlank},
	}
	if err := l.AppendToLog(entries); err != nil {
		t.Fatalf("append: %v", err)
	}

	state, err := l.GetLogState()
	if err != nil {
		t.Fatalf("get log state: %v", err)
	}
	if state.LastIndex != 3 || state.LastPurgedIndex != 0 {
		t.Fatalf("got %+v", state)
	}

	read, err := l.ReadLogEntries(1, 4)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(read) != 3 || string(read[0].Payload) != "a" || string(read[1].Payload) != "b" {
		t.Fatalf("got %+v", read)
	}

	// Diverging tail: delete from index 2 onward.
	if err := l.DeleteConflictLogsSince(2); err != nil {
		t.Fatalf("delete conflict: %v", err)
	}
	read, err = l.ReadLogEntries(1, 4)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(read) != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", len(read))
	}

	// Re-append then purge up to index 1.
	if err := l.AppendToLog([]Entry{
		{ID: LogID{Term: 2, Index: 2}, Type: EntryCommand, Payload: []byte("c")},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.PurgeLogsUpto(1); err != nil {
		t.Fatalf("purge: %v", err)
	}
	state, err = l.GetLogState()
	if err != nil {
		t.Fatalf("get log state: %v", err)
	}
	if state.LastPurgedIndex != 1 {
		t.Fatalf("got %+v", state)
	}
	read, err = l.ReadLogEntries(0, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(read) != 1 || read[0].ID.Index != 2 {
		t.Fatalf("got %+v", read)
	}
}

func TestAppendRejectsNonContiguous(t *testing.T) {
	l := newTestLog(t)
	err := l.AppendToLog([]Entry{
		{ID: LogID{Term: 1, Index: 1}},
		{ID: LogID{Term: 1, Index: 3}},
	})
	if err == nil {
		t.Fatalf("expected error for non-contiguous append")
	}
}

func TestPurgeEmptyIsNoOp(t *testing.T) {
	l := newTestLog(t)
	if err := l.PurgeLogsUpto(100); err != nil {
		t.Fatalf("purge on empty log: %v", err)
	}
}
