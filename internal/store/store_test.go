package store

import (
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteBatchAtomicAndGet(t *testing.T) {
	s := openTestStore(t)

	err := s.WriteBatch([]Op{
		Put(FamilyConfig, EncodeConfigKey(1), []byte("config-1")),
		Put(FamilyVersion, EncodeVersionKey(1, 1), []byte("version-1-1")),
	})
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}

	v, err := s.Get(FamilyConfig, EncodeConfigKey(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "config-1" {
		t.Fatalf("got %q", v)
	}

	ok, err := s.Has(FamilyConfig, EncodeConfigKey(2))
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Fatalf("expected key 2 to be absent")
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(FamilyConfig, EncodeConfigKey(42))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestIteratePrefixIsolatesFamilies(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteBatch([]Op{
		Put(FamilyConfig, EncodeConfigKey(1), []byte("a")),
		Put(FamilyConfig, EncodeConfigKey(2), []byte("b")),
		Put(FamilyVersion, EncodeVersionKey(1, 1), []byte("v")),
	}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	var configKeys int
	err := IteratePrefix(s, FamilyConfig, func(kv KV) bool {
		configKeys++
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if configKeys != 2 {
		t.Fatalf("expected 2 config keys, got %d", configKeys)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteBatch([]Op{Put(FamilyConfig, EncodeConfigKey(1), []byte("a"))}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	snap := s.NewSnapshot()
	defer snap.Close()

	// A write after the snapshot was taken must not be visible through it.
	if err := s.WriteBatch([]Op{Put(FamilyConfig, EncodeConfigKey(2), []byte("b"))}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	var seen int
	err := IteratePrefix(snap, FamilyConfig, func(kv KV) bool {
		seen++
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if seen != 1 {
		t.Fatalf("expected snapshot to see 1 key, got %d", seen)
	}
}

func TestMetaScalarRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.GetMetaUint64(MetaLastApplied); err != nil || ok {
		t.Fatalf("expected absent meta tag, ok=%v err=%v", ok, err)
	}

	if err := s.WriteBatch([]Op{PutMetaUint64Op(MetaLastApplied, 7)}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	v, ok, err := s.GetMetaUint64(MetaLastApplied)
	if err != nil || !ok {
		t.Fatalf("expected present meta tag, ok=%v err=%v", ok, err)
	}
	if v != 7 {
		t.Fatalf("got %d", v)
	}
}
