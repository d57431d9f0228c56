package raftnode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conflux-sh/conflux/internal/confluxerr"
)

func TestEnsureNodeIDFile(t *testing.T) {
	dir := t.TempDir()

	if err := EnsureNodeIDFile(dir, 3); err != nil {
		t.Fatalf("first stamp: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "node_id"))
	if err != nil {
		t.Fatalf("read stamp: %v", err)
	}
	if string(data) != "3" {
		t.Fatalf("expected decimal node id, got %q", data)
	}

	// Restarting the same node succeeds.
	if err := EnsureNodeIDFile(dir, 3); err != nil {
		t.Fatalf("restamp: %v", err)
	}

	// A different node must be refused.
	err = EnsureNodeIDFile(dir, 4)
	if err == nil {
		t.Fatalf("expected mismatched node id to be refused")
	}
	if code, _ := confluxerr.CodeOf(err); code != confluxerr.CodePreconditionFailed {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", code)
	}
}

func TestEnsureNodeIDFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "node_id"), []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	err := EnsureNodeIDFile(dir, 1)
	if err == nil {
		t.Fatalf("expected garbage stamp to fail")
	}
	if code, _ := confluxerr.CodeOf(err); code != confluxerr.CodeCorruption {
		t.Fatalf("expected CORRUPTION, got %v", code)
	}
}
