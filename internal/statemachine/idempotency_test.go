package statemachine

import (
	"testing"
	"time"

	"github.com/conflux-sh/conflux/internal/model"
)

// TestIdempotentReplay re-applies a keyed CreateVersion at a later log index
// and expects the cached response back instead of a second version.
func TestIdempotentReplay(t *testing.T) {
	m, _ := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type: CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(), Name: "db.toml",
		Content: []byte{0x61}, Format: model.FormatRaw,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})

	cmd := &Command{
		Type: CmdCreateVersion, Timestamp: time.Unix(1, 0),
		IdempotencyKey: "retry-1",
		ConfigID:       1, Content: []byte{0x62}, Format: model.FormatRaw,
	}
	first := apply(t, m, 2, cmd)
	if first.Status != StatusOK || first.VersionID != 2 {
		t.Fatalf("first apply failed: %+v", first)
	}

	replayed := apply(t, m, 3, cmd)
	if replayed.Status != StatusOK || replayed.VersionID != 2 {
		t.Fatalf("expected cached response, got %+v", replayed)
	}

	// The replay must not have created a third version.
	out, err := m.Lookup(Query{Type: QueryListVersions, ConfigID: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if got := len(out.(ListVersionsResult).Versions); got != 2 {
		t.Fatalf("expected 2 versions after replay, got %d", got)
	}

	// The cache still holds the original response for the key.
	cached, hit, err := m.lookupIdempotent("retry-1")
	if err != nil || !hit {
		t.Fatalf("expected idempotency cache hit, err=%v", err)
	}
	if cached.VersionID != 2 {
		t.Fatalf("cached response targets version %d", cached.VersionID)
	}
}

// TestIdempotentRejectionReplay caches rejections too: retrying a rejected
// command replays the rejection instead of re-validating.
func TestIdempotentRejectionReplay(t *testing.T) {
	m, _ := newTestMachine(t)

	cmd := &Command{
		Type: CmdCreateVersion, Timestamp: time.Unix(0, 0),
		IdempotencyKey: "retry-2",
		ConfigID:       42, Content: []byte{0x61}, Format: model.FormatRaw,
	}
	first := apply(t, m, 1, cmd)
	if first.Status != StatusRejected {
		t.Fatalf("expected rejection for missing config, got %+v", first)
	}

	replayed := apply(t, m, 2, cmd)
	if replayed.Status != StatusRejected || replayed.Code != first.Code {
		t.Fatalf("expected the cached rejection, got %+v", replayed)
	}
}
