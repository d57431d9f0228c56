package statemachine

import (
	"bytes"
	"testing"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/store"
	"github.com/conflux-sh/conflux/internal/watchhub"
)

func newTestMachine(t *testing.T) (*Machine, *watchhub.Hub) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	hub := watchhub.New()
	factory := NewFactory(s, hub)
	m := factory(1, 1).(*Machine)
	return m, hub
}

// apply encodes cmd, applies it as a single-entry batch at index, and
// returns its decoded Response.
func apply(t *testing.T, m *Machine, index uint64, cmd *Command) Response {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	entries := []sm.Entry{{Index: index, Cmd: data}}
	out, err := m.Update(entries)
	if err != nil {
		t.Fatalf("update at index %d: %v", index, err)
	}
	var resp Response
	if decErr := model.Decode(out[0].Result.Data, &resp); decErr != nil {
		t.Fatalf("decode response: %v", decErr)
	}
	return resp
}

func testNamespace() model.Namespace {
	return model.Namespace{Tenant: "t1", App: "a1", Env: "e1"}
}

func resolve(t *testing.T, m *Machine, name string, labels map[string]string) ResolveResult {
	t.Helper()
	out, err := m.Lookup(Query{
		Type:         QueryResolve,
		Namespace:    testNamespace(),
		Name:         name,
		ClientLabels: labels,
	})
	if err != nil {
		t.Fatalf("lookup resolve: %v", err)
	}
	return out.(ResolveResult)
}

// TestCreateAndFetch creates a config with one version and a default rule,
// then resolves it with empty labels.
func TestCreateAndFetch(t *testing.T) {
	m, _ := newTestMachine(t)

	resp := apply(t, m, 1, &Command{
		Type:      CmdCreateConfig,
		Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(),
		Name:      "db.toml",
		Content:   []byte{0x61, 0x62},
		Format:    model.FormatRaw,
		Releases:  []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	if resp.Status != StatusOK {
		t.Fatalf("create config rejected: %+v", resp)
	}

	res := resolve(t, m, "db.toml", map[string]string{})
	if !res.Found {
		t.Fatalf("expected db.toml to resolve")
	}
	if res.Version.ID != 1 {
		t.Fatalf("expected version 1, got %d", res.Version.ID)
	}
	if string(res.Version.Content) != "ab" {
		t.Fatalf("got content %q", res.Version.Content)
	}
	if res.Version.ContentHash != model.ComputeHash([]byte("ab")) {
		t.Fatalf("content hash mismatch")
	}
}

// TestCanaryRouting routes canary-labeled clients to a newer version while
// everyone else stays on the default rule.
func TestCanaryRouting(t *testing.T) {
	m, hub := newTestMachine(t)
	_ = hub

	apply(t, m, 1, &Command{
		Type:      CmdCreateConfig,
		Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(),
		Name:      "db.toml",
		Content:   []byte{0x61, 0x62},
		Format:    model.FormatRaw,
		Releases:  []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})

	resp := apply(t, m, 2, &Command{
		Type:      CmdCreateVersion,
		Timestamp: time.Unix(1, 0),
		ConfigID:  1,
		Content:   []byte{0x63},
		Format:    model.FormatRaw,
	})
	if resp.Status != StatusOK || resp.VersionID != 2 {
		t.Fatalf("create version failed: %+v", resp)
	}

	resp = apply(t, m, 3, &Command{
		Type:      CmdUpdateReleaseRules,
		Timestamp: time.Unix(2, 0),
		ConfigID:  1,
		Releases: []model.Release{
			{Labels: map[string]string{"canary": "true"}, VersionID: 2, Priority: 10},
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		},
	})
	if resp.Status != StatusOK {
		t.Fatalf("update release rules rejected: %+v", resp)
	}

	canary := resolve(t, m, "db.toml", map[string]string{"canary": "true", "region": "us"})
	if !canary.Found || canary.Version.ID != 2 {
		t.Fatalf("expected canary to resolve to version 2, got %+v", canary)
	}

	stable := resolve(t, m, "db.toml", map[string]string{"region": "us"})
	if !stable.Found || stable.Version.ID != 1 {
		t.Fatalf("expected non-canary to resolve to version 1, got %+v", stable)
	}
}

// TestRollback replaces a canary rule set with a single default rule and
// expects every label set to resolve the rolled-back version.
func TestRollback(t *testing.T) {
	m, _ := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type:      CmdCreateConfig,
		Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(),
		Name:      "db.toml",
		Content:   []byte{0x61},
		Format:    model.FormatRaw,
		Releases:  []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &Command{
		Type: CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte{0x62}, Format: model.FormatRaw,
	})
	apply(t, m, 3, &Command{
		Type: CmdUpdateReleaseRules, Timestamp: time.Unix(2, 0), ConfigID: 1,
		Releases: []model.Release{
			{Labels: map[string]string{"canary": "true"}, VersionID: 2, Priority: 10},
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		},
	})

	resp := apply(t, m, 4, &Command{
		Type: CmdUpdateReleaseRules, Timestamp: time.Unix(3, 0), ConfigID: 1,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	if resp.Status != StatusOK {
		t.Fatalf("rollback rejected: %+v", resp)
	}

	for _, labels := range []map[string]string{
		{},
		{"canary": "true"},
		{"region": "eu"},
	} {
		res := resolve(t, m, "db.toml", labels)
		if !res.Found || res.Version.ID != 1 {
			t.Fatalf("labels %+v: expected version 1 after rollback, got %+v", labels, res)
		}
	}
}

// TestWatchWakesOnReleaseUpdate subscribes before a release-rule update and
// expects a RELEASE_UPDATED event naming the new target version.
func TestWatchWakesOnReleaseUpdate(t *testing.T) {
	m, hub := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type: CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(), Name: "db.toml",
		Content: []byte{0x61}, Format: model.FormatRaw,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &Command{
		Type: CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte{0x63}, Format: model.FormatRaw,
	})

	key := model.WatchKey(testNamespace(), "db.toml")
	recv := hub.Subscribe(key)
	defer recv.Close()

	resp := apply(t, m, 3, &Command{
		Type: CmdUpdateReleaseRules, Timestamp: time.Unix(2, 0), ConfigID: 1,
		Releases: []model.Release{
			{Labels: map[string]string{"canary": "true"}, VersionID: 2, Priority: 10},
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		},
	})
	if resp.Status != StatusOK {
		t.Fatalf("update release rules rejected: %+v", resp)
	}

	stop := make(chan struct{})
	event, _, ok := recv.Next(stop)
	if !ok {
		t.Fatalf("expected a change event")
	}
	if event.Kind != model.ChangeEventReleaseUpdated {
		t.Fatalf("expected RELEASE_UPDATED, got %v", event.Kind)
	}
	if event.Namespace != testNamespace() || event.ConfigName != "db.toml" {
		t.Fatalf("got %+v", event)
	}
	if event.NewVersionID != 2 {
		t.Fatalf("expected new_version_id=2, got %d", event.NewVersionID)
	}
}

// TestDeterministicTieBreak pits two equal-priority rules against a client
// matching both: the rule whose serialized labels sort first wins.
func TestDeterministicTieBreak(t *testing.T) {
	m, _ := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type: CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(), Name: "db.toml",
		Content: []byte{0x61}, Format: model.FormatRaw,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &Command{
		Type: CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte{0x62}, Format: model.FormatRaw,
	})

	resp := apply(t, m, 3, &Command{
		Type: CmdUpdateReleaseRules, Timestamp: time.Unix(2, 0), ConfigID: 1,
		Releases: []model.Release{
			{Labels: map[string]string{"a": "1"}, VersionID: 1, Priority: 5},
			{Labels: map[string]string{"b": "2"}, VersionID: 2, Priority: 5},
		},
	})
	if resp.Status != StatusOK {
		t.Fatalf("update release rules rejected: %+v", resp)
	}

	res := resolve(t, m, "db.toml", map[string]string{"a": "1", "b": "2"})
	if !res.Found || res.Version.ID != 1 {
		t.Fatalf(`expected "a=1" to sort before "b=2" and resolve version 1, got %+v`, res)
	}
}

// TestSnapshotRoundTrip builds a snapshot, installs it into a fresh store,
// and expects identical resolution plus the captured last_applied.
func TestSnapshotRoundTrip(t *testing.T) {
	m, hub := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type: CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(), Name: "db.toml",
		Content: []byte{0x61}, Format: model.FormatRaw,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &Command{
		Type: CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte{0x62}, Format: model.FormatRaw,
	})
	apply(t, m, 3, &Command{
		Type: CmdUpdateReleaseRules, Timestamp: time.Unix(2, 0), ConfigID: 1,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})

	var buf bytes.Buffer
	stop := make(chan struct{})
	if err := m.SaveSnapshot(nil, &buf, nil, stop); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	s2, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	m2 := NewFactory(s2, watchhub.New())(1, 2).(*Machine)

	if err := m2.RecoverFromSnapshot(&buf, nil, stop); err != nil {
		t.Fatalf("recover from snapshot: %v", err)
	}

	res := resolve(t, m2, "db.toml", map[string]string{"anything": "x"})
	if !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected version 1 after snapshot install, got %+v", res)
	}

	lastApplied, ok, err := s2.GetMetaUint64(store.MetaLastApplied)
	if err != nil || !ok {
		t.Fatalf("expected last_applied to be set, ok=%v err=%v", ok, err)
	}
	if lastApplied != 3 {
		t.Fatalf("expected last_applied=3, got %d", lastApplied)
	}

	_ = hub
}

// TestPurgeVersionsEmptyIsNoop applies PurgeVersions with an empty map and
// expects a committed no-op success.
func TestPurgeVersionsEmptyIsNoop(t *testing.T) {
	m, _ := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type: CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(), Name: "db.toml",
		Content: []byte{0x61}, Format: model.FormatRaw,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})

	resp := apply(t, m, 2, &Command{
		Type: CmdPurgeVersions, Timestamp: time.Unix(1, 0),
		VersionsByConfig: map[uint64][]uint64{},
	})
	if resp.Status != StatusOK {
		t.Fatalf("expected empty PurgeVersions to be a no-op success, got %+v", resp)
	}

	res := resolve(t, m, "db.toml", map[string]string{})
	if !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected config untouched by empty purge, got %+v", res)
	}
}

// TestUpdateReleaseRulesRepeatIsNoopButPublishes re-applies the current rule
// set: resolution is unchanged, but a RELEASE_UPDATED event still fires.
func TestUpdateReleaseRulesRepeatIsNoopButPublishes(t *testing.T) {
	m, hub := newTestMachine(t)

	apply(t, m, 1, &Command{
		Type: CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: testNamespace(), Name: "db.toml",
		Content: []byte{0x61}, Format: model.FormatRaw,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})

	key := model.WatchKey(testNamespace(), "db.toml")
	recv := hub.Subscribe(key)
	defer recv.Close()

	resp := apply(t, m, 2, &Command{
		Type: CmdUpdateReleaseRules, Timestamp: time.Unix(1, 0), ConfigID: 1,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	if resp.Status != StatusOK {
		t.Fatalf("expected repeating the current rule set to succeed as a no-op, got %+v", resp)
	}

	res := resolve(t, m, "db.toml", map[string]string{"anything": "x"})
	if !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected resolution unchanged after no-op update, got %+v", res)
	}

	stop := make(chan struct{})
	event, _, ok := recv.Next(stop)
	if !ok {
		t.Fatalf("expected a change event even for a no-op rule update")
	}
	if event.Kind != model.ChangeEventReleaseUpdated {
		t.Fatalf("expected RELEASE_UPDATED, got %v", event.Kind)
	}
}
