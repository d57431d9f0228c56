package model

import (
	"testing"
	"time"
)

func TestSerializedLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		want   string
	}{
		{"empty", nil, ""},
		{"single", map[string]string{"env": "prod"}, "env=prod"},
		{"sorted", map[string]string{"b": "2", "a": "1"}, "a=1,b=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Release{Labels: tt.labels}
			if got := r.SerializedLabels(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReleaseMatches(t *testing.T) {
	client := map[string]string{"canary": "true", "region": "us"}

	if !(Release{}).Matches(client) {
		t.Fatalf("empty rule labels must match any client labels")
	}
	if !(Release{Labels: map[string]string{"canary": "true"}}).Matches(client) {
		t.Fatalf("subset rule must match")
	}
	if (Release{Labels: map[string]string{"canary": "false"}}).Matches(client) {
		t.Fatalf("value mismatch must not match")
	}
	if (Release{Labels: map[string]string{"zone": "a"}}).Matches(client) {
		t.Fatalf("missing key must not match")
	}
}

func TestSortReleasesOrder(t *testing.T) {
	releases := []Release{
		{Labels: map[string]string{"b": "2"}, VersionID: 2, Priority: 5},
		{Labels: map[string]string{}, VersionID: 3, Priority: 0},
		{Labels: map[string]string{"a": "1"}, VersionID: 1, Priority: 5},
		{Labels: map[string]string{"c": "3"}, VersionID: 4, Priority: 10},
	}
	sorted := SortReleases(releases)

	wantVersions := []uint64{4, 1, 2, 3} // priority desc, then "a=1" < "b=2"
	for i, want := range wantVersions {
		if sorted[i].VersionID != want {
			t.Fatalf("position %d: got version %d, want %d", i, sorted[i].VersionID, want)
		}
	}
	if releases[0].VersionID != 2 {
		t.Fatalf("SortReleases must not mutate its input")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	v := ConfigVersion{Content: []byte("ab"), ContentHash: ComputeHash([]byte("ab"))}
	if !v.VerifyIntegrity() {
		t.Fatalf("matching hash reported as corrupt")
	}
	v.Content = []byte("ac")
	if v.VerifyIntegrity() {
		t.Fatalf("mismatched hash reported as intact")
	}
}

func TestCodecRejectsUnknownSchemaVersion(t *testing.T) {
	cfg := Config{
		ID:        1,
		Namespace: Namespace{Tenant: "t", App: "a", Env: "e"},
		Name:      "app.yaml",
		CreatedAt: time.Unix(0, 0).UTC(),
	}
	data, err := Encode(&cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[0] != SchemaVersion {
		t.Fatalf("expected leading schema version byte %d, got %d", SchemaVersion, data[0])
	}

	var out Config
	if err := Decode(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.NameKey() != cfg.NameKey() {
		t.Fatalf("round trip changed name key: %q vs %q", out.NameKey(), cfg.NameKey())
	}

	data[0] = SchemaVersion + 1
	if err := Decode(data, &out); err == nil {
		t.Fatalf("expected unknown schema version to fail decode")
	}
	if err := Decode(nil, &out); err == nil {
		t.Fatalf("expected empty payload to fail decode")
	}
}

func TestWatchKey(t *testing.T) {
	ns := Namespace{Tenant: "t1", App: "a1", Env: "e1"}
	if got := WatchKey(ns, "db.toml"); got != "t1/a1/e1/db.toml" {
		t.Fatalf("got %q", got)
	}
	e := ChangeEvent{Namespace: ns, ConfigName: "db.toml"}
	if e.WatchKey() != WatchKey(ns, "db.toml") {
		t.Fatalf("event watch key mismatch")
	}
}
