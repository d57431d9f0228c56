// Package smtest is a reusable state-machine conformance suite: factory
// in, RunConformanceTests(t, name, factory) out, so any
// sm.IConcurrentStateMachine over the Conflux command set (or a wrapper
// adding caching, sharding, etc.) can be run through the same scenarios,
// not just the one Machine type.
package smtest

import (
	"testing"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/statemachine"
)

// Factory creates a fresh, empty state machine instance and a cleanup
// function the suite calls when done with it.
type Factory func(t *testing.T) (sm.IConcurrentStateMachine, func())

// RunConformanceTests runs the command/query scenarios against any
// sm.IConcurrentStateMachine built by factory.
func RunConformanceTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateAndFetch", func(t *testing.T) { testCreateAndFetch(t, factory) })
		t.Run("CanaryRouting", func(t *testing.T) { testCanaryRouting(t, factory) })
		t.Run("Rollback", func(t *testing.T) { testRollback(t, factory) })
		t.Run("PurgeVersionsKeepsReleased", func(t *testing.T) { testPurgeKeepsReleased(t, factory) })
		t.Run("DeleteConfigThenResolveNotFound", func(t *testing.T) { testDeleteConfigThenResolve(t, factory) })
	})
}

func namespace() model.Namespace {
	return model.Namespace{Tenant: "t", App: "a", Env: "e"}
}

func apply(t *testing.T, m sm.IConcurrentStateMachine, index uint64, cmd *statemachine.Command) statemachine.Response {
	t.Helper()
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	out, err := m.Update([]sm.Entry{{Index: index, Cmd: data}})
	if err != nil {
		t.Fatalf("update at index %d: %v", index, err)
	}
	var resp statemachine.Response
	if err := model.Decode(out[0].Result.Data, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func resolve(t *testing.T, m sm.IConcurrentStateMachine, name string, labels map[string]string) statemachine.ResolveResult {
	t.Helper()
	out, err := m.Lookup(statemachine.Query{
		Type:         statemachine.QueryResolve,
		Namespace:    namespace(),
		Name:         name,
		ClientLabels: labels,
	})
	if err != nil {
		t.Fatalf("lookup resolve: %v", err)
	}
	return out.(statemachine.ResolveResult)
}

func testCreateAndFetch(t *testing.T, factory Factory) {
	m, cleanup := factory(t)
	defer cleanup()

	resp := apply(t, m, 1, &statemachine.Command{
		Type: statemachine.CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: namespace(), Name: "app.yaml",
		Content: []byte("a: 1"), Format: model.FormatYAML,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	if resp.Status != statemachine.StatusOK {
		t.Fatalf("create config rejected: %+v", resp)
	}

	res := resolve(t, m, "app.yaml", map[string]string{})
	if !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected version 1, got %+v", res)
	}
}

func testCanaryRouting(t *testing.T, factory Factory) {
	m, cleanup := factory(t)
	defer cleanup()

	apply(t, m, 1, &statemachine.Command{
		Type: statemachine.CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: namespace(), Name: "app.yaml",
		Content: []byte("a: 1"), Format: model.FormatYAML,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &statemachine.Command{
		Type: statemachine.CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte("a: 2"), Format: model.FormatYAML,
	})
	resp := apply(t, m, 3, &statemachine.Command{
		Type: statemachine.CmdUpdateReleaseRules, Timestamp: time.Unix(2, 0), ConfigID: 1,
		Releases: []model.Release{
			{Labels: map[string]string{"canary": "true"}, VersionID: 2, Priority: 10},
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		},
	})
	if resp.Status != statemachine.StatusOK {
		t.Fatalf("update release rules rejected: %+v", resp)
	}

	if res := resolve(t, m, "app.yaml", map[string]string{"canary": "true"}); !res.Found || res.Version.ID != 2 {
		t.Fatalf("expected canary to resolve version 2, got %+v", res)
	}
	if res := resolve(t, m, "app.yaml", map[string]string{}); !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected default to resolve version 1, got %+v", res)
	}
}

func testRollback(t *testing.T, factory Factory) {
	m, cleanup := factory(t)
	defer cleanup()

	apply(t, m, 1, &statemachine.Command{
		Type: statemachine.CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: namespace(), Name: "app.yaml", Content: []byte("a: 1"), Format: model.FormatYAML,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &statemachine.Command{
		Type: statemachine.CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte("a: 2"), Format: model.FormatYAML,
	})
	apply(t, m, 3, &statemachine.Command{
		Type: statemachine.CmdUpdateReleaseRules, Timestamp: time.Unix(2, 0), ConfigID: 1,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 2, Priority: 0}},
	})
	resp := apply(t, m, 4, &statemachine.Command{
		Type: statemachine.CmdUpdateReleaseRules, Timestamp: time.Unix(3, 0), ConfigID: 1,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	if resp.Status != statemachine.StatusOK {
		t.Fatalf("rollback rejected: %+v", resp)
	}
	if res := resolve(t, m, "app.yaml", map[string]string{}); !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected rollback to version 1, got %+v", res)
	}
}

func testPurgeKeepsReleased(t *testing.T, factory Factory) {
	m, cleanup := factory(t)
	defer cleanup()

	// v1 is released, v3 ends up latest; v2 is neither, so it is the only
	// one purgeable: purge protects released and latest versions.
	apply(t, m, 1, &statemachine.Command{
		Type: statemachine.CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: namespace(), Name: "app.yaml", Content: []byte("a: 1"), Format: model.FormatYAML,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	apply(t, m, 2, &statemachine.Command{
		Type: statemachine.CmdCreateVersion, Timestamp: time.Unix(1, 0),
		ConfigID: 1, Content: []byte("a: 2"), Format: model.FormatYAML,
	})
	apply(t, m, 3, &statemachine.Command{
		Type: statemachine.CmdCreateVersion, Timestamp: time.Unix(2, 0),
		ConfigID: 1, Content: []byte("a: 3"), Format: model.FormatYAML,
	})

	if resp := apply(t, m, 4, &statemachine.Command{
		Type: statemachine.CmdPurgeVersions, Timestamp: time.Unix(3, 0),
		VersionsByConfig: map[uint64][]uint64{1: {1, 3}},
	}); resp.Status != statemachine.StatusRejected {
		t.Fatalf("expected purging released+latest versions to be rejected, got %+v", resp)
	}

	resp := apply(t, m, 5, &statemachine.Command{
		Type: statemachine.CmdPurgeVersions, Timestamp: time.Unix(4, 0),
		VersionsByConfig: map[uint64][]uint64{1: {2}},
	})
	if resp.Status != statemachine.StatusOK {
		t.Fatalf("purge of unreferenced version rejected: %+v", resp)
	}

	if res := resolve(t, m, "app.yaml", map[string]string{}); !res.Found || res.Version.ID != 1 {
		t.Fatalf("expected purge to keep the released version 1 reachable, got %+v", res)
	}
}

func testDeleteConfigThenResolve(t *testing.T, factory Factory) {
	m, cleanup := factory(t)
	defer cleanup()

	apply(t, m, 1, &statemachine.Command{
		Type: statemachine.CmdCreateConfig, Timestamp: time.Unix(0, 0),
		Namespace: namespace(), Name: "app.yaml", Content: []byte("a: 1"), Format: model.FormatYAML,
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 1, Priority: 0}},
	})
	resp := apply(t, m, 2, &statemachine.Command{
		Type: statemachine.CmdDeleteConfig, Timestamp: time.Unix(1, 0), ConfigID: 1,
	})
	if resp.Status != statemachine.StatusOK {
		t.Fatalf("delete config rejected: %+v", resp)
	}
	if res := resolve(t, m, "app.yaml", map[string]string{}); res.Found {
		t.Fatalf("expected no resolution after delete, got %+v", res)
	}
}
