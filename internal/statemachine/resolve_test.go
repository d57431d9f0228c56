package statemachine

import (
	"testing"

	"github.com/conflux-sh/conflux/internal/model"
)

func TestResolveVersionIDEmptyLabelsIsDefault(t *testing.T) {
	cfg := &model.Config{
		Releases: []model.Release{{Labels: map[string]string{}, VersionID: 7, Priority: 0}},
	}
	id, found := resolveVersionID(cfg, map[string]string{"anything": "goes"})
	if !found || id != 7 {
		t.Fatalf("got id=%d found=%v", id, found)
	}
}

func TestResolveVersionIDNoReleasesNotFound(t *testing.T) {
	cfg := &model.Config{}
	_, found := resolveVersionID(cfg, map[string]string{})
	if found {
		t.Fatalf("expected not found for a config with no releases")
	}
}

func TestResolveVersionIDHighestPriorityWins(t *testing.T) {
	cfg := &model.Config{
		Releases: []model.Release{
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
			{Labels: map[string]string{"canary": "true"}, VersionID: 2, Priority: 10},
		},
	}
	id, found := resolveVersionID(cfg, map[string]string{"canary": "true"})
	if !found || id != 2 {
		t.Fatalf("got id=%d found=%v", id, found)
	}
}

func TestResolveVersionIDRuleMustBeSubsetOfClientLabels(t *testing.T) {
	cfg := &model.Config{
		Releases: []model.Release{
			{Labels: map[string]string{"region": "eu"}, VersionID: 2, Priority: 10},
			{Labels: map[string]string{}, VersionID: 1, Priority: 0},
		},
	}
	id, found := resolveVersionID(cfg, map[string]string{"region": "us"})
	if !found || id != 1 {
		t.Fatalf("expected fallback to default rule, got id=%d found=%v", id, found)
	}
}

func TestResolveVersionIDDuplicatePriorityTieBreak(t *testing.T) {
	cfg := &model.Config{
		Releases: []model.Release{
			{Labels: map[string]string{"a": "1"}, VersionID: 1, Priority: 5},
			{Labels: map[string]string{"b": "2"}, VersionID: 2, Priority: 5},
		},
	}
	id, found := resolveVersionID(cfg, map[string]string{"a": "1", "b": "2"})
	if !found || id != 1 {
		t.Fatalf(`expected "a=1" (sorts before "b=2") to win, got id=%d found=%v`, id, found)
	}
}
