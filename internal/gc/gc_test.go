package gc

import (
	"context"
	"errors"
	"testing"

	"github.com/conflux-sh/conflux/internal/statemachine"
)

type fakeEvaluator struct {
	candidates map[uint64][]uint64
	err        error
}

func (f fakeEvaluator) PurgeCandidates(context.Context) (map[uint64][]uint64, error) {
	return f.candidates, f.err
}

func TestSweepOnceProposesCandidates(t *testing.T) {
	var proposed *statemachine.Command
	s := NewSweeper(
		fakeEvaluator{candidates: map[uint64][]uint64{1: {2, 3}}},
		ProposerFunc(func(_ context.Context, cmd *statemachine.Command) (statemachine.Response, error) {
			proposed = cmd
			return statemachine.Response{Status: statemachine.StatusOK}, nil
		}),
		0,
	)

	if err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if proposed == nil {
		t.Fatalf("expected a PurgeVersions proposal")
	}
	if proposed.Type != statemachine.CmdPurgeVersions {
		t.Fatalf("expected PurgeVersions, got %v", proposed.Type)
	}
	if got := proposed.VersionsByConfig[1]; len(got) != 2 {
		t.Fatalf("expected versions [2 3] for config 1, got %v", got)
	}
}

func TestSweepOnceSkipsEmptyCandidateSet(t *testing.T) {
	s := NewSweeper(
		fakeEvaluator{candidates: nil},
		ProposerFunc(func(context.Context, *statemachine.Command) (statemachine.Response, error) {
			t.Fatalf("should not propose for an empty candidate set")
			return statemachine.Response{}, nil
		}),
		0,
	)
	if err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}

func TestSweepOnceSurfacesRejection(t *testing.T) {
	s := NewSweeper(
		fakeEvaluator{candidates: map[uint64][]uint64{1: {1}}},
		ProposerFunc(func(context.Context, *statemachine.Command) (statemachine.Response, error) {
			return statemachine.Response{Status: statemachine.StatusRejected, Message: "version 1/1 is referenced and cannot be purged"}, nil
		}),
		0,
	)
	if err := s.SweepOnce(context.Background()); err == nil {
		t.Fatalf("expected an error for a rejected purge")
	}
}

func TestSweepOnceSurfacesEvaluatorFailure(t *testing.T) {
	s := NewSweeper(
		fakeEvaluator{err: errors.New("metadata store down")},
		ProposerFunc(func(context.Context, *statemachine.Command) (statemachine.Response, error) {
			t.Fatalf("should not propose when evaluation fails")
			return statemachine.Response{}, nil
		}),
		0,
	)
	if err := s.SweepOnce(context.Background()); err == nil {
		t.Fatalf("expected evaluator failure to surface")
	}
}
