// Package gc is the retention sweeper's command side: a background task
// that asks the injected policy evaluator which versions have expired and
// turns its answer into PurgeVersions commands proposed through consensus.
// The policy evaluation itself is an external collaborator
// (external.RetentionPolicyEvaluator); this package only owns issuing the
// command and surviving transient proposal failures.
package gc

import (
	"context"
	"time"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/confluxlog"
	"github.com/conflux-sh/conflux/internal/external"
	"github.com/conflux-sh/conflux/internal/statemachine"
)

var log = confluxlog.Get("gc")

// Proposer submits a command through consensus. raftnode.Node satisfies the
// shape via a closure over ClientWrite; tests inject a fake.
type Proposer interface {
	Propose(ctx context.Context, cmd *statemachine.Command) (statemachine.Response, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, cmd *statemachine.Command) (statemachine.Response, error)

func (f ProposerFunc) Propose(ctx context.Context, cmd *statemachine.Command) (statemachine.Response, error) {
	return f(ctx, cmd)
}

// DefaultInterval is how often the sweeper consults the policy evaluator.
const DefaultInterval = 15 * time.Minute

// Sweeper periodically turns the evaluator's purge candidates into a single
// PurgeVersions command.
type Sweeper struct {
	evaluator external.RetentionPolicyEvaluator
	proposer  Proposer
	interval  time.Duration
}

// NewSweeper wires an evaluator to a proposer. interval <= 0 selects
// DefaultInterval.
func NewSweeper(evaluator external.RetentionPolicyEvaluator, proposer Proposer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{evaluator: evaluator, proposer: proposer, interval: interval}
}

// SweepOnce runs one evaluate-and-propose round. An empty candidate set
// proposes nothing (PurgeVersions({}) would be a committed no-op, so it is
// not worth a consensus round). A rejected response is returned as a
// PreconditionFailed error so the caller's next round re-evaluates against
// fresher state.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	candidates, err := s.evaluator.PurgeCandidates(ctx)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeUnavailable, err, "evaluate purge candidates")
	}
	if len(candidates) == 0 {
		return nil
	}

	resp, err := s.proposer.Propose(ctx, &statemachine.Command{
		Type:             statemachine.CmdPurgeVersions,
		Timestamp:        time.Now().UTC(),
		VersionsByConfig: candidates,
	})
	if err != nil {
		return err
	}
	if resp.Status == statemachine.StatusRejected {
		return confluxerr.New(confluxerr.CodePreconditionFailed, "purge rejected: %s", resp.Message)
	}
	log.Infof("purged expired versions across %d config(s)", len(candidates))
	return nil
}

// Run sweeps on the configured interval until ctx is canceled. Transient
// failures are logged and retried on the next tick rather than stopping the
// sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Warningf("retention sweep failed: %v", err)
			}
		}
	}
}
