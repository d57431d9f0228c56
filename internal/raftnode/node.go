package raftnode

import (
	"context"
	"errors"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/config"
	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/confluxlog"
	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/statemachine"
	"github.com/conflux-sh/conflux/internal/store"
	"github.com/conflux-sh/conflux/internal/watchhub"
)

var log = confluxlog.Get("raftnode")

// ShardID is the single Raft group Conflux runs: the whole configuration
// domain lives in one state machine, so there is exactly one shard.
const ShardID uint64 = 1

const retries = 5

// Consistency selects a client_read's consistency/latency tradeoff
//.
type Consistency int

const (
	// Stale is served by the local state machine with no commit barrier.
	Stale Consistency = iota
	// LeaderLease is served by the leader without a full read-index round,
	// approximated here as "local state machine, only if this node
	// currently believes itself to be leader" since the consensus engine
	// does not expose a lease-validity primitive beyond leadership status.
	LeaderLease
	// Linearizable performs a read-index barrier before serving.
	Linearizable
)

// Forwarder sends a proposal's encoded bytes to another node believed to
// be leader and returns its encoded Response. The node package only
// defines the hook; the RPC transport that implements it lives above this
// package, keeping the consensus client free of any network dependency.
type Forwarder interface {
	Forward(ctx context.Context, address string, payload []byte) ([]byte, error)
}

// Node is a single-shard wrapper around a dragonboat NodeHost with
// admission control, an authorization hook and leader-forwarding layered
// in front of the propose/read calls.
type Node struct {
	cfg Config

	nh      *dragonboat.NodeHost
	cs      *client.Session
	s       *store.Store
	factory func(shardID, replicaID uint64) sm.IConcurrentStateMachine

	authz     Authorizer
	forwarder Forwarder

	limiter  *tokenBucket
	inflight *inflightLimiter
}

// New constructs the NodeHost for this node. It does not join or
// bootstrap a cluster; callers pass the same initialMembers map to every
// founding node's Start call, or an empty map plus join=true for a node
// joining an existing cluster, mirroring dragonboat's own
// StartConcurrentReplica contract.
func New(cfg Config, s *store.Store, hub *watchhub.Hub, authz Authorizer, forwarder Forwarder) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if authz == nil {
		authz = AllowAll{}
	}

	confluxlog.Init(cfg.LogLevel)

	nhc := config.NodeHostConfig{
		WALDir:         cfg.DataDir,
		NodeHostDir:    cfg.DataDir,
		RTTMillisecond: uint64(cfg.HeartbeatIntervalMs),
		RaftAddress:    cfg.PeerAddresses[cfg.NodeID],
	}
	nh, err := dragonboat.NewNodeHost(nhc)
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "create node host")
	}

	n := &Node{
		cfg:       cfg,
		nh:        nh,
		s:         s,
		factory:   statemachine.NewFactory(s, hub),
		authz:     authz,
		forwarder: forwarder,
		limiter:   newTokenBucket(cfg.RateLimitPerSec),
		inflight:  newInflightLimiter(cfg.MaxInFlightRequests),
	}
	return n, nil
}

// Start joins this node's replica to the shard, given the full set of
// founding members (replicaID -> address) for a bootstrap, or an empty map
// with join=true to join an already-running cluster.
func (n *Node) Start(initialMembers map[uint64]string, join bool) error {
	raftCfg := config.Config{
		ReplicaID:          n.cfg.NodeID,
		ShardID:            ShardID,
		ElectionRTT:        uint64(n.cfg.ElectionTimeoutMaxMs) / uint64(n.cfg.HeartbeatIntervalMs),
		HeartbeatRTT:       1,
		CheckQuorum:        true,
		SnapshotEntries:    n.cfg.SnapshotThreshold,
		CompactionOverhead: n.cfg.CompactionOverhead,
	}
	if err := n.nh.StartConcurrentReplica(initialMembers, join, n.factory, raftCfg); err != nil {
		return confluxerr.Wrap(confluxerr.CodeConsensusFailure, err, "start shard %d replica %d", ShardID, n.cfg.NodeID)
	}
	n.cs = n.nh.GetNoOPSession(ShardID)
	return nil
}

// ClientWrite proposes cmd through consensus. If this node is not leader,
// it forwards to the current leader via Forwarder and retries up to
// cfg.ForwardRetryAttempts within cfg.ForwardRetryBudget; if no leader is
// known it fails fast with CodeUnavailable. Admission control (rate limit,
// in-flight cap, size, authz) runs before anything touches consensus.
func (n *Node) ClientWrite(ctx context.Context, subject Subject, action Action, resource Resource, cmd *statemachine.Command) (statemachine.Response, error) {
	var zero statemachine.Response

	if err := n.authz.Authorize(ctx, subject, action, resource); err != nil {
		return zero, confluxerr.Wrap(confluxerr.CodePermissionDenied, err, "authorize %s on %s", action, resource)
	}

	data, err := cmd.Encode()
	if err != nil {
		return zero, confluxerr.Wrap(confluxerr.CodeInvalidArgument, err, "encode command")
	}
	if uint32(len(data)) > n.cfg.MaxRequestBytes {
		return zero, confluxerr.New(confluxerr.CodeResourceExhausted, "request of %d bytes exceeds max_request_bytes %d", len(data), n.cfg.MaxRequestBytes)
	}
	if !n.limiter.allow() {
		return zero, confluxerr.New(confluxerr.CodeResourceExhausted, "rate limit exceeded")
	}
	if !n.inflight.tryAcquire() {
		return zero, confluxerr.New(confluxerr.CodeResourceExhausted, "too many in-flight requests")
	}
	defer n.inflight.release()

	deadline := time.Now().Add(n.cfg.ForwardRetryBudget)
	var lastErr error
	for attempt := 0; attempt < n.cfg.ForwardRetryAttempts; attempt++ {
		if time.Now().After(deadline) {
			return zero, confluxerr.New(confluxerr.CodeTimeout, "client write exceeded forward retry budget")
		}

		leaderID, _, valid, lerr := n.nh.GetLeaderID(ShardID)
		if lerr != nil || !valid {
			return zero, confluxerr.New(confluxerr.CodeUnavailable, "no leader known for shard %d", ShardID)
		}

		if leaderID == n.cfg.NodeID {
			resp, err := n.proposeLocal(ctx, data)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			if confluxerr.KindOf(err) != confluxerr.KindTransient {
				return zero, err
			}
			continue
		}

		if n.forwarder == nil {
			return zero, confluxerr.New(confluxerr.CodeNotLeader, "not leader (leader=%d) and no forwarder configured", leaderID)
		}
		addr, ok := n.cfg.PeerAddresses[leaderID]
		if !ok {
			return zero, confluxerr.New(confluxerr.CodeUnavailable, "no address known for leader %d", leaderID)
		}
		respData, ferr := n.forwarder.Forward(ctx, addr, data)
		if ferr != nil {
			lastErr = confluxerr.Wrap(confluxerr.CodeForwardExhausted, ferr, "forward to leader %d at %s", leaderID, addr)
			continue
		}
		var resp statemachine.Response
		if derr := model.Decode(respData, &resp); derr != nil {
			return zero, confluxerr.Wrap(confluxerr.CodeCorruption, derr, "decode forwarded response")
		}
		return resp, nil
	}
	if lastErr != nil {
		return zero, confluxerr.Wrap(confluxerr.CodeForwardExhausted, lastErr, "exhausted %d forward attempts", n.cfg.ForwardRetryAttempts)
	}
	return zero, confluxerr.New(confluxerr.CodeForwardExhausted, "exhausted %d forward attempts", n.cfg.ForwardRetryAttempts)
}

// proposeLocal issues SyncPropose against this (believed-leader) replica,
// retrying a bounded number of times when the engine reports itself busy.
func (n *Node) proposeLocal(ctx context.Context, data []byte) (statemachine.Response, error) {
	var zero statemachine.Response
	for i := 0; i < retries; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
		result, err := n.nh.SyncPropose(reqCtx, n.cs, data)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: system busy, retrying (%d/%d)", i+1, retries)
			time.Sleep(n.cfg.RequestTimeout / 10)
			continue
		}
		if errors.Is(err, dragonboat.ErrShardNotReady) || errors.Is(err, dragonboat.ErrTimeout) {
			return zero, confluxerr.Wrap(confluxerr.CodeTimeout, err, "propose")
		}
		if err != nil {
			return zero, confluxerr.Wrap(confluxerr.CodeConsensusFailure, err, "propose")
		}

		var resp statemachine.Response
		if derr := model.Decode(result.Data, &resp); derr != nil {
			return zero, confluxerr.Wrap(confluxerr.CodeCorruption, derr, "decode response")
		}
		return resp, nil
	}
	return zero, confluxerr.New(confluxerr.CodeTimeout, "propose exhausted %d system-busy retries", retries)
}

// ClientRead answers q at the requested consistency level.
func (n *Node) ClientRead(ctx context.Context, subject Subject, q statemachine.Query, consistency Consistency) (interface{}, error) {
	if err := n.authz.Authorize(ctx, subject, ActionRead, ""); err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodePermissionDenied, err, "authorize read")
	}
	if !n.limiter.allow() {
		return nil, confluxerr.New(confluxerr.CodeResourceExhausted, "rate limit exceeded")
	}
	if !n.inflight.tryAcquire() {
		return nil, confluxerr.New(confluxerr.CodeResourceExhausted, "too many in-flight requests")
	}
	defer n.inflight.release()

	switch consistency {
	case Stale:
		return n.readStale(q)
	case LeaderLease:
		leaderID, _, valid, err := n.nh.GetLeaderID(ShardID)
		if err != nil || !valid || leaderID != n.cfg.NodeID {
			return nil, confluxerr.New(confluxerr.CodeNotLeader, "leader lease read requires this node to be leader")
		}
		return n.readStale(q)
	case Linearizable:
		return n.readLinearizable(ctx, q)
	default:
		return nil, confluxerr.New(confluxerr.CodeInvalidArgument, "unknown consistency level %d", consistency)
	}
}

func (n *Node) readStale(q statemachine.Query) (interface{}, error) {
	res, err := n.nh.StaleRead(ShardID, q)
	if err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeUnavailable, err, "stale read")
	}
	return res, nil
}

func (n *Node) readLinearizable(ctx context.Context, q statemachine.Query) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	for i := 0; i < retries; i++ {
		res, err := n.nh.SyncRead(reqCtx, ShardID, q)
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: system busy, retrying (%d/%d)", i+1, retries)
			time.Sleep(n.cfg.RequestTimeout / 10)
			continue
		}
		if err != nil {
			return nil, confluxerr.Wrap(confluxerr.CodeUnavailable, err, "linearizable read")
		}
		return res, nil
	}
	return nil, confluxerr.New(confluxerr.CodeTimeout, "linearizable read exhausted %d system-busy retries", retries)
}

// AddLearner adds nodeID at address as a non-voting member, the staging step
// before ChangeMembership promotes it.
func (n *Node) AddLearner(ctx context.Context, nodeID uint64, address string) error {
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	if err := n.nh.SyncRequestAddNonVoting(reqCtx, ShardID, nodeID, address, 0); err != nil {
		return confluxerr.Wrap(confluxerr.CodeConsensusFailure, err, "add learner %d at %s", nodeID, address)
	}
	return nil
}

// ChangeMembership promotes nodeID at address to a full voting member via
// the consensus engine's joint-consensus protocol.
func (n *Node) ChangeMembership(ctx context.Context, subject Subject, nodeID uint64, address string) error {
	if err := n.authz.Authorize(ctx, subject, ActionChangeMembership, Resource(address)); err != nil {
		return confluxerr.Wrap(confluxerr.CodePermissionDenied, err, "authorize change_membership")
	}
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	if err := n.nh.SyncRequestAddReplica(reqCtx, ShardID, nodeID, address, 0); err != nil {
		return confluxerr.Wrap(confluxerr.CodeConsensusFailure, err, "change membership: add replica %d at %s", nodeID, address)
	}
	return nil
}

// RemoveMember removes nodeID from the voting set.
func (n *Node) RemoveMember(ctx context.Context, subject Subject, nodeID uint64) error {
	if err := n.authz.Authorize(ctx, subject, ActionChangeMembership, ""); err != nil {
		return confluxerr.Wrap(confluxerr.CodePermissionDenied, err, "authorize change_membership")
	}
	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.RequestTimeout)
	defer cancel()
	if err := n.nh.SyncRequestDeleteReplica(reqCtx, ShardID, nodeID, 0); err != nil {
		return confluxerr.Wrap(confluxerr.CodeConsensusFailure, err, "remove replica %d", nodeID)
	}
	return nil
}

// TransferLeadership asks the consensus engine to move leadership to
// target, or to any eligible peer if target is zero.
func (n *Node) TransferLeadership(target uint64) error {
	if err := n.nh.RequestLeaderTransfer(ShardID, target); err != nil {
		return confluxerr.Wrap(confluxerr.CodeConsensusFailure, err, "transfer leadership to %d", target)
	}
	return nil
}

// NodeMetrics is the node's observability snapshot: current term, role,
// last-applied, leader id.
//
// ReplicationLag is left nil: dragonboat's NodeHostInfo reports shard
// membership but not per-replica match-index, so a single replica cannot
// compute its peers' lag without also acting as a cluster-wide metrics
// aggregator.
type NodeMetrics struct {
	NodeID         uint64
	Term           uint64
	IsLeader       bool
	LeaderID       uint64
	LastApplied    uint64
	ReplicationLag map[uint64]uint64
}

func (n *Node) Metrics() (NodeMetrics, error) {
	m := NodeMetrics{NodeID: n.cfg.NodeID}

	lastApplied, _, err := n.s.GetMetaUint64(store.MetaLastApplied)
	if err != nil {
		return NodeMetrics{}, confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read last_applied")
	}
	m.LastApplied = lastApplied

	info := n.nh.GetNodeHostInfo(dragonboat.NodeHostInfoOption{SkipLogInfo: true})
	if info == nil {
		return m, nil
	}
	for _, si := range info.ShardInfoList {
		if si.ShardID != ShardID {
			continue
		}
		m.Term = si.Term
		m.LeaderID = si.LeaderID
		m.IsLeader = si.LeaderID == n.cfg.NodeID
		break
	}
	return m, nil
}

// Close stops the NodeHost, relinquishing the shard.
func (n *Node) Close() error {
	n.nh.Close()
	return nil
}
