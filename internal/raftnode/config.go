// Package raftnode drives the consensus engine: NodeHost bootstrap,
// election and membership, client writes with leader forwarding, and reads
// at three consistency levels. It is scoped to a single Raft shard, since
// Conflux runs exactly one shard per cluster.
package raftnode

import (
	"fmt"
	"time"

	"github.com/conflux-sh/conflux/internal/confluxerr"
)

// Config is the node's startup configuration surface. Validation failures
// abort startup; there is no partial start.
type Config struct {
	NodeID        uint64
	DataDir       string
	PeerAddresses map[uint64]string

	HeartbeatIntervalMs  uint32
	ElectionTimeoutMinMs uint32
	ElectionTimeoutMaxMs uint32
	SnapshotThreshold    uint64
	CompactionOverhead   uint64

	MaxRequestBytes     uint32
	RateLimitPerSec     uint32
	MaxInFlightRequests uint32

	// RequestTimeout bounds a single client_write/client_read round trip;
	// the total deadline including forwards is ForwardRetryBudget.
	RequestTimeout time.Duration

	// ForwardRetryAttempts and ForwardRetryBudget bound the
	// client-forwarding protocol: default 3 attempts, default 5s total.
	ForwardRetryAttempts int
	ForwardRetryBudget   time.Duration

	LogLevel string
}

// DefaultConfig fills in the discretionary fields (retry bounds, log
// level); callers must still supply NodeID, DataDir, PeerAddresses and the
// timer triple.
func DefaultConfig() Config {
	return Config{
		HeartbeatIntervalMs:  100,
		ElectionTimeoutMinMs: 1000,
		ElectionTimeoutMaxMs: 2000,
		SnapshotThreshold:    10000,
		CompactionOverhead:   5000,
		MaxRequestBytes:      4 << 20,
		RateLimitPerSec:      1000,
		MaxInFlightRequests:  256,
		RequestTimeout:       5 * time.Second,
		ForwardRetryAttempts: 3,
		ForwardRetryBudget:   5 * time.Second,
		LogLevel:             "info",
	}
}

// Validate rejects any configuration that would start a broken node, in
// particular the timer ordering constraint heartbeat < election-min <
// election-max.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "data_dir is required")
	}
	if _, ok := c.PeerAddresses[c.NodeID]; !ok {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "peer_addresses must contain this node's own address (node_id=%d)", c.NodeID)
	}
	if c.HeartbeatIntervalMs == 0 {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "heartbeat_interval_ms must be > 0")
	}
	if c.ElectionTimeoutMinMs <= c.HeartbeatIntervalMs {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "election_timeout_min_ms (%d) must be > heartbeat_interval_ms (%d)", c.ElectionTimeoutMinMs, c.HeartbeatIntervalMs)
	}
	if c.ElectionTimeoutMaxMs <= c.ElectionTimeoutMinMs {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "election_timeout_max_ms (%d) must be > election_timeout_min_ms (%d)", c.ElectionTimeoutMaxMs, c.ElectionTimeoutMinMs)
	}
	if c.SnapshotThreshold == 0 {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "snapshot_threshold must be > 0")
	}
	if c.MaxRequestBytes == 0 {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "max_request_bytes must be > 0")
	}
	if c.RateLimitPerSec == 0 {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "rate_limit_per_sec must be > 0")
	}
	if c.MaxInFlightRequests == 0 {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "max_in_flight_requests must be > 0")
	}
	if c.ForwardRetryAttempts <= 0 {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "forward_retry_attempts must be > 0")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("node_id=%d data_dir=%s peers=%d heartbeat=%dms election=[%d,%d]ms snapshot_threshold=%d",
		c.NodeID, c.DataDir, len(c.PeerAddresses), c.HeartbeatIntervalMs, c.ElectionTimeoutMinMs, c.ElectionTimeoutMaxMs, c.SnapshotThreshold)
}
