package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/conflux-sh/conflux/internal/raftnode"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds every parameter needed to stand up one Conflux node:
// the raftnode.Config fields plus the RPC-layer fields (endpoint, timeout).
// There is no per-shard type list: Conflux always runs exactly one shard
// (raftnode.ShardID).
type ServerConfig struct {
	NodeID         uint64
	DataDir        string
	ClusterMembers map[uint64]string
	Join           bool

	RTTMillisecond       uint64
	HeartbeatIntervalMs  uint32
	ElectionTimeoutMinMs uint32
	ElectionTimeoutMaxMs uint32
	SnapshotEntries      uint64
	CompactionOverhead   uint64

	RateLimitPerSec     uint32
	MaxInFlightRequests uint32
	MaxRequestBytes     uint32

	TimeoutSecond int64

	// Endpoint is the address the RPC transport listens on.
	Endpoint string

	// TCP socket tuning, applied to accepted connections by the tcp
	// transport; zero values leave the kernel defaults in place.
	TCPNoDelay         bool
	TCPWriteBufferSize int
	TCPReadBufferSize  int
	TCPKeepAliveSec    int
	TCPLingerSec       int

	LogLevel string
}

// ToNodeConfig converts ServerConfig into a raftnode.Config, filling
// defaults for any field left zero; internal/raftnode owns the dragonboat
// wiring, so this is the only translation point.
func (c *ServerConfig) ToNodeConfig() raftnode.Config {
	cfg := raftnode.DefaultConfig()
	cfg.NodeID = c.NodeID
	cfg.DataDir = c.DataDir
	cfg.PeerAddresses = c.ClusterMembers
	if c.HeartbeatIntervalMs > 0 {
		cfg.HeartbeatIntervalMs = c.HeartbeatIntervalMs
	} else if c.RTTMillisecond > 0 {
		cfg.HeartbeatIntervalMs = uint32(c.RTTMillisecond)
	}
	if c.ElectionTimeoutMinMs > 0 {
		cfg.ElectionTimeoutMinMs = c.ElectionTimeoutMinMs
	}
	if c.ElectionTimeoutMaxMs > 0 {
		cfg.ElectionTimeoutMaxMs = c.ElectionTimeoutMaxMs
	}
	if c.SnapshotEntries > 0 {
		cfg.SnapshotThreshold = c.SnapshotEntries
	}
	if c.CompactionOverhead > 0 {
		cfg.CompactionOverhead = c.CompactionOverhead
	}
	if c.RateLimitPerSec > 0 {
		cfg.RateLimitPerSec = c.RateLimitPerSec
	}
	if c.MaxInFlightRequests > 0 {
		cfg.MaxInFlightRequests = c.MaxInFlightRequests
	}
	if c.MaxRequestBytes > 0 {
		cfg.MaxRequestBytes = c.MaxRequestBytes
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	return cfg
}

// String returns a formatted, sectioned representation for startup logs.
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Node Identity")
	addField("Node ID", strconv.FormatUint(c.NodeID, 10))
	addField("Data Directory", c.DataDir)
	addField("Join", fmt.Sprintf("%t", c.Join))

	addSection("Raft Parameters")
	addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
	addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
	addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
	addField("Rate Limit (req/s)", fmt.Sprintf("%d", c.RateLimitPerSec))
	addField("Max In-Flight", fmt.Sprintf("%d", c.MaxInFlightRequests))

	addSection("Cluster Members")
	var keys []uint64
	for k := range c.ClusterMembers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures an RPC client. Connection pooling, retries and
// endpoints are transport-level concerns independent of the Config domain.
type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(c.ConnectionsPerEndpoint))

	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
