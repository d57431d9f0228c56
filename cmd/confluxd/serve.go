package confluxd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/rpc/client"
	"github.com/conflux-sh/conflux/rpc/common"
	"github.com/conflux-sh/conflux/rpc/serializer"
	"github.com/conflux-sh/conflux/rpc/server"
	"github.com/conflux-sh/conflux/rpc/transport"
)

var serveConfig = &common.ServerConfig{}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start a Conflux node",
	Long:    "Start a Conflux node and join it to a Raft shard. Configuration can be set via flags or CONFLUX_<flag> environment variables.",
	PreRunE: processServeConfig,
	RunE:    runServe,
}

func init() {
	serveCmd.PersistentFlags().Uint64("node-id", 0, wrapString("this node's replica id"))
	serveCmd.PersistentFlags().String("cluster-members", "", wrapString("comma-separated node-id=address list of the founding/current cluster members"))
	serveCmd.PersistentFlags().Bool("join", false, wrapString("join an already-running cluster instead of bootstrapping it"))
	serveCmd.PersistentFlags().String("data-dir", "data", wrapString("directory used for the embedded store and Raft snapshots"))

	serveCmd.PersistentFlags().Uint64("rtt-millisecond", 100, wrapString("average round trip time between nodes, in milliseconds; heartbeat and election timers are derived from this"))
	serveCmd.PersistentFlags().Uint64("snapshot-entries", 10000, wrapString("how many applied log entries between automatic snapshots"))
	serveCmd.PersistentFlags().Uint64("compaction-overhead", 5000, wrapString("how many trailing log entries to retain behind the snapshot"))

	serveCmd.PersistentFlags().Uint32("rate-limit-per-sec", 1000, wrapString("token-bucket admission rate for client_write/client_read"))
	serveCmd.PersistentFlags().Uint32("max-inflight", 256, wrapString("maximum concurrent in-flight client requests"))
	serveCmd.PersistentFlags().Uint32("max-request-bytes", 4<<20, wrapString("maximum encoded size of a single proposed command"))

	serveCmd.PersistentFlags().Int64("timeout", 5, wrapString("per-request timeout in seconds"))
	serveCmd.PersistentFlags().String("endpoint", "0.0.0.0:8080", wrapString("address the RPC transport listens on"))
	serveCmd.PersistentFlags().String("peer-endpoints", "", wrapString("comma-separated node-id=rpc-endpoint list used to forward client writes to the current leader; leave empty to answer NotLeader instead of forwarding"))
	serveCmd.PersistentFlags().String("log-level", "info", wrapString("log level: debug, info, warn, error"))
}

func processServeConfig(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}

	serveConfig.NodeID = viper.GetUint64("node-id")
	serveConfig.Join = viper.GetBool("join")
	serveConfig.DataDir = viper.GetString("data-dir")

	serveConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")

	serveConfig.RateLimitPerSec = uint32(viper.GetUint64("rate-limit-per-sec"))
	serveConfig.MaxInFlightRequests = uint32(viper.GetUint64("max-inflight"))
	serveConfig.MaxRequestBytes = uint32(viper.GetUint64("max-request-bytes"))

	serveConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveConfig.Endpoint = viper.GetString("endpoint")
	serveConfig.LogLevel = viper.GetString("log-level")

	members := viper.GetString("cluster-members")
	if members == "" {
		return fmt.Errorf("cluster-members is required")
	}
	serveConfig.ClusterMembers = make(map[uint64]string)
	for _, member := range strings.Split(members, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return fmt.Errorf("invalid cluster member format: %s (expected id=address)", member)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid node id %s: %w", parts[0], err)
		}
		serveConfig.ClusterMembers[id] = strings.TrimSpace(parts[1])
	}
	if _, ok := serveConfig.ClusterMembers[serveConfig.NodeID]; !ok {
		return fmt.Errorf("no address found for node id %d in cluster-members", serveConfig.NodeID)
	}

	return nil
}

func runServe(_ *cobra.Command, _ []string) error {
	s, err := getSerializer()
	if err != nil {
		return err
	}
	t, err := getServerTransport()
	if err != nil {
		return err
	}
	forwarder, err := buildForwarder(s)
	if err != nil {
		return err
	}

	srv := server.NewRPCServer(*serveConfig, raftnode.AllowAll{}, forwarder, t, s)
	return srv.Serve()
}

// buildForwarder turns the --peer-endpoints list into a LeaderForwarder, or
// nil when forwarding is not configured. The flag maps node ids to RPC
// endpoints; the forwarder itself is keyed by raft address, since that is
// what the node knows about the leader, so the two are joined via
// cluster-members here.
func buildForwarder(s serializer.IRPCSerializer) (raftnode.Forwarder, error) {
	raw := viper.GetString("peer-endpoints")
	if raw == "" {
		return nil, nil
	}
	byAddress := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid peer endpoint %q (expected id=endpoint)", pair)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id in peer endpoint %q: %w", pair, err)
		}
		raftAddr, ok := serveConfig.ClusterMembers[id]
		if !ok {
			return nil, fmt.Errorf("peer endpoint names node %d, which is not in cluster-members", id)
		}
		byAddress[raftAddr] = strings.TrimSpace(parts[1])
	}
	if _, err := getClientTransport(); err != nil {
		return nil, err
	}
	return client.NewLeaderForwarder(
		byAddress,
		common.ClientConfig{
			TimeoutSecond:          int(serveConfig.TimeoutSecond),
			RetryCount:             1,
			ConnectionsPerEndpoint: 1,
		},
		func() transport.IRPCClientTransport {
			t, _ := getClientTransport()
			return t
		},
		s,
	), nil
}
