package server

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/internal/store"
	"github.com/conflux-sh/conflux/internal/watchhub"
	"github.com/conflux-sh/conflux/rpc/common"
	"github.com/conflux-sh/conflux/rpc/serializer"
	"github.com/conflux-sh/conflux/rpc/transport"

	"os/signal"
	"syscall"
)

var Logger = logger.GetLogger("rpc")

// watchReclamationInterval is how often idle watch channels are swept.
const watchReclamationInterval = time.Minute

// NewRPCServer builds the single-shard RPC server: one raftnode.Node
// wrapping the replicated state machine, reached through whichever
// transport and serializer are configured. There is no per-shard dispatch
// map: Conflux never multiplexes more than one state machine behind a
// NodeHost.
func NewRPCServer(
	config common.ServerConfig,
	authz raftnode.Authorizer,
	forwarder raftnode.Forwarder,
	t transport.IRPCServerTransport,
	s serializer.IRPCSerializer,
) rpcServer {
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created Conflux RPC Server")
	Logger.Infof(config.String())

	return rpcServer{
		config:     config,
		authz:      authz,
		forwarder:  forwarder,
		transport:  t,
		serializer: s,
		adapter:    NewConfluxNodeServerAdapter(),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	authz      raftnode.Authorizer
	forwarder  raftnode.Forwarder
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	store *store.Store
	node  *raftnode.Node
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(_ uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to deserialize request: %s", err),
			}
		} else {
			metrics.GetOrCreateCounter(fmt.Sprintf(`conflux_rpc_requests_total{type=%q}`, msg.MsgType.String())).Inc()
			respMsg = *s.adapter.Handle(&msg, s.node)
		}
		if respMsg.MsgType == common.MsgTError {
			metrics.GetOrCreateCounter(`conflux_rpc_errors_total`).Inc()
		}

		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			}
			val, _ = s.serializer.Serialize(respMsg)
		}
		return val
	})
}

func (s *rpcServer) init() error {
	if err := raftnode.EnsureNodeIDFile(s.config.DataDir, s.config.NodeID); err != nil {
		return fmt.Errorf("verify data dir ownership: %w", err)
	}

	st, err := store.Open(s.config.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st

	hub := watchhub.New()
	hub.RunReclamation(context.Background(), watchReclamationInterval)

	node, err := raftnode.New(s.config.ToNodeConfig(), st, hub, s.authz, s.forwarder)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	s.node = node

	if err := node.Start(s.config.ClusterMembers, s.config.Join); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	Logger.Infof("Conflux node %d started, shard %d", s.config.NodeID, raftnode.ShardID)

	s.registerTransportHandler()
	return nil
}

// Serve starts the node and the transport layer.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the node and releases the underlying store.
func (s *rpcServer) Close() error {
	var err error
	if s.node != nil {
		err = s.node.Close()
	}
	if s.store != nil {
		if cerr := s.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
