// Package server implements the RPC server for Conflux: it opens the
// persistent store, starts this node's replica of the replicated state
// machine, and binds the node to a transport so clients can reach its
// write/read/admin surface.
//
// The package focuses on:
//   - Dispatching incoming Messages (writes, reads, forwards, admin calls)
//     against the node
//   - The adapter pattern decoupling node logic from RPC mechanics
//   - Per-request-type metrics
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server
//     adapters, with the Handle method that processes incoming requests
//     against a raftnode.Node.
//
//   - NewConfluxNodeServerAdapter: Factory function creating the adapter
//     that decodes Command/Query payloads and routes them to the node's
//     ClientWrite/ClientRead/admin calls.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  NodeID:         1,
//	  DataDir:        "data/node1",
//	  ClusterMembers: map[uint64]string{1: "localhost:63001"},
//	  Endpoint:       "0.0.0.0:8080",
//	  TimeoutSecond:  5,
//	  LogLevel:       "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  raftnode.AllowAll{},
//	  nil, // forwarder; nil answers NotLeader instead of relaying
//	  tcp.NewTCPServerTransport(64*1024),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent
//	requests across multiple connections. Each request is processed
//	independently. The Serve method is not thread-safe and should be called
//	only once.
package server
