// Package client implements the RPC client for Conflux. It exposes the
// configuration domain's operations as typed methods that communicate with
// remote nodes via the transport and serializer layers.
//
// The package focuses on:
//   - Typed access to command proposals (CreateConfig, CreateVersion,
//     UpdateReleaseRules, DeleteConfig, PurgeVersions, Publish, the release
//     proposal lifecycle) and queries (Resolve, GetConfig, ListVersions,
//     GetVersion)
//   - Admin calls for membership, leadership and node metrics
//   - Client-side idempotency keys, minted once per logical write so retried
//     or forwarded proposals are applied at most once
//   - The LeaderForwarder a follower uses to relay a client write to the
//     current leader
//
// Usage Example:
//
//	cfg := common.ClientConfig{
//	  Endpoints:              []string{"http://localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	c, _ := client.NewConfluxClient(cfg, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//
//	resp, _ := c.CreateConfig(ctx, "alice", model.Namespace{Tenant: "t1", App: "a1", Env: "prod"},
//	  "app.yaml", content, model.FormatYAML, nil, 1)
//
//	res, _ := c.Resolve(ctx, "alice", ns, "app.yaml",
//	  map[string]string{"region": "eu"}, raftnode.Stale)
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing
//     ConnectionsPerEndpoint can improve throughput by allowing parallel
//     requests.
//
//   - For small messages, a single connection per endpoint is often more
//     efficient due to reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary
//     serializer provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The client is thread-safe and can be used concurrently from multiple
//	goroutines without additional synchronization.
package client
