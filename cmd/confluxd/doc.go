// Package confluxd implements the command-line interface for Conflux, the
// distributed configuration center:
//
//   - serve: starts a Conflux node and joins it to a Raft shard
//   - config: create/publish/resolve/release operations against a running
//     cluster
//   - admin: membership and leadership operations (add-learner,
//     change-membership, transfer-leadership)
//
// See confluxd -help for the full command tree.
package confluxd
