// Package rpc provides the communication layer between Conflux clients and
// nodes, carrying command proposals, queries and admin operations across
// network boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message envelope and configuration structures.
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options
//     (Binary, JSON, GOB) for converting between Message envelopes and byte
//     arrays.
//
//   - client: The typed Conflux client exposing the configuration domain's
//     operations over any transport/serializer pair, plus the leader
//     forwarder nodes use to relay writes.
//
//   - server: The RPC server that binds one Conflux node to a transport,
//     dispatching incoming Messages against its write/read/admin surface.
package rpc
