// Package common provides core data structures and utilities shared across
// Conflux's RPC system. It defines fundamental types, configuration
// structures, and protocol elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for inter-component communication
//   - Configuration structures for client and server components
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication between
//     components, carrying an opaque encoded Command/Query/Response payload
//     plus subject identity and read consistency. Includes factory methods
//     for creating various request and response messages.
//
//   - MessageType: Enumeration defining the supported envelope types:
//     writes, reads, leader forwards, admin calls, and errors.
//
//   - ServerConfig: Comprehensive configuration for server nodes, including
//     Raft parameters, storage settings, network configuration, and the RPC
//     endpoint. Provides the translation into the node's own configuration.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters, timeouts, and retry behavior.
package common
