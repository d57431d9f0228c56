package client

import (
	"context"
	"fmt"

	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/rpc/common"
	"github.com/conflux-sh/conflux/rpc/serializer"
	"github.com/conflux-sh/conflux/rpc/transport"
)

// LeaderForwarder implements raftnode.Forwarder over the same transport/
// serializer pair the regular client uses: a follower hands it the leader's
// raft address and the already-encoded command, and it relays the command as
// a MsgTForward envelope to that peer's RPC endpoint. The raft address and
// the RPC endpoint are distinct listeners on the same node, so the mapping
// between them is part of this type's construction.
type LeaderForwarder struct {
	// endpoints maps a peer's raft address to its RPC endpoint.
	endpoints map[string]string

	newTransport func() transport.IRPCClientTransport
	serializer   serializer.IRPCSerializer
	config       common.ClientConfig
}

// NewLeaderForwarder builds a forwarder for the given raft-address →
// RPC-endpoint map. newTransport is called once per distinct peer, lazily,
// since most forwards target whichever single node currently leads.
func NewLeaderForwarder(
	endpoints map[string]string,
	config common.ClientConfig,
	newTransport func() transport.IRPCClientTransport,
	s serializer.IRPCSerializer,
) *LeaderForwarder {
	return &LeaderForwarder{
		endpoints:    endpoints,
		newTransport: newTransport,
		serializer:   s,
		config:       config,
	}
}

func (f *LeaderForwarder) Forward(_ context.Context, address string, payload []byte) ([]byte, error) {
	endpoint, ok := f.endpoints[address]
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint known for peer %s", address)
	}

	t := f.newTransport()
	cfg := f.config
	cfg.Endpoints = []string{endpoint}
	if err := t.Connect(cfg); err != nil {
		return nil, fmt.Errorf("connect to leader at %s: %w", endpoint, err)
	}
	defer func() { _ = t.Close() }()

	resp, err := invokeRPCRequest(raftnode.ShardID, common.NewForwardRequest(payload), t, f.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

var _ raftnode.Forwarder = (*LeaderForwarder)(nil)
