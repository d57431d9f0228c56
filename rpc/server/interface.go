package server

import (
	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/rpc/common"
)

// IRPCServerAdapter dispatches a decoded Message against a raftnode.Node,
// the narrow seam between the transport layer and the node so either side
// can be swapped independently.
type IRPCServerAdapter interface {
	Handle(req *common.Message, node *raftnode.Node) (resp *common.Message)
}

// MessageHandler handles one already-decoded request.
type MessageHandler func(req *common.Message) (resp *common.Message)

// RegisterMessageHandler registers a MessageHandler with a transport.
type RegisterMessageHandler func(handler MessageHandler)
