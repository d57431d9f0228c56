package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/internal/statemachine"
	"github.com/conflux-sh/conflux/rpc/common"
)

// NewConfluxNodeServerAdapter returns the IRPCServerAdapter that dispatches
// on a Message's MsgType, decoding the statemachine.Command or Query it
// carries and calling through to raftnode.Node's write/read/forward
// surface.
func NewConfluxNodeServerAdapter() IRPCServerAdapter {
	return &confluxNodeServerAdapter{}
}

type confluxNodeServerAdapter struct{}

func (a *confluxNodeServerAdapter) Handle(req *common.Message, node *raftnode.Node) *common.Message {
	if node == nil {
		return common.NewErrorResponse("handler: node is nil")
	}

	subject := raftnode.Subject{ID: req.SubjectID, Labels: req.SubjectLabels}
	ctx := context.Background()

	switch req.MsgType {
	case common.MsgTWrite, common.MsgTForward:
		cmd, err := statemachine.DecodeCommand(req.Payload)
		if err != nil {
			return common.NewErrorResponse(fmt.Sprintf("decode command: %s", err))
		}
		resp, err := node.ClientWrite(ctx, subject, actionForCommand(cmd.Type), resourceForCommand(cmd), cmd)
		if err != nil {
			return common.NewWriteResponse(nil, err)
		}
		payload, err := model.Encode(&resp)
		if err != nil {
			return common.NewErrorResponse(fmt.Sprintf("encode response: %s", err))
		}
		out := common.NewWriteResponse(payload, nil)
		// Echo the request's type so a forwarding follower's response-type
		// check passes for MsgTForward as well as MsgTWrite.
		out.MsgType = req.MsgType
		return out

	case common.MsgTRead:
		var q statemachine.Query
		if err := model.Decode(req.Payload, &q); err != nil {
			return common.NewErrorResponse(fmt.Sprintf("decode query: %s", err))
		}
		result, err := node.ClientRead(ctx, subject, q, raftnode.Consistency(req.Consistency))
		if err != nil {
			return common.NewReadResponse(nil, err)
		}
		payload, err := model.Encode(result)
		if err != nil {
			return common.NewErrorResponse(fmt.Sprintf("encode result: %s", err))
		}
		return common.NewReadResponse(payload, nil)

	case common.MsgTAdmin:
		return a.handleAdmin(ctx, req, node, subject)

	default:
		return common.NewErrorResponse(fmt.Sprintf("confluxNodeServerAdapter: unsupported message type: %s", req.MsgType))
	}
}

func (a *confluxNodeServerAdapter) handleAdmin(ctx context.Context, req *common.Message, node *raftnode.Node, subject raftnode.Subject) *common.Message {
	var areq common.AdminRequest
	if err := json.Unmarshal(req.Payload, &areq); err != nil {
		return common.NewErrorResponse(fmt.Sprintf("decode admin request: %s", err))
	}

	var err error
	var resp common.AdminResponse
	switch areq.Op {
	case "add_learner":
		err = node.AddLearner(ctx, areq.NodeID, areq.Address)
	case "change_membership":
		err = node.ChangeMembership(ctx, subject, areq.NodeID, areq.Address)
	case "remove_member":
		err = node.RemoveMember(ctx, subject, areq.NodeID)
	case "transfer_leadership":
		err = node.TransferLeadership(areq.Target)
	case "metrics":
		var m raftnode.NodeMetrics
		m, err = node.Metrics()
		if err == nil {
			resp.Metrics = &common.NodeMetricsDTO{
				NodeID: m.NodeID, Term: m.Term, IsLeader: m.IsLeader,
				LeaderID: m.LeaderID, LastApplied: m.LastApplied,
			}
		}
	default:
		return common.NewErrorResponse(fmt.Sprintf("unknown admin op: %s", areq.Op))
	}
	if err != nil {
		return common.NewErrorResponse(err.Error())
	}

	payload, merr := json.Marshal(resp)
	if merr != nil {
		return common.NewErrorResponse(fmt.Sprintf("encode admin response: %s", merr))
	}
	return &common.Message{MsgType: common.MsgTAdmin, Payload: payload}
}

// actionForCommand maps a Command variant onto the Authorizer action it
// exercises, so a policy evaluator can tell e.g. release-rule updates from
// plain version creation.
func actionForCommand(t statemachine.CommandType) raftnode.Action {
	switch t {
	case statemachine.CmdCreateConfig:
		return raftnode.ActionCreateConfig
	case statemachine.CmdCreateVersion:
		return raftnode.ActionCreateVersion
	case statemachine.CmdUpdateReleaseRules:
		return raftnode.ActionUpdateReleaseRules
	case statemachine.CmdDeleteConfig:
		return raftnode.ActionDeleteConfig
	case statemachine.CmdPurgeVersions:
		return raftnode.ActionPurgeVersions
	case statemachine.CmdPublish:
		return raftnode.ActionPublish
	case statemachine.CmdApproveProposal, statemachine.CmdRejectProposal:
		return raftnode.ActionDecideProposal
	case statemachine.CmdExecuteProposal:
		return raftnode.ActionExecuteProposal
	default:
		return raftnode.ActionCreateConfig
	}
}

// resourceForCommand names the target a policy evaluator checks the
// subject's access against; namespace/name for creation, numeric config id
// for everything that already has one.
func resourceForCommand(cmd *statemachine.Command) raftnode.Resource {
	if cmd.Type == statemachine.CmdCreateConfig {
		return raftnode.Resource(cmd.Namespace.Key() + "/" + cmd.Name)
	}
	return raftnode.Resource(fmt.Sprintf("config/%d", cmd.ConfigID))
}
