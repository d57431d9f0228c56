package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conflux-sh/conflux/internal/model"
	"github.com/conflux-sh/conflux/internal/raftnode"
	"github.com/conflux-sh/conflux/internal/statemachine"
	"github.com/conflux-sh/conflux/rpc/common"
	"github.com/conflux-sh/conflux/rpc/serializer"
	"github.com/conflux-sh/conflux/rpc/transport"
)

// NewConfluxClient connects the given transport and wraps it in a typed
// client exposing CreateConfig/CreateVersion/Resolve and the rest of the
// Config domain's operations.
func NewConfluxClient(
	config common.ClientConfig,
	t transport.IRPCClientTransport,
	s serializer.IRPCSerializer,
) (*Client, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}
	return &Client{rpcClientAdapter{
		shardId:    raftnode.ShardID,
		config:     config,
		transport:  t,
		serializer: s,
	}}, nil
}

// Client is Conflux's RPC client wrapper around one raftnode.Node, reached
// over whichever transport/serializer pair the caller configured.
type Client struct {
	rpcClientAdapter
}

func (c *Client) propose(_ context.Context, subjectID string, labels map[string]string, cmd *statemachine.Command) (statemachine.Response, error) {
	var zero statemachine.Response
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = uuid.New().String()
	}
	payload, err := cmd.Encode()
	if err != nil {
		return zero, fmt.Errorf("encode command: %w", err)
	}
	req := common.NewWriteRequest(subjectID, labels, payload)
	resp, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return zero, err
	}
	var out statemachine.Response
	if err := model.Decode(resp.Payload, &out); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func (c *Client) query(_ context.Context, subjectID string, labels map[string]string, consistency raftnode.Consistency, q statemachine.Query, out interface{}) error {
	payload, err := model.Encode(&q)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	req := common.NewReadRequest(subjectID, labels, uint8(consistency), payload)
	resp, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return err
	}
	if err := model.Decode(resp.Payload, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// CreateConfig proposes CmdCreateConfig.
func (c *Client) CreateConfig(ctx context.Context, subjectID string, ns model.Namespace, name string, content []byte, format model.Format, releases []model.Release, creatorID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdCreateConfig, Timestamp: time.Now(),
		Namespace: ns, Name: name, Content: content, Format: format,
		Releases: releases, CreatorID: creatorID,
	})
}

// CreateVersion proposes CmdCreateVersion.
func (c *Client) CreateVersion(ctx context.Context, subjectID string, configID uint64, content []byte, format model.Format, description string, creatorID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdCreateVersion, Timestamp: time.Now(),
		ConfigID: configID, Content: content, Format: format,
		Description: description, CreatorID: creatorID,
	})
}

// UpdateReleaseRules proposes CmdUpdateReleaseRules.
func (c *Client) UpdateReleaseRules(ctx context.Context, subjectID string, configID uint64, releases []model.Release, updaterID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdUpdateReleaseRules, Timestamp: time.Now(),
		ConfigID: configID, Releases: releases, UpdaterID: updaterID,
	})
}

// DeleteConfig proposes CmdDeleteConfig.
func (c *Client) DeleteConfig(ctx context.Context, subjectID string, configID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdDeleteConfig, Timestamp: time.Now(), ConfigID: configID,
	})
}

// PurgeVersions proposes CmdPurgeVersions.
func (c *Client) PurgeVersions(ctx context.Context, subjectID string, versionsByConfig map[uint64][]uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdPurgeVersions, Timestamp: time.Now(), VersionsByConfig: versionsByConfig,
	})
}

// Publish proposes CmdPublish: create a version and update release rules
// atomically.
func (c *Client) Publish(ctx context.Context, subjectID string, configID uint64, content []byte, format model.Format, releases []model.Release, updaterID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdPublish, Timestamp: time.Now(),
		ConfigID: configID, Content: content, Format: format,
		Releases: releases, UpdaterID: updaterID,
	})
}

// ApproveProposal/RejectProposal/ExecuteProposal proxy the release
// proposal lifecycle commands.
func (c *Client) ApproveProposal(ctx context.Context, subjectID string, proposalID, approverID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdApproveProposal, Timestamp: time.Now(), ProposalID: proposalID, ApproverID: approverID,
	})
}

func (c *Client) RejectProposal(ctx context.Context, subjectID string, proposalID, approverID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdRejectProposal, Timestamp: time.Now(), ProposalID: proposalID, ApproverID: approverID,
	})
}

func (c *Client) ExecuteProposal(ctx context.Context, subjectID string, proposalID uint64) (statemachine.Response, error) {
	return c.propose(ctx, subjectID, nil, &statemachine.Command{
		Type: statemachine.CmdExecuteProposal, Timestamp: time.Now(), ProposalID: proposalID,
	})
}

// Resolve answers a client's "which version applies to me" question at the
// requested consistency level.
func (c *Client) Resolve(ctx context.Context, subjectID string, ns model.Namespace, name string, clientLabels map[string]string, consistency raftnode.Consistency) (statemachine.ResolveResult, error) {
	var out statemachine.ResolveResult
	err := c.query(ctx, subjectID, clientLabels, consistency, statemachine.Query{
		Type: statemachine.QueryResolve, Namespace: ns, Name: name, ClientLabels: clientLabels,
	}, &out)
	return out, err
}

// GetConfig fetches one Config's metadata by id.
func (c *Client) GetConfig(ctx context.Context, subjectID string, configID uint64, consistency raftnode.Consistency) (statemachine.GetConfigResult, error) {
	var out statemachine.GetConfigResult
	err := c.query(ctx, subjectID, nil, consistency, statemachine.Query{
		Type: statemachine.QueryGetConfig, ConfigID: configID,
	}, &out)
	return out, err
}

// ListVersions pages through a Config's version history.
func (c *Client) ListVersions(ctx context.Context, subjectID string, configID, cursor uint64, limit int, consistency raftnode.Consistency) (statemachine.ListVersionsResult, error) {
	var out statemachine.ListVersionsResult
	err := c.query(ctx, subjectID, nil, consistency, statemachine.Query{
		Type: statemachine.QueryListVersions, ConfigID: configID, Cursor: cursor, Limit: limit,
	}, &out)
	return out, err
}

// GetVersion fetches one immutable ConfigVersion by id.
func (c *Client) GetVersion(ctx context.Context, subjectID string, configID, versionID uint64, consistency raftnode.Consistency) (statemachine.GetVersionResult, error) {
	var out statemachine.GetVersionResult
	err := c.query(ctx, subjectID, nil, consistency, statemachine.Query{
		Type: statemachine.QueryGetVersion, ConfigID: configID, VersionID: versionID,
	}, &out)
	return out, err
}

func (c *Client) admin(subjectID string, areq common.AdminRequest) (common.AdminResponse, error) {
	var zero common.AdminResponse
	req, err := common.NewAdminRequest(subjectID, areq)
	if err != nil {
		return zero, fmt.Errorf("encode admin request: %w", err)
	}
	resp, err := invokeRPCRequest(c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return zero, err
	}
	var out common.AdminResponse
	if len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, &out); err != nil {
			return zero, fmt.Errorf("decode admin response: %w", err)
		}
	}
	return out, nil
}

// AddLearner stages nodeID at address as a non-voting member.
func (c *Client) AddLearner(_ context.Context, subjectID string, nodeID uint64, address string) error {
	_, err := c.admin(subjectID, common.AdminRequest{Op: "add_learner", NodeID: nodeID, Address: address})
	return err
}

// ChangeMembership promotes nodeID at address to a full voting member.
func (c *Client) ChangeMembership(_ context.Context, subjectID string, nodeID uint64, address string) error {
	_, err := c.admin(subjectID, common.AdminRequest{Op: "change_membership", NodeID: nodeID, Address: address})
	return err
}

// RemoveMember removes nodeID from the voting set.
func (c *Client) RemoveMember(_ context.Context, subjectID string, nodeID uint64) error {
	_, err := c.admin(subjectID, common.AdminRequest{Op: "remove_member", NodeID: nodeID})
	return err
}

// TransferLeadership asks the cluster to move leadership to target.
func (c *Client) TransferLeadership(_ context.Context, subjectID string, target uint64) error {
	_, err := c.admin(subjectID, common.AdminRequest{Op: "transfer_leadership", Target: target})
	return err
}

// Metrics fetches the contacted node's observability snapshot.
func (c *Client) Metrics(_ context.Context, subjectID string) (common.NodeMetricsDTO, error) {
	resp, err := c.admin(subjectID, common.AdminRequest{Op: "metrics"})
	if err != nil {
		return common.NodeMetricsDTO{}, err
	}
	if resp.Metrics == nil {
		return common.NodeMetricsDTO{}, fmt.Errorf("admin metrics response missing metrics")
	}
	return *resp.Metrics, nil
}
