package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message is the single envelope used for both requests and responses. It
// carries an opaque, already-encoded domain payload instead of
// per-operation fields: Conflux's operations (nine Command variants, four
// Query variants, three membership calls) would otherwise need a field for
// every one of them. Payload holds
// the gob bytes of a statemachine.Command, statemachine.Query or
// statemachine.Response/Lookup result, produced with model.Encode the same
// way the state machine persists them, so the wire format and the Raft log
// format never drift apart.
type Message struct {
	MsgType MessageType `json:"msg_type"`

	// SubjectID and SubjectLabels identify the caller for the node's
	// Authorizer hook (internal/raftnode.Subject); empty means the anonymous
	// subject under whatever Authorizer is configured.
	SubjectID     string            `json:"subject_id,omitempty"`
	SubjectLabels map[string]string `json:"subject_labels,omitempty"`

	// Consistency selects client_read's consistency level for MsgTRead
	// requests (internal/raftnode.Consistency); ignored for writes.
	Consistency uint8 `json:"consistency,omitempty"`

	Payload []byte `json:"payload,omitempty"`
	Err     string `json:"err,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewWriteRequest wraps an encoded statemachine.Command for proposal.
func NewWriteRequest(subjectID string, subjectLabels map[string]string, cmdPayload []byte) *Message {
	return &Message{
		MsgType:       MsgTWrite,
		SubjectID:     subjectID,
		SubjectLabels: subjectLabels,
		Payload:       cmdPayload,
	}
}

// NewWriteResponse wraps an encoded statemachine.Response, or an error.
func NewWriteResponse(respPayload []byte, err error) *Message {
	msg := &Message{MsgType: MsgTWrite, Payload: respPayload}
	if err != nil {
		msg.MsgType = MsgTError
		msg.Err = err.Error()
	}
	return msg
}

// NewReadRequest wraps an encoded statemachine.Query at the given
// consistency level.
func NewReadRequest(subjectID string, subjectLabels map[string]string, consistency uint8, queryPayload []byte) *Message {
	return &Message{
		MsgType:       MsgTRead,
		SubjectID:     subjectID,
		SubjectLabels: subjectLabels,
		Consistency:   consistency,
		Payload:       queryPayload,
	}
}

// NewReadResponse wraps an encoded Lookup result, or an error.
func NewReadResponse(resultPayload []byte, err error) *Message {
	msg := &Message{MsgType: MsgTRead, Payload: resultPayload}
	if err != nil {
		msg.MsgType = MsgTError
		msg.Err = err.Error()
	}
	return msg
}

// NewForwardRequest wraps an already-encoded Command being forwarded to the
// believed leader (internal/raftnode.Forwarder). The receiving node admits
// it like any other write, so a forwarded command passes the leader's own
// rate limit and authorization as well as the originating node's.
func NewForwardRequest(cmdPayload []byte) *Message {
	return &Message{MsgType: MsgTForward, Payload: cmdPayload}
}

// NewErrorResponse creates a bare error response.
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// NewAdminRequest wraps a JSON-encoded AdminRequest for a membership or
// leadership operation (add_learner, change_membership, remove_member,
// transfer_leadership, metrics). These are rare, operator-driven calls, so
// a small JSON envelope is clearer than adding five more gob-encoded
// payload shapes next to Command/Query.
func NewAdminRequest(subjectID string, req AdminRequest) (*Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: MsgTAdmin, SubjectID: subjectID, Payload: payload}, nil
}

// AdminRequest is the JSON payload carried by MsgTAdmin messages.
type AdminRequest struct {
	Op      string `json:"op"`
	NodeID  uint64 `json:"node_id,omitempty"`
	Address string `json:"address,omitempty"`
	Target  uint64 `json:"target,omitempty"`
}

// AdminResponse is the JSON payload carried by MsgTAdmin responses that
// don't error; Metrics is only populated for the "metrics" op.
type AdminResponse struct {
	Metrics *NodeMetricsDTO `json:"metrics,omitempty"`
}

// NodeMetricsDTO mirrors internal/raftnode.NodeMetrics for the wire, with
// JSON tags on its five scalar fields for the admin payload.
type NodeMetricsDTO struct {
	NodeID      uint64 `json:"node_id"`
	Term        uint64 `json:"term"`
	IsLeader    bool   `json:"is_leader"`
	LeaderID    uint64 `json:"leader_id"`
	LastApplied uint64 `json:"last_applied"`
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

const (
	MsgTUnknown MessageType = iota
	MsgTError               // Indicates an error occurred
	MsgTWrite               // A proposed Command / its Response
	MsgTRead                // A Query / its Lookup result
	MsgTForward             // A Command forwarded to the believed leader
	MsgTAdmin               // A membership/leadership/metrics operator call
)

func (t MessageType) String() string {
	switch t {
	case MsgTError:
		return "error"
	case MsgTWrite:
		return "write"
	case MsgTRead:
		return "read"
	case MsgTForward:
		return "forward"
	case MsgTAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "error":
		*t = MsgTError
	case "write":
		*t = MsgTWrite
	case "read":
		*t = MsgTRead
	case "forward":
		*t = MsgTForward
	case "admin":
		*t = MsgTAdmin
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}
	return nil
}
