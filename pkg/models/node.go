// Package models defines core node-based workflow models for graph execution
package models

// NodeKind discriminates the three node variants of the automation graph.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindCondition NodeKind = "condition"
	NodeKindAction    NodeKind = "action"
)

// Branch labels used on a condition node's outgoing connections.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// WorkflowNode represents a node instance in a workflow. The Kind field selects
// which of the kind-specific fields is meaningful: TriggerType for triggers,
// ConditionType (plus Config for field comparisons) for conditions, and
// ActionType plus Config for actions. Position is presentation state only.
type WorkflowNode struct {
	ID            string         `json:"id"   validate:"required"`
	Kind          NodeKind       `json:"kind" validate:"required,oneof=trigger condition action"`
	Name          string         `json:"name"`
	TriggerType   TriggerType    `json:"trigger_type,omitempty"`
	ConditionType ConditionType  `json:"condition_type,omitempty"`
	ActionType    ActionType     `json:"action_type,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
	PositionX     int            `json:"position_x"`
	PositionY     int            `json:"position_y"`
}

func (n *WorkflowNode) IsTrigger() bool {
	return n.Kind == NodeKindTrigger
}

func (n *WorkflowNode) IsCondition() bool {
	return n.Kind == NodeKindCondition
}

func (n *WorkflowNode) IsAction() bool {
	return n.Kind == NodeKindAction
}

// Connection is a directed edge between two nodes. Label carries the branch
// selector ("true"/"false") on edges leaving a condition node; SourceHandle and
// TargetHandle are editor-assigned port names and have no runtime meaning.
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// BranchLabel resolves the branch selector for a connection, falling back to
// the source handle when the editor stored it there instead of the label.
func (c *Connection) BranchLabel() string {
	if c.Label != "" {
		return c.Label
	}

	return c.SourceHandle
}
