// Package validation performs the static analysis a workflow must pass
// before it may be activated. It reports typed issues; only error-severity
// issues block activation.
package validation

import (
	"fmt"
	"log/slog"

	"github.com/jobdeck/automation/pkg/graph"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/registry"
	"github.com/xeipuuv/gojsonschema"
)

// Severity distinguishes blocking errors from advisory warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding against a workflow graph. NodeID is empty for
// workflow-level findings.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	Message  string   `json:"message"`
}

// IsValid reports whether a set of issues permits activation: warnings do
// not block, errors do.
func IsValid(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return false
		}
	}

	return true
}

type Validator struct {
	logger   *slog.Logger
	registry *registry.Registry
}

func NewValidator(logger *slog.Logger, registry *registry.Registry) *Validator {
	return &Validator{
		logger:   logger.With("module", "validator"),
		registry: registry,
	}
}

// Validate builds the graph and checks every structural and semantic rule.
// A structurally broken workflow (duplicate ids, dangling edges) fails fast
// with a graph.MalformedGraphError instead of producing issues.
func (v *Validator) Validate(workflow *models.Workflow) ([]Issue, error) {
	g, err := graph.Build(workflow)
	if err != nil {
		return nil, err
	}

	issues := make([]Issue, 0)

	trigger := v.checkTrigger(workflow, g, &issues)

	for _, node := range g.Nodes() {
		switch node.Kind {
		case models.NodeKindTrigger:
			// Handled by checkTrigger.
		case models.NodeKindCondition:
			v.checkCondition(node, g, &issues)
		case models.NodeKindAction:
			v.checkAction(node, g, &issues)
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("unknown node kind %q", node.Kind),
			})
		}
	}

	if trigger != nil {
		v.checkReachability(trigger, g, &issues)
	}

	return issues, nil
}

// checkTrigger enforces the trigger invariants and returns the trigger node
// when it is unique.
func (v *Validator) checkTrigger(workflow *models.Workflow, g *graph.Graph, issues *[]Issue) *models.WorkflowNode {
	var triggers []*models.WorkflowNode

	for _, node := range g.Nodes() {
		if node.IsTrigger() {
			triggers = append(triggers, node)
		}
	}

	if len(triggers) == 0 {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			Message:  "workflow has no trigger node",
		})

		return nil
	}

	if len(triggers) > 1 {
		for _, extra := range triggers[1:] {
			*issues = append(*issues, Issue{
				Severity: SeverityError,
				NodeID:   extra.ID,
				Message:  "workflow must have exactly one trigger node",
			})
		}

		return nil
	}

	trigger := triggers[0]

	if trigger.TriggerType != workflow.TriggerType {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   trigger.ID,
			Message: fmt.Sprintf("trigger node type %q does not match workflow trigger type %q",
				trigger.TriggerType, workflow.TriggerType),
		})
	}

	if len(g.Incoming(trigger.ID)) > 0 {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   trigger.ID,
			Message:  "trigger node must not have incoming connections",
		})
	}

	// The execution walk assumes a single linear start; parallel branches
	// from the trigger are not supported.
	switch outgoing := g.Outgoing(trigger.ID); len(outgoing) {
	case 0:
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   trigger.ID,
			Message:  "trigger node has no outgoing connection",
		})
	case 1:
		// ok
	default:
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   trigger.ID,
			Message:  fmt.Sprintf("trigger node must have exactly one outgoing connection, found %d", len(outgoing)),
		})
	}

	return trigger
}

func (v *Validator) checkCondition(node *models.WorkflowNode, g *graph.Graph, issues *[]Issue) {
	known := false

	for _, conditionType := range models.KnownConditionTypes {
		if node.ConditionType == conditionType {
			known = true

			break
		}
	}

	if !known {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  fmt.Sprintf("unknown condition type %q", node.ConditionType),
		})

		return
	}

	if node.ConditionType == models.ConditionFieldComparison {
		config, err := models.DecodeFieldComparison(node.Config)
		if err != nil {
			*issues = append(*issues, Issue{
				Severity: SeverityError,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("invalid field comparison config: %v", err),
			})
		} else {
			if config.Field == "" {
				*issues = append(*issues, Issue{
					Severity: SeverityError,
					NodeID:   node.ID,
					Message:  "field comparison requires a field",
				})
			}

			if !knownOperator(config.Operator) {
				*issues = append(*issues, Issue{
					Severity: SeverityError,
					NodeID:   node.ID,
					Message:  fmt.Sprintf("unknown comparison operator %q", config.Operator),
				})
			}
		}
	}

	// Exactly two outgoing edges, one per branch, and nothing else.
	hasTrue := g.OutgoingBranch(node.ID, models.BranchTrue) != nil
	hasFalse := g.OutgoingBranch(node.ID, models.BranchFalse) != nil

	if !hasTrue {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  "condition node is missing its true branch connection",
		})
	}

	if !hasFalse {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  "condition node is missing its false branch connection",
		})
	}

	for _, conn := range g.Outgoing(node.ID) {
		if label := conn.BranchLabel(); label != models.BranchTrue && label != models.BranchFalse {
			*issues = append(*issues, Issue{
				Severity: SeverityError,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("condition branch label %q is not %q or %q", label, models.BranchTrue, models.BranchFalse),
			})
		}
	}

	if len(g.Outgoing(node.ID)) > 2 {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  "condition node must have exactly two outgoing connections",
		})
	}
}

func (v *Validator) checkAction(node *models.WorkflowNode, g *graph.Graph, issues *[]Issue) {
	schema, registered := v.registry.Schema(string(node.ActionType))
	if !registered {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  fmt.Sprintf("unknown action type %q", node.ActionType),
		})

		return
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  fmt.Sprintf("failed to check %s config: %v", node.ActionType, err),
		})

		return
	}

	if !result.Valid() {
		for _, schemaErr := range result.Errors() {
			*issues = append(*issues, Issue{
				Severity: SeverityError,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("%s config: %s", node.ActionType, schemaErr.String()),
			})
		}
	}

	if _, err := models.DecodeActionConfig(node.ActionType, config); err != nil {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  err.Error(),
		})
	}

	v.checkActionRecommendations(node, issues)

	// Actions advance along at most one edge.
	if len(g.Outgoing(node.ID)) > 1 {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   node.ID,
			Message:  "action node must have at most one outgoing connection",
		})
	}
}

// checkActionRecommendations surfaces non-blocking advice for optional
// fields the author probably wants to fill.
func (v *Validator) checkActionRecommendations(node *models.WorkflowNode, issues *[]Issue) {
	switch node.ActionType {
	case models.ActionSendEmail, models.ActionSendHelpdeskEmail:
		message, _ := node.Config["message"].(string)
		if message == "" {
			*issues = append(*issues, Issue{
				Severity: SeverityWarning,
				NodeID:   node.ID,
				Message:  "email message is empty",
			})
		}
	case models.ActionCreateProject, models.ActionCreateServiceOrder, models.ActionCreateInvoice,
		models.ActionCreateTask, models.ActionCreateChecklist, models.ActionCreateNote:
		description, _ := node.Config["description"].(string)
		if description == "" {
			*issues = append(*issues, Issue{
				Severity: SeverityWarning,
				NodeID:   node.ID,
				Message:  "record description is empty",
			})
		}
	}
}

// checkReachability flags unreachable nodes and cycles relative to the
// trigger node.
func (v *Validator) checkReachability(trigger *models.WorkflowNode, g *graph.Graph, issues *[]Issue) {
	reachable := g.ReachableFrom(trigger.ID)

	for _, node := range g.Nodes() {
		if !reachable[node.ID] {
			*issues = append(*issues, Issue{
				Severity: SeverityWarning,
				NodeID:   node.ID,
				Message:  "Unused node",
			})
		}
	}

	if found, offender := g.HasCycleFrom(trigger.ID); found {
		*issues = append(*issues, Issue{
			Severity: SeverityError,
			NodeID:   offender,
			Message:  "cycle detected in workflow graph",
		})
	}
}

func knownOperator(op models.ComparisonOperator) bool {
	switch op {
	case models.OperatorEquals, models.OperatorNotEquals,
		models.OperatorGreaterThan, models.OperatorLessThan, models.OperatorContains:
		return true
	default:
		return false
	}
}
