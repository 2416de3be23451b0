// Package condition evaluates condition nodes against the triggering event.
// Evaluation is pure and fail-closed: any defect in the node configuration or
// the document resolves to false with a logged warning, never an error that
// would abort the execution.
package condition

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jobdeck/automation/pkg/events"
	"github.com/jobdeck/automation/pkg/models"
)

type Evaluator struct {
	logger *slog.Logger
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "condition_evaluator"),
	}
}

// Evaluate resolves a condition node to its branch selector.
func (e *Evaluator) Evaluate(node *models.WorkflowNode, event *events.TriggerEvent) bool {
	if !node.IsCondition() {
		e.logger.Warn("Evaluate called on non-condition node", "node_id", node.ID, "kind", node.Kind)

		return false
	}

	switch node.ConditionType {
	case models.ConditionFieldComparison:
		return e.evaluateFieldComparison(node, event)
	case models.ConditionIsAssignedToCurrentUser:
		return e.actorMatchesField(event, events.DocumentFieldAssignedTo)
	case models.ConditionIsCreatedByCurrentUser:
		return e.actorMatchesField(event, events.DocumentFieldCreatedBy)
	case models.ConditionHasCustomer:
		return e.hasReference(event, events.DocumentFieldCustomerID)
	case models.ConditionHasProject:
		return e.hasReference(event, events.DocumentFieldProjectID)
	default:
		e.logger.Warn("Unknown condition type, failing closed",
			"node_id", node.ID,
			"condition_type", node.ConditionType)

		return false
	}
}

func (e *Evaluator) evaluateFieldComparison(node *models.WorkflowNode, event *events.TriggerEvent) bool {
	config, err := models.DecodeFieldComparison(node.Config)
	if err != nil {
		e.logger.Warn("Invalid field comparison config, failing closed", "node_id", node.ID, "error", err)

		return false
	}

	if config.Field == "" {
		e.logger.Warn("Field comparison without field, failing closed", "node_id", node.ID)

		return false
	}

	actual, ok := event.DocumentField(config.Field)
	if !ok {
		e.logger.Warn("Document field not present, failing closed",
			"node_id", node.ID,
			"field", config.Field)

		return false
	}

	switch config.Operator {
	case models.OperatorEquals:
		return valuesEqual(actual, config.Value)
	case models.OperatorNotEquals:
		return !valuesEqual(actual, config.Value)
	case models.OperatorGreaterThan, models.OperatorLessThan:
		left, leftOK := toNumber(actual)
		right, rightOK := toNumber(config.Value)

		if !leftOK || !rightOK {
			e.logger.Warn("Non-numeric operand for numeric comparison, failing closed",
				"node_id", node.ID,
				"field", config.Field,
				"operator", config.Operator)

			return false
		}

		if config.Operator == models.OperatorGreaterThan {
			return left > right
		}

		return left < right
	case models.OperatorContains:
		return strings.Contains(toString(actual), toString(config.Value))
	default:
		e.logger.Warn("Unknown comparison operator, failing closed",
			"node_id", node.ID,
			"operator", config.Operator)

		return false
	}
}

func (e *Evaluator) actorMatchesField(event *events.TriggerEvent, field string) bool {
	if event.ActorUserID == "" {
		return false
	}

	value, ok := event.DocumentField(field)
	if !ok {
		return false
	}

	return toString(value) == event.ActorUserID
}

func (e *Evaluator) hasReference(event *events.TriggerEvent, field string) bool {
	value, ok := event.DocumentField(field)
	if !ok || value == nil {
		return false
	}

	return toString(value) != ""
}

// valuesEqual compares after coercing both sides to the same type: numeric
// comparison when both sides are numeric, case-sensitive string comparison
// otherwise.
func valuesEqual(left, right any) bool {
	leftNum, leftOK := toNumber(left)
	rightNum, rightOK := toNumber(right)

	if leftOK && rightOK {
		return leftNum == rightNum
	}

	return toString(left) == toString(right)
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()

		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
