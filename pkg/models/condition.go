package models

import (
	"encoding/json"
	"fmt"
)

// ConditionType identifies how a condition node is evaluated.
type ConditionType string

const (
	ConditionFieldComparison         ConditionType = "field_comparison"
	ConditionIsAssignedToCurrentUser ConditionType = "is_assigned_to_current_user"
	ConditionIsCreatedByCurrentUser  ConditionType = "is_created_by_current_user"
	ConditionHasCustomer             ConditionType = "has_customer"
	ConditionHasProject              ConditionType = "has_project"
)

// KnownConditionTypes lists every condition type the evaluator handles.
var KnownConditionTypes = []ConditionType{
	ConditionFieldComparison,
	ConditionIsAssignedToCurrentUser,
	ConditionIsCreatedByCurrentUser,
	ConditionHasCustomer,
	ConditionHasProject,
}

// ComparisonOperator is the operator of a field_comparison condition.
type ComparisonOperator string

const (
	OperatorEquals      ComparisonOperator = "equals"
	OperatorNotEquals   ComparisonOperator = "not_equals"
	OperatorGreaterThan ComparisonOperator = "greater_than"
	OperatorLessThan    ComparisonOperator = "less_than"
	OperatorContains    ComparisonOperator = "contains"
)

// FieldComparisonConfig is the decoded config of a field_comparison condition
// node. Value is kept as the raw JSON value; the evaluator coerces it against
// the document field at evaluation time.
type FieldComparisonConfig struct {
	Field    string             `json:"field"    validate:"required"`
	Operator ComparisonOperator `json:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains"`
	Value    any                `json:"value"`
}

// DecodeFieldComparison decodes a condition node's config map into a typed
// FieldComparisonConfig.
func DecodeFieldComparison(config map[string]any) (*FieldComparisonConfig, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition config: %w", err)
	}

	var decoded FieldComparisonConfig
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode field comparison config: %w", err)
	}

	return &decoded, nil
}
