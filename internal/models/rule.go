package models

import (
	"fmt"
	"strings"
	"time"
)

// RuleField names a bank transaction field a condition can inspect.
type RuleField string

const (
	FieldAmount      RuleField = "amount"
	FieldDate        RuleField = "date"
	FieldDescription RuleField = "description"
	FieldReference   RuleField = "reference"
)

// IsValid checks the field name.
func (f RuleField) IsValid() bool {
	switch f {
	case FieldAmount, FieldDate, FieldDescription, FieldReference:
		return true
	}
	return false
}

// RuleOperator is a comparison applied by a condition.
type RuleOperator string

const (
	OpEquals      RuleOperator = "equals"
	OpContains    RuleOperator = "contains"
	OpGreaterThan RuleOperator = "greater_than"
	OpLessThan    RuleOperator = "less_than"
	OpBetween     RuleOperator = "between"
)

// IsValid checks the operator value.
func (o RuleOperator) IsValid() bool {
	switch o {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpBetween:
		return true
	}
	return false
}

// IsNumeric reports whether the operator compares ordered values. Numeric
// operators fail closed on unparseable operands rather than erroring.
func (o RuleOperator) IsNumeric() bool {
	return o == OpGreaterThan || o == OpLessThan || o == OpBetween
}

// RuleCondition is one predicate of a rule. SecondValue is only used by the
// between operator (inclusive on both ends).
type RuleCondition struct {
	Field       RuleField    `json:"field" mapstructure:"field"`
	Operator    RuleOperator `json:"operator" mapstructure:"operator"`
	Value       string       `json:"value" mapstructure:"value"`
	SecondValue string       `json:"second_value,omitempty" mapstructure:"second_value"`
}

// Validate checks the condition shape.
func (c *RuleCondition) Validate() error {
	if !c.Field.IsValid() {
		return fmt.Errorf("invalid rule field: %s", c.Field)
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("invalid rule operator: %s", c.Operator)
	}
	if strings.TrimSpace(c.Value) == "" {
		return fmt.Errorf("rule condition value cannot be empty")
	}
	if c.Operator == OpBetween && strings.TrimSpace(c.SecondValue) == "" {
		return fmt.Errorf("between operator requires a second value")
	}
	if c.Operator == OpContains && c.Field == FieldAmount {
		return fmt.Errorf("contains operator cannot apply to the amount field")
	}
	return nil
}

// RuleActionType names what a matching rule does to a transaction.
type RuleActionType string

const (
	// ActionAutoMatch binds the transaction to a specific book transaction.
	// It is exclusive: the first auto_match that fires consumes the
	// transaction and stops further rule evaluation.
	ActionAutoMatch RuleActionType = "auto_match"
	// ActionCategorize assigns a category. Cumulative across rules.
	ActionCategorize RuleActionType = "categorize"
	// ActionFlag attaches a review label. Cumulative across rules.
	ActionFlag RuleActionType = "flag"
)

// IsValid checks the action type.
func (t RuleActionType) IsValid() bool {
	return t == ActionAutoMatch || t == ActionCategorize || t == ActionFlag
}

// RuleAction is one effect of a rule. Value holds the category name, flag
// label, or target book transaction ID depending on the type.
type RuleAction struct {
	Type RuleActionType `json:"type" mapstructure:"type"`
	// Value is action-specific: category for categorize, label for flag,
	// book transaction ID for auto_match.
	Value string `json:"value" mapstructure:"value"`
	// Confidence is the match confidence an auto_match binds at (0-100).
	Confidence int `json:"confidence,omitempty" mapstructure:"confidence"`
}

// Validate checks the action shape.
func (a *RuleAction) Validate() error {
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid rule action type: %s", a.Type)
	}
	if strings.TrimSpace(a.Value) == "" {
		return fmt.Errorf("rule action value cannot be empty")
	}
	if a.Type == ActionAutoMatch && (a.Confidence < 0 || a.Confidence > 100) {
		return fmt.Errorf("auto_match confidence must be between 0 and 100: %d", a.Confidence)
	}
	return nil
}

// ReconciliationRule is a user-defined automation rule. Rules run in
// ascending Priority order; all conditions must hold for a rule to apply.
type ReconciliationRule struct {
	ID         string          `json:"id" mapstructure:"id"`
	Name       string          `json:"name" mapstructure:"name"`
	Conditions []RuleCondition `json:"conditions" mapstructure:"conditions"`
	Actions    []RuleAction    `json:"actions" mapstructure:"actions"`
	IsActive   bool            `json:"is_active" mapstructure:"is_active"`
	Priority   int             `json:"priority" mapstructure:"priority"` // lower runs first
	MatchCount int64           `json:"match_count" mapstructure:"-"`
	CreatedAt  time.Time       `json:"created_at" mapstructure:"-"`
	UpdatedAt  time.Time       `json:"updated_at" mapstructure:"-"`
}

// Validate checks the rule shape.
func (r *ReconciliationRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %q must define at least one condition", r.Name)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %q must define at least one action", r.Name)
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("rule %q condition %d: %w", r.Name, i, err)
		}
	}
	for i := range r.Actions {
		if err := r.Actions[i].Validate(); err != nil {
			return fmt.Errorf("rule %q action %d: %w", r.Name, i, err)
		}
	}
	return nil
}

// HasAutoMatch reports whether any action is an auto_match.
func (r *ReconciliationRule) HasAutoMatch() bool {
	for _, a := range r.Actions {
		if a.Type == ActionAutoMatch {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *ReconciliationRule) Clone() *ReconciliationRule {
	c := *r
	c.Conditions = append([]RuleCondition(nil), r.Conditions...)
	c.Actions = append([]RuleAction(nil), r.Actions...)
	return &c
}
