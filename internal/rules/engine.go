// Package rules evaluates user-defined automation rules against bank
// transactions before and alongside matching.
//
// Rules run in ascending priority order over an immutable snapshot taken at
// the start of a match run, so concurrent rule edits are never observed
// mid-evaluation. Amount conditions compare against the unsigned magnitude
// of the transaction; numeric operators fail closed (treated as non-match)
// when an operand does not parse, rather than erroring.
package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/models"
)

// AutoMatch is the exclusive outcome binding a transaction to a specific
// book transaction at a rule-specified confidence.
type AutoMatch struct {
	RuleID            string
	BookTransactionID string
	Confidence        int
}

// Outcome is the combined effect of rule evaluation on one transaction.
// Categories and Flags accumulate across non-exclusive rules; AutoMatch is
// set by at most one rule and ends evaluation.
type Outcome struct {
	AutoMatch  *AutoMatch
	Categories []string
	Flags      []string
}

// IsEmpty reports whether no rule affected the transaction.
func (o *Outcome) IsEmpty() bool {
	return o.AutoMatch == nil && len(o.Categories) == 0 && len(o.Flags) == 0
}

// Snapshot is an immutable, priority-ordered view of the active rules.
// Match-count telemetry accumulates on the snapshot and is folded back to
// the rule store only after a run commits, so cancelled runs bump nothing.
type Snapshot struct {
	rules  []*models.ReconciliationRule
	counts map[string]int64
}

// NewSnapshot clones the active rules and orders them for evaluation:
// ascending priority, then rule ID for determinism between equal priorities.
func NewSnapshot(all []*models.ReconciliationRule) *Snapshot {
	active := make([]*models.ReconciliationRule, 0, len(all))
	for _, r := range all {
		if r.IsActive {
			active = append(active, r.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})
	return &Snapshot{rules: active, counts: make(map[string]int64)}
}

// Len returns the number of active rules in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.rules)
}

// MatchCounts returns how many transactions each rule affected during this
// snapshot's lifetime, keyed by rule ID.
func (s *Snapshot) MatchCounts() map[string]int64 {
	out := make(map[string]int64, len(s.counts))
	for id, n := range s.counts {
		out[id] = n
	}
	return out
}

// Evaluate applies the snapshot's rules to one transaction.
//
// Rules run strictly in snapshot order. A rule whose conditions all hold
// applies its actions: categorize and flag accumulate; the first auto_match
// fires exclusively and terminates evaluation. A rule's match count is
// bumped at most once per transaction regardless of how many of its actions
// applied.
func (s *Snapshot) Evaluate(tx *models.BankTransaction) Outcome {
	var outcome Outcome

	for _, rule := range s.rules {
		if !conditionsHold(rule.Conditions, tx) {
			continue
		}

		affected := false
		exclusive := false
		for _, action := range rule.Actions {
			switch action.Type {
			case models.ActionCategorize:
				outcome.Categories = append(outcome.Categories, action.Value)
				affected = true
			case models.ActionFlag:
				outcome.Flags = append(outcome.Flags, action.Value)
				affected = true
			case models.ActionAutoMatch:
				if outcome.AutoMatch == nil {
					outcome.AutoMatch = &AutoMatch{
						RuleID:            rule.ID,
						BookTransactionID: action.Value,
						Confidence:        action.Confidence,
					}
					affected = true
					exclusive = true
				}
			}
		}

		if affected {
			s.counts[rule.ID]++
		}
		if exclusive {
			break
		}
	}

	return outcome
}

func conditionsHold(conditions []models.RuleCondition, tx *models.BankTransaction) bool {
	for i := range conditions {
		if !conditionHolds(&conditions[i], tx) {
			return false
		}
	}
	return true
}

func conditionHolds(c *models.RuleCondition, tx *models.BankTransaction) bool {
	switch c.Field {
	case models.FieldAmount:
		return amountConditionHolds(c, tx.AbsAmount())
	case models.FieldDate:
		return dateConditionHolds(c, models.DateOnly(tx.Date))
	case models.FieldDescription:
		return textConditionHolds(c, tx.Description)
	case models.FieldReference:
		return textConditionHolds(c, tx.Reference)
	default:
		return false
	}
}

func amountConditionHolds(c *models.RuleCondition, amount decimal.Decimal) bool {
	value, err := models.ParseAmount(c.Value)
	if err != nil {
		return false // fail closed
	}

	switch c.Operator {
	case models.OpEquals:
		return amount.Equal(value.Abs())
	case models.OpGreaterThan:
		return amount.GreaterThan(value.Abs())
	case models.OpLessThan:
		return amount.LessThan(value.Abs())
	case models.OpBetween:
		upper, err := models.ParseAmount(c.SecondValue)
		if err != nil {
			return false
		}
		lo, hi := value.Abs(), upper.Abs()
		if lo.GreaterThan(hi) {
			lo, hi = hi, lo
		}
		return amount.GreaterThanOrEqual(lo) && amount.LessThanOrEqual(hi)
	default:
		return false
	}
}

func dateConditionHolds(c *models.RuleCondition, txDate time.Time) bool {
	value, err := time.Parse("2006-01-02", strings.TrimSpace(c.Value))
	if err != nil {
		return false // fail closed
	}
	value = models.DateOnly(value)

	switch c.Operator {
	case models.OpEquals:
		return txDate.Equal(value)
	case models.OpGreaterThan:
		return txDate.After(value)
	case models.OpLessThan:
		return txDate.Before(value)
	case models.OpBetween:
		upper, err := time.Parse("2006-01-02", strings.TrimSpace(c.SecondValue))
		if err != nil {
			return false
		}
		upper = models.DateOnly(upper)
		lo, hi := value, upper
		if lo.After(hi) {
			lo, hi = hi, lo
		}
		return !txDate.Before(lo) && !txDate.After(hi)
	default:
		return false
	}
}

func textConditionHolds(c *models.RuleCondition, text string) bool {
	haystack := strings.ToLower(strings.TrimSpace(text))
	needle := strings.ToLower(strings.TrimSpace(c.Value))

	switch c.Operator {
	case models.OpEquals:
		return haystack == needle
	case models.OpContains:
		return strings.Contains(haystack, needle)
	default:
		return false // numeric operators do not apply to text
	}
}
