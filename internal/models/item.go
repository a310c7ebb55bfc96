package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemType classifies a discrepancy.
type ItemType string

const (
	ItemAmountMismatch       ItemType = "amount_mismatch"
	ItemDateMismatch         ItemType = "date_mismatch"
	ItemMissingTransaction   ItemType = "missing_transaction"
	ItemDuplicateTransaction ItemType = "duplicate_transaction"
	ItemUnmatchedBank        ItemType = "unmatched_bank"
	ItemUnmatchedBook        ItemType = "unmatched_book"
)

// IsValid checks the item type value.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemAmountMismatch, ItemDateMismatch, ItemMissingTransaction,
		ItemDuplicateTransaction, ItemUnmatchedBank, ItemUnmatchedBook:
		return true
	}
	return false
}

// ItemStatus is the resolution lifecycle of a discrepancy.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemResolved ItemStatus = "resolved"
	ItemIgnored  ItemStatus = "ignored"
)

// IsValid checks the status value.
func (s ItemStatus) IsValid() bool {
	return s == ItemPending || s == ItemResolved || s == ItemIgnored
}

// IsTerminal reports whether the item can no longer change state.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemResolved || s == ItemIgnored
}

// ItemPriority ranks discrepancies for operator attention.
type ItemPriority string

const (
	PriorityLow      ItemPriority = "low"
	PriorityMedium   ItemPriority = "medium"
	PriorityHigh     ItemPriority = "high"
	PriorityCritical ItemPriority = "critical"
)

// IsValid checks the priority value.
func (p ItemPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns a sortable weight, critical highest.
func (p ItemPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// NewDiscrepancy describes a discrepancy before it is recorded as an item.
// The matcher emits these; the discrepancy tracker assigns identity, status,
// and priority when recording them.
type NewDiscrepancy struct {
	StatementID          string
	AccountID            string
	RelatedTransactionID string
	Type                 ItemType
	Category             string
	Reference            string
	ExpectedAmount       *decimal.Decimal
	ActualAmount         *decimal.Decimal
	ExpectedDate         *time.Time
	ActualDate           *time.Time
}

// ReconciliationItem is one flagged discrepancy. Items are mutated only by
// explicit resolve/ignore actions and never deleted, preserving the audit
// trail of a reconciliation run.
type ReconciliationItem struct {
	ID                   string       `json:"id"`
	StatementID          string       `json:"statement_id"`
	AccountID            string       `json:"account_id"`
	RelatedTransactionID string       `json:"related_transaction_id"`
	Type                 ItemType     `json:"type"`
	Status               ItemStatus   `json:"status"`
	Priority             ItemPriority `json:"priority"`
	Category             string       `json:"category,omitempty"`
	Reference            string       `json:"reference,omitempty"`

	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty"`
	ActualAmount   *decimal.Decimal `json:"actual_amount,omitempty"`
	ExpectedDate   *time.Time       `json:"expected_date,omitempty"`
	ActualDate     *time.Time       `json:"actual_date,omitempty"`

	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Validate performs basic integrity checks.
func (i *ReconciliationItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("item id cannot be empty")
	}
	if strings.TrimSpace(i.StatementID) == "" {
		return fmt.Errorf("item statement id cannot be empty")
	}
	if !i.Type.IsValid() {
		return fmt.Errorf("invalid item type: %s", i.Type)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid item status: %s", i.Status)
	}
	if !i.Priority.IsValid() {
		return fmt.Errorf("invalid item priority: %s", i.Priority)
	}
	return nil
}

// Variance returns |expected - actual| when both amounts are present.
func (i *ReconciliationItem) Variance() (decimal.Decimal, bool) {
	if i.ExpectedAmount == nil || i.ActualAmount == nil {
		return decimal.Zero, false
	}
	return i.ExpectedAmount.Sub(*i.ActualAmount).Abs(), true
}

// Clone returns a copy safe to mutate independently.
func (i *ReconciliationItem) Clone() *ReconciliationItem {
	c := *i
	if i.ExpectedAmount != nil {
		d := *i.ExpectedAmount
		c.ExpectedAmount = &d
	}
	if i.ActualAmount != nil {
		d := *i.ActualAmount
		c.ActualAmount = &d
	}
	if i.ExpectedDate != nil {
		t := *i.ExpectedDate
		c.ExpectedDate = &t
	}
	if i.ActualDate != nil {
		t := *i.ActualDate
		c.ActualDate = &t
	}
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
