package models

import (
	"fmt"
	"strings"
	"time"
)

// ItemFilter selects reconciliation items in repository queries. The zero
// value matches everything; each set field narrows the result.
type ItemFilter struct {
	Search      string       // substring match on category, reference, notes
	AccountID   string
	StatementID string
	Status      ItemStatus
	Type        ItemType
	Priority    ItemPriority
	DateFrom    *time.Time // created-at range, inclusive
	DateTo      *time.Time
}

// Validate rejects filters with unknown enum values or inverted ranges.
func (f *ItemFilter) Validate() error {
	if f.Status != "" && !f.Status.IsValid() {
		return fmt.Errorf("invalid status filter: %s", f.Status)
	}
	if f.Type != "" && !f.Type.IsValid() {
		return fmt.Errorf("invalid type filter: %s", f.Type)
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return fmt.Errorf("invalid priority filter: %s", f.Priority)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return fmt.Errorf("date filter range is inverted")
	}
	return nil
}

// Matches reports whether an item satisfies the filter.
func (f *ItemFilter) Matches(item *ReconciliationItem) bool {
	if f.AccountID != "" && item.AccountID != f.AccountID {
		return false
	}
	if f.StatementID != "" && item.StatementID != f.StatementID {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.Priority != "" && item.Priority != f.Priority {
		return false
	}
	if f.DateFrom != nil && item.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && item.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(item.Category + " " + item.Reference + " " + item.Notes)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
