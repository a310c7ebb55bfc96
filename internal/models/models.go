// Package models defines the canonical domain types for bank statement
// reconciliation: bank and book transactions, reconciliation statements,
// discrepancy items, and automation rules.
//
// All monetary values use shopspring/decimal. Amounts on bank transactions
// are signed (negative for debits); book transactions carry an unsigned
// amount plus an explicit direction, matching how ledgers record entries.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionDirection distinguishes debit from credit book entries.
type TransactionDirection string

const (
	DirectionDebit  TransactionDirection = "debit"
	DirectionCredit TransactionDirection = "credit"
)

// IsValid checks the direction value.
func (d TransactionDirection) IsValid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// ParseDirection parses a direction from common encodings.
func ParseDirection(s string) (TransactionDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit", "d", "dr":
		return DirectionDebit, nil
	case "credit", "c", "cr":
		return DirectionCredit, nil
	default:
		return "", fmt.Errorf("invalid transaction direction %q: must be debit or credit", s)
	}
}

// BankTransaction is one line reported by the bank on a statement. Fields
// other than the match annotations are immutable once imported.
type BankTransaction struct {
	ID             string          `json:"id"`
	StatementID    string          `json:"statement_id"`
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference,omitempty"`
	Amount         decimal.Decimal `json:"amount"` // signed, negative = debit
	RunningBalance decimal.Decimal `json:"running_balance"`
	Category       string          `json:"category,omitempty"`
	Flags          []string        `json:"flags,omitempty"` // review labels from rules

	IsMatched                bool   `json:"is_matched"`
	MatchedBookTransactionID string `json:"matched_book_transaction_id,omitempty"`
	MatchConfidence          int    `json:"match_confidence,omitempty"` // 0-100
}

// Validate performs basic integrity checks.
func (t *BankTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("bank transaction id cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("bank transaction date cannot be zero")
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("bank transaction description cannot be empty")
	}
	if t.MatchConfidence < 0 || t.MatchConfidence > 100 {
		return fmt.Errorf("match confidence must be between 0 and 100: %d", t.MatchConfidence)
	}
	return nil
}

// IsDebit reports whether the line is a debit (negative amount).
func (t *BankTransaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// AbsAmount returns the unsigned amount.
func (t *BankTransaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Clone returns a copy safe to mutate independently.
func (t *BankTransaction) Clone() *BankTransaction {
	c := *t
	if len(t.Flags) > 0 {
		c.Flags = append([]string(nil), t.Flags...)
	}
	return &c
}

// String returns a short description for logs.
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Date: %s, Amount: %s}",
		t.ID, t.Date.Format("2006-01-02"), t.Amount.String())
}

// BookTransaction is one ledger entry recorded internally. Reconciliation
// only reads these and annotates match state; the accounting flow owns them.
type BookTransaction struct {
	ID          string               `json:"id"`
	AccountID   string               `json:"account_id"`
	Date        time.Time            `json:"date"`
	Description string               `json:"description"`
	Reference   string               `json:"reference,omitempty"`
	Amount      decimal.Decimal      `json:"amount"` // unsigned
	Direction   TransactionDirection `json:"direction"`
	Category    string               `json:"category,omitempty"`

	IsMatched                bool   `json:"is_matched"`
	MatchedBankTransactionID string `json:"matched_bank_transaction_id,omitempty"`
	MatchConfidence          int    `json:"match_confidence,omitempty"`
}

// Validate performs basic integrity checks.
func (t *BookTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("book transaction id cannot be empty")
	}
	if t.Date.IsZero() {
		return fmt.Errorf("book transaction date cannot be zero")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("book transaction amount must be unsigned, got %s", t.Amount)
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid transaction direction: %s", t.Direction)
	}
	return nil
}

// SignedAmount returns the amount with the debit/credit sign convention used
// by bank transactions (debits negative).
func (t *BookTransaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Clone returns a copy safe to mutate independently.
func (t *BookTransaction) Clone() *BookTransaction {
	c := *t
	return &c
}

// String returns a short description for logs.
func (t *BookTransaction) String() string {
	return fmt.Sprintf("BookTransaction{ID: %s, Date: %s, Amount: %s %s}",
		t.ID, t.Date.Format("2006-01-02"), t.Amount.String(), t.Direction)
}

// StatementStatus is the lifecycle state of an imported statement.
type StatementStatus string

const (
	StatementPending    StatementStatus = "pending"
	StatementInProgress StatementStatus = "in_progress"
	StatementCompleted  StatementStatus = "completed"
	StatementFailed     StatementStatus = "failed"
)

// IsValid checks the status value.
func (s StatementStatus) IsValid() bool {
	switch s {
	case StatementPending, StatementInProgress, StatementCompleted, StatementFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s StatementStatus) IsTerminal() bool {
	return s == StatementCompleted || s == StatementFailed
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Any non-terminal state may fail; only pending may start matching.
func (s StatementStatus) CanTransitionTo(next StatementStatus) bool {
	switch s {
	case StatementPending:
		return next == StatementInProgress || next == StatementFailed
	case StatementInProgress:
		return next == StatementCompleted || next == StatementFailed
	default:
		return false
	}
}

// ReconciliationStatement is one imported bank statement for one account and
// period, together with its matching progress counters.
type ReconciliationStatement struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	StatementDate    time.Time       `json:"statement_date"`
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	ClosingBalance   decimal.Decimal `json:"closing_balance"`
	TotalDebits      decimal.Decimal `json:"total_debits"`
	TotalCredits     decimal.Decimal `json:"total_credits"`
	TransactionCount int             `json:"transaction_count"`
	Status           StatementStatus `json:"status"`
	MatchedCount     int             `json:"matched_count"`
	UnmatchedCount   int             `json:"unmatched_count"`
	DiscrepancyCount int             `json:"discrepancy_count"`
	SourceFile       string          `json:"source_file,omitempty"`
	UploadedBy       string          `json:"uploaded_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// Validate checks statement integrity, including the count conservation
// invariant: matched + unmatched must always equal the transaction count.
func (s *ReconciliationStatement) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("statement id cannot be empty")
	}
	if strings.TrimSpace(s.AccountID) == "" {
		return fmt.Errorf("statement account id cannot be empty")
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid statement status: %s", s.Status)
	}
	if s.TransactionCount < 0 || s.MatchedCount < 0 || s.UnmatchedCount < 0 || s.DiscrepancyCount < 0 {
		return fmt.Errorf("statement counts cannot be negative")
	}
	if s.MatchedCount+s.UnmatchedCount != s.TransactionCount {
		return fmt.Errorf("count invariant violated: matched %d + unmatched %d != total %d",
			s.MatchedCount, s.UnmatchedCount, s.TransactionCount)
	}
	return nil
}

// Clone returns a copy safe to mutate independently.
func (s *ReconciliationStatement) Clone() *ReconciliationStatement {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// DateOnly truncates a time to its calendar date in UTC. Statement matching
// never compares below day granularity.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseAmount parses a decimal amount, stripping currency symbols and
// thousand separators commonly found in exported statements.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}
	replacer := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")
	s = replacer.Replace(s)

	// Accounting notation: (123.45) means -123.45.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format %q: %w", s, err)
	}
	return d, nil
}
