// Package store defines the persistence boundary of the reconciliation
// engine. The engine depends only on these repository interfaces; backends
// are interchangeable. Two ship with the engine: an in-memory store for
// tests and single-run CLI use, and a SQLite store for durable sessions.
package store

import (
	"context"

	"github.com/codestam/reconengine/internal/models"
)

// StatementRepository persists imported statements and their lifecycle state.
type StatementRepository interface {
	CreateStatement(ctx context.Context, statement *models.ReconciliationStatement) error
	GetStatement(ctx context.Context, id string) (*models.ReconciliationStatement, error)
	UpdateStatement(ctx context.Context, statement *models.ReconciliationStatement) error
	ListStatements(ctx context.Context, accountID string) ([]*models.ReconciliationStatement, error)
}

// TransactionRepository persists imported bank transactions. Batch writes
// are atomic: either every transaction lands or none do. Transaction IDs
// are content-derived, so a re-imported file carries the same IDs as its
// first import; identity is therefore scoped to the owning statement.
type TransactionRepository interface {
	CreateTransactions(ctx context.Context, transactions []*models.BankTransaction) error
	GetTransaction(ctx context.Context, statementID, id string) (*models.BankTransaction, error)
	ListTransactions(ctx context.Context, statementID string) ([]*models.BankTransaction, error)
	UpdateTransactions(ctx context.Context, transactions []*models.BankTransaction) error

	// AccountTransactionIDs returns the IDs of every transaction already
	// stored for the account, excluding the given statement. Used to detect
	// re-imported rows, whose content-derived IDs collide across imports.
	AccountTransactionIDs(ctx context.Context, accountID, excludeStatementID string) (map[string]struct{}, error)
}

// ItemRepository persists discrepancy items. Resolved and ignored items are
// never deleted; only pending items from a superseded matching run are
// cleared before the run is repeated.
type ItemRepository interface {
	CreateItems(ctx context.Context, items []*models.ReconciliationItem) error
	GetItem(ctx context.Context, id string) (*models.ReconciliationItem, error)
	UpdateItem(ctx context.Context, item *models.ReconciliationItem) error
	ListItems(ctx context.Context, filter *models.ItemFilter) ([]*models.ReconciliationItem, error)
	CountPendingItems(ctx context.Context, statementID string) (int, error)
	DeletePendingItems(ctx context.Context, statementID string) error
}

// RuleRepository persists matching rules and their usage counters.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule *models.ReconciliationRule) error
	GetRule(ctx context.Context, id string) (*models.ReconciliationRule, error)
	UpdateRule(ctx context.Context, rule *models.ReconciliationRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*models.ReconciliationRule, error)

	// AddMatchCounts folds per-rule match counters from a committed run
	// back into the stored rules. Unknown rule IDs are ignored; a rule may
	// have been deleted while the run was in flight.
	AddMatchCounts(ctx context.Context, counts map[string]int64) error
}

// Store bundles every repository behind one backend.
type Store interface {
	StatementRepository
	TransactionRepository
	ItemRepository
	RuleRepository

	Close() error
}
