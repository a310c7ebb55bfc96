package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// MemoryStore keeps everything in process memory behind one mutex. Values
// are cloned on the way in and out, so callers never share structs with the
// store.
type MemoryStore struct {
	mu           sync.RWMutex
	statements   map[string]*models.ReconciliationStatement
	transactions map[string]*models.BankTransaction
	items        map[string]*models.ReconciliationItem
	rules        map[string]*models.ReconciliationRule
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statements:   make(map[string]*models.ReconciliationStatement),
		transactions: make(map[string]*models.BankTransaction),
		items:        make(map[string]*models.ReconciliationItem),
		rules:        make(map[string]*models.ReconciliationRule),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateStatement(ctx context.Context, statement *models.ReconciliationStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.statements[statement.ID]; exists {
		return recerrors.StorageError("create statement", errors.Errorf("statement %s already exists", statement.ID))
	}
	s.statements[statement.ID] = statement.Clone()
	return nil
}

func (s *MemoryStore) GetStatement(ctx context.Context, id string) (*models.ReconciliationStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statement, ok := s.statements[id]
	if !ok {
		return nil, recerrors.NotFoundError(recerrors.CodeStatementNotFound, id)
	}
	return statement.Clone(), nil
}

func (s *MemoryStore) UpdateStatement(ctx context.Context, statement *models.ReconciliationStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statements[statement.ID]; !ok {
		return recerrors.NotFoundError(recerrors.CodeStatementNotFound, statement.ID)
	}
	s.statements[statement.ID] = statement.Clone()
	return nil
}

func (s *MemoryStore) ListStatements(ctx context.Context, accountID string) ([]*models.ReconciliationStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ReconciliationStatement, 0)
	for _, statement := range s.statements {
		if accountID != "" && statement.AccountID != accountID {
			continue
		}
		out = append(out, statement.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StatementDate.Equal(out[j].StatementDate) {
			return out[i].StatementDate.Before(out[j].StatementDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// txKey scopes a transaction to its statement. Re-imports of the same
// file carry the same content-derived IDs, so the ID alone is not unique
// across statements.
func txKey(statementID, id string) string {
	return statementID + "\x00" + id
}

func (s *MemoryStore) CreateTransactions(ctx context.Context, transactions []*models.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(transactions))
	for _, tx := range transactions {
		key := txKey(tx.StatementID, tx.ID)
		if _, exists := s.transactions[key]; exists {
			return recerrors.StorageError("create transactions", errors.Errorf("transaction %s already exists", tx.ID))
		}
		if _, dup := seen[key]; dup {
			return recerrors.StorageError("create transactions", errors.Errorf("duplicate transaction %s in batch", tx.ID))
		}
		seen[key] = struct{}{}
	}
	for _, tx := range transactions {
		s.transactions[txKey(tx.StatementID, tx.ID)] = tx.Clone()
	}
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, statementID, id string) (*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[txKey(statementID, id)]
	if !ok {
		return nil, recerrors.NotFoundError(recerrors.CodeTransactionNotFound, id)
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, statementID string) ([]*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.BankTransaction, 0)
	for _, tx := range s.transactions {
		if tx.StatementID == statementID {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateTransactions(ctx context.Context, transactions []*models.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range transactions {
		if _, ok := s.transactions[txKey(tx.StatementID, tx.ID)]; !ok {
			return recerrors.NotFoundError(recerrors.CodeTransactionNotFound, tx.ID)
		}
	}
	for _, tx := range transactions {
		s.transactions[txKey(tx.StatementID, tx.ID)] = tx.Clone()
	}
	return nil
}

func (s *MemoryStore) AccountTransactionIDs(ctx context.Context, accountID, excludeStatementID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statementAccounts := make(map[string]string, len(s.statements))
	for id, statement := range s.statements {
		statementAccounts[id] = statement.AccountID
	}
	ids := make(map[string]struct{})
	for _, tx := range s.transactions {
		if tx.StatementID == excludeStatementID {
			continue
		}
		if statementAccounts[tx.StatementID] != accountID {
			continue
		}
		ids[tx.ID] = struct{}{}
	}
	return ids, nil
}

func (s *MemoryStore) CreateItems(ctx context.Context, items []*models.ReconciliationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, exists := s.items[item.ID]; exists {
			return recerrors.StorageError("create items", errors.Errorf("item %s already exists", item.ID))
		}
	}
	for _, item := range items {
		s.items[item.ID] = item.Clone()
	}
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*models.ReconciliationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, recerrors.NotFoundError(recerrors.CodeItemNotFound, id)
	}
	return item.Clone(), nil
}

func (s *MemoryStore) UpdateItem(ctx context.Context, item *models.ReconciliationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return recerrors.NotFoundError(recerrors.CodeItemNotFound, item.ID)
	}
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *MemoryStore) ListItems(ctx context.Context, filter *models.ItemFilter) ([]*models.ReconciliationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ReconciliationItem, 0)
	for _, item := range s.items {
		if filter != nil && !filter.Matches(item) {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) CountPendingItems(ctx context.Context, statementID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, item := range s.items {
		if item.StatementID == statementID && item.Status == models.ItemPending {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeletePendingItems(ctx context.Context, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if item.StatementID == statementID && item.Status == models.ItemPending {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateRule(ctx context.Context, rule *models.ReconciliationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return recerrors.StorageError("create rule", errors.Errorf("rule %s already exists", rule.ID))
	}
	s.rules[rule.ID] = rule.Clone()
	return nil
}

func (s *MemoryStore) GetRule(ctx context.Context, id string) (*models.ReconciliationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, recerrors.NotFoundError(recerrors.CodeRuleNotFound, id)
	}
	return rule.Clone(), nil
}

func (s *MemoryStore) UpdateRule(ctx context.Context, rule *models.ReconciliationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return recerrors.NotFoundError(recerrors.CodeRuleNotFound, rule.ID)
	}
	s.rules[rule.ID] = rule.Clone()
	return nil
}

func (s *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return recerrors.NotFoundError(recerrors.CodeRuleNotFound, id)
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) ListRules(ctx context.Context) ([]*models.ReconciliationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ReconciliationRule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) AddMatchCounts(ctx context.Context, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range counts {
		if rule, ok := s.rules[id]; ok {
			rule.MatchCount += n
		}
	}
	return nil
}
