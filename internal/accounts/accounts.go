// Package accounts resolves account metadata for reconciliation sessions.
package accounts

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/pkg/recerrors"
)

// Account is the metadata the engine needs about a reconciled account.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// Registry resolves accounts by ID.
type Registry interface {
	Account(ctx context.Context, id string) (*Account, error)
}

// StaticRegistry is a fixed in-memory registry.
type StaticRegistry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewStaticRegistry builds a registry from the given accounts.
func NewStaticRegistry(accounts ...*Account) *StaticRegistry {
	r := &StaticRegistry{accounts: make(map[string]*Account, len(accounts))}
	for _, account := range accounts {
		c := *account
		r.accounts[account.ID] = &c
	}
	return r
}

// Account returns a copy of the account, or an account-not-found error.
func (r *StaticRegistry) Account(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, recerrors.NotFoundError(recerrors.CodeAccountNotFound, id)
	}
	c := *account
	return &c, nil
}

// Add registers or replaces an account.
func (r *StaticRegistry) Add(account *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *account
	r.accounts[account.ID] = &c
}

// Validate checks the account fields.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected, "account id cannot be empty")
	}
	if len(a.Currency) != 3 {
		return recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected, "account currency must be a 3-letter code")
	}
	return nil
}
