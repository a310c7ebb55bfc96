// Package session coordinates a statement's reconciliation lifecycle:
// upload, matching, discrepancy settlement, summary, and export. All
// mutations to one statement are serialized behind a per-statement lock;
// different statements proceed fully in parallel.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codestam/reconengine/internal/accounts"
	"github.com/codestam/reconengine/internal/fx"
	"github.com/codestam/reconengine/internal/ledger"
	"github.com/codestam/reconengine/internal/matcher"
	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/normalizer"
	"github.com/codestam/reconengine/internal/rules"
	"github.com/codestam/reconengine/internal/store"
	"github.com/codestam/reconengine/internal/tracker"
	"github.com/codestam/reconengine/pkg/logger"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// Config bundles the component configurations a coordinator runs with.
type Config struct {
	Locale  normalizer.DateLocale `json:"locale"`
	Matcher *matcher.Config       `json:"matcher"`
	Tracker *tracker.Config       `json:"tracker"`
}

// DefaultConfig uses every component's defaults and no date locale.
func DefaultConfig() *Config {
	return &Config{
		Locale:  normalizer.LocaleUnset,
		Matcher: matcher.DefaultConfig(),
		Tracker: tracker.DefaultConfig(),
	}
}

// Validate checks all component configurations.
func (c *Config) Validate() error {
	if !c.Locale.IsValid() {
		return recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected,
			"invalid date locale")
	}
	if c.Matcher != nil {
		if err := c.Matcher.Validate(); err != nil {
			return err
		}
	}
	if c.Tracker != nil {
		if err := c.Tracker.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := &Config{Locale: c.Locale}
	if c.Matcher != nil {
		clone.Matcher = c.Matcher.Clone()
	}
	if c.Tracker != nil {
		t := *c.Tracker
		clone.Tracker = &t
	}
	return clone
}

// Coordinator drives reconciliation sessions against a store and the
// external collaborators: the book ledger, the account registry, and an
// optional FX rate provider for cross-currency summaries.
type Coordinator struct {
	config   *Config
	store    store.Store
	books    ledger.Provider
	registry accounts.Registry
	rates    fx.RateProvider
	norm     *normalizer.Normalizer
	engine   *matcher.Engine
	tracker  *tracker.Tracker
	logger   logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New wires a coordinator. rates may be nil when cross-currency summaries
// are not needed.
func New(config *Config, st store.Store, books ledger.Provider, registry accounts.Registry, rates fx.RateProvider, log logger.Logger) (*Coordinator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.Clone()
	if config.Matcher == nil {
		config.Matcher = matcher.DefaultConfig()
	}
	if config.Tracker == nil {
		config.Tracker = tracker.DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	norm, err := normalizer.New(&normalizer.Config{Locale: config.Locale})
	if err != nil {
		return nil, err
	}
	engine, err := matcher.New(config.Matcher, log)
	if err != nil {
		return nil, err
	}
	tr, err := tracker.New(config.Tracker, st, log, nil)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		config:   config,
		store:    st,
		books:    books,
		registry: registry,
		rates:    rates,
		norm:     norm,
		engine:   engine,
		tracker:  tr,
		logger:   log.WithComponent("session"),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}, nil
}

func (c *Coordinator) lockFor(statementID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[statementID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[statementID] = lock
	}
	return lock
}

// UploadStatement normalizes a statement file and persists the statement
// with all of its transactions, or nothing at all. Malformed input fails
// with an import error wrapping the underlying parse error.
func (c *Coordinator) UploadStatement(ctx context.Context, r io.Reader, filename, accountID, uploadedBy string) (*models.ReconciliationStatement, error) {
	account, err := c.registry.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	rows, err := normalizer.ReadStatement(r, filename)
	if err != nil {
		return nil, recerrors.ImportError(filename, err)
	}
	transactions, err := c.norm.Normalize(rows)
	if err != nil {
		return nil, recerrors.ImportError(filename, err)
	}

	now := c.now().UTC()
	statement := &models.ReconciliationStatement{
		ID:               uuid.NewString(),
		AccountID:        account.ID,
		Status:           models.StatementPending,
		TransactionCount: len(transactions),
		UnmatchedCount:   len(transactions),
		SourceFile:       filename,
		UploadedBy:       uploadedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, tx := range transactions {
		tx.StatementID = statement.ID
		if tx.Date.After(statement.StatementDate) {
			statement.StatementDate = tx.Date
		}
		if tx.IsDebit() {
			statement.TotalDebits = statement.TotalDebits.Add(tx.AbsAmount())
		} else {
			statement.TotalCredits = statement.TotalCredits.Add(tx.AbsAmount())
		}
	}
	if len(transactions) > 0 {
		first, last := transactions[0], transactions[len(transactions)-1]
		statement.OpeningBalance = first.RunningBalance.Sub(first.Amount)
		statement.ClosingBalance = last.RunningBalance
	}
	if err := statement.Validate(); err != nil {
		return nil, recerrors.Wrap(err, recerrors.CategoryInternal, recerrors.CodeUnexpected,
			"assembled statement failed validation")
	}

	if err := c.store.CreateStatement(ctx, statement); err != nil {
		return nil, err
	}
	if err := c.store.CreateTransactions(ctx, transactions); err != nil {
		// The statement record without transactions must not look usable.
		statement.Status = models.StatementFailed
		statement.UpdatedAt = c.now().UTC()
		if updateErr := c.store.UpdateStatement(ctx, statement); updateErr != nil {
			c.logger.WithError(updateErr).Error("failed to mark statement failed after rejected import")
		}
		return nil, recerrors.ImportError(filename, err)
	}

	c.logger.WithFields(logger.Fields{
		"statement_id": statement.ID,
		"account_id":   account.ID,
		"transactions": len(transactions),
	}).Info("statement uploaded")
	return statement, nil
}

// Start moves a pending statement to in_progress and runs the matching
// pipeline over it. Bindings commit atomically; a cancelled run rolls the
// statement back to pending so it can be started again. A fatal matching
// error moves the statement to failed.
func (c *Coordinator) Start(ctx context.Context, statementID string) error {
	lock := c.lockFor(statementID)
	lock.Lock()
	defer lock.Unlock()

	statement, err := c.store.GetStatement(ctx, statementID)
	if err != nil {
		return err
	}
	if statement.Status != models.StatementPending {
		return recerrors.InvalidStateError("statement", statementID,
			string(statement.Status), string(models.StatementPending))
	}
	statement.Status = models.StatementInProgress
	statement.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateStatement(ctx, statement); err != nil {
		return err
	}

	bank, err := c.store.ListTransactions(ctx, statementID)
	if err != nil {
		return c.failStatement(ctx, statement, err)
	}
	allRules, err := c.store.ListRules(ctx)
	if err != nil {
		return c.failStatement(ctx, statement, err)
	}
	snap := rules.NewSnapshot(allRules)

	from, to := periodOf(bank, c.config.Matcher.DateWindowDays)
	book, err := c.books.BookTransactions(ctx, statement.AccountID, from, to)
	if err != nil {
		return c.failStatement(ctx, statement, err)
	}
	prior, err := c.store.AccountTransactionIDs(ctx, statement.AccountID, statementID)
	if err != nil {
		return c.failStatement(ctx, statement, err)
	}

	result, err := c.engine.Match(ctx, bank, book, snap, prior)
	if err != nil {
		if recErr, ok := recerrors.As(err); ok && recErr.Code == recerrors.CodeMatchAborted {
			// Nothing committed; the statement may be started again.
			statement.Status = models.StatementPending
			statement.UpdatedAt = c.now().UTC()
			if rollbackErr := c.store.UpdateStatement(ctx, statement); rollbackErr != nil {
				c.logger.WithError(rollbackErr).Error("failed to roll statement back after aborted run")
			}
			return err
		}
		return c.failStatement(ctx, statement, err)
	}

	if err := c.commitResult(ctx, statement, bank, result, snap); err != nil {
		return c.failStatement(ctx, statement, err)
	}
	return nil
}

// commitResult applies a matching result to the store and brings the
// statement's counters and status up to date.
func (c *Coordinator) commitResult(ctx context.Context, statement *models.ReconciliationStatement, bank []*models.BankTransaction, result *matcher.Result, snap *rules.Snapshot) error {
	bankByID := make(map[string]*models.BankTransaction, len(bank))
	for _, tx := range bank {
		bankByID[tx.ID] = tx
	}
	changed := make(map[string]*models.BankTransaction)
	for _, annotation := range result.Annotations {
		tx := bankByID[annotation.BankTransactionID]
		if tx == nil {
			continue
		}
		if tx.Category == "" && len(annotation.Categories) > 0 {
			tx.Category = annotation.Categories[0]
		}
		tx.Flags = append(tx.Flags, annotation.Flags...)
		changed[tx.ID] = tx
	}
	for _, binding := range result.Bindings {
		tx := bankByID[binding.BankTransactionID]
		if tx == nil {
			continue
		}
		tx.IsMatched = true
		tx.MatchedBookTransactionID = binding.BookTransactionID
		tx.MatchConfidence = binding.Confidence
		changed[tx.ID] = tx
	}
	if len(changed) > 0 {
		updates := make([]*models.BankTransaction, 0, len(changed))
		for _, tx := range bank {
			if _, ok := changed[tx.ID]; ok {
				updates = append(updates, tx)
			}
		}
		if err := c.store.UpdateTransactions(ctx, updates); err != nil {
			return err
		}
	}

	// A rerun supersedes the pending items of the previous run; settled
	// items stay for the audit trail.
	if err := c.store.DeletePendingItems(ctx, statement.ID); err != nil {
		return err
	}
	discrepancies := make([]models.NewDiscrepancy, len(result.Discrepancies))
	copy(discrepancies, result.Discrepancies)
	for i := range discrepancies {
		discrepancies[i].StatementID = statement.ID
		discrepancies[i].AccountID = statement.AccountID
	}
	if _, err := c.tracker.Record(ctx, discrepancies); err != nil {
		return err
	}

	if err := c.store.AddMatchCounts(ctx, snap.MatchCounts()); err != nil {
		return err
	}

	matched := 0
	for _, tx := range bank {
		if tx.IsMatched {
			matched++
		}
	}
	pending, err := c.tracker.PendingCount(ctx, statement.ID)
	if err != nil {
		return err
	}
	statement.MatchedCount = matched
	statement.UnmatchedCount = statement.TransactionCount - matched
	statement.DiscrepancyCount = pending
	statement.UpdatedAt = c.now().UTC()
	if pending == 0 {
		completedAt := statement.UpdatedAt
		statement.Status = models.StatementCompleted
		statement.CompletedAt = &completedAt
	}
	if err := statement.Validate(); err != nil {
		return recerrors.Wrap(err, recerrors.CategoryInternal, recerrors.CodeUnexpected,
			"statement counters out of balance after matching")
	}
	if err := c.store.UpdateStatement(ctx, statement); err != nil {
		return err
	}

	c.logger.WithFields(logger.Fields{
		"statement_id": statement.ID,
		"matched":      matched,
		"unmatched":    statement.UnmatchedCount,
		"pending":      pending,
		"status":       string(statement.Status),
	}).Info("matching run committed")
	return nil
}

func (c *Coordinator) failStatement(ctx context.Context, statement *models.ReconciliationStatement, cause error) error {
	statement.Status = models.StatementFailed
	statement.UpdatedAt = c.now().UTC()
	if err := c.store.UpdateStatement(ctx, statement); err != nil {
		c.logger.WithError(err).Error("failed to persist failed statement status")
	}
	return cause
}

// periodOf returns the inclusive book-fetch window around the bank
// transaction dates, padded by the matching window on both sides.
func periodOf(bank []*models.BankTransaction, windowDays int) (time.Time, time.Time) {
	if len(bank) == 0 {
		return time.Time{}, time.Time{}
	}
	min, max := bank[0].Date, bank[0].Date
	for _, tx := range bank[1:] {
		if tx.Date.Before(min) {
			min = tx.Date
		}
		if tx.Date.After(max) {
			max = tx.Date
		}
	}
	pad := time.Duration(windowDays) * 24 * time.Hour
	return models.DateOnly(min).Add(-pad), models.DateOnly(max).Add(pad)
}

// ResolveDiscrepancy marks an item of the statement resolved and refreshes
// the statement's counters, completing it when nothing is left pending.
func (c *Coordinator) ResolveDiscrepancy(ctx context.Context, statementID, itemID, resolvedBy, notes string) (*models.ReconciliationItem, error) {
	return c.settleDiscrepancy(ctx, statementID, itemID, resolvedBy, notes, true)
}

// IgnoreDiscrepancy marks an item of the statement ignored and refreshes
// the statement's counters, completing it when nothing is left pending.
func (c *Coordinator) IgnoreDiscrepancy(ctx context.Context, statementID, itemID, resolvedBy, notes string) (*models.ReconciliationItem, error) {
	return c.settleDiscrepancy(ctx, statementID, itemID, resolvedBy, notes, false)
}

func (c *Coordinator) settleDiscrepancy(ctx context.Context, statementID, itemID, resolvedBy, notes string, resolve bool) (*models.ReconciliationItem, error) {
	lock := c.lockFor(statementID)
	lock.Lock()
	defer lock.Unlock()

	statement, err := c.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	existing, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if existing.StatementID != statementID {
		return nil, recerrors.NotFoundError(recerrors.CodeItemNotFound, itemID)
	}

	var item *models.ReconciliationItem
	if resolve {
		item, err = c.tracker.Resolve(ctx, itemID, resolvedBy, notes)
	} else {
		item, err = c.tracker.Ignore(ctx, itemID, resolvedBy, notes)
	}
	if err != nil {
		return nil, err
	}

	pending, err := c.tracker.PendingCount(ctx, statementID)
	if err != nil {
		return nil, err
	}
	statement.DiscrepancyCount = pending
	statement.UpdatedAt = c.now().UTC()
	if pending == 0 && statement.Status == models.StatementInProgress {
		completedAt := statement.UpdatedAt
		statement.Status = models.StatementCompleted
		statement.CompletedAt = &completedAt
	}
	if err := c.store.UpdateStatement(ctx, statement); err != nil {
		return nil, err
	}
	return item, nil
}

// Items lists the statement's discrepancy items through the tracker.
func (c *Coordinator) Items(ctx context.Context, filter *models.ItemFilter) ([]*models.ReconciliationItem, error) {
	return c.tracker.List(ctx, filter)
}
