package session

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/fx"
	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// Summary is the read-only aggregate view of one statement.
type Summary struct {
	StatementID      string                 `json:"statement_id"`
	AccountID        string                 `json:"account_id"`
	Currency         string                 `json:"currency"`
	Status           models.StatementStatus `json:"status"`
	TransactionCount int                    `json:"transaction_count"`
	MatchedCount     int                    `json:"matched_count"`
	UnmatchedCount   int                    `json:"unmatched_count"`
	PendingItems     int                    `json:"pending_items"`
	ResolvedItems    int                    `json:"resolved_items"`
	IgnoredItems     int                    `json:"ignored_items"`
	MatchRate        float64                `json:"match_rate"`
	TotalVariance    decimal.Decimal        `json:"total_variance"`
}

// Summary aggregates the statement's counters and variance. The variance is
// the sum of absolute amount differences across every item carrying both an
// expected and an actual amount. When currency names a different currency
// than the account's, the variance is converted at the statement date.
func (c *Coordinator) Summary(ctx context.Context, statementID, currency string) (*Summary, error) {
	statement, err := c.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	account, err := c.registry.Account(ctx, statement.AccountID)
	if err != nil {
		return nil, err
	}
	items, err := c.store.ListItems(ctx, &models.ItemFilter{StatementID: statementID})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		StatementID:      statement.ID,
		AccountID:        statement.AccountID,
		Currency:         account.Currency,
		Status:           statement.Status,
		TransactionCount: statement.TransactionCount,
		MatchedCount:     statement.MatchedCount,
		UnmatchedCount:   statement.UnmatchedCount,
		TotalVariance:    decimal.Zero,
	}
	for _, item := range items {
		switch item.Status {
		case models.ItemPending:
			summary.PendingItems++
		case models.ItemResolved:
			summary.ResolvedItems++
		case models.ItemIgnored:
			summary.IgnoredItems++
		}
		if variance, ok := item.Variance(); ok {
			summary.TotalVariance = summary.TotalVariance.Add(variance)
		}
	}
	if summary.TransactionCount > 0 {
		summary.MatchRate = float64(summary.MatchedCount) / float64(summary.TransactionCount) * 100
	}

	if currency != "" && currency != account.Currency {
		if c.rates == nil {
			return nil, recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected,
				"no rate provider configured for cross-currency summary")
		}
		converted, err := fx.Convert(c.rates, summary.TotalVariance, account.Currency, currency, statement.StatementDate)
		if err != nil {
			return nil, err
		}
		summary.TotalVariance = converted
		summary.Currency = currency
	}
	return summary, nil
}

var exportHeader = []string{"Date", "Description", "Reference", "Bank Amount", "Book Amount", "Status", "Variance"}

// ExportReport serializes the statement's discrepancies, and optionally its
// matched pairs, as CSV. Amounts are plain decimals without currency
// symbols.
func (c *Coordinator) ExportReport(ctx context.Context, statementID string, includeMatched bool) ([]byte, error) {
	statement, err := c.store.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	items, err := c.store.ListItems(ctx, &models.ItemFilter{StatementID: statementID})
	if err != nil {
		return nil, err
	}
	bank, err := c.store.ListTransactions(ctx, statementID)
	if err != nil {
		return nil, err
	}
	bankByID := make(map[string]*models.BankTransaction, len(bank))
	for _, tx := range bank {
		bankByID[tx.ID] = tx
	}

	bookAmounts := make(map[string]decimal.Decimal)
	if includeMatched {
		from, to := periodOf(bank, c.config.Matcher.DateWindowDays)
		book, err := c.books.BookTransactions(ctx, statement.AccountID, from, to)
		if err != nil {
			return nil, err
		}
		for _, tx := range book {
			bookAmounts[tx.ID] = tx.SignedAmount()
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, recerrors.StorageError("write export", err)
	}
	for _, item := range items {
		if err := w.Write(itemRow(item, bankByID)); err != nil {
			return nil, recerrors.StorageError("write export", err)
		}
	}
	if includeMatched {
		for _, tx := range bank {
			if !tx.IsMatched {
				continue
			}
			if err := w.Write(matchedRow(tx, bookAmounts)); err != nil {
				return nil, recerrors.StorageError("write export", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, recerrors.StorageError("write export", err)
	}
	return buf.Bytes(), nil
}

func itemRow(item *models.ReconciliationItem, bankByID map[string]*models.BankTransaction) []string {
	var date time.Time
	switch {
	case item.ActualDate != nil:
		date = *item.ActualDate
	case item.ExpectedDate != nil:
		date = *item.ExpectedDate
	default:
		date = item.CreatedAt
	}

	description := ""
	reference := item.Reference
	if tx, ok := bankByID[item.RelatedTransactionID]; ok {
		description = tx.Description
		if reference == "" {
			reference = tx.Reference
		}
	}

	bankAmount := ""
	if item.ActualAmount != nil {
		bankAmount = item.ActualAmount.String()
	}
	bookAmount := ""
	if item.ExpectedAmount != nil {
		bookAmount = item.ExpectedAmount.String()
	}
	varianceCell := ""
	if variance, ok := item.Variance(); ok {
		varianceCell = variance.String()
	}
	return []string{
		date.Format("2006-01-02"),
		description,
		reference,
		bankAmount,
		bookAmount,
		string(item.Type),
		varianceCell,
	}
}

func matchedRow(tx *models.BankTransaction, bookAmounts map[string]decimal.Decimal) []string {
	bookAmount := ""
	varianceCell := ""
	if amount, ok := bookAmounts[tx.MatchedBookTransactionID]; ok {
		bookAmount = amount.String()
		varianceCell = tx.Amount.Sub(amount).Abs().String()
	}
	return []string{
		tx.Date.Format("2006-01-02"),
		tx.Description,
		tx.Reference,
		tx.Amount.String(),
		bookAmount,
		"matched",
		varianceCell,
	}
}
