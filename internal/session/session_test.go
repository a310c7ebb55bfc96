package session

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codestam/reconengine/internal/accounts"
	"github.com/codestam/reconengine/internal/fx"
	"github.com/codestam/reconengine/internal/ledger"
	"github.com/codestam/reconengine/internal/matcher"
	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/store"
	"github.com/codestam/reconengine/pkg/recerrors"
)

const statementCSV = `Date,Description,Reference,Amount,Balance
2024-01-15,Office cleaning service,CLN-88,-1500.00,8500.00
2024-01-16,Payroll deposit ACME,PAY-22,4000.00,12500.00
`

func testBook(id string, day int, description, amount string, direction models.TransactionDirection) *models.BookTransaction {
	return &models.BookTransaction{
		ID:          id,
		AccountID:   "acct-1",
		Date:        time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Direction:   direction,
	}
}

// fullBooks mirrors both statement rows, so a clean run matches everything.
func fullBooks() []*models.BookTransaction {
	return []*models.BookTransaction{
		testBook("book-1", 15, "Office cleaning service", "1500.00", models.DirectionDebit),
		testBook("book-2", 16, "Payroll deposit ACME", "4000.00", models.DirectionCredit),
	}
}

func newCoordinator(t *testing.T, config *Config, books []*models.BookTransaction, rates fx.RateProvider) (*Coordinator, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	registry := accounts.NewStaticRegistry(
		&accounts.Account{ID: "acct-1", Name: "Operating", Currency: "USD"},
		&accounts.Account{ID: "acct-2", Name: "Savings", Currency: "USD"},
	)
	coordinator, err := New(config, st, ledger.NewStaticProvider(books), registry, rates, nil)
	require.NoError(t, err)
	return coordinator, st
}

func upload(t *testing.T, c *Coordinator, accountID string) *models.ReconciliationStatement {
	t.Helper()
	statement, err := c.UploadStatement(context.Background(), strings.NewReader(statementCSV), "jan.csv", accountID, "ops")
	require.NoError(t, err)
	return statement
}

func TestUploadStatementPersists(t *testing.T) {
	c, st := newCoordinator(t, nil, fullBooks(), nil)
	statement := upload(t, c, "acct-1")

	assert.Equal(t, models.StatementPending, statement.Status)
	assert.Equal(t, 2, statement.TransactionCount)
	assert.Equal(t, 0, statement.MatchedCount)
	assert.Equal(t, 2, statement.UnmatchedCount)
	assert.Equal(t, "jan.csv", statement.SourceFile)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), statement.StatementDate)
	assert.True(t, statement.OpeningBalance.Equal(decimal.RequireFromString("10000.00")))
	assert.True(t, statement.ClosingBalance.Equal(decimal.RequireFromString("12500.00")))
	assert.True(t, statement.TotalDebits.Equal(decimal.RequireFromString("1500.00")))
	assert.True(t, statement.TotalCredits.Equal(decimal.RequireFromString("4000.00")))

	transactions, err := st.ListTransactions(context.Background(), statement.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	for _, tx := range transactions {
		assert.Equal(t, statement.ID, tx.StatementID)
		assert.False(t, tx.IsMatched)
	}
}

func TestUploadStatementRejectsWholeFileOnOneBadRow(t *testing.T) {
	c, st := newCoordinator(t, nil, nil, nil)

	var b strings.Builder
	b.WriteString("Date,Description,Reference,Amount,Balance\n")
	for i := 0; i < 9; i++ {
		b.WriteString("2024-01-15,Valid row,R-1,-10.00,100.00\n")
	}
	b.WriteString("not-a-date,Broken row,R-2,-10.00,90.00\n")

	_, err := c.UploadStatement(context.Background(), strings.NewReader(b.String()), "jan.csv", "acct-1", "ops")
	require.Error(t, err)
	assert.True(t, recerrors.IsImport(err))

	statements, err := st.ListStatements(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, statements)
}

func TestUploadStatementUnknownAccount(t *testing.T) {
	c, _ := newCoordinator(t, nil, nil, nil)
	_, err := c.UploadStatement(context.Background(), strings.NewReader(statementCSV), "jan.csv", "ghost", "ops")
	require.Error(t, err)
	assert.True(t, recerrors.IsNotFound(err))
}

func TestStartCompletesCleanStatement(t *testing.T) {
	ctx := context.Background()
	c, st := newCoordinator(t, nil, fullBooks(), nil)
	statement := upload(t, c, "acct-1")

	require.NoError(t, c.Start(ctx, statement.ID))

	got, err := st.GetStatement(ctx, statement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementCompleted, got.Status)
	assert.Equal(t, 2, got.MatchedCount)
	assert.Equal(t, 0, got.UnmatchedCount)
	assert.Equal(t, 0, got.DiscrepancyCount)
	require.NotNil(t, got.CompletedAt)

	transactions, err := st.ListTransactions(ctx, statement.ID)
	require.NoError(t, err)
	for _, tx := range transactions {
		assert.True(t, tx.IsMatched)
		assert.NotEmpty(t, tx.MatchedBookTransactionID)
		assert.GreaterOrEqual(t, tx.MatchConfidence, 90)
	}
}

func TestStartRequiresPendingStatement(t *testing.T) {
	ctx := context.Background()
	c, _ := newCoordinator(t, nil, fullBooks(), nil)
	statement := upload(t, c, "acct-1")

	require.NoError(t, c.Start(ctx, statement.ID))
	err := c.Start(ctx, statement.ID)
	require.Error(t, err)
	assert.True(t, recerrors.IsInvalidState(err))

	err = c.Start(ctx, "missing")
	assert.True(t, recerrors.IsNotFound(err))
}

func TestStartLeavesUnmatchedPending(t *testing.T) {
	ctx := context.Background()
	// Only the payroll row has a book counterpart.
	books := []*models.BookTransaction{
		testBook("book-2", 16, "Payroll deposit ACME", "4000.00", models.DirectionCredit),
	}
	c, st := newCoordinator(t, nil, books, nil)
	statement := upload(t, c, "acct-1")

	require.NoError(t, c.Start(ctx, statement.ID))

	got, err := st.GetStatement(ctx, statement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementInProgress, got.Status)
	assert.Equal(t, 1, got.MatchedCount)
	assert.Equal(t, 1, got.UnmatchedCount)
	assert.Equal(t, 1, got.DiscrepancyCount)
	assert.Equal(t, got.TransactionCount, got.MatchedCount+got.UnmatchedCount)

	items, err := c.Items(ctx, &models.ItemFilter{StatementID: statement.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ItemUnmatchedBank, items[0].Type)
	assert.Equal(t, models.ItemPending, items[0].Status)
	assert.Equal(t, statement.ID, items[0].StatementID)
	assert.Equal(t, "acct-1", items[0].AccountID)
}

func TestStartCancelledRollsBackToPending(t *testing.T) {
	c, st := newCoordinator(t, nil, fullBooks(), nil)
	statement := upload(t, c, "acct-1")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Start(cancelled, statement.ID)
	require.Error(t, err)
	recErr, ok := recerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, recerrors.CodeMatchAborted, recErr.Code)

	got, err := st.GetStatement(context.Background(), statement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementPending, got.Status)

	// Nothing committed, so the statement starts cleanly afterwards.
	require.NoError(t, c.Start(context.Background(), statement.ID))
	got, err = st.GetStatement(context.Background(), statement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementCompleted, got.Status)
}

func TestResolveLastItemCompletesStatement(t *testing.T) {
	ctx := context.Background()
	books := []*models.BookTransaction{
		testBook("book-2", 16, "Payroll deposit ACME", "4000.00", models.DirectionCredit),
	}
	c, st := newCoordinator(t, nil, books, nil)
	statement := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, statement.ID))

	items, err := c.Items(ctx, &models.ItemFilter{StatementID: statement.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)

	resolved, err := c.ResolveDiscrepancy(ctx, statement.ID, items[0].ID, "ops", "cash withdrawal, booked next month")
	require.NoError(t, err)
	assert.Equal(t, models.ItemResolved, resolved.Status)
	assert.Equal(t, "ops", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	got, err := st.GetStatement(ctx, statement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementCompleted, got.Status)
	assert.Equal(t, 0, got.DiscrepancyCount)
	require.NotNil(t, got.CompletedAt)
}

func TestSettleRejectsForeignItem(t *testing.T) {
	ctx := context.Background()
	books := []*models.BookTransaction{
		testBook("book-2", 16, "Payroll deposit ACME", "4000.00", models.DirectionCredit),
	}
	c, _ := newCoordinator(t, nil, books, nil)
	first := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, first.ID))
	other := upload(t, c, "acct-2")

	items, err := c.Items(ctx, &models.ItemFilter{StatementID: first.ID})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = c.IgnoreDiscrepancy(ctx, other.ID, items[0].ID, "ops", "")
	require.Error(t, err)
	assert.True(t, recerrors.IsNotFound(err))
}

func TestStartFlagsReimportedTransactionsAsDuplicates(t *testing.T) {
	ctx := context.Background()
	c, st := newCoordinator(t, nil, fullBooks(), nil)

	first := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, first.ID))

	// Same file again for the same account: every row collides with the
	// prior import by its content-derived ID.
	second := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, second.ID))

	got, err := st.GetStatement(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementInProgress, got.Status)
	assert.Equal(t, 0, got.MatchedCount)
	assert.Equal(t, 2, got.UnmatchedCount)

	duplicates, err := c.Items(ctx, &models.ItemFilter{
		StatementID: second.ID,
		Type:        models.ItemDuplicateTransaction,
	})
	require.NoError(t, err)
	require.Len(t, duplicates, 2)
	for _, item := range duplicates {
		assert.Equal(t, models.PriorityCritical, item.Priority)
	}

	// The first import's items are untouched; it stays completed.
	first, err = st.GetStatement(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatementCompleted, first.Status)
}

func TestStartAppliesRuleAnnotations(t *testing.T) {
	ctx := context.Background()
	c, st := newCoordinator(t, nil, fullBooks(), nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateRule(ctx, &models.ReconciliationRule{
		ID:   "rule-1",
		Name: "categorize payroll",
		Conditions: []models.RuleCondition{
			{Field: models.FieldDescription, Operator: models.OpContains, Value: "payroll"},
		},
		Actions: []models.RuleAction{
			{Type: models.ActionCategorize, Value: "salary"},
			{Type: models.ActionFlag, Value: "review"},
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	statement := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, statement.ID))

	transactions, err := st.ListTransactions(ctx, statement.ID)
	require.NoError(t, err)
	var payroll *models.BankTransaction
	for _, tx := range transactions {
		if strings.Contains(tx.Description, "Payroll") {
			payroll = tx
		}
	}
	require.NotNil(t, payroll)
	assert.Equal(t, "salary", payroll.Category)
	assert.Equal(t, []string{"review"}, payroll.Flags)

	rule, err := st.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rule.MatchCount)
}

// fuzzyBooks pairs with the statement rows but books the cleaning invoice
// one dollar short, leaving an amount mismatch behind the fuzzy match.
func fuzzyBooks() []*models.BookTransaction {
	return []*models.BookTransaction{
		testBook("book-1", 15, "Office cleaning service", "1499.00", models.DirectionDebit),
		testBook("book-2", 16, "Payroll deposit ACME", "4000.00", models.DirectionCredit),
	}
}

func fuzzyConfig() *Config {
	config := DefaultConfig()
	config.Matcher = matcher.RelaxedConfig()
	return config
}

func TestSummaryAggregatesVariance(t *testing.T) {
	ctx := context.Background()
	c, _ := newCoordinator(t, fuzzyConfig(), fuzzyBooks(), nil)
	statement := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, statement.ID))

	summary, err := c.Summary(ctx, statement.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "USD", summary.Currency)
	assert.Equal(t, 2, summary.TransactionCount)
	assert.Equal(t, 2, summary.MatchedCount)
	assert.Equal(t, 0, summary.UnmatchedCount)
	assert.Equal(t, 1, summary.PendingItems)
	assert.Equal(t, 0, summary.ResolvedItems)
	assert.InDelta(t, 100.0, summary.MatchRate, 0.001)
	assert.True(t, summary.TotalVariance.Equal(decimal.NewFromInt(1)),
		"variance %s", summary.TotalVariance)
}

func TestSummaryConvertsCurrency(t *testing.T) {
	ctx := context.Background()
	rates, err := fx.NewStaticRates(map[string]decimal.Decimal{
		"USD/EUR": decimal.RequireFromString("0.9"),
	})
	require.NoError(t, err)
	c, _ := newCoordinator(t, fuzzyConfig(), fuzzyBooks(), rates)
	statement := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, statement.ID))

	summary, err := c.Summary(ctx, statement.ID, "EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", summary.Currency)
	assert.True(t, summary.TotalVariance.Equal(decimal.RequireFromString("0.9")),
		"variance %s", summary.TotalVariance)
}

func TestSummaryCrossCurrencyNeedsRates(t *testing.T) {
	ctx := context.Background()
	c, _ := newCoordinator(t, fuzzyConfig(), fuzzyBooks(), nil)
	statement := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, statement.ID))

	_, err := c.Summary(ctx, statement.ID, "EUR")
	require.Error(t, err)
}

func TestExportReport(t *testing.T) {
	ctx := context.Background()
	books := []*models.BookTransaction{
		testBook("book-2", 16, "Payroll deposit ACME", "4000.00", models.DirectionCredit),
	}
	c, _ := newCoordinator(t, nil, books, nil)
	statement := upload(t, c, "acct-1")
	require.NoError(t, c.Start(ctx, statement.ID))

	out, err := c.ExportReport(ctx, statement.ID, false)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"Date", "Description", "Reference", "Bank Amount", "Book Amount", "Status", "Variance"}, records[0])
	assert.Equal(t, "2024-01-15", records[1][0])
	assert.Equal(t, "Office cleaning service", records[1][1])
	assert.Equal(t, "unmatched_bank", records[1][5])

	withMatched, err := c.ExportReport(ctx, statement.ID, true)
	require.NoError(t, err)
	records, err = csv.NewReader(strings.NewReader(string(withMatched))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	matched := records[2]
	assert.Equal(t, "Payroll deposit ACME", matched[1])
	assert.Equal(t, "4000", matched[3])
	assert.Equal(t, "4000", matched[4])
	assert.Equal(t, "matched", matched[5])
	assert.Equal(t, "0", matched[6])
}

func TestExportReportUnknownStatement(t *testing.T) {
	c, _ := newCoordinator(t, nil, nil, nil)
	_, err := c.ExportReport(context.Background(), "missing", false)
	require.Error(t, err)
	assert.True(t, recerrors.IsNotFound(err))
}
