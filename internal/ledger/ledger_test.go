package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/pkg/recerrors"
)

const bookCSV = `id,account_id,date,description,ref,amount,type,category
bk-1,acct-1,2024-02-10,Office rent,RENT-02,1500.00,debit,Facilities
bk-2,acct-1,2024-02-20,Client payment,INV-44,8000.00,credit,
bk-3,acct-2,2024-02-12,Hosting,HST-9,120.00,debit,IT

`

func TestReadBookCSV(t *testing.T) {
	transactions, err := ReadBookCSV(strings.NewReader(bookCSV))
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	first := transactions[0]
	assert.Equal(t, "bk-1", first.ID)
	assert.Equal(t, "acct-1", first.AccountID)
	assert.Equal(t, models.DirectionDebit, first.Direction)
	assert.Equal(t, "RENT-02", first.Reference)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("1500.00")))
	assert.True(t, first.SignedAmount().IsNegative())
}

func TestReadBookCSVMissingColumn(t *testing.T) {
	_, err := ReadBookCSV(strings.NewReader("id,date,amount\nbk-1,2024-02-10,10.00\n"))
	require.Error(t, err)
	recErr, ok := recerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, recerrors.CodeMissingColumn, recErr.Code)
}

func TestReadBookCSVRejectsSignedAmount(t *testing.T) {
	csv := "id,date,description,amount,direction\nbk-1,2024-02-10,Rent,-1500.00,debit\n"
	_, err := ReadBookCSV(strings.NewReader(csv))
	require.Error(t, err)
	assert.True(t, recerrors.IsParse(err))
}

func TestStaticProviderFiltersByAccountAndPeriod(t *testing.T) {
	transactions, err := ReadBookCSV(strings.NewReader(bookCSV))
	require.NoError(t, err)
	provider := NewStaticProvider(transactions)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	got, err := provider.BookTransactions(context.Background(), "acct-1", from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bk-1", got[0].ID)

	// Clones only; mutating a result never touches the provider's copy.
	got[0].IsMatched = true
	again, err := provider.BookTransactions(context.Background(), "acct-1", from, to)
	require.NoError(t, err)
	assert.False(t, again[0].IsMatched)
}
