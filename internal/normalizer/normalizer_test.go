package normalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codestam/reconengine/pkg/recerrors"
)

func mustNew(t *testing.T, cfg *Config) *Normalizer {
	t.Helper()
	n, err := New(cfg)
	require.NoError(t, err)
	return n
}

func TestNormalizeBasicRows(t *testing.T) {
	n := mustNew(t, nil)

	rows := []RawRow{
		{Index: 0, Date: "2024-01-15", Description: "PAYMENT TO VENDOR ABC", Amount: "-5000.00", Balance: "12000.00"},
		{Index: 1, Date: "2024-01-16", Description: "CUSTOMER DEPOSIT", Credit: "2500.00"},
		{Index: 2, Date: "2024-01-17", Description: "SERVICE FEE", Debit: "25.00"},
	}

	txns, err := n.Normalize(rows)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("-5000.00")))
	assert.True(t, txns[0].RunningBalance.Equal(decimal.RequireFromString("12000.00")))
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("2500.00")))
	assert.True(t, txns[2].Amount.Equal(decimal.RequireFromString("-25.00")), "debit column becomes negative")

	for _, tx := range txns {
		assert.NoError(t, tx.Validate())
		assert.Len(t, tx.ID, 32)
	}
}

func TestNormalizeMalformedRowFailsBatch(t *testing.T) {
	n := mustNew(t, nil)

	rows := []RawRow{
		{Index: 0, Date: "2024-01-15", Description: "OK", Amount: "10.00"},
		{Index: 1, Date: "2024-01-16", Description: "NO AMOUNT"},
	}

	_, err := n.Normalize(rows)
	require.Error(t, err)
	assert.True(t, recerrors.IsParse(err))

	e, ok := recerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, recerrors.CodeMalformedRow, e.Code)
	assert.Equal(t, 1, e.Context["row"])
}

func TestNormalizeEmptyInput(t *testing.T) {
	n := mustNew(t, nil)
	_, err := n.Normalize(nil)
	require.Error(t, err)
	e, _ := recerrors.As(err)
	assert.Equal(t, recerrors.CodeEmptyInput, e.Code)
}

func TestDateParsing(t *testing.T) {
	tests := []struct {
		name    string
		locale  DateLocale
		input   string
		want    string
		wantErr recerrors.Code
	}{
		{"iso", LocaleUnset, "2024-02-01", "2024-02-01", ""},
		{"iso datetime", LocaleUnset, "2024-02-01 10:30:00", "2024-02-01", ""},
		{"long form", LocaleUnset, "Jan 2, 2024", "2024-01-02", ""},
		{"ambiguous without locale", LocaleUnset, "01/02/2024", "", recerrors.CodeAmbiguousDate},
		{"ambiguous dmy", LocaleDMY, "01/02/2024", "2024-02-01", ""},
		{"ambiguous mdy", LocaleMDY, "01/02/2024", "2024-01-02", ""},
		{"forced day first", LocaleUnset, "25/01/2024", "2024-01-25", ""},
		{"forced month first", LocaleUnset, "01/25/2024", "2024-01-25", ""},
		{"equal parts need no locale", LocaleUnset, "02/02/2024", "2024-02-02", ""},
		{"dash separated dmy", LocaleDMY, "03-04-2024", "2024-04-03", ""},
		{"overflow day", LocaleDMY, "31/02/2024", "", recerrors.CodeMalformedRow},
		{"gibberish", LocaleUnset, "not-a-date", "", recerrors.CodeMalformedRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := mustNew(t, &Config{Locale: tt.locale})
			rows := []RawRow{{Index: 0, Date: tt.input, Description: "x", Amount: "1.00"}}

			txns, err := n.Normalize(rows)
			if tt.wantErr != "" {
				require.Error(t, err)
				e, ok := recerrors.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantErr, e.Code)
				return
			}
			require.NoError(t, err)
			want, _ := time.Parse("2006-01-02", tt.want)
			assert.True(t, txns[0].Date.Equal(want), "got %s want %s", txns[0].Date, want)
		})
	}
}

func TestSyntheticIDStability(t *testing.T) {
	d, _ := time.Parse("2006-01-02", "2024-01-15")
	amt := decimal.RequireFromString("-5000.00")

	a := SyntheticID(d, amt, "Payment to Vendor", 3)
	b := SyntheticID(d, amt, "  payment to vendor ", 3)
	assert.Equal(t, a, b, "case and surrounding whitespace are normalized")

	c := SyntheticID(d, amt, "Payment to Vendor", 4)
	assert.NotEqual(t, a, c, "position participates in the hash")
}

func TestNormalizeIsReimportStable(t *testing.T) {
	n := mustNew(t, nil)
	rows := []RawRow{
		{Index: 0, Date: "2024-01-15", Description: "A", Amount: "10.00"},
		{Index: 1, Date: "2024-01-15", Description: "A", Amount: "10.00"},
	}

	first, err := n.Normalize(rows)
	require.NoError(t, err)
	second, err := n.Normalize(rows)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID,
		"identical rows at different positions get distinct ids")
}

func TestReadCSV(t *testing.T) {
	data := `Date,Narration,Ref,Withdrawal Amt.,Deposit Amt.,Balance
2024-01-15,PAYMENT TO VENDOR ABC,INV-001,5000.00,,7000.00
2024-01-16,CUSTOMER DEPOSIT,,,2500.00,9500.00

2024-01-17,SERVICE FEE,,25.00,,9475.00
`
	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 3, "blank lines are skipped")

	assert.Equal(t, "PAYMENT TO VENDOR ABC", rows[0].Description)
	assert.Equal(t, "INV-001", rows[0].Reference)
	assert.Equal(t, "5000.00", rows[0].Debit)
	assert.Equal(t, "2500.00", rows[1].Credit)
	assert.Equal(t, 2, rows[2].Index)
}

func TestReadCSVMissingColumns(t *testing.T) {
	data := "Date,Something\n2024-01-15,x\n"
	_, err := ReadCSV(strings.NewReader(data))
	require.Error(t, err)
	e, ok := recerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, recerrors.CodeMissingColumn, e.Code)
}

func TestReadCSVHeaderOnly(t *testing.T) {
	data := "Date,Description,Amount\n"
	_, err := ReadCSV(strings.NewReader(data))
	require.Error(t, err)
	e, _ := recerrors.As(err)
	assert.Equal(t, recerrors.CodeEmptyInput, e.Code)
}

func TestNormalizeEndToEndFromCSV(t *testing.T) {
	data := `date,description,amount
2024-01-15,PAYMENT TO VENDOR ABC,-5000.00
2024-01-16,CUSTOMER DEPOSIT,2500.00
`
	rows, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)

	n := mustNew(t, nil)
	txns, err := n.Normalize(rows)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.True(t, txns[0].IsDebit())
	assert.False(t, txns[1].IsDebit())
}
