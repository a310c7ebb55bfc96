package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/session"
)

func testSummary() *session.Summary {
	return &session.Summary{
		StatementID:      "st-1",
		AccountID:        "acct-1",
		Currency:         "USD",
		Status:           models.StatementInProgress,
		TransactionCount: 10,
		MatchedCount:     8,
		UnmatchedCount:   2,
		PendingItems:     2,
		ResolvedItems:    1,
		MatchRate:        80,
		TotalVariance:    decimal.RequireFromString("12.50"),
	}
}

func testItems() []*models.ReconciliationItem {
	expected := decimal.RequireFromString("100.00")
	actual := decimal.RequireFromString("112.50")
	created := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	return []*models.ReconciliationItem{
		{
			ID:             "it-1",
			StatementID:    "st-1",
			AccountID:      "acct-1",
			Type:           models.ItemAmountMismatch,
			Status:         models.ItemPending,
			Priority:       models.PriorityHigh,
			Reference:      "INV-7",
			ExpectedAmount: &expected,
			ActualAmount:   &actual,
			CreatedAt:      created,
		},
		{
			ID:          "it-2",
			StatementID: "st-1",
			AccountID:   "acct-1",
			Type:        models.ItemUnmatchedBank,
			Status:      models.ItemPending,
			Priority:    models.PriorityMedium,
			CreatedAt:   created,
		},
		{
			ID:          "it-3",
			StatementID: "st-1",
			AccountID:   "acct-1",
			Type:        models.ItemDateMismatch,
			Status:      models.ItemResolved,
			Priority:    models.PriorityLow,
			CreatedAt:   created,
		},
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name    string
		config  *ReportConfig
		wantErr bool
	}{
		{name: "nil config uses defaults", config: nil},
		{name: "default config", config: DefaultReportConfig()},
		{name: "invalid format", config: &ReportConfig{Format: "yaml"}, wantErr: true},
		{name: "negative item cap", config: &ReportConfig{Format: FormatConsole, MaxItems: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, generator)
		})
	}
}

func TestConsoleReport(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(testSummary(), testItems(), &buf))
	out := buf.String()

	assert.Contains(t, out, "RECONCILIATION REPORT")
	assert.Contains(t, out, "Statement: st-1")
	assert.Contains(t, out, "Matched:   8 (80.0%)")
	assert.Contains(t, out, "Unmatched: 2 (20.0%)")
	assert.Contains(t, out, "Total Variance: 12.50 USD")
	assert.Contains(t, out, "HIGH Priority (1):")
	assert.Contains(t, out, "amount_mismatch [INV-7] (Variance: 12.50)")
	// Settled items are excluded by default.
	assert.NotContains(t, out, "date_mismatch")
}

func TestConsoleReportIncludesSettledWhenAsked(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeSettledItems = true
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(testSummary(), testItems(), &buf))
	assert.Contains(t, buf.String(), "date_mismatch")
}

func TestJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(testSummary(), testItems(), &buf))

	var decoded struct {
		Summary session.Summary              `json:"summary"`
		Items   []*models.ReconciliationItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "st-1", decoded.Summary.StatementID)
	assert.Equal(t, 8, decoded.Summary.MatchedCount)
	require.Len(t, decoded.Items, 2)
}

func TestCSVReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(testSummary(), testItems(), &buf))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ID", records[0][0])
	assert.Equal(t, "it-1", records[1][0])
	assert.Equal(t, "amount_mismatch", records[1][1])
	assert.Equal(t, "100.00", records[1][5])
	assert.Equal(t, "112.50", records[1][6])
	assert.Equal(t, "12.50", records[1][7])
	// Items with a single side leave the amount cells empty.
	assert.Equal(t, "", records[2][5])
	assert.Equal(t, "", records[2][7])
}

func TestMaxItemsCapsOutput(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.MaxItems = 1
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(testSummary(), testItems(), &buf))
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestSortByVariance(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVHeaders = false
	config.SortByVariance = true
	generator, err := NewReportGenerator(config)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, generator.GenerateReport(testSummary(), testItems(), &buf))
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "it-1", records[0][0])
}

func TestGenerateReportRejectsNilSummary(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	require.NoError(t, err)
	assert.Error(t, generator.GenerateReport(nil, nil, &bytes.Buffer{}))
}
