// Package reporter renders reconciliation sessions for people and machines.
//
// Three output formats are supported:
//   - Console: human-readable tabular output for terminal display
//   - JSON: structured output for programmatic consumption
//   - CSV: row-per-item output for spreadsheet applications
//
// The reporter is a pure formatter. It consumes the session's summary and
// discrepancy items and never touches the store.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/session"
)

// OutputFormat names a supported report rendering.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation.
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options.
	IncludeSettledItems bool `json:"include_settled_items" mapstructure:"include_settled_items"`
	MaxItems            int  `json:"max_items" mapstructure:"max_items"`

	// CSV options.
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`

	// SortByVariance orders items by absolute variance instead of priority.
	SortByVariance bool `json:"sort_by_variance" mapstructure:"sort_by_variance"`
}

// DefaultReportConfig returns a default report configuration.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		IncludeSettledItems: false,
		MaxItems:            100,
		CSVDelimiter:        ',',
		CSVHeaders:          true,
		SortByVariance:      false,
	}
}

// Validate validates the report configuration.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	return nil
}

// ReportGenerator renders session reports in the configured format.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator with the given configuration.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the summary and its items to the writer.
func (rg *ReportGenerator) GenerateReport(summary *session.Summary, items []*models.ReconciliationItem, writer io.Writer) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}
	items = rg.selectItems(items)

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(summary, items, writer)
	case FormatJSON:
		return rg.generateJSONReport(summary, items, writer)
	case FormatCSV:
		return rg.generateCSVReport(items, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// selectItems applies the settled-item filter, the configured ordering, and
// the item cap.
func (rg *ReportGenerator) selectItems(items []*models.ReconciliationItem) []*models.ReconciliationItem {
	out := make([]*models.ReconciliationItem, 0, len(items))
	for _, item := range items {
		if !rg.config.IncludeSettledItems && item.Status.IsTerminal() {
			continue
		}
		out = append(out, item)
	}
	if rg.config.SortByVariance {
		sort.SliceStable(out, func(i, j int) bool {
			vi, _ := out[i].Variance()
			vj, _ := out[j].Variance()
			return vi.GreaterThan(vj)
		})
	}
	if rg.config.MaxItems > 0 && len(out) > rg.config.MaxItems {
		out = out[:rg.config.MaxItems]
	}
	return out
}

func (rg *ReportGenerator) generateConsoleReport(summary *session.Summary, items []*models.ReconciliationItem, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Statement: %s\n", summary.StatementID)
	fmt.Fprintf(writer, "Account:   %s\n", summary.AccountID)
	fmt.Fprintf(writer, "Status:    %s\n\n", summary.Status)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Transactions:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", summary.TransactionCount)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n", summary.MatchedCount, summary.MatchRate)
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n",
		summary.UnmatchedCount,
		calculatePercentage(summary.UnmatchedCount, summary.TransactionCount))
	fmt.Fprintf(writer, "\nDiscrepancies:\n")
	fmt.Fprintf(writer, "  Pending:  %d\n", summary.PendingItems)
	fmt.Fprintf(writer, "  Resolved: %d\n", summary.ResolvedItems)
	fmt.Fprintf(writer, "  Ignored:  %d\n", summary.IgnoredItems)
	fmt.Fprintf(writer, "\nTotal Variance: %s %s\n\n",
		summary.TotalVariance.StringFixed(2), summary.Currency)

	if len(items) > 0 {
		fmt.Fprintf(writer, "=== DISCREPANCY ITEMS ===\n")
		rg.printItemsByPriority(items, writer)
	}
	return nil
}

// printItemsByPriority groups items by priority and prints the groups from
// critical down.
func (rg *ReportGenerator) printItemsByPriority(items []*models.ReconciliationItem, writer io.Writer) {
	groups := make(map[models.ItemPriority][]*models.ReconciliationItem)
	for _, item := range items {
		groups[item.Priority] = append(groups[item.Priority], item)
	}

	priorities := []models.ItemPriority{
		models.PriorityCritical,
		models.PriorityHigh,
		models.PriorityMedium,
		models.PriorityLow,
	}
	for _, priority := range priorities {
		group := groups[priority]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(writer, "%s Priority (%d):\n", strings.ToUpper(string(priority)), len(group))
		for i, item := range group {
			fmt.Fprintf(writer, "  %d. %s", i+1, item.Type)
			if item.Reference != "" {
				fmt.Fprintf(writer, " [%s]", item.Reference)
			}
			if variance, ok := item.Variance(); ok {
				fmt.Fprintf(writer, " (Variance: %s)", variance.StringFixed(2))
			}
			fmt.Fprintf(writer, " - %s\n", item.Status)
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) generateJSONReport(summary *session.Summary, items []*models.ReconciliationItem, writer io.Writer) error {
	output := map[string]interface{}{
		"summary":      summary,
		"items":        items,
		"generated_at": time.Now().UTC(),
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (rg *ReportGenerator) generateCSVReport(items []*models.ReconciliationItem, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"ID",
			"Type",
			"Priority",
			"Status",
			"Reference",
			"Expected_Amount",
			"Actual_Amount",
			"Variance",
			"Created_At",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, item := range items {
		record := []string{
			item.ID,
			string(item.Type),
			string(item.Priority),
			string(item.Status),
			item.Reference,
			decimalCell(item.ExpectedAmount),
			decimalCell(item.ActualAmount),
			varianceCell(item),
			item.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write item record: %w", err)
		}
	}
	return csvWriter.Error()
}

func decimalCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func varianceCell(item *models.ReconciliationItem) string {
	variance, ok := item.Variance()
	if !ok {
		return ""
	}
	return variance.StringFixed(2)
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
