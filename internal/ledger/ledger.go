// Package ledger provides read-only access to the internal book
// transactions that bank statements reconcile against. The engine never
// writes to the ledger; match state lives on the engine's own copies.
package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// Provider serves book transactions for an account and period. From and to
// are inclusive calendar dates.
type Provider interface {
	BookTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*models.BookTransaction, error)
}

// StaticProvider serves a fixed in-memory set of book transactions.
type StaticProvider struct {
	transactions []*models.BookTransaction
}

// NewStaticProvider copies the given transactions into a provider.
func NewStaticProvider(transactions []*models.BookTransaction) *StaticProvider {
	copies := make([]*models.BookTransaction, 0, len(transactions))
	for _, tx := range transactions {
		copies = append(copies, tx.Clone())
	}
	return &StaticProvider{transactions: copies}
}

// BookTransactions returns clones of the matching transactions.
func (p *StaticProvider) BookTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*models.BookTransaction, error) {
	out := make([]*models.BookTransaction, 0)
	for _, tx := range p.transactions {
		if inScope(tx, accountID, from, to) {
			out = append(out, tx.Clone())
		}
	}
	return out, nil
}

func inScope(tx *models.BookTransaction, accountID string, from, to time.Time) bool {
	if accountID != "" && tx.AccountID != "" && tx.AccountID != accountID {
		return false
	}
	date := models.DateOnly(tx.Date)
	if !from.IsZero() && date.Before(models.DateOnly(from)) {
		return false
	}
	if !to.IsZero() && date.After(models.DateOnly(to)) {
		return false
	}
	return true
}

// CSVProvider reads book transactions from a CSV export. Expected columns:
// id, account_id, date, description, reference, amount, direction, category.
// Only id, date, description, amount, and direction are required.
type CSVProvider struct {
	path string
}

// NewCSVProvider creates a provider reading from path on each call.
func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{path: path}
}

// BookTransactions reads and filters the file.
func (p *CSVProvider) BookTransactions(ctx context.Context, accountID string, from, to time.Time) ([]*models.BookTransaction, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, recerrors.ImportError(p.path, err)
	}
	defer f.Close()
	all, err := ReadBookCSV(f)
	if err != nil {
		return nil, err
	}
	out := make([]*models.BookTransaction, 0, len(all))
	for _, tx := range all {
		if inScope(tx, accountID, from, to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

var bookColumns = map[string]string{
	"id":             "id",
	"transaction_id": "id",
	"account_id":     "account_id",
	"account":        "account_id",
	"date":           "date",
	"description":    "description",
	"memo":           "description",
	"reference":      "reference",
	"ref":            "reference",
	"amount":         "amount",
	"direction":      "direction",
	"type":           "direction",
	"category":       "category",
}

// ReadBookCSV parses a book transaction export. The first row is the header;
// column order is free and a few alias names are understood.
func ReadBookCSV(r io.Reader) ([]*models.BookTransaction, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, recerrors.ParseError(recerrors.CodeEmptyInput, 0, "book export has no header row")
	}

	fields := make(map[string]int)
	for i, name := range records[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := bookColumns[key]; ok {
			fields[canonical] = i
		}
	}
	for _, required := range []string{"id", "date", "description", "amount", "direction"} {
		if _, ok := fields[required]; !ok {
			return nil, recerrors.ParseError(recerrors.CodeMissingColumn, 1, "book export is missing column "+required)
		}
	}

	cell := func(record []string, name string) string {
		i, ok := fields[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	out := make([]*models.BookTransaction, 0, len(records)-1)
	for n, record := range records[1:] {
		row := n + 2
		if blankRecord(record) {
			continue
		}
		date, err := time.Parse("2006-01-02", cell(record, "date"))
		if err != nil {
			return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row, "unparseable date "+cell(record, "date"))
		}
		amount, err := decimal.NewFromString(cell(record, "amount"))
		if err != nil || amount.IsNegative() {
			return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row, "book amounts must be unsigned decimals")
		}
		direction, err := models.ParseDirection(cell(record, "direction"))
		if err != nil {
			return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row, err.Error())
		}
		tx := &models.BookTransaction{
			ID:          cell(record, "id"),
			AccountID:   cell(record, "account_id"),
			Date:        models.DateOnly(date),
			Description: cell(record, "description"),
			Reference:   cell(record, "reference"),
			Amount:      amount,
			Category:    cell(record, "category"),
			Direction:   direction,
		}
		if err := tx.Validate(); err != nil {
			return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row, err.Error())
		}
		out = append(out, tx)
	}
	return out, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, recerrors.ParseError(recerrors.CodeMalformedRow, 0, err.Error())
	}
	return records, nil
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
