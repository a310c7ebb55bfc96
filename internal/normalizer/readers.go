package normalizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/codestam/reconengine/pkg/recerrors"
)

// Canonical header names and the aliases banks commonly use for them.
var headerAliases = map[string]string{
	"date":             "date",
	"transaction date": "date",
	"txn date":         "date",
	"posting date":     "date",
	"posted date":      "date",
	"value date":       "date",

	"description":         "description",
	"narration":           "description",
	"particulars":         "description",
	"details":             "description",
	"transaction remarks": "description",
	"memo":                "description",

	"reference":        "reference",
	"ref":              "reference",
	"reference number": "reference",
	"cheque no":        "reference",
	"check number":     "reference",

	"amount":            "amount",
	"amt":               "amount",
	"transaction amount": "amount",

	"debit":           "debit",
	"withdrawal":      "debit",
	"withdrawal amt.": "debit",
	"withdrawal amount": "debit",
	"debit amount":    "debit",

	"credit":         "credit",
	"deposit":        "credit",
	"deposit amt.":   "credit",
	"deposit amount": "credit",
	"credit amount":  "credit",

	"balance":         "balance",
	"running balance": "balance",
	"closing balance": "balance",
}

// headerMap resolves a header row to canonical column indexes.
type headerMap map[string]int

func buildHeaderMap(header []string) headerMap {
	m := make(headerMap)
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		if canonical, ok := headerAliases[name]; ok {
			if _, taken := m[canonical]; !taken {
				m[canonical] = i
			}
		}
	}
	return m
}

// validate checks that the mandatory columns are present: date, description,
// and either a single amount column or a debit/credit pair.
func (m headerMap) validate() error {
	if _, ok := m["date"]; !ok {
		return recerrors.ParseError(recerrors.CodeMissingColumn, 0, "date")
	}
	if _, ok := m["description"]; !ok {
		return recerrors.ParseError(recerrors.CodeMissingColumn, 0, "description")
	}
	_, hasAmount := m["amount"]
	_, hasDebit := m["debit"]
	_, hasCredit := m["credit"]
	if !hasAmount && !(hasDebit || hasCredit) {
		return recerrors.ParseError(recerrors.CodeMissingColumn, 0, "amount (or debit/credit)")
	}
	return nil
}

func (m headerMap) field(record []string, name string) string {
	idx, ok := m[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func rowsFromRecords(records [][]string) ([]RawRow, error) {
	if len(records) == 0 {
		return nil, recerrors.ParseError(recerrors.CodeEmptyInput, 0, "")
	}

	hm := buildHeaderMap(records[0])
	if err := hm.validate(); err != nil {
		return nil, err
	}

	rows := make([]RawRow, 0, len(records)-1)
	index := 0
	for _, record := range records[1:] {
		if isEmptyRecord(record) {
			continue
		}
		rows = append(rows, RawRow{
			Index:       index,
			Date:        hm.field(record, "date"),
			Description: hm.field(record, "description"),
			Reference:   hm.field(record, "reference"),
			Amount:      hm.field(record, "amount"),
			Debit:       hm.field(record, "debit"),
			Credit:      hm.field(record, "credit"),
			Balance:     hm.field(record, "balance"),
		})
		index++
	}

	if len(rows) == 0 {
		return nil, recerrors.ParseError(recerrors.CodeEmptyInput, 0, "")
	}
	return rows, nil
}

func isEmptyRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ReadCSV extracts raw rows from a UTF-8 CSV statement with a header row.
func ReadCSV(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // banks pad trailing columns inconsistently

	records, err := reader.ReadAll()
	if err != nil {
		return nil, recerrors.ParseError(recerrors.CodeMalformedRow, 0,
			fmt.Sprintf("csv read failed: %v", err))
	}
	return rowsFromRecords(records)
}

// ReadXLSX extracts raw rows from the first sheet of an XLSX statement.
func ReadXLSX(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, recerrors.ParseError(recerrors.CodeMalformedRow, 0,
			fmt.Sprintf("xlsx open failed: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, recerrors.ParseError(recerrors.CodeEmptyInput, 0, "")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, recerrors.ParseError(recerrors.CodeMalformedRow, 0,
			fmt.Sprintf("xlsx read failed: %v", err))
	}
	return rowsFromRecords(records)
}

// ReadStatement picks a reader from the file extension.
func ReadStatement(r io.Reader, filename string) ([]RawRow, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".xlsx"):
		return ReadXLSX(r)
	default:
		return ReadCSV(r)
	}
}
