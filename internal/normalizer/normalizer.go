// Package normalizer converts raw statement rows into canonical bank
// transactions.
//
// Normalization is a pure function over the raw rows: it parses
// heterogeneous date formats, resolves signed amounts from either a single
// amount column or separate debit/credit columns, and assigns every row a
// stable synthetic identifier derived from its content and position so that
// re-imports of the same file are detectable as duplicates.
//
// Any row that cannot yield a date, an amount, and a description fails the
// whole batch; the caller never persists a partially normalized statement.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// DateLocale disambiguates slash-separated day/month dates.
type DateLocale string

const (
	// LocaleUnset refuses ambiguous dates rather than guessing.
	LocaleUnset DateLocale = ""
	// LocaleDMY reads 01/02/2024 as 1 February 2024.
	LocaleDMY DateLocale = "dmy"
	// LocaleMDY reads 01/02/2024 as January 2, 2024.
	LocaleMDY DateLocale = "mdy"
)

// IsValid checks the locale value.
func (l DateLocale) IsValid() bool {
	return l == LocaleUnset || l == LocaleDMY || l == LocaleMDY
}

// RawRow is one untyped row extracted from a statement file by a reader.
// Either Amount or one of Debit/Credit must be populated.
type RawRow struct {
	Index       int // zero-based data row position, header excluded
	Date        string
	Description string
	Reference   string
	Amount      string
	Debit       string
	Credit      string
	Balance     string
}

// Config controls normalization behavior.
type Config struct {
	// Locale resolves ambiguous day/month dates. Required for files that
	// use slash-separated dates where both parts could be a month.
	Locale DateLocale `json:"locale" mapstructure:"locale"`
}

// DefaultConfig returns a configuration with no locale set; ambiguous dates
// fail normalization until the operator picks one.
func DefaultConfig() *Config {
	return &Config{Locale: LocaleUnset}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Locale.IsValid() {
		return fmt.Errorf("invalid date locale: %s", c.Locale)
	}
	return nil
}

// Normalizer converts raw rows into canonical bank transactions.
type Normalizer struct {
	config *Config
}

// New creates a Normalizer.
func New(config *Config) (*Normalizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid normalizer configuration: %w", err)
	}
	return &Normalizer{config: config}, nil
}

// Normalize converts rows into bank transactions. It is pure: the caller
// persists the result. The first malformed row aborts the whole batch.
func (n *Normalizer) Normalize(rows []RawRow) ([]*models.BankTransaction, error) {
	if len(rows) == 0 {
		return nil, recerrors.ParseError(recerrors.CodeEmptyInput, 0, "")
	}

	txns := make([]*models.BankTransaction, 0, len(rows))
	for _, row := range rows {
		tx, err := n.normalizeRow(row)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

func (n *Normalizer) normalizeRow(row RawRow) (*models.BankTransaction, error) {
	desc := strings.TrimSpace(row.Description)
	if !utf8.ValidString(desc) || !utf8.ValidString(row.Reference) {
		return nil, recerrors.ParseError(recerrors.CodeBadEncoding, row.Index, "")
	}
	if desc == "" {
		return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row.Index, "missing description")
	}

	date, err := n.parseDate(row.Index, row.Date)
	if err != nil {
		return nil, err
	}

	amount, err := resolveAmount(row)
	if err != nil {
		return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row.Index, err.Error())
	}

	var balance decimal.Decimal
	if strings.TrimSpace(row.Balance) != "" {
		balance, err = models.ParseAmount(row.Balance)
		if err != nil {
			return nil, recerrors.ParseError(recerrors.CodeMalformedRow, row.Index,
				fmt.Sprintf("invalid running balance: %v", err))
		}
	}

	return &models.BankTransaction{
		ID:             SyntheticID(date, amount, desc, row.Index),
		Date:           date,
		Description:    desc,
		Reference:      strings.TrimSpace(row.Reference),
		Amount:         amount,
		RunningBalance: balance,
	}, nil
}

// resolveAmount produces a signed amount from either the single amount
// column or the debit/credit pair (debits negative).
func resolveAmount(row RawRow) (decimal.Decimal, error) {
	hasAmount := strings.TrimSpace(row.Amount) != ""
	hasDebit := strings.TrimSpace(row.Debit) != ""
	hasCredit := strings.TrimSpace(row.Credit) != ""

	switch {
	case hasAmount:
		return models.ParseAmount(row.Amount)
	case hasDebit && hasCredit:
		return decimal.Zero, fmt.Errorf("row carries both a debit and a credit value")
	case hasDebit:
		d, err := models.ParseAmount(row.Debit)
		if err != nil {
			return decimal.Zero, err
		}
		return d.Abs().Neg(), nil
	case hasCredit:
		c, err := models.ParseAmount(row.Credit)
		if err != nil {
			return decimal.Zero, err
		}
		return c.Abs(), nil
	default:
		return decimal.Zero, fmt.Errorf("missing amount")
	}
}

// unambiguousFormats parse without locale help.
var unambiguousFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

func (n *Normalizer) parseDate(rowIndex int, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, recerrors.ParseError(recerrors.CodeMalformedRow, rowIndex, "missing date")
	}

	for _, format := range unambiguousFormats {
		if t, err := time.Parse(format, value); err == nil {
			return models.DateOnly(t), nil
		}
	}

	// Slash or dash separated day/month forms need locale care.
	if t, ok, err := n.parseLocalizedDate(rowIndex, value); err != nil {
		return time.Time{}, err
	} else if ok {
		return t, nil
	}

	return time.Time{}, recerrors.ParseError(recerrors.CodeMalformedRow, rowIndex,
		fmt.Sprintf("unrecognized date %q", value))
}

// parseLocalizedDate handles dd/mm/yyyy vs mm/dd/yyyy. When both lead parts
// could be a month the configured locale decides; with no locale set the
// date is reported as ambiguous rather than guessed.
func (n *Normalizer) parseLocalizedDate(rowIndex int, value string) (time.Time, bool, error) {
	sep := "/"
	if strings.Count(value, "-") == 2 {
		sep = "-"
	}
	parts := strings.Split(value, sep)
	if len(parts) != 3 {
		return time.Time{}, false, nil
	}

	first, err1 := strconv.Atoi(parts[0])
	second, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || year < 1000 {
		return time.Time{}, false, nil
	}

	build := func(day, month int) (time.Time, bool, error) {
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, false, recerrors.ParseError(recerrors.CodeMalformedRow, rowIndex,
				fmt.Sprintf("invalid date %q", value))
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// Reject overflow like 31/02.
		if t.Day() != day || int(t.Month()) != month {
			return time.Time{}, false, recerrors.ParseError(recerrors.CodeMalformedRow, rowIndex,
				fmt.Sprintf("invalid date %q", value))
		}
		return t, true, nil
	}

	switch {
	case first > 12 && second > 12:
		return time.Time{}, false, recerrors.ParseError(recerrors.CodeMalformedRow, rowIndex,
			fmt.Sprintf("invalid date %q", value))
	case first > 12:
		return build(first, second) // day first, forced
	case second > 12:
		return build(second, first) // month first, forced
	case first == second:
		return build(first, second) // same either way
	}

	switch n.config.Locale {
	case LocaleDMY:
		return build(first, second)
	case LocaleMDY:
		return build(second, first)
	default:
		return time.Time{}, false, recerrors.ParseError(recerrors.CodeAmbiguousDate, rowIndex, value)
	}
}

// SyntheticID derives a stable identifier from row content and position.
// Identical rows in the same position of a re-imported file hash to the same
// ID, which is how duplicate imports are detected downstream.
func SyntheticID(date time.Time, amount decimal.Decimal, description string, position int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d",
		date.Format("2006-01-02"),
		amount.String(),
		strings.ToLower(strings.TrimSpace(description)),
		position)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
