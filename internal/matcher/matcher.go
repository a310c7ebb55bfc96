// Package matcher pairs imported bank transactions with internal book
// transactions. Rule-driven auto-matches are applied first, then remaining
// transactions are paired by a weighted confidence score with deterministic
// tie-breaking. The matcher never mutates its inputs; it reports bindings,
// annotations, and discrepancies for the caller to commit atomically.
package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/rules"
	"github.com/codestam/reconengine/pkg/logger"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// Binding pairs one bank transaction with one book transaction. RuleID is set
// when a rule's auto-match action produced the pair.
type Binding struct {
	BankTransactionID string
	BookTransactionID string
	Confidence        int
	RuleID            string
}

// Annotation carries the categorize and flag effects rules had on a bank
// transaction.
type Annotation struct {
	BankTransactionID string
	Categories        []string
	Flags             []string
}

// Result is the complete outcome of one matching run.
type Result struct {
	Bindings      []Binding
	Annotations   []Annotation
	Discrepancies []models.NewDiscrepancy

	AutoMatched int
	Scored      int
	Duplicates  int
}

// Engine runs the matching pipeline with a fixed configuration.
type Engine struct {
	config *Config
	logger logger.Logger
}

// New creates a matching engine, validating the configuration.
func New(config *Config, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, recerrors.Wrap(err, recerrors.CategoryMatching, recerrors.CodeUnexpected, "invalid matcher configuration")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{config: config.Clone(), logger: log.WithComponent("matcher")}, nil
}

type candidate struct {
	bankIndex int
	bookIndex int
	score     int
}

// Match pairs the given transactions. Transactions already matched are left
// alone, so re-running over a committed result is a no-op. priorIDs holds
// transaction IDs seen in earlier imports for this account; bank transactions
// whose ID reappears there are flagged as duplicates and excluded from
// matching. The run aborts with a matching error if ctx is cancelled, and in
// that case nothing is reported.
func (e *Engine) Match(ctx context.Context, bank []*models.BankTransaction, book []*models.BookTransaction, snap *rules.Snapshot, priorIDs map[string]struct{}) (*Result, error) {
	result := &Result{}

	openBank := make([]*models.BankTransaction, 0, len(bank))
	for _, tx := range bank {
		if tx.IsMatched {
			continue
		}
		if _, dup := priorIDs[tx.ID]; dup {
			amount := tx.Amount
			date := models.DateOnly(tx.Date)
			result.Discrepancies = append(result.Discrepancies, models.NewDiscrepancy{
				RelatedTransactionID: tx.ID,
				Type:                 models.ItemDuplicateTransaction,
				ActualAmount:         &amount,
				ActualDate:           &date,
			})
			result.Duplicates++
			continue
		}
		openBank = append(openBank, tx)
	}
	sort.Slice(openBank, func(i, j int) bool { return openBank[i].ID < openBank[j].ID })

	openBook := make([]*models.BookTransaction, 0, len(book))
	bookByID := make(map[string]int, len(book))
	for _, tx := range book {
		if tx.IsMatched {
			continue
		}
		bookByID[tx.ID] = len(openBook)
		openBook = append(openBook, tx)
	}

	bankTaken := make([]bool, len(openBank))
	bookTaken := make([]bool, len(openBook))

	// Phase one: rule evaluation in priority order per transaction. An
	// auto-match action binds immediately; categorize and flag actions are
	// collected as annotations.
	for i, tx := range openBank {
		if err := checkCancelled(ctx, "rule evaluation"); err != nil {
			return nil, err
		}
		if snap == nil {
			break
		}
		outcome := snap.Evaluate(tx)
		if len(outcome.Categories) > 0 || len(outcome.Flags) > 0 {
			result.Annotations = append(result.Annotations, Annotation{
				BankTransactionID: tx.ID,
				Categories:        outcome.Categories,
				Flags:             outcome.Flags,
			})
		}
		if outcome.AutoMatch == nil {
			continue
		}
		target, ok := bookByID[outcome.AutoMatch.BookTransactionID]
		if !ok {
			return nil, recerrors.MatchingError(recerrors.CodeCorruptReference, "auto-match", nil).
				WithContext("rule_id", outcome.AutoMatch.RuleID).
				WithContext("book_transaction_id", outcome.AutoMatch.BookTransactionID)
		}
		if bookTaken[target] {
			// Target already consumed by a higher-priority binding; fall
			// through to scored matching.
			continue
		}
		bankTaken[i] = true
		bookTaken[target] = true
		result.Bindings = append(result.Bindings, Binding{
			BankTransactionID: tx.ID,
			BookTransactionID: openBook[target].ID,
			Confidence:        outcome.AutoMatch.Confidence,
			RuleID:            outcome.AutoMatch.RuleID,
		})
		result.AutoMatched++
	}

	// Phase two: score every candidate pair inside the date window and
	// amount tolerance, then bind greedily from the best score down. Ties
	// break on bank then book transaction ID so runs are reproducible.
	candidates := make([]candidate, 0)
	for i, bankTx := range openBank {
		if bankTaken[i] {
			continue
		}
		if err := checkCancelled(ctx, "candidate scoring"); err != nil {
			return nil, err
		}
		bankTokens := tokenize(bankTx.Description)
		for j, bookTx := range openBook {
			if bookTaken[j] {
				continue
			}
			if daysBetween(bankTx.Date, bookTx.Date) > e.config.DateWindowDays {
				continue
			}
			if !e.amountsPair(bankTx, bookTx) {
				continue
			}
			candidates = append(candidates, candidate{
				bankIndex: i,
				bookIndex: j,
				score:     e.score(bankTx, bookTx, bankTokens),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if openBank[a.bankIndex].ID != openBank[b.bankIndex].ID {
			return openBank[a.bankIndex].ID < openBank[b.bankIndex].ID
		}
		return openBook[a.bookIndex].ID < openBook[b.bookIndex].ID
	})
	for _, c := range candidates {
		if bankTaken[c.bankIndex] || bookTaken[c.bookIndex] {
			continue
		}
		bankTaken[c.bankIndex] = true
		bookTaken[c.bookIndex] = true
		result.Bindings = append(result.Bindings, Binding{
			BankTransactionID: openBank[c.bankIndex].ID,
			BookTransactionID: openBook[c.bookIndex].ID,
			Confidence:        c.score,
		})
		result.Scored++
	}
	if err := checkCancelled(ctx, "binding"); err != nil {
		return nil, err
	}

	sort.Slice(result.Bindings, func(i, j int) bool {
		return result.Bindings[i].BankTransactionID < result.Bindings[j].BankTransactionID
	})

	e.residualDiscrepancies(result, openBank, openBook)
	e.unmatchedDiscrepancies(result, openBank, openBook, bankTaken, bookTaken)

	e.logger.WithFields(logger.Fields{
		"auto_matched":  result.AutoMatched,
		"scored":        result.Scored,
		"duplicates":    result.Duplicates,
		"discrepancies": len(result.Discrepancies),
	}).Info("matching run complete")
	return result, nil
}

// amountsPair reports whether two transactions are close enough in amount to
// be candidates. Signed amounts are compared, so a bank debit never pairs
// with a book credit of the same magnitude.
func (e *Engine) amountsPair(bank *models.BankTransaction, book *models.BookTransaction) bool {
	diff := bank.Amount.Sub(book.SignedAmount()).Abs()
	if diff.IsZero() {
		return true
	}
	return e.config.FuzzyMode && diff.LessThanOrEqual(e.config.AmountTolerance)
}

// residualDiscrepancies flags amount and date differences inside bound pairs.
func (e *Engine) residualDiscrepancies(result *Result, openBank []*models.BankTransaction, openBook []*models.BookTransaction) {
	bankByID := make(map[string]*models.BankTransaction, len(openBank))
	for _, tx := range openBank {
		bankByID[tx.ID] = tx
	}
	bookByID := make(map[string]*models.BookTransaction, len(openBook))
	for _, tx := range openBook {
		bookByID[tx.ID] = tx
	}
	for _, binding := range result.Bindings {
		bankTx := bankByID[binding.BankTransactionID]
		bookTx := bookByID[binding.BookTransactionID]
		if bankTx == nil || bookTx == nil {
			continue
		}
		expected := bookTx.SignedAmount()
		actual := bankTx.Amount
		if !expected.Equal(actual) {
			result.Discrepancies = append(result.Discrepancies, models.NewDiscrepancy{
				RelatedTransactionID: bankTx.ID,
				Reference:            bookTx.ID,
				Type:                 models.ItemAmountMismatch,
				ExpectedAmount:       &expected,
				ActualAmount:         &actual,
			})
		}
		expectedDate := models.DateOnly(bookTx.Date)
		actualDate := models.DateOnly(bankTx.Date)
		if !expectedDate.Equal(actualDate) {
			result.Discrepancies = append(result.Discrepancies, models.NewDiscrepancy{
				RelatedTransactionID: bankTx.ID,
				Reference:            bookTx.ID,
				Type:                 models.ItemDateMismatch,
				ExpectedDate:         &expectedDate,
				ActualDate:           &actualDate,
			})
		}
	}
}

// unmatchedDiscrepancies flags every transaction left without a counterpart.
// A leftover book transaction dated well before the newest bank transaction
// is reported as missing from the statement; more recent ones may simply
// land on the next statement and are reported as unmatched.
func (e *Engine) unmatchedDiscrepancies(result *Result, openBank []*models.BankTransaction, openBook []*models.BookTransaction, bankTaken, bookTaken []bool) {
	var newestBank models.BankTransaction
	haveBank := len(openBank) > 0
	for i, tx := range openBank {
		if tx.Date.After(newestBank.Date) {
			newestBank = *tx
		}
		if bankTaken[i] {
			continue
		}
		amount := tx.Amount
		date := models.DateOnly(tx.Date)
		result.Discrepancies = append(result.Discrepancies, models.NewDiscrepancy{
			RelatedTransactionID: tx.ID,
			Type:                 models.ItemUnmatchedBank,
			ActualAmount:         &amount,
			ActualDate:           &date,
		})
	}

	bookLeft := make([]*models.BookTransaction, 0)
	for j, tx := range openBook {
		if !bookTaken[j] {
			bookLeft = append(bookLeft, tx)
		}
	}
	sort.Slice(bookLeft, func(i, j int) bool { return bookLeft[i].ID < bookLeft[j].ID })
	for _, tx := range bookLeft {
		itemType := models.ItemUnmatchedBook
		if haveBank && daysBetween(tx.Date, newestBank.Date) > e.config.DateWindowDays && tx.Date.Before(newestBank.Date) {
			itemType = models.ItemMissingTransaction
		}
		amount := tx.SignedAmount()
		date := models.DateOnly(tx.Date)
		result.Discrepancies = append(result.Discrepancies, models.NewDiscrepancy{
			Reference:      tx.ID,
			Type:           itemType,
			ExpectedAmount: &amount,
			ExpectedDate:   &date,
		})
	}
}

func checkCancelled(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return recerrors.MatchingError(recerrors.CodeMatchAborted, operation, err)
	}
	return nil
}

// daysBetween returns the whole-day distance between two dates, ignoring
// time of day.
func daysBetween(a, b time.Time) int {
	days := int(models.DateOnly(a).Sub(models.DateOnly(b)).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
