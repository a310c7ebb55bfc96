package matcher

import (
	"math"
	"strings"
	"unicode"

	"github.com/codestam/reconengine/internal/models"
)

// tokenize splits a description into a set of lowercased alphanumeric tokens.
func tokenize(description string) map[string]struct{} {
	tokens := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, field := range fields {
		tokens[field] = struct{}{}
	}
	return tokens
}

// descriptionOverlap computes the overlap coefficient between two token sets:
// the share of the smaller set that also appears in the larger one. A short
// description fully contained in a longer one scores 1.0.
func descriptionOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	common := 0
	for token := range small {
		if _, ok := large[token]; ok {
			common++
		}
	}
	return float64(common) / float64(len(small))
}

// score rates a candidate pair on a 0-100 scale. Exact amount and exact date
// contribute their full weights; description similarity contributes
// proportionally to token overlap.
func (e *Engine) score(bank *models.BankTransaction, book *models.BookTransaction, bankTokens map[string]struct{}) int {
	total := 0
	if bank.Amount.Equal(book.SignedAmount()) {
		total += e.config.AmountPoints
	}
	if models.DateOnly(bank.Date).Equal(models.DateOnly(book.Date)) {
		total += e.config.DatePoints
	}
	overlap := descriptionOverlap(bankTokens, tokenize(book.Description))
	total += int(math.Round(float64(e.config.DescriptionPoints) * overlap))
	return total
}
