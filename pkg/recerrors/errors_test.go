package recerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseErrorCarriesRowContext(t *testing.T) {
	err := ParseError(CodeMalformedRow, 7, "no amount")

	assert.Equal(t, CategoryParse, err.Category)
	assert.Equal(t, CodeMalformedRow, err.Code)
	assert.Equal(t, 7, err.Context["row"])
	assert.Contains(t, err.Error(), "malformed row 7")
	assert.Contains(t, err.Error(), "suggestion:")
}

func TestImportErrorWrapsParseError(t *testing.T) {
	parse := ParseError(CodeAmbiguousDate, 2, "01/02/2024")
	imp := ImportError("statement.csv", parse)

	assert.True(t, IsImport(imp))
	require.NotNil(t, imp.Unwrap())

	// The parse cause must stay reachable through the chain.
	inner, ok := As(imp.Unwrap())
	require.True(t, ok)
	assert.Equal(t, CodeAmbiguousDate, inner.Code)
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found", NotFoundError(CodeItemNotFound, "abc"), IsNotFound, true},
		{"invalid state", InvalidStateError("item", "abc", "resolved", "pending"), IsInvalidState, true},
		{"parse", ParseError(CodeMalformedRow, 0, "x"), IsParse, true},
		{"plain error is nothing", fmt.Errorf("boom"), IsNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitCodeFor(nil))
	assert.Equal(t, 2, ExitCodeFor(ParseError(CodeMalformedRow, 1, "x")))
	assert.Equal(t, 2, ExitCodeFor(ImportError("f.csv", ParseError(CodeEmptyInput, 0, ""))))
	assert.Equal(t, 3, ExitCodeFor(NotFoundError(CodeStatementNotFound, "s1")))
	assert.Equal(t, 3, ExitCodeFor(InvalidStateError("statement", "s1", "completed", "pending")))
	assert.Equal(t, 4, ExitCodeFor(MatchingError(CodeCorruptReference, "binding", nil)))
	assert.Equal(t, 1, ExitCodeFor(fmt.Errorf("plain")))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CategoryInternal, CodeUnexpected, "x"))
}

func TestWithContextChaining(t *testing.T) {
	err := New(CategoryInternal, CodeUnexpected, "boom").
		WithContext("a", 1).
		WithContext("b", "two").
		WithSuggestion("report this")

	assert.Equal(t, 1, err.Context["a"])
	assert.Equal(t, "two", err.Context["b"])
	assert.Contains(t, err.Error(), "report this")
}
