// Package recerrors defines the typed error taxonomy used across the
// reconciliation engine.
//
// Every error surfaced by the engine belongs to one of a small set of
// categories so that callers (CLI, API layers) can map failures to exit
// codes or HTTP statuses without string matching:
//
//   - parse:       malformed or ambiguous statement input, recoverable by
//     re-uploading corrected data or configuring a date locale
//   - import:      a statement upload that was rejected wholesale; wraps the
//     underlying parse failure and guarantees no partial import happened
//   - state:       an operation attempted in the wrong statement or item
//     lifecycle state (usage error)
//   - not_found:   a referenced statement, item, or rule does not exist
//   - matching:    an unexpected failure inside the matcher; the statement
//     transitions to failed but recorded discrepancies are preserved
//   - storage:     a repository backend failure
//   - internal:    anything else, likely a bug
//
// Errors carry an optional suggestion and structured context, and capture a
// stack trace at creation via github.com/pkg/errors.
package recerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category classifies an error for exit-code and status mapping.
type Category string

const (
	CategoryParse    Category = "parse"
	CategoryImport   Category = "import"
	CategoryState    Category = "state"
	CategoryNotFound Category = "not_found"
	CategoryMatching Category = "matching"
	CategoryStorage  Category = "storage"
	CategoryInternal Category = "internal"
)

// Code identifies a specific failure within a category.
type Code string

const (
	// Parse codes.
	CodeMalformedRow  Code = "malformed_row"
	CodeAmbiguousDate Code = "ambiguous_date"
	CodeBadEncoding   Code = "bad_encoding"
	CodeMissingColumn Code = "missing_column"
	CodeEmptyInput    Code = "empty_input"

	// Import codes.
	CodeImportRejected Code = "import_rejected"

	// State codes.
	CodeInvalidTransition Code = "invalid_transition"
	CodeAlreadyTerminal   Code = "already_terminal"

	// Not-found codes.
	CodeStatementNotFound   Code = "statement_not_found"
	CodeItemNotFound        Code = "item_not_found"
	CodeRuleNotFound        Code = "rule_not_found"
	CodeTransactionNotFound Code = "transaction_not_found"
	CodeAccountNotFound     Code = "account_not_found"

	// Matching codes.
	CodeCorruptReference Code = "corrupt_reference"
	CodeMatchAborted     Code = "match_aborted"

	// Storage codes.
	CodeStorageFailure Code = "storage_failure"

	// Internal codes.
	CodeUnexpected Code = "unexpected"
)

// Context carries structured key/value detail about an error.
type Context map[string]interface{}

// Error is the base error type for the engine. It implements error and
// supports errors.Is/As unwrapping through Cause.
type Error struct {
	Category   Category          `json:"category"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode maps the error category to a process exit code for the CLI.
func (e *Error) ExitCode() int {
	switch e.Category {
	case CategoryParse, CategoryImport:
		return 2
	case CategoryState, CategoryNotFound:
		return 3
	case CategoryMatching:
		return 4
	case CategoryStorage:
		return 5
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext attaches a key/value pair and returns the error for chaining.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches a remediation hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates an Error with a captured stack trace.
func New(category Category, code Code, message string) *Error {
	return &Error{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error. Returns nil when err is nil.
func Wrap(err error, category Category, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// Taxonomy constructors.

// ParseError reports a malformed or ambiguous input row. Row indexes are
// zero-based positions in the uploaded file, excluding the header.
func ParseError(code Code, row int, detail string) *Error {
	var message, suggestion string
	switch code {
	case CodeMalformedRow:
		message = fmt.Sprintf("malformed row %d: %s", row, detail)
		suggestion = "every row needs a date, a signed amount or debit/credit pair, and a description"
	case CodeAmbiguousDate:
		message = fmt.Sprintf("ambiguous date in row %d: %s", row, detail)
		suggestion = "configure a date locale (dmy or mdy) to disambiguate slash-separated dates"
	case CodeBadEncoding:
		message = fmt.Sprintf("invalid UTF-8 in row %d", row)
		suggestion = "re-export the statement file as UTF-8"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column: %s", detail)
		suggestion = "the file must carry date, description and amount (or debit/credit) columns"
	case CodeEmptyInput:
		message = "statement file contains no data rows"
		suggestion = "check that the correct file was uploaded"
	default:
		message = fmt.Sprintf("parse error in row %d: %s", row, detail)
	}
	return New(CategoryParse, code, message).
		WithSuggestion(suggestion).
		WithContext("row", row)
}

// ImportError wraps a parse failure for an upload that was rejected as a
// whole. The statement is left absent; no rows were persisted.
func ImportError(source string, cause error) *Error {
	return Wrap(cause, CategoryImport, CodeImportRejected,
		fmt.Sprintf("statement import rejected: %s", source)).
		WithSuggestion("fix the reported rows and upload the file again").
		WithContext("source", source)
}

// InvalidStateError reports an operation attempted against an entity that is
// not in the required lifecycle state.
func InvalidStateError(entity, id, current, required string) *Error {
	return New(CategoryState, CodeInvalidTransition,
		fmt.Sprintf("%s %s is %s, operation requires %s", entity, id, current, required)).
		WithContext("entity", entity).
		WithContext("id", id).
		WithContext("current_state", current).
		WithContext("required_state", required)
}

// NotFoundError reports a missing statement, item, rule, or transaction.
func NotFoundError(code Code, id string) *Error {
	var entity string
	switch code {
	case CodeStatementNotFound:
		entity = "statement"
	case CodeItemNotFound:
		entity = "reconciliation item"
	case CodeRuleNotFound:
		entity = "rule"
	case CodeTransactionNotFound:
		entity = "transaction"
	case CodeAccountNotFound:
		entity = "account"
	default:
		entity = "entity"
	}
	return New(CategoryNotFound, code, fmt.Sprintf("%s not found: %s", entity, id)).
		WithContext("id", id)
}

// MatchingError reports an unexpected failure inside the matcher.
func MatchingError(code Code, operation string, cause error) *Error {
	e := Wrap(cause, CategoryMatching, code,
		fmt.Sprintf("matching failed during %s", operation))
	if e == nil {
		e = New(CategoryMatching, code, fmt.Sprintf("matching failed during %s", operation))
	}
	return e.WithContext("operation", operation)
}

// StorageError wraps a repository backend failure.
func StorageError(operation string, cause error) *Error {
	e := Wrap(cause, CategoryStorage, CodeStorageFailure,
		fmt.Sprintf("storage failure during %s", operation))
	if e == nil {
		e = New(CategoryStorage, CodeStorageFailure, fmt.Sprintf("storage failure during %s", operation))
	}
	return e.WithContext("operation", operation)
}

// Predicates.

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, category Category) bool {
	if e, ok := As(err); ok {
		return e.Category == category
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsCategory(err, CategoryNotFound) }

// IsInvalidState reports whether err is a lifecycle-state error.
func IsInvalidState(err error) bool { return IsCategory(err, CategoryState) }

// IsParse reports whether err is a parse error.
func IsParse(err error) bool { return IsCategory(err, CategoryParse) }

// IsImport reports whether err is an import rejection.
func IsImport(err error) bool { return IsCategory(err, CategoryImport) }

// ExitCodeFor returns the CLI exit code for any error.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := As(err); ok {
		return e.ExitCode()
	}
	return 1
}
