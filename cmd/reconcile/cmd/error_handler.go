package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/codestam/reconengine/pkg/logger"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// CLIErrorHandler turns engine errors into user-facing messages and exit
// codes.
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.Global().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints a message for err and returns the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}
	h.logger.WithError(err).Debug("command failed")

	if recErr, ok := recerrors.As(err); ok {
		return h.handleEngineError(recErr)
	}
	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleEngineError(err *recerrors.Error) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}
	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n", categoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}
	return err.ExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	if os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory") {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}
	if os.IsPermission(err) || strings.Contains(err.Error(), "permission denied") {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nRun with --verbose for more detail\n")
	}
	return 1
}

func categoryHelp(category recerrors.Category) string {
	switch category {
	case recerrors.CategoryParse:
		return `Parse error help:
• Verify the statement file format and structure
• Check for proper column headers: date, description, and amount (or debit/credit)
• Ensure the file uses UTF-8 encoding
• Pick a date locale with --locale when dates are ambiguous`

	case recerrors.CategoryImport:
		return `Import error help:
• A single malformed row rejects the whole file; fix the row and re-upload
• Check the row named in the error message, counting from the first data row
• Amounts must be decimal numbers without currency symbols`

	case recerrors.CategoryState:
		return `State error help:
• The statement is not in the state this operation needs
• A completed or failed statement cannot be started again
• Resolved or ignored items cannot be settled twice`

	case recerrors.CategoryNotFound:
		return `Not found help:
• Check the statement, item, or account identifier
• Configured accounts come from the config file's accounts section
• Use --account to name the statement's account`

	case recerrors.CategoryMatching:
		return `Matching error help:
• Check auto-match rules for stale book transaction references
• Try adjusting --date-window or --amount-tolerance
• A cancelled run leaves the statement pending; run it again`

	default:
		return `For more help:
• Use 'reconcile --help' for general help
• Use 'reconcile run --help' for command-specific help`
	}
}
