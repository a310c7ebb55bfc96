package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codestam/reconengine/cmd/reconcile/config"
	"github.com/codestam/reconengine/internal/ledger"
	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/reporter"
	"github.com/codestam/reconengine/internal/session"
	"github.com/codestam/reconengine/pkg/logger"
)

// Flags for the run command
var (
	statementFile   string
	booksFile       string
	accountID       string
	accountCurrency string
	uploadedBy      string
	dateLocale      string
	dateWindow      int
	amountTolerance string
	outputFormat    string
	outputFile      string
	includeSettled  bool
	dbPath          string
	reportCurrency  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile a bank statement against the book ledger",
	Long: `Run uploads a bank statement file, matches its lines against the book
ledger, records discrepancies, and prints a report.

The statement file may be CSV or XLSX; the books file is CSV. Accounts,
automation rules, and exchange rates are read from the configuration file
when one is given.

Examples:
  # Basic reconciliation
  reconcile run --statement statement.csv --books books.csv

  # Ambiguous dd/mm dates, wider matching window, fuzzy amounts
  reconcile run --statement jan.csv --books books.csv \
    --locale dmy --date-window 5 --amount-tolerance 0.50

  # JSON report into a file, durable store
  reconcile run --statement jan.csv --books books.csv \
    --output-format json --output-file report.json --db reconcile.db`,

	PreRunE: validateRunFlags,
	RunE:    runReconciliation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Required flags
	runCmd.Flags().StringVarP(&statementFile, "statement", "s", "", "path to bank statement file, CSV or XLSX (required)")
	runCmd.Flags().StringVarP(&booksFile, "books", "b", "", "path to book ledger CSV file (required)")

	// Account flags
	runCmd.Flags().StringVarP(&accountID, "account", "a", "default", "account the statement belongs to")
	runCmd.Flags().StringVar(&accountCurrency, "account-currency", "USD", "account currency when no accounts are configured")
	runCmd.Flags().StringVar(&uploadedBy, "uploaded-by", "", "operator recorded on the statement")

	// Matching flags
	runCmd.Flags().StringVar(&dateLocale, "locale", "", "date locale for ambiguous dates: dmy or mdy")
	runCmd.Flags().IntVarP(&dateWindow, "date-window", "d", 3, "date matching window in days")
	runCmd.Flags().StringVar(&amountTolerance, "amount-tolerance", "0", "absolute amount tolerance; a nonzero value enables fuzzy matching")

	// Output flags
	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	runCmd.Flags().BoolVar(&includeSettled, "include-settled", false, "include resolved and ignored items in the report")
	runCmd.Flags().StringVar(&reportCurrency, "currency", "", "report variance in this currency (needs configured rates)")

	// Storage flags
	runCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: in-memory)")

	runCmd.MarkFlagRequired("statement")
	runCmd.MarkFlagRequired("books")

	viper.BindPFlag("statement", runCmd.Flags().Lookup("statement"))
	viper.BindPFlag("books", runCmd.Flags().Lookup("books"))
	viper.BindPFlag("account", runCmd.Flags().Lookup("account"))
	viper.BindPFlag("account-currency", runCmd.Flags().Lookup("account-currency"))
	viper.BindPFlag("uploaded-by", runCmd.Flags().Lookup("uploaded-by"))
	viper.BindPFlag("locale", runCmd.Flags().Lookup("locale"))
	viper.BindPFlag("date-window", runCmd.Flags().Lookup("date-window"))
	viper.BindPFlag("amount-tolerance", runCmd.Flags().Lookup("amount-tolerance"))
	viper.BindPFlag("output-format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", runCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("include-settled", runCmd.Flags().Lookup("include-settled"))
	viper.BindPFlag("currency", runCmd.Flags().Lookup("currency"))
	viper.BindPFlag("db", runCmd.Flags().Lookup("db"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	// Viper values win so the config file can override defaults.
	statementFile = viper.GetString("statement")
	booksFile = viper.GetString("books")
	accountID = viper.GetString("account")
	accountCurrency = viper.GetString("account-currency")
	uploadedBy = viper.GetString("uploaded-by")
	dateLocale = viper.GetString("locale")
	dateWindow = viper.GetInt("date-window")
	amountTolerance = viper.GetString("amount-tolerance")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	includeSettled = viper.GetBool("include-settled")
	reportCurrency = viper.GetString("currency")
	dbPath = viper.GetString("db")

	if statementFile == "" {
		return fmt.Errorf("statement is required")
	}
	if booksFile == "" {
		return fmt.Errorf("books is required")
	}
	if err := validateFileExists(statementFile, "statement file"); err != nil {
		return err
	}
	if err := validateFileExists(booksFile, "books file"); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format %q. Valid formats: console, json, csv", outputFormat)
	}
	if dateWindow < 0 {
		return fmt.Errorf("date window cannot be negative")
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}
	return nil
}

func validateFileExists(filePath, description string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

func runReconciliation(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log, err := config.CreateLogger(verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)

	if verbose {
		fmt.Fprintf(os.Stderr, "Statement file: %s\n", statementFile)
		fmt.Fprintf(os.Stderr, "Books file: %s\n", booksFile)
		fmt.Fprintf(os.Stderr, "Account: %s\n", accountID)
	}

	sessionConfig, err := config.CreateSessionConfig(dateLocale, dateWindow, amountTolerance)
	if err != nil {
		return err
	}
	st, err := config.CreateStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	registry, err := config.LoadAccounts(viper.GetViper(), accountID, accountCurrency)
	if err != nil {
		return err
	}
	rates, err := config.LoadRates(viper.GetViper())
	if err != nil {
		return err
	}
	rules, err := config.LoadRules(viper.GetViper())
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if err := st.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to load rule %s: %w", rule.ID, err)
		}
	}

	coordinator, err := session.New(sessionConfig, st, ledger.NewCSVProvider(booksFile), registry, rates, log)
	if err != nil {
		return fmt.Errorf("failed to create session coordinator: %w", err)
	}

	statementHandle, err := os.Open(statementFile)
	if err != nil {
		return fmt.Errorf("failed to open statement file: %w", err)
	}
	statement, err := coordinator.UploadStatement(ctx, statementHandle, filepath.Base(statementFile), accountID, uploadedBy)
	statementHandle.Close()
	if err != nil {
		return err
	}
	if err := coordinator.Start(ctx, statement.ID); err != nil {
		return err
	}

	summary, err := coordinator.Summary(ctx, statement.ID, reportCurrency)
	if err != nil {
		return err
	}
	items, err := coordinator.Items(ctx, &models.ItemFilter{StatementID: statement.ID})
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat, includeSettled)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	output := os.Stdout
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}
	if err := generator.GenerateReport(summary, items, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "\nReconciliation %s.\n", summary.Status)
		fmt.Fprintf(os.Stderr, "Matched %d of %d transactions, %d discrepancies pending.\n",
			summary.MatchedCount, summary.TransactionCount, summary.PendingItems)
	}
	return nil
}
