// Package config assembles the engine's component configurations from CLI
// flags and the viper configuration file.
package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/codestam/reconengine/internal/accounts"
	"github.com/codestam/reconengine/internal/fx"
	"github.com/codestam/reconengine/internal/matcher"
	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/normalizer"
	"github.com/codestam/reconengine/internal/reporter"
	"github.com/codestam/reconengine/internal/session"
	"github.com/codestam/reconengine/internal/store"
	"github.com/codestam/reconengine/internal/tracker"
	"github.com/codestam/reconengine/pkg/logger"
)

// CreateLogger builds the process logger from the verbose flag.
func CreateLogger(verbose bool) (logger.Logger, error) {
	if verbose {
		return logger.New(logger.DebugConfig())
	}
	return logger.New(logger.DefaultConfig())
}

// CreateStore opens the persistence backend. An empty path selects the
// in-memory store; anything else is treated as a SQLite database path.
func CreateStore(path string) (store.Store, error) {
	if path == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(path)
}

// CreateSessionConfig builds the coordinator configuration from CLI
// overrides.
func CreateSessionConfig(locale string, dateWindow int, amountTolerance string) (*session.Config, error) {
	config := session.DefaultConfig()

	switch locale {
	case "":
		config.Locale = normalizer.LocaleUnset
	case "dmy":
		config.Locale = normalizer.LocaleDMY
	case "mdy":
		config.Locale = normalizer.LocaleMDY
	default:
		return nil, fmt.Errorf("invalid date locale %q (use dmy or mdy)", locale)
	}

	matcherConfig := matcher.DefaultConfig()
	matcherConfig.DateWindowDays = dateWindow
	if amountTolerance != "" && amountTolerance != "0" {
		tolerance, err := decimal.NewFromString(amountTolerance)
		if err != nil {
			return nil, fmt.Errorf("invalid amount tolerance %q: %w", amountTolerance, err)
		}
		matcherConfig.FuzzyMode = true
		matcherConfig.AmountTolerance = tolerance
	}
	config.Matcher = matcherConfig
	config.Tracker = tracker.DefaultConfig()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// CreateReportConfig builds the reporter configuration for the requested
// output format.
func CreateReportConfig(format string, includeSettled bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(format)
	config.IncludeSettledItems = includeSettled
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadAccounts reads the accounts section of the configuration file. When
// none is configured a single account is synthesized from the CLI flags so
// the tool works without a config file.
func LoadAccounts(v *viper.Viper, fallbackID, fallbackCurrency string) (*accounts.StaticRegistry, error) {
	var configured []*accounts.Account
	if v.IsSet("accounts") {
		if err := v.UnmarshalKey("accounts", &configured); err != nil {
			return nil, fmt.Errorf("invalid accounts configuration: %w", err)
		}
	}
	if len(configured) == 0 {
		configured = []*accounts.Account{{
			ID:       fallbackID,
			Name:     fallbackID,
			Currency: fallbackCurrency,
		}}
	}
	for _, account := range configured {
		if err := account.Validate(); err != nil {
			return nil, fmt.Errorf("invalid account configuration: %w", err)
		}
	}
	return accounts.NewStaticRegistry(configured...), nil
}

// ruleSpec mirrors a configured rule. Active is a pointer so an omitted
// is_active key defaults to true instead of false.
type ruleSpec struct {
	ID         string                 `mapstructure:"id"`
	Name       string                 `mapstructure:"name"`
	Conditions []models.RuleCondition `mapstructure:"conditions"`
	Actions    []models.RuleAction    `mapstructure:"actions"`
	Active     *bool                  `mapstructure:"is_active"`
	Priority   int                    `mapstructure:"priority"`
}

// LoadRules reads the rules section of the configuration file. Rules default
// to active unless the file says otherwise.
func LoadRules(v *viper.Viper) ([]*models.ReconciliationRule, error) {
	if !v.IsSet("rules") {
		return nil, nil
	}
	var specs []ruleSpec
	if err := v.UnmarshalKey("rules", &specs); err != nil {
		return nil, fmt.Errorf("invalid rules configuration: %w", err)
	}
	rules := make([]*models.ReconciliationRule, 0, len(specs))
	for _, spec := range specs {
		rule := &models.ReconciliationRule{
			ID:         spec.ID,
			Name:       spec.Name,
			Conditions: spec.Conditions,
			Actions:    spec.Actions,
			IsActive:   spec.Active == nil || *spec.Active,
			Priority:   spec.Priority,
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rules configuration: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadRates reads the exchange-rates section of the configuration file,
// keyed "FROM/TO" with decimal rate values. Returns nil when no rates are
// configured; cross-currency summaries then fail explicitly.
func LoadRates(v *viper.Viper) (fx.RateProvider, error) {
	if !v.IsSet("rates") {
		return nil, nil
	}
	raw := v.GetStringMapString("rates")
	rates := make(map[string]decimal.Decimal, len(raw))
	for pair, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", pair, err)
		}
		rates[pair] = rate
	}
	return fx.NewStaticRates(rates)
}
