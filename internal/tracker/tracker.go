// Package tracker owns the discrepancy item lifecycle: recording the
// discrepancies a matching run produced, assigning their priorities, and
// moving items through resolve and ignore. Items only ever move forward;
// a settled item never returns to pending.
package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/store"
	"github.com/codestam/reconengine/pkg/logger"
	"github.com/codestam/reconengine/pkg/recerrors"
)

// Config controls priority assignment.
type Config struct {
	// HighVarianceThresholdPercent escalates an amount mismatch to high
	// priority when its variance exceeds this share of the expected amount.
	// A variance exactly at the threshold stays medium.
	HighVarianceThresholdPercent decimal.Decimal `json:"high_variance_threshold_percent"`
}

// DefaultConfig escalates amount mismatches above one percent.
func DefaultConfig() *Config {
	return &Config{HighVarianceThresholdPercent: decimal.NewFromInt(1)}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.HighVarianceThresholdPercent.IsNegative() {
		return recerrors.New(recerrors.CategoryInternal, recerrors.CodeUnexpected,
			"variance threshold cannot be negative")
	}
	return nil
}

// SettledFunc is called after the last pending item of a statement reaches a
// terminal status.
type SettledFunc func(ctx context.Context, statementID string)

// Tracker records and settles discrepancy items.
type Tracker struct {
	config  *Config
	items   store.ItemRepository
	logger  logger.Logger
	settled SettledFunc

	now func() time.Time
}

// New creates a tracker backed by the given item repository. onSettled may
// be nil.
func New(config *Config, items store.ItemRepository, log logger.Logger, onSettled SettledFunc) (*Tracker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		config:  config,
		items:   items,
		logger:  log.WithComponent("tracker"),
		settled: onSettled,
		now:     time.Now,
	}, nil
}

// Record turns matcher discrepancies into pending items and persists them in
// one batch. Returned items are in input order.
func (t *Tracker) Record(ctx context.Context, discrepancies []models.NewDiscrepancy) ([]*models.ReconciliationItem, error) {
	if len(discrepancies) == 0 {
		return nil, nil
	}
	now := t.now().UTC()
	items := make([]*models.ReconciliationItem, 0, len(discrepancies))
	for i := range discrepancies {
		d := &discrepancies[i]
		item := &models.ReconciliationItem{
			ID:                   uuid.NewString(),
			StatementID:          d.StatementID,
			AccountID:            d.AccountID,
			RelatedTransactionID: d.RelatedTransactionID,
			Type:                 d.Type,
			Status:               models.ItemPending,
			Priority:             t.prioritize(d),
			Category:             d.Category,
			Reference:            d.Reference,
			ExpectedAmount:       d.ExpectedAmount,
			ActualAmount:         d.ActualAmount,
			ExpectedDate:         d.ExpectedDate,
			ActualDate:           d.ActualDate,
			CreatedAt:            now,
		}
		if err := item.Validate(); err != nil {
			return nil, recerrors.Wrap(err, recerrors.CategoryInternal, recerrors.CodeUnexpected,
				"recorded discrepancy failed validation")
		}
		items = append(items, item)
	}
	if err := t.items.CreateItems(ctx, items); err != nil {
		return nil, err
	}
	t.logger.WithField("count", len(items)).Debug("recorded discrepancy items")
	return items, nil
}

// prioritize maps a discrepancy to its triage priority. The mapping is
// deterministic: the same discrepancy always lands at the same priority.
func (t *Tracker) prioritize(d *models.NewDiscrepancy) models.ItemPriority {
	switch d.Type {
	case models.ItemDuplicateTransaction:
		return models.PriorityCritical
	case models.ItemAmountMismatch:
		if d.ExpectedAmount == nil || d.ActualAmount == nil {
			return models.PriorityMedium
		}
		variance := d.ExpectedAmount.Sub(*d.ActualAmount).Abs()
		if d.ExpectedAmount.IsZero() {
			if variance.IsZero() {
				return models.PriorityMedium
			}
			return models.PriorityHigh
		}
		threshold := d.ExpectedAmount.Abs().Mul(t.config.HighVarianceThresholdPercent).Div(decimal.NewFromInt(100))
		if variance.GreaterThan(threshold) {
			return models.PriorityHigh
		}
		return models.PriorityMedium
	case models.ItemDateMismatch:
		// Dates inside the matching window paired up anyway; this is the
		// lowest-stakes discrepancy.
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

// Resolve marks a pending item resolved.
func (t *Tracker) Resolve(ctx context.Context, id, resolvedBy, notes string) (*models.ReconciliationItem, error) {
	return t.settle(ctx, id, models.ItemResolved, resolvedBy, notes)
}

// Ignore marks a pending item ignored.
func (t *Tracker) Ignore(ctx context.Context, id, resolvedBy, notes string) (*models.ReconciliationItem, error) {
	return t.settle(ctx, id, models.ItemIgnored, resolvedBy, notes)
}

func (t *Tracker) settle(ctx context.Context, id string, status models.ItemStatus, resolvedBy, notes string) (*models.ReconciliationItem, error) {
	item, err := t.items.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, recerrors.InvalidStateError("item", id, string(item.Status), string(models.ItemPending))
	}
	resolvedAt := t.now().UTC()
	item.Status = status
	item.ResolvedBy = resolvedBy
	item.ResolvedAt = &resolvedAt
	if notes != "" {
		item.Notes = notes
	}
	if err := t.items.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	t.logger.WithFields(logger.Fields{
		"item_id": id,
		"status":  string(status),
	}).Info("item settled")

	if t.settled != nil {
		pending, err := t.items.CountPendingItems(ctx, item.StatementID)
		if err != nil {
			return nil, err
		}
		if pending == 0 {
			t.settled(ctx, item.StatementID)
		}
	}
	return item, nil
}

// List returns items matching the filter, highest priority first.
func (t *Tracker) List(ctx context.Context, filter *models.ItemFilter) ([]*models.ReconciliationItem, error) {
	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil, recerrors.Wrap(err, recerrors.CategoryInternal, recerrors.CodeUnexpected, "invalid item filter")
		}
	}
	return t.items.ListItems(ctx, filter)
}

// PendingCount reports how many items of a statement still need attention.
func (t *Tracker) PendingCount(ctx context.Context, statementID string) (int, error) {
	return t.items.CountPendingItems(ctx, statementID)
}
