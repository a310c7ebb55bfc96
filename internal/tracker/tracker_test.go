package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codestam/reconengine/internal/models"
	"github.com/codestam/reconengine/internal/store"
	"github.com/codestam/reconengine/pkg/recerrors"
)

func newTracker(t *testing.T, onSettled SettledFunc) (*Tracker, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	tr, err := New(nil, st, nil, onSettled)
	require.NoError(t, err)
	return tr, st
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func discrepancy(itemType models.ItemType) models.NewDiscrepancy {
	return models.NewDiscrepancy{
		StatementID:          "st-1",
		AccountID:            "acct-1",
		RelatedTransactionID: "tx-1",
		Type:                 itemType,
	}
}

func TestRecordAssignsPriority(t *testing.T) {
	tests := []struct {
		name string
		d    models.NewDiscrepancy
		want models.ItemPriority
	}{
		{
			name: "duplicate is critical",
			d:    discrepancy(models.ItemDuplicateTransaction),
			want: models.PriorityCritical,
		},
		{
			name: "amount variance above threshold is high",
			d: func() models.NewDiscrepancy {
				d := discrepancy(models.ItemAmountMismatch)
				d.ExpectedAmount = dec("5000.00")
				d.ActualAmount = dec("5051.00")
				return d
			}(),
			want: models.PriorityHigh,
		},
		{
			name: "amount variance exactly at threshold stays medium",
			d: func() models.NewDiscrepancy {
				// 50/5000 is exactly one percent; the boundary is exclusive.
				d := discrepancy(models.ItemAmountMismatch)
				d.ExpectedAmount = dec("5000.00")
				d.ActualAmount = dec("5050.00")
				return d
			}(),
			want: models.PriorityMedium,
		},
		{
			name: "small amount variance is medium",
			d: func() models.NewDiscrepancy {
				d := discrepancy(models.ItemAmountMismatch)
				d.ExpectedAmount = dec("5000.00")
				d.ActualAmount = dec("5010.00")
				return d
			}(),
			want: models.PriorityMedium,
		},
		{
			name: "zero expected amount with variance is high",
			d: func() models.NewDiscrepancy {
				d := discrepancy(models.ItemAmountMismatch)
				d.ExpectedAmount = dec("0")
				d.ActualAmount = dec("25.00")
				return d
			}(),
			want: models.PriorityHigh,
		},
		{
			name: "date mismatch is low",
			d:    discrepancy(models.ItemDateMismatch),
			want: models.PriorityLow,
		},
		{
			name: "unmatched bank is medium",
			d:    discrepancy(models.ItemUnmatchedBank),
			want: models.PriorityMedium,
		},
		{
			name: "missing transaction is medium",
			d:    discrepancy(models.ItemMissingTransaction),
			want: models.PriorityMedium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTracker(t, nil)
			items, err := tr.Record(context.Background(), []models.NewDiscrepancy{tt.d})
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tt.want, items[0].Priority)
			assert.Equal(t, models.ItemPending, items[0].Status)
			assert.NotEmpty(t, items[0].ID)
		})
	}
}

func TestRecordEmptyBatch(t *testing.T) {
	tr, _ := newTracker(t, nil)
	items, err := tr.Record(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestResolvePendingItem(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()
	items, err := tr.Record(ctx, []models.NewDiscrepancy{discrepancy(models.ItemUnmatchedBank)})
	require.NoError(t, err)

	resolved, err := tr.Resolve(ctx, items[0].ID, "ops", "confirmed with branch")
	require.NoError(t, err)
	assert.Equal(t, models.ItemResolved, resolved.Status)
	assert.Equal(t, "ops", resolved.ResolvedBy)
	assert.Equal(t, "confirmed with branch", resolved.Notes)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestResolveAlreadyResolved(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()
	items, err := tr.Record(ctx, []models.NewDiscrepancy{discrepancy(models.ItemUnmatchedBank)})
	require.NoError(t, err)

	first, err := tr.Resolve(ctx, items[0].ID, "ops", "")
	require.NoError(t, err)

	_, err = tr.Resolve(ctx, items[0].ID, "ops", "second attempt")
	require.Error(t, err)
	assert.True(t, recerrors.IsInvalidState(err))

	// The failed attempt left the item untouched.
	got, err := tr.items.GetItem(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemResolved, got.Status)
	assert.Equal(t, first.Notes, got.Notes)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, first.ResolvedAt.Equal(*got.ResolvedAt))
}

func TestIgnoreIsTerminal(t *testing.T) {
	tr, _ := newTracker(t, nil)
	ctx := context.Background()
	items, err := tr.Record(ctx, []models.NewDiscrepancy{discrepancy(models.ItemUnmatchedBook)})
	require.NoError(t, err)

	ignored, err := tr.Ignore(ctx, items[0].ID, "ops", "known timing gap")
	require.NoError(t, err)
	assert.Equal(t, models.ItemIgnored, ignored.Status)

	_, err = tr.Resolve(ctx, items[0].ID, "ops", "")
	assert.True(t, recerrors.IsInvalidState(err))
	_, err = tr.Ignore(ctx, items[0].ID, "ops", "")
	assert.True(t, recerrors.IsInvalidState(err))
}

func TestResolveUnknownItem(t *testing.T) {
	tr, _ := newTracker(t, nil)
	_, err := tr.Resolve(context.Background(), "missing", "ops", "")
	require.Error(t, err)
	assert.True(t, recerrors.IsNotFound(err))
}

func TestSettledHookFiresOnLastPending(t *testing.T) {
	var settledStatements []string
	tr, _ := newTracker(t, func(ctx context.Context, statementID string) {
		settledStatements = append(settledStatements, statementID)
	})
	ctx := context.Background()

	items, err := tr.Record(ctx, []models.NewDiscrepancy{
		discrepancy(models.ItemUnmatchedBank),
		discrepancy(models.ItemUnmatchedBook),
	})
	require.NoError(t, err)

	_, err = tr.Resolve(ctx, items[0].ID, "ops", "")
	require.NoError(t, err)
	assert.Empty(t, settledStatements)

	_, err = tr.Ignore(ctx, items[1].ID, "ops", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"st-1"}, settledStatements)
}

func TestRecordedTimestampsAreStable(t *testing.T) {
	tr, _ := newTracker(t, nil)
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	items, err := tr.Record(context.Background(), []models.NewDiscrepancy{discrepancy(models.ItemUnmatchedBank)})
	require.NoError(t, err)
	assert.True(t, fixed.Equal(items[0].CreatedAt))
}

func TestListValidatesFilter(t *testing.T) {
	tr, _ := newTracker(t, nil)
	_, err := tr.List(context.Background(), &models.ItemFilter{Status: "nonsense"})
	require.Error(t, err)
}
