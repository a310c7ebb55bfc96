package accounts

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codestam/reconengine/pkg/recerrors"
)

func TestStaticRegistry(t *testing.T) {
	registry := NewStaticRegistry(&Account{
		ID:             "acct-1",
		Name:           "Operating",
		Currency:       "USD",
		OpeningBalance: decimal.NewFromInt(1000),
	})

	account, err := registry.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Operating", account.Name)

	// Returned copies do not alias registry state.
	account.Name = "changed"
	again, err := registry.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Operating", again.Name)

	_, err = registry.Account(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, recerrors.IsNotFound(err))
}

func TestAccountValidate(t *testing.T) {
	valid := &Account{ID: "acct-1", Currency: "USD"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&Account{Currency: "USD"}).Validate())
	assert.Error(t, (&Account{ID: "acct-1", Currency: "US"}).Validate())
}
