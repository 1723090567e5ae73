package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/store"
)

func TestCreditTransition(t *testing.T) {
	now := t0.Add(time.Hour)

	decision, err := creditTransition(nil, Credit{OrderID: "ord1", Amount: d(400), OccurredAt: t0}, "debt-1", now)
	require.NoError(t, err)
	require.Equal(t, store.ActionUpsert, decision.Action)
	require.Equal(t, "debt-1", decision.Debt.Data.ID)
	require.Equal(t, now, decision.Debt.Data.LastUpdatedAt)
	require.True(t, decision.Debt.Consistent())

	current := decision.Debt
	decision, err = creditTransition(&current, Credit{OrderID: "ord2", Amount: d(200), OccurredAt: t0}, "unused", now)
	require.NoError(t, err)
	require.Equal(t, "debt-1", decision.Debt.Data.ID)
	require.True(t, decision.Debt.Data.TotalOwed.Equal(d(600)))
	require.Len(t, decision.Debt.Data.History, 2)
	// the input aggregate is left untouched
	require.Len(t, current.Data.History, 1)

	decision, err = creditTransition(&current, Credit{OrderID: "ord1", Amount: d(400), OccurredAt: t0}, "unused", now)
	require.NoError(t, err)
	require.Equal(t, store.ActionNone, decision.Action)

	_, err = creditTransition(nil, Credit{OrderID: "ord3", Amount: d(0)}, "x", now)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPaymentTransition(t *testing.T) {
	var current model.Debt
	current.Data.ID = "debt-1"
	current.Data.TotalOwed = d(300)
	current.Data.History = []model.DebtEntry{{Kind: model.DebtEntryCredit, Amount: d(300), SourceID: "ord1", OccurredAt: t0}}

	_, err := paymentTransition(nil, Payment{ID: "p1", Amount: d(10)}, t0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = paymentTransition(&current, Payment{ID: "p1", Amount: d(-10)}, t0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	decision, err := paymentTransition(&current, Payment{ID: "p1", Amount: d(100), OccurredAt: t0}, t0)
	require.NoError(t, err)
	require.Equal(t, store.ActionUpsert, decision.Action)
	require.True(t, decision.Debt.Data.TotalOwed.Equal(d(200)))
	require.True(t, decision.Debt.Consistent())

	decision, err = paymentTransition(&current, Payment{ID: "p2", Amount: d(300)}, t0)
	require.NoError(t, err)
	require.Equal(t, store.ActionDelete, decision.Action)

	decision, err = paymentTransition(&current, Payment{ID: "p3", Amount: d(301)}, t0)
	require.NoError(t, err)
	require.Equal(t, store.ActionDelete, decision.Action)

	_, err = paymentTransition(&current, Payment{ID: "p4", DebtID: "debt-0", Amount: d(10)}, t0)
	require.ErrorIs(t, err, ErrNotFound)

	decision, err = paymentTransition(&current, Payment{ID: "p5", DebtID: "debt-1", Amount: d(10)}, t0)
	require.NoError(t, err)
	require.Equal(t, store.ActionUpsert, decision.Action)
}
