package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/store"
)

// Credit is a credit order posted against a customer's debt.
type Credit struct {
	OrderID    string
	Amount     decimal.Decimal
	OccurredAt time.Time
}

// Payment is money received from a customer. ID is synthesized, there is no order behind it.
// A non-empty DebtID pins the payment to that aggregate.
type Payment struct {
	ID         string
	DebtID     string
	Amount     decimal.Decimal
	OccurredAt time.Time
}

// creditTransition: Absent -> Active, Active -> Active.
// A credit whose order is already in the history changes nothing.
func creditTransition(current *model.Debt, credit Credit, newID string, now time.Time) (store.Decision, error) {
	if !credit.Amount.IsPositive() {
		return store.NoOp(), ErrInvalidAmount
	}

	entry := model.DebtEntry{
		Kind:       model.DebtEntryCredit,
		Amount:     credit.Amount,
		SourceID:   credit.OrderID,
		OccurredAt: credit.OccurredAt,
	}

	if current == nil {
		var debt model.Debt
		debt.Data.ID = newID
		debt.Data.TotalOwed = credit.Amount
		debt.Data.LastUpdatedAt = now
		debt.Data.History = []model.DebtEntry{entry}
		return store.Upsert(debt), nil
	}

	if current.HasSource(credit.OrderID) {
		return store.NoOp(), nil
	}

	debt := current.Clone()
	debt.Data.TotalOwed = debt.Data.TotalOwed.Add(credit.Amount)
	debt.Data.LastUpdatedAt = now
	debt.Data.History = append(debt.Data.History, entry)
	return store.Upsert(debt), nil
}

// paymentTransition: Active -> Active while something is still owed,
// Active -> Absent once the total reaches zero or below. Overpayment is not an error.
func paymentTransition(current *model.Debt, payment Payment, now time.Time) (store.Decision, error) {
	if !payment.Amount.IsPositive() {
		return store.NoOp(), ErrInvalidAmount
	}
	if current == nil {
		return store.NoOp(), ErrNotFound
	}
	if payment.DebtID != "" && current.Data.ID != payment.DebtID {
		return store.NoOp(), ErrNotFound
	}

	total := current.Data.TotalOwed.Sub(payment.Amount)
	if !total.IsPositive() {
		return store.Delete(), nil
	}

	debt := current.Clone()
	debt.Data.TotalOwed = total
	debt.Data.LastUpdatedAt = now
	debt.Data.History = append(debt.Data.History, model.DebtEntry{
		Kind:       model.DebtEntryPayment,
		Amount:     payment.Amount.Neg(),
		SourceID:   payment.ID,
		OccurredAt: payment.OccurredAt,
	})
	return store.Upsert(debt), nil
}
