package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/gascontrol/internal/metrics"
	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/store"
)

// Ledger keeps the running credit (fiado) balance of every customer of an operator.
type Ledger interface {
	PostCreditOrder(ctx context.Context, operator, customer, orderID string, amount decimal.Decimal, occurredAt time.Time) (model.Debt, error)
	ApplyPayment(ctx context.Context, operator, customer string, amount decimal.Decimal, occurredAt time.Time) (PaymentResult, error)
	ApplyPaymentToDebt(ctx context.Context, operator, debtID string, amount decimal.Decimal, occurredAt time.Time) (PaymentResult, error)
	ListDebtors(ctx context.Context, operator string) ([]model.Debt, error)
	GetHistory(ctx context.Context, operator, customer string) ([]model.DebtEntry, error)
	GetDebt(ctx context.Context, operator, id string) (model.Debt, error)
}

type PaymentResult struct {
	// Debt is the aggregate after the payment; zero when Settled.
	Debt    model.Debt
	Settled bool
	// Overpaid is how much the payment exceeded the debt.
	Overpaid decimal.Decimal
}

type ledger struct {
	store    store.Store
	executor *Executor
	zaplog   *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewLedger(store store.Store, maxAttempts int, zaplog *zap.Logger) Ledger {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &ledger{
		store:    store,
		executor: NewExecutor(store, maxAttempts, zaplog),
		zaplog:   zaplog,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// PostCreditOrder adds a credit order to the customer's debt, opening one if
// there is none. An orderID already in the debt's history is a NoOp, but only
// while the debt exists: a payoff deletes the aggregate with its history, and
// the same orderID posted after that opens a new debt.
func (l *ledger) PostCreditOrder(ctx context.Context, operator, customer, orderID string, amount decimal.Decimal, occurredAt time.Time) (model.Debt, error) {
	if operator == "" || customer == "" || orderID == "" {
		return model.Debt{}, l.done("post_credit", ErrInsufficientData)
	}
	if !amount.IsPositive() {
		return model.Debt{}, l.done("post_credit", ErrInvalidAmount)
	}

	key := model.DebtKey{Operator: operator, Customer: customer}
	credit := Credit{OrderID: orderID, Amount: amount, OccurredAt: occurredAt}
	newID := l.newID()

	var result model.Debt
	var action store.Action
	err := l.executor.Run(ctx, key, func(current *model.Debt) (store.Decision, error) {
		decision, err := creditTransition(current, credit, newID, l.now())
		if err != nil {
			return decision, err
		}
		action = decision.Action
		if decision.Action == store.ActionNone {
			result = *current
		} else {
			result = decision.Debt
			result.Key = key
		}
		return decision, nil
	})
	if err != nil {
		return model.Debt{}, l.done("post_credit", err)
	}

	if action == store.ActionNone {
		l.zaplog.Info("credit already posted for order",
			zap.String("operator", operator),
			zap.String("customer", customer),
			zap.String("order", orderID),
		)
	} else {
		metrics.LedgerOutstanding.WithLabelValues(model.DebtEntryCredit).Add(amount.InexactFloat64())
		l.zaplog.Info("credit posted",
			zap.String("operator", operator),
			zap.String("customer", customer),
			zap.String("order", orderID),
			zap.String("amount", amount.String()),
			zap.String("total", result.Data.TotalOwed.String()),
		)
	}
	return result, l.done("post_credit", nil)
}

func (l *ledger) ApplyPayment(ctx context.Context, operator, customer string, amount decimal.Decimal, occurredAt time.Time) (PaymentResult, error) {
	if operator == "" || customer == "" {
		return PaymentResult{}, l.done("apply_payment", ErrInsufficientData)
	}
	if !amount.IsPositive() {
		return PaymentResult{}, l.done("apply_payment", ErrInvalidAmount)
	}

	key := model.DebtKey{Operator: operator, Customer: customer}
	payment := Payment{ID: "pago_" + l.newID(), Amount: amount, OccurredAt: occurredAt}
	return l.applyPayment(ctx, key, payment)
}

// ApplyPaymentToDebt pays the debt with the given id. If that debt was settled
// and the customer got a new one meanwhile, the payment fails with ErrNotFound
// instead of landing on the new debt.
func (l *ledger) ApplyPaymentToDebt(ctx context.Context, operator, debtID string, amount decimal.Decimal, occurredAt time.Time) (PaymentResult, error) {
	if operator == "" || debtID == "" {
		return PaymentResult{}, l.done("apply_payment", ErrInsufficientData)
	}
	if !amount.IsPositive() {
		return PaymentResult{}, l.done("apply_payment", ErrInvalidAmount)
	}

	debt, err := l.GetDebt(ctx, operator, debtID)
	if err != nil {
		return PaymentResult{}, l.done("apply_payment", err)
	}

	payment := Payment{ID: "pago_" + l.newID(), DebtID: debtID, Amount: amount, OccurredAt: occurredAt}
	return l.applyPayment(ctx, debt.Key, payment)
}

func (l *ledger) applyPayment(ctx context.Context, key model.DebtKey, payment Payment) (PaymentResult, error) {
	var result PaymentResult
	err := l.executor.Run(ctx, key, func(current *model.Debt) (store.Decision, error) {
		decision, err := paymentTransition(current, payment, l.now())
		if err != nil {
			return decision, err
		}
		result = PaymentResult{}
		switch decision.Action {
		case store.ActionDelete:
			result.Settled = true
			result.Overpaid = payment.Amount.Sub(current.Data.TotalOwed)
		case store.ActionUpsert:
			result.Debt = decision.Debt
			result.Debt.Key = key
		}
		return decision, nil
	})
	if err != nil {
		return PaymentResult{}, l.done("apply_payment", err)
	}

	// the excess of an overpayment is returned, not applied
	applied := payment.Amount.Sub(result.Overpaid)
	metrics.LedgerOutstanding.WithLabelValues(model.DebtEntryPayment).Add(applied.InexactFloat64())
	l.zaplog.Info("payment applied",
		zap.String("operator", key.Operator),
		zap.String("customer", key.Customer),
		zap.String("debt", payment.DebtID),
		zap.String("amount", payment.Amount.String()),
		zap.Bool("settled", result.Settled),
	)
	return result, l.done("apply_payment", nil)
}

func (l *ledger) ListDebtors(ctx context.Context, operator string) ([]model.Debt, error) {
	if operator == "" {
		return nil, ErrInsufficientData
	}
	debts, err := l.store.DebtList(ctx, operator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return debts, nil
}

func (l *ledger) GetHistory(ctx context.Context, operator, customer string) ([]model.DebtEntry, error) {
	if operator == "" || customer == "" {
		return nil, ErrInsufficientData
	}
	debt, err := l.store.DebtGet(ctx, model.DebtKey{Operator: operator, Customer: customer})
	if err != nil {
		return nil, l.storeErr(err)
	}
	return debt.Data.History, nil
}

// GetDebt loads a debt by id on behalf of operator.
func (l *ledger) GetDebt(ctx context.Context, operator, id string) (model.Debt, error) {
	if operator == "" || id == "" {
		return model.Debt{}, ErrInsufficientData
	}
	debt, err := l.store.DebtGetByID(ctx, id)
	if err != nil {
		return model.Debt{}, l.storeErr(err)
	}
	if debt.Key.Operator != operator {
		return model.Debt{}, ErrForbidden
	}
	return debt, nil
}

func (l *ledger) storeErr(err error) error {
	if errors.Is(err, store.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (l *ledger) done(operation string, err error) error {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidAmount):
		result = "invalid_amount"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrConcurrencyExhausted):
		result = "concurrency_exhausted"
	case errors.Is(err, ErrStoreUnavailable):
		result = "store_unavailable"
		l.zaplog.Error("ledger store failure", zap.String("operation", operation), zap.Error(err))
	default:
		result = "error"
	}
	metrics.LedgerOperations.WithLabelValues(operation, result).Inc()
	return err
}
