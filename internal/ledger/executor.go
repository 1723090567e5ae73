package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iurnickita/gascontrol/internal/metrics"
	"github.com/iurnickita/gascontrol/internal/model"
	"github.com/iurnickita/gascontrol/internal/store"
)

const DefaultMaxAttempts = 5

type debtApplier interface {
	DebtApply(ctx context.Context, key model.DebtKey, decide store.Decider) error
}

// Executor runs read-decide-write units against one debt key. Atomicity comes
// from the store's conditional write; on a conflict the whole unit, read
// included, is run again.
type Executor struct {
	store       debtApplier
	maxAttempts int
	zaplog      *zap.Logger
}

func NewExecutor(store debtApplier, maxAttempts int, zaplog *zap.Logger) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &Executor{
		store:       store,
		maxAttempts: maxAttempts,
		zaplog:      zaplog,
	}
}

// Run returns errors from decide unchanged, ErrConcurrencyExhausted when every
// attempt lost a race and ErrStoreUnavailable for anything else.
func (e *Executor) Run(ctx context.Context, key model.DebtKey, decide store.Decider) error {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		var decideErr error
		err := e.store.DebtApply(ctx, key, func(current *model.Debt) (store.Decision, error) {
			decision, err := decide(current)
			decideErr = err
			return decision, err
		})
		switch {
		case decideErr != nil:
			return decideErr
		case err == nil:
			metrics.LedgerTxAttempts.Observe(float64(attempt))
			return nil
		case errors.Is(err, store.ErrConflict):
			metrics.LedgerTxConflicts.Inc()
			e.zaplog.Debug("debt write conflict, retrying",
				zap.String("operator", key.Operator),
				zap.String("customer", key.Customer),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		default:
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}

	metrics.LedgerTxAttempts.Observe(float64(e.maxAttempts))
	e.zaplog.Warn("debt transaction retries exhausted",
		zap.String("operator", key.Operator),
		zap.String("customer", key.Customer),
		zap.Int("attempts", e.maxAttempts),
	)
	return ErrConcurrencyExhausted
}
