package ledger

import "errors"

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrNotFound         = errors.New("debt not found")
	ErrForbidden        = errors.New("debt belongs to another operator")
	// ErrConcurrencyExhausted is transient: the whole operation may be retried.
	ErrConcurrencyExhausted = errors.New("debt is being updated concurrently, retries exhausted")
	// ErrStoreUnavailable wraps persistence failures. Nothing was committed.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRetryable reports whether repeating the operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyExhausted)
}
