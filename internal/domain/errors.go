package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNotConfigured     = errors.New("exchange not configured")
	ErrNetwork           = errors.New("network error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnsupported       = errors.New("operation not supported")
	ErrBadQuote          = errors.New("inconsistent quote")
	ErrLockHeld          = errors.New("lock already held")
	ErrOrderRejected     = errors.New("order rejected")
)

// Retryable reports whether an error is a transient network-class failure
// worth another attempt. Exchange adapters wrap their transport failures with
// ErrNetwork so callers can classify them uniformly.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
