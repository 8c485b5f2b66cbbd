package domain

import "github.com/pkg/errors"

var (
	// ErrInsufficientTokens is the business failure of the forward path.
	// It is final for the message and triggers compensation; never retried.
	ErrInsufficientTokens = errors.New("insufficient tokens to purchase")

	// ErrAlreadyReserved reports that tokens were already deducted for this
	// (user_id, order_id) pair. Under at-least-once delivery a redelivered
	// forward task hits this instead of deducting twice.
	ErrAlreadyReserved = errors.New("tokens already reserved for order")

	// ErrFaultInjected is raised when the configured fault rule matches a
	// task, forcing the forward path down the compensation branch.
	ErrFaultInjected = errors.New("failure injected in inventory service")
)

// IsBusinessError reports whether err is semantically final for its message,
// as opposed to a retryable infrastructure failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientTokens) ||
		errors.Is(err, ErrAlreadyReserved) ||
		errors.Is(err, ErrFaultInjected)
}
