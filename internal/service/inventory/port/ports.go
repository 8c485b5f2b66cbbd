package port

import (
	"context"
	"time"

	"stockpile/internal/service/inventory/domain"
)

// InventoryStore owns the shared token counter. Both mutations are single
// transactional read-check-write units; the store call itself is the unit
// of durability.
type InventoryStore interface {
	// Available is a point-in-time read of the counter.
	Available(ctx context.Context) (int64, error)
	// Deduct removes amount tokens for (userID, orderID). Returns
	// domain.ErrInsufficientTokens when the counter is short and
	// domain.ErrAlreadyReserved when this pair already deducted.
	Deduct(ctx context.Context, userID, orderID, amount int64) error
	// Restore credits amount tokens back unconditionally (compensation).
	Restore(ctx context.Context, amount int64) error
}

// Transport is the queue layer: blocking dequeue from one list, enqueue to
// others, and a pub/sub side channel for status echoes.
type Transport interface {
	// Dequeue blocks up to timeout. ok is false when the queue was empty;
	// callers re-poll rather than treating that as an error.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (payload []byte, ok bool, err error)
	// Enqueue pushes a raw payload; fire-and-forget, no acknowledgment.
	Enqueue(ctx context.Context, queue string, payload []byte) error
	// PublishStatus broadcasts a status echo on the side channel.
	PublishStatus(ctx context.Context, channel string, echo domain.StatusEcho) error
}

// StatusNotifier reports order status to the external order-tracking
// service. Best effort: callers must not rely on delivery.
type StatusNotifier interface {
	Notify(ctx context.Context, orderID int64, status, message string) error
}

// EventProducer publishes terminal saga outcomes for downstream consumers.
// Best effort; never blocks saga progress.
type EventProducer interface {
	Publish(ctx context.Context, event domain.SagaEvent) error
}

// FaultInjector decides whether a task should be failed on purpose.
type FaultInjector interface {
	ShouldFail(task domain.Task) (bool, error)
}
