package domain

// Order status values reported to the order-tracking service.
const (
	StatusInventory = "inventory"
	StatusFailed    = "failed"
)

// StatusEcho is broadcast on the status channel after every successfully
// decoded dequeue. It reports decode outcome only, never the business
// outcome of the task.
type StatusEcho struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

const (
	EchoOK     = 1
	EchoFailed = -1
)

// SagaEvent is the audit record published to Kafka after each task reaches
// a terminal state.
type SagaEvent struct {
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
