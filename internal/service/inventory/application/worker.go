package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockpile/internal/pkg/tracing"
	"stockpile/internal/service/inventory/domain"
	"stockpile/internal/service/inventory/port"
)

const (
	maxDequeueBackoff = 30 * time.Second
	retryAttempts     = 3
)

// Params wires the worker to its collaborators. Events and Fault are
// optional; everything else is required.
type Params struct {
	QueueKey      string
	StatusChannel string
	DeliveryQueue string
	PaymentQueue  string

	DequeueTimeout time.Duration
	CallTimeout    time.Duration

	Store     port.InventoryStore
	Transport port.Transport
	Notifier  port.StatusNotifier
	Events    port.EventProducer
	Fault     port.FaultInjector

	Tracer trace.Tracer
}

// Worker is one saga participant: it consumes reservation tasks from its
// queue, deducts or restores tokens, and either advances the saga to the
// delivery stage or chains a rollback back to the payment stage. One message
// is processed fully before the next is dequeued; scale-out is running more
// worker processes against the same queue and counter.
type Worker struct {
	p Params
}

func NewWorker(p Params) *Worker {
	return &Worker{p: p}
}

// Run consumes until the context is cancelled or the poison pill arrives.
// Transport failures on dequeue back off and re-poll; they never kill the
// loop. Malformed payloads are reported on the status channel and skipped.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Str("queue", w.p.QueueKey).Msg("watching queue")

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}

		payload, ok, err := w.p.Transport.Dequeue(ctx, w.p.QueueKey, w.p.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Dur("backoff", backoff).Msg("dequeue failed, backing off")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			if backoff < maxDequeueBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if !ok {
			// Timed out on an empty queue; poll again.
			continue
		}

		if string(payload) == domain.PoisonPill {
			log.Info().Msg("poison pill received, stopping worker")
			return nil
		}

		task, err := domain.DecodeTask(payload)
		if err != nil {
			log.Error().Err(err).Msg("skipping malformed task payload")
			w.publishEcho(ctx, domain.EchoFailed, "An error occurred")
			tasksProcessed.WithLabelValues("rejected").Inc()
			continue
		}

		// The echo reports decode success only; it fires exactly once per
		// decoded message, regardless of the business outcome.
		w.publishEcho(ctx, domain.EchoOK, "task accepted")

		switch task.Kind {
		case domain.KindForward:
			w.forward(ctx, task)
		case domain.KindCompensate:
			w.compensate(ctx, task)
		}
	}
}

// forward is the happy path of the saga step: deduct, notify, hand the task
// to the delivery stage. Any failure inside it produces exactly one rollback
// message to the payment stage, whether or not the deduction happened.
func (w *Worker) forward(parent context.Context, task domain.Task) {
	ctx := tracing.Extract(parent, task.Traceparent)
	ctx, span := w.p.Tracer.Start(ctx, "push to delivery", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", task.OrderID),
		attribute.Int64("user.id", task.UserID),
		attribute.Int64("tokens.requested", task.NumTokens),
	)

	err := w.reserve(ctx, task)
	switch {
	case err == nil:
		tokensMoved.WithLabelValues("deducted").Add(float64(task.NumTokens))
	case errors.Is(err, domain.ErrAlreadyReserved):
		// Redelivered task: the ledger already holds this (user, order)
		// pair. Forward without deducting so the saga still advances.
		span.AddEvent("duplicate reservation skipped")
		log.Info().Int64("order_id", task.OrderID).Int64("user_id", task.UserID).
			Msg("duplicate forward task, deduction skipped")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "token reservation failed")
		w.fail(ctx, task, err)
		return
	}

	w.notify(ctx, task.OrderID, domain.StatusInventory, "tokens reserved")

	out := task
	out.Traceparent = tracing.Inject(ctx)
	if err := w.enqueueTask(ctx, w.p.DeliveryQueue, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue to delivery failed")
		w.fail(ctx, task, err)
		return
	}

	w.publishEvent(ctx, task, domain.StatusInventory, "forwarded to delivery")
	tasksProcessed.WithLabelValues("forwarded").Inc()
	span.AddEvent("task forwarded")
	log.Info().Int64("order_id", task.OrderID).Int64("tokens", task.NumTokens).Msg("task forwarded to delivery")
}

// fail reports the failure to the order-tracking service and sends the
// single compensating rollback upstream.
func (w *Worker) fail(ctx context.Context, task domain.Task, cause error) {
	log.Error().Err(cause).Int64("order_id", task.OrderID).Msg("forward path failed, compensating upstream")

	w.notify(ctx, task.OrderID, domain.StatusFailed, cause.Error())

	rollback := task.Rollback()
	rollback.Traceparent = tracing.Inject(ctx)
	if err := w.enqueueTask(ctx, w.p.PaymentQueue, rollback); err != nil {
		log.Error().Err(err).Int64("order_id", task.OrderID).Msg("failed to enqueue rollback message")
	}

	w.publishEvent(ctx, task, domain.StatusFailed, cause.Error())
	tasksProcessed.WithLabelValues("failed").Inc()
}

// compensate credits the tokens back and chains the rollback to the payment
// stage, continuing the compensation backward through the saga.
func (w *Worker) compensate(parent context.Context, task domain.Task) {
	ctx := tracing.Extract(parent, task.Traceparent)
	ctx, span := w.p.Tracer.Start(ctx, "rollback inventory", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", task.OrderID),
		attribute.Int64("user.id", task.UserID),
		attribute.Int64("tokens.restored", task.NumTokens),
	)

	err := w.withRetry(ctx, "restore tokens", func(c context.Context) error {
		return w.p.Store.Restore(c, task.NumTokens)
	})
	if err != nil {
		// Chaining a rollback whose credit never happened would lose
		// tokens; drop the message instead and leave it to operators.
		span.RecordError(err)
		span.SetStatus(codes.Error, "token restore failed")
		log.Error().Err(err).Int64("order_id", task.OrderID).Msg("dropping rollback, token restore failed")
		tasksProcessed.WithLabelValues("dropped").Inc()
		return
	}
	tokensMoved.WithLabelValues("restored").Add(float64(task.NumTokens))

	rollback := task.Rollback()
	rollback.Traceparent = tracing.Inject(ctx)
	if err := w.enqueueTask(ctx, w.p.PaymentQueue, rollback); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Int64("order_id", task.OrderID).Msg("failed to chain rollback upstream")
	}

	w.publishEvent(ctx, task, domain.StatusFailed, "inventory rolled back")
	tasksProcessed.WithLabelValues("compensated").Inc()
	span.AddEvent("compensation chained upstream")
	log.Info().Int64("order_id", task.OrderID).Int64("tokens", task.NumTokens).Msg("inventory rolled back")
}

// reserve applies the optional fault rule, then deducts with bounded retry
// on infrastructure errors. Business failures come back as-is.
func (w *Worker) reserve(ctx context.Context, task domain.Task) error {
	if w.p.Fault != nil {
		hit, err := w.p.Fault.ShouldFail(task)
		if err != nil {
			log.Warn().Err(err).Msg("fault rule evaluation failed, ignoring rule")
		} else if hit {
			return domain.ErrFaultInjected
		}
	}
	return w.withRetry(ctx, "deduct tokens", func(c context.Context) error {
		return w.p.Store.Deduct(c, task.UserID, task.OrderID, task.NumTokens)
	})
}

// withRetry bounds each attempt by the per-call timeout and retries only
// infrastructure failures; business errors are final for the message.
func (w *Worker) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := 500 * time.Millisecond
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, w.p.CallTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil || domain.IsBusinessError(err) || ctx.Err() != nil {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retryable failure")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
	}
	return err
}

func (w *Worker) enqueueTask(ctx context.Context, queue string, task domain.Task) error {
	raw, err := task.Encode()
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, w.p.CallTimeout)
	defer cancel()
	return w.p.Transport.Enqueue(callCtx, queue, raw)
}

func (w *Worker) publishEcho(ctx context.Context, status int, message string) {
	callCtx, cancel := context.WithTimeout(ctx, w.p.CallTimeout)
	defer cancel()
	echo := domain.StatusEcho{Status: status, Message: message}
	if err := w.p.Transport.PublishStatus(callCtx, w.p.StatusChannel, echo); err != nil {
		log.Warn().Err(err).Msg("status echo publish failed")
	}
}

func (w *Worker) notify(ctx context.Context, orderID int64, status, message string) {
	callCtx, cancel := context.WithTimeout(ctx, w.p.CallTimeout)
	defer cancel()
	if err := w.p.Notifier.Notify(callCtx, orderID, status, message); err != nil {
		log.Warn().Err(err).Int64("order_id", orderID).Msg("order status notification failed")
	}
}

func (w *Worker) publishEvent(ctx context.Context, task domain.Task, status, message string) {
	if w.p.Events == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, w.p.CallTimeout)
	defer cancel()
	event := domain.SagaEvent{
		OrderID: task.OrderID,
		UserID:  task.UserID,
		Status:  status,
		Message: message,
	}
	if err := w.p.Events.Publish(callCtx, event); err != nil {
		log.Warn().Err(err).Int64("order_id", task.OrderID).Msg("saga event publish failed")
	}
}
