package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"stockpile/internal/pkg/mq"
	"stockpile/internal/service/inventory/domain"
)

// EventKafkaAdapter implements port.EventProducer. Terminal saga outcomes go
// to one topic keyed by order id, with the trace context injected into the
// message headers so downstream consumers join the same trace.
type EventKafkaAdapter struct {
	writer *kafka.Writer
}

func NewEventKafkaAdapter(writer *kafka.Writer) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

func (a *EventKafkaAdapter) Publish(ctx context.Context, event domain.SagaEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal saga event")
	}
	key := []byte(strconv.FormatInt(event.OrderID, 10))
	return mq.ProduceMessage(ctx, a.writer, key, raw)
}

// Close flushes and closes the underlying writer.
func (a *EventKafkaAdapter) Close() error {
	return a.writer.Close()
}
