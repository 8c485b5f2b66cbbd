package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestKafkaHeaderCarrier(t *testing.T) {
	carrier := KafkaHeaderCarrier{}

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("baggage", "k=v")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get returned %q", got)
	}

	// Set on an existing key replaces, it does not append.
	carrier.Set("traceparent", "00-xyz-uvw-01")
	if got := carrier.Get("traceparent"); got != "00-xyz-uvw-01" {
		t.Errorf("Set did not replace, got %q", got)
	}
	if len(carrier) != 2 {
		t.Errorf("expected 2 headers, got %d", len(carrier))
	}

	keys := carrier.Keys()
	if len(keys) != 2 {
		t.Errorf("Keys returned %v", keys)
	}

	if got := carrier.Get("missing"); got != "" {
		t.Errorf("missing key must be empty, got %q", got)
	}
}

func TestKafkaHeaderCarrierFromExisting(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "source", Value: []byte("inventory-service")}}
	if got := carrier.Get("source"); got != "inventory-service" {
		t.Errorf("existing header not readable: %q", got)
	}
	carrier.Set("traceparent", "00-abc-def-01")
	if len(carrier) != 2 {
		t.Errorf("expected 2 headers, got %d", len(carrier))
	}
	_ = []kafka.Header(carrier)
}
