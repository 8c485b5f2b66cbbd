package domain

import "testing"

func TestDecodeForwardTask(t *testing.T) {
	task, err := DecodeTask([]byte(`{"order_id":1,"user_id":7,"num_tokens":30,"traceparent":"00-abc-def-01"}`))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if task.Kind != KindForward {
		t.Errorf("absent tag must decode as forward, got %v", task.Kind)
	}
	if task.OrderID != 1 || task.UserID != 7 || task.NumTokens != 30 {
		t.Errorf("correlation fields wrong: %+v", task)
	}
	if task.Traceparent != "00-abc-def-01" {
		t.Errorf("traceparent not carried: %q", task.Traceparent)
	}
}

func TestDecodeRollbackTask(t *testing.T) {
	task, err := DecodeTask([]byte(`{"task":"rollback","order_id":2,"user_id":9,"num_tokens":50}`))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if task.Kind != KindCompensate {
		t.Errorf("rollback tag must decode as compensate, got %v", task.Kind)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeTask([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, err := DecodeTask([]byte(`{"task":"refund","order_id":1}`)); err == nil {
		t.Error("expected error for unknown task tag")
	}
}

func TestDecodeRejectsNegativeTokens(t *testing.T) {
	if _, err := DecodeTask([]byte(`{"order_id":1,"user_id":1,"num_tokens":-5}`)); err == nil {
		t.Error("expected error for negative num_tokens")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	original := Task{Kind: KindCompensate, OrderID: 3, UserID: 4, NumTokens: 10, Traceparent: "00-x-y-01"}
	raw, err := original.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeTask(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestRollbackKeepsCorrelationFields(t *testing.T) {
	task := Task{Kind: KindForward, OrderID: 5, UserID: 6, NumTokens: 7, Traceparent: "stale"}
	rb := task.Rollback()
	if rb.Kind != KindCompensate {
		t.Error("rollback must be tagged compensate")
	}
	if rb.OrderID != 5 || rb.UserID != 6 || rb.NumTokens != 7 {
		t.Errorf("correlation fields lost: %+v", rb)
	}
	if rb.Traceparent != "" {
		t.Errorf("rollback must never reuse the inbound traceparent, got %q", rb.Traceparent)
	}
}
