package tracing

import (
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func setupPropagation() trace.Tracer {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Tracer("propagation-test")
}

func TestInjectCapturesActiveSpan(t *testing.T) {
	tracer := setupPropagation()

	ctx, span := tracer.Start(context.Background(), "unit of work")
	defer span.End()

	token := Inject(ctx)
	if token == "" {
		t.Fatal("expected a traceparent for an active span")
	}
	traceID := span.SpanContext().TraceID().String()
	if !strings.Contains(token, traceID) {
		t.Errorf("traceparent %q does not carry trace id %s", token, traceID)
	}
}

func TestExtractRebuildsRemoteContext(t *testing.T) {
	setupPropagation()

	const inbound = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	ctx := Extract(context.Background(), inbound)

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatalf("expected a valid remote span context, got %+v", sc)
	}
	if sc.TraceID().String() != "0af7651916cd43dd8448eb211c80319c" {
		t.Errorf("trace id wrong: %s", sc.TraceID())
	}
	if sc.SpanID().String() != "b7ad6b7169203331" {
		t.Errorf("span id wrong: %s", sc.SpanID())
	}
}

func TestChildSpanGetsFreshToken(t *testing.T) {
	tracer := setupPropagation()

	const inbound = "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"
	ctx := Extract(context.Background(), inbound)
	ctx, span := tracer.Start(ctx, "handle task")
	defer span.End()

	token := Inject(ctx)
	if token == inbound {
		t.Error("outbound token must never be the inbound one verbatim")
	}
	if !strings.Contains(token, "0af7651916cd43dd8448eb211c80319c") {
		t.Errorf("child span left the inbound trace: %q", token)
	}
}

func TestExtractEmptyTokenIsNoop(t *testing.T) {
	setupPropagation()
	ctx := Extract(context.Background(), "")
	if trace.SpanContextFromContext(ctx).IsValid() {
		t.Error("empty token must not fabricate a span context")
	}
}
