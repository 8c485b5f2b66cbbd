package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceparentHeader is the W3C trace-context key carried inside task
// messages. Messages hold a single propagation token rather than a full
// header map, so the codec goes through a MapCarrier keyed by it.
const TraceparentHeader = "traceparent"

// Extract rebuilds the upstream span context from an inbound traceparent
// token. An empty or garbage token yields the parent context unchanged.
func Extract(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{TraceparentHeader: traceparent}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Inject captures the currently active span context as a traceparent token.
// Every outbound message must carry a token injected from the span that
// handled it, never the inbound token verbatim, or the trace breaks into
// disconnected segments.
func Inject(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(TraceparentHeader)
}
