package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating an OpenTelemetry span per event.
//
// Each event becomes a short span:
//   - Span name: the event kind (e.g. "superstep_completed")
//   - Attributes: run ID, step, executor ID, and every Meta field
//   - Status: Error when Meta carries an "error" entry
//
// Setup:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("flowgraph"))
//
// Spans are ended immediately: run events mark points in time, and dispatch
// durations travel in the "duration_ms" attribute rather than span length.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter over the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span.
func (o *OTelEmitter) Emit(event Event) {
	if o.tracer == nil {
		return
	}

	_, span := o.tracer.Start(context.Background(), event.Kind)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("run_id", event.RunID),
		attribute.Int("step", event.Step),
	}
	if event.ExecutorID != "" {
		attrs = append(attrs, attribute.String("executor_id", event.ExecutorID))
	}
	if event.Msg != "" {
		attrs = append(attrs, attribute.String("msg", event.Msg))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, metaAttribute(k, v))
	}
	span.SetAttributes(attrs...)

	if errVal, ok := event.Meta["error"]; ok {
		span.SetStatus(codes.Error, fmt.Sprint(errVal))
	}
}

// metaAttribute converts a Meta value to a typed attribute, falling back to
// the string form for types OpenTelemetry has no native encoding for.
func metaAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
