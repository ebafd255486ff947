package otel

import (
	"context"
	"fmt"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Swind/go-dispatch/core"
)

// instrumentationName is the scope name for tracers and meters created here.
const instrumentationName = "github.com/Swind/go-dispatch"

// Tracing returns an interceptor that wraps every task in a span using the
// global TracerProvider. Without a configured provider the noop tracer makes
// it a pass-through.
func Tracing() core.Interceptor {
	return TracingWithTracer(otelapi.Tracer(instrumentationName))
}

// TracingWithTracer returns the tracing interceptor using the given tracer.
//
// Spans are named "dispatch.task.execute" and carry the queue label. A
// panicking task ends its span with an error status and the panic is passed
// on to the queue's panic handler.
func TracingWithTracer(tracer trace.Tracer) core.Interceptor {
	return func(label string, next core.Task) core.Task {
		return func(ctx context.Context) {
			ctx, span := tracer.Start(ctx, "dispatch.task.execute",
				trace.WithAttributes(attribute.String("dispatch.queue", label)),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer func() {
				if rec := recover(); rec != nil {
					span.RecordError(fmt.Errorf("task panic: %v", rec))
					span.SetStatus(codes.Error, "task panicked")
					span.End()
					panic(rec)
				}
				span.SetStatus(codes.Ok, "")
				span.End()
			}()

			next(ctx)
		}
	}
}
