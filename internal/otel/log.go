package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// LogTraceFields returns a zerolog hook that stamps trace_id and span_id
// onto the event when ctx carries a valid span. Events logged outside a
// span pass through untouched, so call sites stay clean when tracing is
// disabled:
//
//	log.Info().Func(otel.LogTraceFields(ctx)).Msg("tool_dispatched")
func LogTraceFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		sc := trace.SpanFromContext(ctx).SpanContext()
		if !sc.IsValid() {
			return
		}
		e.Str("trace_id", sc.TraceID().String())
		e.Str("span_id", sc.SpanID().String())
	}
}
