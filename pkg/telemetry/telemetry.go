// Package telemetry wraps OpenTelemetry tracing for the connection
// pipeline. A Tracer hands out spans pre-tagged with the connection's
// identity; call sites never thread contexts or attribute sets around.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer creates spans carrying a fixed set of base attributes (connection
// id, endpoint and the like) on top of whatever each span adds.
type Tracer struct {
	tracer trace.Tracer
	base   []attribute.KeyValue
}

func NewTracer(scope string, base ...attribute.KeyValue) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(scope),
		base:   base,
	}
}

// Start opens a span under the given context.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) *Span {
	merged := make([]attribute.KeyValue, 0, len(t.base)+len(attrs))
	merged = append(merged, t.base...)
	merged = append(merged, attrs...)

	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(merged...))
	return &Span{tracer: t, ctx: ctx, span: span}
}

// Span is one unit of traced work. Children opened through it nest under it
// without the caller holding on to a context.
type Span struct {
	tracer *Tracer
	ctx    context.Context //nolint:containedctx
	span   trace.Span
}

// Child opens a span nested under this one.
func (s *Span) Child(name string, attrs ...attribute.KeyValue) *Span {
	return s.tracer.Start(s.ctx, name, attrs...)
}

// Context returns the context carrying this span, for propagation into
// transport calls.
func (s *Span) Context() context.Context { return s.ctx }

// Annotate attaches a point-in-time event to the span.
func (s *Span) Annotate(text string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(text, trace.WithAttributes(attrs...))
}

// End closes the span. A non-nil err marks the span failed and records the
// error, so the usual call site is `defer span.End(err)` on a named return
// or `span.End(nil)` on success paths.
func (s *Span) End(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
	}
	s.span.End()
}
