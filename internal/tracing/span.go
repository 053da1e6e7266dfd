package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/soapfire/internal/outcome"
)

// Attribute keys recorded on request spans.
const (
	AttrRequestID = attribute.Key("soap.request_id")
	AttrParam     = attribute.Key("soap.request_parameter")
	AttrOutcome   = attribute.Key("soap.outcome")
	AttrStatus    = attribute.Key("http.response.status_code")
)

// StartRequestSpan starts the client span for one SOAP call.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, requestID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "soap "+method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("rpc.system", "soap"),
		attribute.String("rpc.method", method),
		AttrRequestID.String(requestID),
	)
	return ctx, span
}

// StartServerSpan starts the server span for an incoming request, continuing
// any trace context carried in its headers.
func StartServerSpan(r *http.Request, tracer trace.Tracer, method string) (context.Context, trace.Span) {
	ctx := ExtractHTTPHeaders(r.Context(), r.Header)
	ctx, span := tracer.Start(ctx, "soap "+method, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("rpc.system", "soap"),
		attribute.String("rpc.method", method),
		attribute.String("url.path", r.URL.Path),
	)
	return ctx, span
}

// EndSpan finishes a span, recording err as the span status when set.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EndRequestSpan finishes a client span from the request outcome.
func EndRequestSpan(span trace.Span, rec outcome.Record) {
	attrs := []attribute.KeyValue{AttrOutcome.String(rec.Status.Kind.String())}
	if rec.Status.Code != 0 {
		attrs = append(attrs, AttrStatus.Int(rec.Status.Code))
	}
	if rec.Param != "" {
		attrs = append(attrs, AttrParam.String(rec.Param))
	}
	EndSpan(span, rec.Err(), attrs...)
}

// InjectHTTPHeaders writes the W3C trace context of ctx into headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractHTTPHeaders returns ctx carrying the remote span context found in
// headers, if any.
func ExtractHTTPHeaders(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}
