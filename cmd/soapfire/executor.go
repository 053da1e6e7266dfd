package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/soapfire/internal/dispatcher"
	"github.com/torosent/soapfire/internal/envelope"
	"github.com/torosent/soapfire/internal/outcome"
	"github.com/torosent/soapfire/internal/soapclient"
	"github.com/torosent/soapfire/internal/tracing"
)

// soapExecutor renders the envelope for a task and sends it.
type soapExecutor struct {
	client    *soapclient.Client
	method    string
	namespace string
	action    string
	baseParam int64
	tracer    trace.Tracer
	propagate bool
}

func (e *soapExecutor) Execute(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
	req := envelope.Encode(envelope.EncodeOptions{
		Method:    e.method,
		Namespace: e.namespace,
		Action:    e.action,
		Sequence:  task.Sequence,
		Worker:    task.Worker,
		BaseParam: e.baseParam,
	})

	ctx, span := tracing.StartRequestSpan(ctx, e.tracer, e.method, req.RequestID)
	if e.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	rec := e.client.Send(ctx, req)
	rec.Sequence = task.Sequence
	tracing.EndRequestSpan(span, rec)
	return rec
}

type loggingExecutor struct {
	inner  dispatcher.Executor
	logger *slog.Logger
}

// withFailureLogging logs every failed or mismatched outcome of inner.
func withFailureLogging(inner dispatcher.Executor, logger *slog.Logger) dispatcher.Executor {
	if logger == nil {
		return inner
	}
	return &loggingExecutor{inner: inner, logger: logger}
}

func (l *loggingExecutor) Execute(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
	rec := l.inner.Execute(ctx, task)
	switch {
	case !rec.OK():
		l.logger.Warn("request failed",
			"request_id", rec.RequestID,
			"param", rec.Param,
			"outcome", rec.Status.Kind.String(),
			"status", rec.Status.Label(),
			"elapsed", rec.Elapsed,
			"error", rec.Err())
	case rec.Mismatch != "":
		l.logger.Warn("response mismatch",
			"request_id", rec.RequestID,
			"mismatch", rec.Mismatch)
	}
	return rec
}
