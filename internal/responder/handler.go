package responder

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/soapfire/internal/envelope"
	"github.com/torosent/soapfire/internal/tracing"
)

// MaxBodyBytes caps the size of an accepted request envelope.
const MaxBodyBytes = 1 << 20

// Recorder receives one observation per handled request.
type Recorder interface {
	ObserveRequest(code int, elapsed time.Duration)
}

// Options configure a Handler.
type Options struct {
	Path              string
	Method            string
	Namespace         string // namespace expected on request elements
	ResponseNamespace string // namespace declared on the response element
	FailStatus        int    // when non-zero, every request is answered with this code
	Latency           time.Duration
	Logger            *slog.Logger
	Recorder          Recorder
	Tracer            trace.Tracer
	Now               func() time.Time
}

// Handler serves the mock SOAP endpoint.
type Handler struct {
	opt       Options
	extractor *Extractor
}

func NewHandler(opt Options) *Handler {
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opt.Tracer == nil {
		opt.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Handler{
		opt:       opt,
		extractor: NewExtractor(opt.Method, opt.Namespace),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartServerSpan(r, h.opt.Tracer, h.opt.Method)

	code, requestID, err := h.serve(w, r.WithContext(ctx))

	if h.opt.Recorder != nil && code != 0 {
		h.opt.Recorder.ObserveRequest(code, time.Since(start))
	}
	attrs := []attribute.KeyValue{tracing.AttrStatus.Int(code)}
	if requestID != "" {
		attrs = append(attrs, tracing.AttrRequestID.String(requestID))
	}
	tracing.EndSpan(span, err, attrs...)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) (int, string, error) {
	if r.URL.Path != h.opt.Path {
		h.writeError(w, http.StatusNotFound, "Not Found")
		h.opt.Logger.Warn("unknown path", "path", r.URL.Path)
		return http.StatusNotFound, "", nil
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return http.StatusMethodNotAllowed, "", nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Bad Request: "+err.Error())
		return http.StatusBadRequest, "", err
	}

	fields, err := h.extractor.Extract(data)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Bad Request: XML Parsing failed. Error: "+err.Error())
		h.opt.Logger.Warn("xml parsing failed", "error", err)
		return http.StatusBadRequest, "", err
	}

	if h.opt.Latency > 0 {
		timer := time.NewTimer(h.opt.Latency)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			// Client went away; nothing is written or recorded.
			return 0, fields.RequestID, r.Context().Err()
		}
	}

	if h.opt.FailStatus != 0 {
		h.writeError(w, h.opt.FailStatus, http.StatusText(h.opt.FailStatus))
		h.opt.Logger.Info("injected failure",
			"request_id", fields.RequestID,
			"status", h.opt.FailStatus)
		return h.opt.FailStatus, fields.RequestID, fmt.Errorf("injected status %d", h.opt.FailStatus)
	}

	body := envelope.EncodeResponse(envelope.ResponseOptions{
		Method:    h.opt.Method,
		Namespace: h.opt.ResponseNamespace,
		Param:     fields.Param,
		RequestID: fields.RequestID,
		Timestamp: h.opt.Now(),
	})
	w.Header().Set("Content-Type", envelope.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	h.opt.Logger.Info("ok", "request_id", fields.RequestID, "param", fields.Param)
	return http.StatusOK, fields.RequestID, nil
}

func (h *Handler) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, "<h1>%d %s</h1>", code, message)
}
