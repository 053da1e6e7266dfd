package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/soapfire/internal/dispatcher"
	"github.com/torosent/soapfire/internal/outcome"
)

var latencyBuckets = prometheus.ExponentialBuckets(0.001, 2, 15)

// Exporter publishes driver activity as Prometheus metrics. It implements the
// dispatcher observer hooks.
type Exporter struct {
	registry  *prometheus.Registry
	issued    prometheus.Counter
	skipped   prometheus.Counter
	abandoned prometheus.Counter
	inFlight  prometheus.Gauge
	outcomes  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soapfire_requests_issued_total",
			Help: "Requests launched by the dispatcher",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soapfire_ticks_skipped_total",
			Help: "Ticks skipped because no execution slot was available",
		}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soapfire_requests_abandoned_total",
			Help: "Requests that missed the drain timeout",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soapfire_requests_in_flight",
			Help: "Requests launched but not yet completed",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soapfire_outcomes_total",
			Help: "Completed requests by outcome kind and status label",
		}, []string{"kind", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soapfire_request_duration_seconds",
			Help:    "Request latency distribution",
			Buckets: latencyBuckets,
		}, []string{"kind"}),
	}
	e.registry.MustRegister(
		e.issued, e.skipped, e.abandoned, e.inFlight, e.outcomes, e.latency,
		collectors.NewGoCollector(),
	)
	return e
}

func (e *Exporter) OnIssue(dispatcher.RequestTask) {
	e.issued.Inc()
	e.inFlight.Inc()
}

func (e *Exporter) OnSkip(dispatcher.RequestTask, error) {
	e.skipped.Inc()
}

func (e *Exporter) OnAbandon(dispatcher.RequestTask) {
	e.abandoned.Inc()
	e.inFlight.Dec()
}

func (e *Exporter) OnOutcome(rec outcome.Record) {
	e.inFlight.Dec()
	kind := rec.Status.Kind.String()
	label := rec.Status.Label()
	if rec.Status.Kind == outcome.KindTransportError {
		label = ReasonClass(rec.Status.Reason)
	}
	e.outcomes.WithLabelValues(kind, label).Inc()
	e.latency.WithLabelValues(kind).Observe(rec.Elapsed.Seconds())
}

// Handler serves the exporter's registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// ResponderExporter publishes mock responder activity.
type ResponderExporter struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewResponderExporter() *ResponderExporter {
	e := &ResponderExporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soapmock_requests_total",
			Help: "Requests answered by HTTP status code",
		}, []string{"code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soapmock_request_duration_seconds",
			Help:    "Time spent answering a request",
			Buckets: latencyBuckets,
		}),
	}
	e.registry.MustRegister(e.requests, e.latency, collectors.NewGoCollector())
	return e
}

// ObserveRequest records one answered request.
func (e *ResponderExporter) ObserveRequest(code int, elapsed time.Duration) {
	e.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	e.latency.Observe(elapsed.Seconds())
}

func (e *ResponderExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Serve exposes handler on addr under /metrics until ctx is cancelled. The
// listener is bound before Serve returns so bind errors surface immediately.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}
