package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/soapfire/internal/dispatcher"
	"github.com/torosent/soapfire/internal/outcome"
)

// Bucket names used as the first level of Stats.StatusBuckets.
const (
	BucketHTTP      = "http"
	BucketTransport = "transport"
)

// Collector records per-request outcomes in a thread-safe manner.
type Collector struct {
	issued  atomic.Int64
	skipped atomic.Int64

	mu              sync.Mutex
	hist            *hdrhistogram.Histogram
	successes       int64
	httpErrors      int64
	transportErrors int64
	mismatched      int64
	minLatency      time.Duration
	maxLatency      time.Duration
	sumLatency      time.Duration
	buckets         map[string]map[string]int
}

// Stats is a point-in-time aggregate of the recorded outcomes.
type Stats struct {
	Issued          int64         `json:"issued"`
	Skipped         int64         `json:"skipped"`
	Completed       int64         `json:"completed"`
	Successes       int64         `json:"successes"`
	Failures        int64         `json:"failures"`
	HTTPErrors      int64         `json:"http_errors"`
	TransportErrors int64         `json:"transport_errors"`
	Mismatched      int64         `json:"mismatched"`
	MinLatency      time.Duration `json:"-"`
	MaxLatency      time.Duration `json:"-"`
	MeanLatency     time.Duration `json:"-"`
	P50Latency      time.Duration `json:"-"`
	P90Latency      time.Duration `json:"-"`
	P95Latency      time.Duration `json:"-"`
	P99Latency      time.Duration `json:"-"`
	Duration        time.Duration `json:"-"`
	RequestsPerSec  float64       `json:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms"`

	StatusBuckets map[string]map[string]int `json:"status_buckets,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		hist:    hdrhistogram.New(1, 60_000_000, 3),
		buckets: make(map[string]map[string]int),
	}
}

func (c *Collector) OnIssue(dispatcher.RequestTask) {
	c.issued.Add(1)
}

func (c *Collector) OnSkip(dispatcher.RequestTask, error) {
	c.skipped.Add(1)
}

// OnAbandon is a no-op; abandoned units are reported from the run result.
func (c *Collector) OnAbandon(dispatcher.RequestTask) {}

func (c *Collector) OnOutcome(rec outcome.Record) {
	c.RecordOutcome(rec)
}

// RecordOutcome folds one completed request into the aggregate.
func (c *Collector) RecordOutcome(rec outcome.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := rec.Elapsed
	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency
	if c.completedLocked() == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	switch rec.Status.Kind {
	case outcome.KindSuccess:
		c.successes++
		if rec.Mismatch != "" {
			c.mismatched++
		}
	case outcome.KindHTTPError:
		c.httpErrors++
		c.bucket(BucketHTTP, rec.Status.Label())
	default:
		c.transportErrors++
		c.bucket(BucketTransport, ReasonClass(rec.Status.Reason))
	}
}

func (c *Collector) bucket(kind, label string) {
	codes, ok := c.buckets[kind]
	if !ok {
		codes = make(map[string]int)
		c.buckets[kind] = codes
	}
	codes[label]++
}

func (c *Collector) completedLocked() int64 {
	return c.successes + c.httpErrors + c.transportErrors
}

// Stats computes the aggregate. elapsed is the wall-clock window used for the
// throughput figure.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	completed := c.completedLocked()
	stats := Stats{
		Issued:          c.issued.Load(),
		Skipped:         c.skipped.Load(),
		Completed:       completed,
		Successes:       c.successes,
		Failures:        c.httpErrors + c.transportErrors,
		HTTPErrors:      c.httpErrors,
		TransportErrors: c.transportErrors,
		Mismatched:      c.mismatched,
		MinLatency:      c.minLatency,
		MaxLatency:      c.maxLatency,
	}

	if completed > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / completed)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50Latency = quantile(c.hist, 50)
		stats.P90Latency = quantile(c.hist, 90)
		stats.P95Latency = quantile(c.hist, 95)
		stats.P99Latency = quantile(c.hist, 99)
	}

	stats.MinLatencyMs = ms(stats.MinLatency)
	stats.MaxLatencyMs = ms(stats.MaxLatency)
	stats.MeanLatencyMs = ms(stats.MeanLatency)
	stats.P50LatencyMs = ms(stats.P50Latency)
	stats.P90LatencyMs = ms(stats.P90Latency)
	stats.P95LatencyMs = ms(stats.P95Latency)
	stats.P99LatencyMs = ms(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = ms(elapsed)
	if elapsed > 0 && completed > 0 {
		stats.RequestsPerSec = float64(completed) / elapsed.Seconds()
	}

	if len(c.buckets) > 0 {
		stats.StatusBuckets = make(map[string]map[string]int, len(c.buckets))
		for kind, codes := range c.buckets {
			cp := make(map[string]int, len(codes))
			for code, n := range codes {
				cp[code] = n
			}
			stats.StatusBuckets[kind] = cp
		}
	}
	return stats
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
