// Package output turns a finished run into a RunSummary and renders it as
// text, JSON or YAML. It also drives the live progress line.
package output

import (
	"time"

	"github.com/torosent/soapfire/internal/metrics"
	"github.com/torosent/soapfire/internal/outcome"
	"github.com/torosent/soapfire/internal/threshold"
)

// Run is the raw material of a summary: the dispatcher's counters, its window
// and the collected outcomes.
type Run struct {
	Issued     int64
	Skipped    int64
	Abandoned  int64
	Start      time.Time
	End        time.Time
	Outcomes   []outcome.Record
	TargetRate float64
}

// RunSummary is the read-only report of one run.
type RunSummary struct {
	TotalIssued     int64         `json:"total_issued" yaml:"total_issued"`
	TotalDuration   time.Duration `json:"-" yaml:"-"`
	DurationSeconds float64       `json:"duration_seconds" yaml:"duration_seconds"`
	AchievedRate    float64       `json:"achieved_rate" yaml:"achieved_rate"`
	TargetRate      float64       `json:"target_rate" yaml:"target_rate"`

	Completed       int64 `json:"completed" yaml:"completed"`
	Successes       int64 `json:"successes" yaml:"successes"`
	HTTPErrors      int64 `json:"http_errors" yaml:"http_errors"`
	TransportErrors int64 `json:"transport_errors" yaml:"transport_errors"`
	Abandoned       int64 `json:"abandoned" yaml:"abandoned"`
	Skipped         int64 `json:"skipped" yaml:"skipped"`
	Mismatched      int64 `json:"mismatched" yaml:"mismatched"`

	Latency       Latency                `json:"latency_ms" yaml:"latency_ms"`
	StatusBuckets []metrics.StatusBucket `json:"status_buckets,omitempty" yaml:"status_buckets,omitempty"`
	Thresholds    []threshold.Result     `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Latency holds the latency distribution in milliseconds.
type Latency struct {
	Min  float64 `json:"min" yaml:"min"`
	Mean float64 `json:"mean" yaml:"mean"`
	P50  float64 `json:"p50" yaml:"p50"`
	P90  float64 `json:"p90" yaml:"p90"`
	P95  float64 `json:"p95" yaml:"p95"`
	P99  float64 `json:"p99" yaml:"p99"`
	Max  float64 `json:"max" yaml:"max"`
}

// Summarize builds the summary. The achieved rate is issued requests over the
// actual window and is 0 when the window is not positive. Outcome counts come
// from run.Outcomes; the latency distribution comes from stats.
func Summarize(run Run, stats metrics.Stats) RunSummary {
	elapsed := run.End.Sub(run.Start)
	s := RunSummary{
		TotalIssued:   run.Issued,
		TotalDuration: elapsed,
		TargetRate:    run.TargetRate,
		Completed:     int64(len(run.Outcomes)),
		Abandoned:     run.Abandoned,
		Skipped:       run.Skipped,
		Latency: Latency{
			Min:  stats.MinLatencyMs,
			Mean: stats.MeanLatencyMs,
			P50:  stats.P50LatencyMs,
			P90:  stats.P90LatencyMs,
			P95:  stats.P95LatencyMs,
			P99:  stats.P99LatencyMs,
			Max:  stats.MaxLatencyMs,
		},
		StatusBuckets: metrics.FlattenStatusBuckets(stats.StatusBuckets),
	}
	if elapsed > 0 {
		s.DurationSeconds = elapsed.Seconds()
		s.AchievedRate = float64(run.Issued) / elapsed.Seconds()
	}

	for _, rec := range run.Outcomes {
		switch rec.Status.Kind {
		case outcome.KindSuccess:
			s.Successes++
			if rec.Mismatch != "" {
				s.Mismatched++
			}
		case outcome.KindHTTPError:
			s.HTTPErrors++
		default:
			s.TransportErrors++
		}
	}
	return s
}
