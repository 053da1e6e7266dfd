package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/soapfire/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "p95 latency",
			input: "request_duration:p95 < 500",
			want:  Threshold{Metric: MetricDuration, Aggregate: "p95", Operator: "<", Value: 500, Raw: "request_duration:p95 < 500"},
		},
		{
			name:  "failure rate without spaces",
			input: "request_failed:rate<0.01",
			want:  Threshold{Metric: MetricFailed, Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "request_failed:rate<0.01"},
		},
		{
			name:  "request rate",
			input: "  requests:rate >= 900 ",
			want:  Threshold{Metric: MetricRequests, Aggregate: "rate", Operator: ">=", Value: 900, Raw: "requests:rate >= 900"},
		},
		{
			name:  "mismatch count",
			input: "request_mismatch:count == 0",
			want:  Threshold{Metric: MetricMismatch, Aggregate: "count", Operator: "==", Value: 0, Raw: "request_mismatch:count == 0"},
		},
		{name: "empty", input: "", wantError: true},
		{name: "bad format", input: "p95 under 500", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "unknown aggregate", input: "request_duration:p42 < 500", wantError: true},
		{name: "unknown operator", input: "request_duration:p95 != 500", wantError: true},
		{name: "bad number", input: "request_duration:p95 < 1.2.3", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	got, err := ParseMultiple([]string{"request_duration:p99 < 800", "request_failed:count == 0"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	_, err = ParseMultiple([]string{"request_duration:p99 < 800", "bogus", "nope:p1 < 1"})
	if err == nil {
		t.Fatal("ParseMultiple() expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("error should list every bad entry: %v", err)
	}

	if got, err := ParseMultiple(nil); got != nil || err != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Issued:         1000,
		Skipped:        10,
		Completed:      990,
		Successes:      980,
		Failures:       10,
		Mismatched:     2,
		RequestsPerSec: 99,
		P50LatencyMs:   12,
		P90LatencyMs:   40,
		P95LatencyMs:   55,
		P99LatencyMs:   90,
		MeanLatencyMs:  18,
		MinLatencyMs:   1,
		MaxLatencyMs:   120,
		Duration:       10 * time.Second,
	}
}

func TestEvaluator(t *testing.T) {
	parsed, err := ParseMultiple([]string{
		"request_duration:p95 < 60",
		"request_duration:max < 100",
		"request_failed:rate < 0.02",
		"requests:rate >= 99",
		"request_mismatch:count == 0",
	})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}

	results := NewEvaluator(parsed).Evaluate(sampleStats())
	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	wantPass := []bool{true, false, true, true, false}
	for i, r := range results {
		if r.Pass != wantPass[i] {
			t.Errorf("%s: pass = %v, want %v (actual %.4f)", r.Expr, r.Pass, wantPass[i], r.Actual)
		}
		if !strings.Contains(r.Message, r.Expr) {
			t.Errorf("message %q should mention %q", r.Message, r.Expr)
		}
	}
	if AllPassed(results) {
		t.Error("AllPassed() = true, want false")
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) = false, want true")
	}
	if NewEvaluator(nil).Evaluate(sampleStats()) != nil {
		t.Error("Evaluate() without thresholds should return nil")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual   float64
		op       string
		expected float64
		want     bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 2.0000000001, true},
		{0.1 + 0.2, "==", 0.3, true},
		{1, "!=", 2, false},
	}
	for _, tt := range tests {
		if got := compareValues(tt.actual, tt.op, tt.expected); got != tt.want {
			t.Errorf("compareValues(%v %s %v) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
		}
	}
}

func TestExtractMetricValue(t *testing.T) {
	stats := sampleStats()
	tests := []struct {
		expr string
		want float64
	}{
		{"request_duration:p50 < 1", 12},
		{"request_duration:p90 < 1", 40},
		{"request_duration:avg < 1", 18},
		{"request_duration:min < 1", 1},
		{"request_failed:count < 1", 10},
		{"requests:count < 1", 990},
		{"request_mismatch:rate < 1", 2.0 / 980},
		{"ticks_skipped:rate < 1", 10.0 / 1010},
	}
	for _, tt := range tests {
		th, err := Parse(tt.expr)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.expr, err)
		}
		got, err := extractMetricValue(th, stats)
		if err != nil {
			t.Fatalf("extractMetricValue(%q) error = %v", tt.expr, err)
		}
		if !compareValues(got, "==", tt.want) {
			t.Errorf("extractMetricValue(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}

	th, _ := Parse("requests:p95 < 1")
	if _, err := extractMetricValue(th, stats); err == nil {
		t.Error("requests:p95 should be rejected at evaluation time")
	}
	if _, err := extractMetricValue(Threshold{Metric: MetricFailed, Aggregate: "rate"}, metrics.Stats{}); err != nil {
		t.Errorf("rate over zero completed should be 0, got error %v", err)
	}
}
