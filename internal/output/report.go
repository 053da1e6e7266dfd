package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/soapfire/internal/metrics"
)

// Format selects a summary renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Write renders s in the requested format.
func Write(w io.Writer, format Format, s RunSummary) error {
	switch format {
	case FormatJSON:
		return PrintJSONReport(w, s)
	case FormatYAML:
		return PrintYAMLReport(w, s)
	case FormatText, "":
		PrintReport(w, s)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// PrintReport writes a human-readable summary.
func PrintReport(w io.Writer, s RunSummary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Total Requests Sent: %d\n", s.TotalIssued)
	fmt.Fprintf(w, "Duration:            %.2f seconds\n", s.DurationSeconds)
	fmt.Fprintf(w, "Actual Rate:         %.2f requests/second\n", s.AchievedRate)
	if s.TargetRate > 0 {
		fmt.Fprintf(w, "Target Rate:         %.2f requests/second\n", s.TargetRate)
	}

	fmt.Fprintln(w, "\nOutcomes:")
	fmt.Fprintf(w, "  Completed:         %d\n", s.Completed)
	fmt.Fprintf(w, "  Successful:        %d\n", s.Successes)
	fmt.Fprintf(w, "  HTTP errors:       %d\n", s.HTTPErrors)
	fmt.Fprintf(w, "  Transport errors:  %d\n", s.TransportErrors)
	if s.Abandoned > 0 {
		fmt.Fprintf(w, "  Abandoned:         %d\n", s.Abandoned)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped ticks:     %d\n", s.Skipped)
	}
	if s.Mismatched > 0 {
		fmt.Fprintf(w, "  Echo mismatches:   %d\n", s.Mismatched)
	}

	if s.Completed > 0 {
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Min:               %s\n", msDuration(s.Latency.Min))
		fmt.Fprintf(w, "  Mean:              %s\n", msDuration(s.Latency.Mean))
		fmt.Fprintf(w, "  P50:               %s\n", msDuration(s.Latency.P50))
		fmt.Fprintf(w, "  P90:               %s\n", msDuration(s.Latency.P90))
		fmt.Fprintf(w, "  P95:               %s\n", msDuration(s.Latency.P95))
		fmt.Fprintf(w, "  P99:               %s\n", msDuration(s.Latency.P99))
		fmt.Fprintf(w, "  Max:               %s\n", msDuration(s.Latency.Max))
	}

	if len(s.StatusBuckets) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		writeStatusBuckets(w, s.StatusBuckets, "  ")
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range s.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

// PrintJSONReport writes the summary as indented JSON.
func PrintJSONReport(w io.Writer, s RunSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// PrintYAMLReport writes the summary as YAML.
func PrintYAMLReport(w io.Writer, s RunSummary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

func writeStatusBuckets(w io.Writer, rows []metrics.StatusBucket, indent string) {
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, strings.ToUpper(row.Kind), row.Code, row.Count)
	}
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
