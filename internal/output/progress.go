package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/soapfire/internal/metrics"
)

// StatsSource yields a live aggregate; *metrics.Collector satisfies it.
type StatsSource interface {
	Stats(elapsed time.Duration) metrics.Stats
}

// ProgressReporter rewrites a single status line at a fixed interval.
type ProgressReporter struct {
	source   StatsSource
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   atomic.Bool
	start    time.Time
}

func NewProgressReporter(source StatsSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins updating in a background goroutine. Calling it twice is a no-op.
func (p *ProgressReporter) Start() {
	if !p.active.CompareAndSwap(false, true) {
		return
	}
	p.start = time.Now()
	go p.run()
}

// Stop halts updates and terminates the line.
func (p *ProgressReporter) Stop() {
	if !p.active.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	<-p.finished
	fmt.Fprintln(p.writer)
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, progressLine(p.source.Stats(time.Since(p.start))))
		case <-p.done:
			return
		}
	}
}

func progressLine(stats metrics.Stats) string {
	line := fmt.Sprintf("\rIssued: %d | Completed: %d | Successes: %d | Failures: %d | RPS: %.1f",
		stats.Issued, stats.Completed, stats.Successes, stats.Failures, stats.RequestsPerSec)
	if stats.Completed > 0 {
		line += fmt.Sprintf(" | P99: %.1fms", stats.P99LatencyMs)
	}
	if stats.Skipped > 0 {
		line += fmt.Sprintf(" | Skipped: %d", stats.Skipped)
	}
	return line
}
