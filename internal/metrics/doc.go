// Package metrics aggregates request outcomes for reporting and exposes them
// live over Prometheus.
//
// [Collector] is the in-process aggregate. It implements the dispatcher
// observer hooks, so the same instance that feeds the live progress line also
// produces the final [Stats]:
//
//	collector := metrics.NewCollector()
//	d := dispatcher.New(dispatcher.Options{Observer: collector, ...})
//	res, _ := d.Run(ctx)
//	stats := collector.Stats(res.Duration())
//
// Latencies are tracked in an HDR histogram from 1µs to 60s with three
// significant figures. Failures are bucketed by kind and status label, see
// [FlattenStatusBuckets].
//
// [Exporter] and [ResponderExporter] register counters and histograms on a
// private registry and serve them through [Serve].
package metrics
