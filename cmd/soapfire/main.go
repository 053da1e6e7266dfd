package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/soapfire/internal/config"
	"github.com/torosent/soapfire/internal/dispatcher"
	"github.com/torosent/soapfire/internal/metrics"
	"github.com/torosent/soapfire/internal/output"
	"github.com/torosent/soapfire/internal/soapclient"
	"github.com/torosent/soapfire/internal/threshold"
	"github.com/torosent/soapfire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	collector := metrics.NewCollector()
	observers := []dispatcher.Observer{collector}
	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter()
		if err := metrics.Serve(ctx, cfg.MetricsAddr, exporter.Handler(), logger); err != nil {
			return err
		}
		observers = append(observers, exporter)
	}

	client := soapclient.New(soapclient.Target{
		Host:               cfg.ServiceHost,
		Port:               cfg.ServicePort,
		Path:               cfg.ServicePath,
		TLS:                cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, soapclient.Options{
		Timeout: cfg.Timeout,
		Verify:  cfg.Verify,
		Method:  cfg.MethodName,
	})

	var executor dispatcher.Executor = &soapExecutor{
		client:    client,
		method:    cfg.MethodName,
		namespace: cfg.Namespace,
		action:    cfg.SOAPAction,
		baseParam: cfg.BaseParameter,
		tracer:    tp.Tracer(),
		propagate: tp.ShouldPropagate(),
	}
	if cfg.LogErrors {
		executor = withFailureLogging(executor, logger)
	}

	d := dispatcher.New(dispatcher.Options{
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  dispatcher.ArrivalModel(cfg.ArrivalModel),
		DrainTimeout:  cfg.DrainTimeout,
		MaxInFlight:   cfg.MaxInFlight,
		Executor:      executor,
		Observer:      dispatcher.MultiObserver(observers...),
		Logger:        logger,
	})

	logger.Info("starting load test",
		"target", client.Endpoint(),
		"rate", cfg.Rate,
		"duration", cfg.Duration,
		"arrival_model", cfg.ArrivalModel)

	var progress *output.ProgressReporter
	if cfg.Progress && cfg.Output == config.OutputText {
		progress = output.NewProgressReporter(collector, progressInterval, stderr)
		progress.Start()
	}

	result, err := d.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		return err
	}

	stats := collector.Stats(result.Duration())
	summary := output.Summarize(output.Run{
		Issued:     result.Issued,
		Skipped:    result.Skipped,
		Abandoned:  result.Abandoned,
		Start:      result.Start,
		End:        result.End,
		Outcomes:   result.Outcomes,
		TargetRate: cfg.Rate,
	}, stats)

	var thresholdResults []threshold.Result
	if len(thresholds) > 0 {
		thresholdResults = threshold.NewEvaluator(thresholds).Evaluate(stats)
		summary.Thresholds = thresholdResults
	}

	if err := output.Write(stdout, output.Format(cfg.Output), summary); err != nil {
		return err
	}

	if !threshold.AllPassed(thresholdResults) {
		return errThresholdsFailed
	}
	return nil
}
