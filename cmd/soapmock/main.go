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
	"github.com/torosent/soapfire/internal/metrics"
	"github.com/torosent/soapfire/internal/responder"
	"github.com/torosent/soapfire/internal/tracing"
)

const (
	serviceName  = "soapmock"
	shutdownWait = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr, nil)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the mock and blocks until ctx is cancelled. ready, when set,
// receives the bound address once the listener is up.
func run(ctx context.Context, args []string, stderr io.Writer, ready chan<- string) error {
	cfg, err := config.NewLoader().LoadMock(args)
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

	tp, err := tracing.Init(ctx, config.TracingConfig{ServiceName: serviceName, SampleRate: 1})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWait)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	opts := responder.Options{
		Path:              cfg.ServicePath,
		Method:            cfg.MethodName,
		Namespace:         cfg.Namespace,
		ResponseNamespace: cfg.ResponseNamespace,
		FailStatus:        cfg.FailStatus,
		Latency:           cfg.Latency,
		Logger:            logger,
		Tracer:            tp.Tracer(),
	}
	if cfg.MetricsAddr != "" {
		exporter := metrics.NewResponderExporter()
		if err := metrics.Serve(ctx, cfg.MetricsAddr, exporter.Handler(), logger); err != nil {
			return err
		}
		opts.Recorder = exporter
	}

	srv := responder.NewServer(responder.NewHandler(opts), cfg.MaxConns, logger)
	if err := srv.Listen(cfg.Listen); err != nil {
		return err
	}
	if ready != nil {
		ready <- srv.Addr().String()
	}
	return srv.Serve(ctx, shutdownWait)
}
