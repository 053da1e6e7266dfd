package config

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlagCommand(use, short string, configure func(*pflag.FlagSet)) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configure(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	// Target
	flags.String("host", def.ServiceHost, "Target service host")
	flags.String("path", def.ServicePath, "Target service path")
	flags.Int("port", def.ServicePort, "Target service port")
	flags.Bool("tls", false, "Use HTTPS for the target connection")
	flags.Bool("insecure", false, "Skip TLS certificate verification (self-signed test targets only)")

	// Request shape
	flags.String("soap-action", def.SOAPAction, "SOAPAction header value")
	flags.String("method", def.MethodName, "Name of the remote method element")
	flags.String("namespace", def.Namespace, "XML namespace of the method element")
	flags.Int64("base-param", def.BaseParameter, "Base value added to each request sequence number")

	// Load control
	flags.DurationP("duration", "d", def.Duration, "Issuance window (e.g. 10s, 1m)")
	flags.Float64P("rate", "r", def.Rate, "Target requests per second")
	flags.String("arrival-model", string(def.ArrivalModel), "Tick pacing: cadence, uniform or poisson")
	flags.Duration("drain-timeout", def.DrainTimeout, "Per-request wait for outstanding requests after the window closes")
	flags.Duration("timeout", def.Timeout, "Per-request timeout")
	flags.Int("max-in-flight", 0, "Cap on concurrently running requests (0 means unbounded)")
	flags.Bool("verify", false, "Check that each response echoes the sent parameter and identifier")

	// Output
	flags.StringP("output", "o", string(def.Output), "Summary format: text, json or yaml")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.Bool("progress", false, "Show a live progress line on stderr")
	flags.StringSlice("threshold", nil, "Pass/fail threshold (e.g. 'request_duration:p95 < 500'), repeatable")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", def.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", def.Tracing.SampleRate, "Trace sampling ratio between 0 and 1")
}

func configureMockFlags(flags *pflag.FlagSet) {
	def := DefaultMock()

	flags.String("listen", def.Listen, "Address to listen on")
	flags.String("path", def.ServicePath, "Service path to accept requests on")
	flags.String("method", def.MethodName, "Name of the expected method element")
	flags.String("namespace", def.Namespace, "Client namespace tried before the unqualified lookup")
	flags.String("response-namespace", def.ResponseNamespace, "XML namespace of the response element")
	flags.Int("max-conns", 0, "Cap on concurrent connections (0 means unbounded)")
	flags.Int("fail-status", 0, "Answer every request with this HTTP status")
	flags.Duration("latency", 0, "Artificial delay before each response")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	_, _ = out.Write([]byte(cmd.UsageString()))
}

func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	if fs.Changed("host") {
		if cfg.ServiceHost, err = fs.GetString("host"); err != nil {
			return err
		}
		cfg.ServiceHost = strings.TrimSpace(cfg.ServiceHost)
	}
	if fs.Changed("path") {
		if cfg.ServicePath, err = fs.GetString("path"); err != nil {
			return err
		}
	}
	if fs.Changed("port") {
		if cfg.ServicePort, err = fs.GetInt("port"); err != nil {
			return err
		}
	}
	if fs.Changed("tls") {
		if cfg.UseTLS, err = fs.GetBool("tls"); err != nil {
			return err
		}
	}
	if fs.Changed("insecure") {
		if cfg.InsecureSkipVerify, err = fs.GetBool("insecure"); err != nil {
			return err
		}
	}
	if fs.Changed("soap-action") {
		if cfg.SOAPAction, err = fs.GetString("soap-action"); err != nil {
			return err
		}
	}
	if fs.Changed("method") {
		if cfg.MethodName, err = fs.GetString("method"); err != nil {
			return err
		}
	}
	if fs.Changed("namespace") {
		if cfg.Namespace, err = fs.GetString("namespace"); err != nil {
			return err
		}
	}
	if fs.Changed("base-param") {
		if cfg.BaseParameter, err = fs.GetInt64("base-param"); err != nil {
			return err
		}
	}
	if fs.Changed("duration") {
		if cfg.Duration, err = fs.GetDuration("duration"); err != nil {
			return err
		}
	}
	if fs.Changed("rate") {
		if cfg.Rate, err = fs.GetFloat64("rate"); err != nil {
			return err
		}
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.ArrivalModel = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("drain-timeout") {
		if cfg.DrainTimeout, err = fs.GetDuration("drain-timeout"); err != nil {
			return err
		}
	}
	if fs.Changed("timeout") {
		if cfg.Timeout, err = fs.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if fs.Changed("max-in-flight") {
		if cfg.MaxInFlight, err = fs.GetInt("max-in-flight"); err != nil {
			return err
		}
	}
	if fs.Changed("verify") {
		if cfg.Verify, err = fs.GetBool("verify"); err != nil {
			return err
		}
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("log-errors") {
		if cfg.LogErrors, err = fs.GetBool("log-errors"); err != nil {
			return err
		}
	}
	if fs.Changed("log-level") {
		if cfg.LogLevel, err = fs.GetString("log-level"); err != nil {
			return err
		}
	}
	if fs.Changed("progress") {
		if cfg.Progress, err = fs.GetBool("progress"); err != nil {
			return err
		}
	}
	if fs.Changed("threshold") {
		if cfg.Thresholds, err = fs.GetStringSlice("threshold"); err != nil {
			return err
		}
	}
	if fs.Changed("metrics-addr") {
		if cfg.MetricsAddr, err = fs.GetString("metrics-addr"); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-endpoint") {
		if cfg.Tracing.Endpoint, err = fs.GetString("tracing-endpoint"); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-protocol") {
		if cfg.Tracing.Protocol, err = fs.GetString("tracing-protocol"); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-insecure") {
		if cfg.Tracing.Insecure, err = fs.GetBool("tracing-insecure"); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-sample-rate") {
		if cfg.Tracing.SampleRate, err = fs.GetFloat64("tracing-sample-rate"); err != nil {
			return err
		}
	}
	return nil
}

func applyMockFlagOverrides(cfg *MockConfig, fs *pflag.FlagSet) error {
	var err error
	if fs.Changed("listen") {
		if cfg.Listen, err = fs.GetString("listen"); err != nil {
			return err
		}
	}
	if fs.Changed("path") {
		if cfg.ServicePath, err = fs.GetString("path"); err != nil {
			return err
		}
	}
	if fs.Changed("method") {
		if cfg.MethodName, err = fs.GetString("method"); err != nil {
			return err
		}
	}
	if fs.Changed("namespace") {
		if cfg.Namespace, err = fs.GetString("namespace"); err != nil {
			return err
		}
	}
	if fs.Changed("response-namespace") {
		if cfg.ResponseNamespace, err = fs.GetString("response-namespace"); err != nil {
			return err
		}
	}
	if fs.Changed("max-conns") {
		if cfg.MaxConns, err = fs.GetInt("max-conns"); err != nil {
			return err
		}
	}
	if fs.Changed("fail-status") {
		if cfg.FailStatus, err = fs.GetInt("fail-status"); err != nil {
			return err
		}
	}
	if fs.Changed("latency") {
		if cfg.Latency, err = fs.GetDuration("latency"); err != nil {
			return err
		}
	}
	if fs.Changed("metrics-addr") {
		if cfg.MetricsAddr, err = fs.GetString("metrics-addr"); err != nil {
			return err
		}
	}
	if fs.Changed("log-level") {
		if cfg.LogLevel, err = fs.GetString("log-level"); err != nil {
			return err
		}
	}
	return nil
}
