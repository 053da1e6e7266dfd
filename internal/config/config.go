// Package config loads soapfire and soapmock settings from command-line flags,
// an optional config file and SOAPFIRE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/soapfire/internal/envelope"
)

type ArrivalModel string

const (
	ArrivalModelCadence ArrivalModel = "cadence"
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

const (
	DefaultServiceHost       = "127.0.0.1"
	DefaultServicePath       = "/soap/endpoint"
	DefaultServicePort       = 8000
	DefaultSOAPAction        = "http://ApiAtackDriverExampleProgram.com/IService/ApiMethod"
	DefaultMethodName        = "ApiMethod"
	DefaultNamespace         = "http://ApiAtackDriverExampleProgram.com/"
	DefaultResponseNamespace = "http://tempuri.org/"
	DefaultBaseParameter     = 1000
	DefaultDuration          = 10 * time.Second
	DefaultRate              = 1000
	DefaultDrainTimeout      = 10 * time.Second
	DefaultTimeout           = 30 * time.Second
	DefaultListenAddr        = "127.0.0.1:8000"
)

// Config holds the load driver settings.
type Config struct {
	ServiceHost        string        `mapstructure:"service_host"`
	ServicePath        string        `mapstructure:"service_path"`
	ServicePort        int           `mapstructure:"service_port"`
	UseTLS             bool          `mapstructure:"use_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	SOAPAction         string        `mapstructure:"soap_action"`
	MethodName         string        `mapstructure:"method_name"`
	Namespace          string        `mapstructure:"namespace"`
	BaseParameter      int64         `mapstructure:"base_parameter"`
	Duration           time.Duration `mapstructure:"duration"`
	Rate               float64       `mapstructure:"rate"`
	ArrivalModel       ArrivalModel  `mapstructure:"arrival_model"`
	DrainTimeout       time.Duration `mapstructure:"drain_timeout"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxInFlight        int           `mapstructure:"max_in_flight"`
	Verify             bool          `mapstructure:"verify"`
	Output             OutputFormat  `mapstructure:"output"`
	LogErrors          bool          `mapstructure:"log_errors"`
	LogLevel           string        `mapstructure:"log_level"`
	Progress           bool          `mapstructure:"progress"`
	Thresholds         []string      `mapstructure:"thresholds"`
	MetricsAddr        string        `mapstructure:"metrics_addr"`
	Tracing            TracingConfig `mapstructure:"tracing"`
	ConfigFile         string        `mapstructure:"-"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"` // nil follows Enabled
}

// Enabled reports whether an exporter endpoint is configured, either directly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether traceparent headers go on the wire.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Default returns the driver configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ServiceHost:   DefaultServiceHost,
		ServicePath:   DefaultServicePath,
		ServicePort:   DefaultServicePort,
		SOAPAction:    DefaultSOAPAction,
		MethodName:    DefaultMethodName,
		Namespace:     DefaultNamespace,
		BaseParameter: DefaultBaseParameter,
		Duration:      DefaultDuration,
		Rate:          DefaultRate,
		ArrivalModel:  ArrivalModelCadence,
		DrainTimeout:  DefaultDrainTimeout,
		Timeout:       DefaultTimeout,
		Output:        OutputText,
		LogLevel:      "info",
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// Address returns host:port of the target service.
func (c Config) Address() string {
	return net.JoinHostPort(c.ServiceHost, strconv.Itoa(c.ServicePort))
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.ServiceHost) == "" {
		issues = append(issues, "service_host is required")
	}
	if c.ServicePort < 1 || c.ServicePort > 65535 {
		issues = append(issues, fmt.Sprintf("service_port must be between 1 and 65535, got %d", c.ServicePort))
	}
	if !strings.HasPrefix(c.ServicePath, "/") {
		issues = append(issues, fmt.Sprintf("service_path must start with '/', got %q", c.ServicePath))
	}
	if !envelope.ValidName(c.MethodName) {
		issues = append(issues, fmt.Sprintf("method_name %q is not a valid XML element name", c.MethodName))
	}
	if c.Rate <= 0 {
		issues = append(issues, "rate must be > 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain_timeout must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.MaxInFlight < 0 {
		issues = append(issues, "max_in_flight must be >= 0")
	}
	if c.InsecureSkipVerify && !c.UseTLS {
		issues = append(issues, "insecure_skip_verify requires use_tls")
	}

	switch c.ArrivalModel {
	case ArrivalModelCadence, ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival_model must be cadence, uniform or poisson, got %q", c.ArrivalModel))
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be text, json or yaml, got %q", c.Output))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			issues = append(issues, fmt.Sprintf("metrics_addr: %v", err))
		}
	}
	issues = append(issues, validateTracing(c.Tracing)...)

	if c.Rate > 10000 {
		slog.Warn("high request rate configured; ensure you are authorized to load the target", "rate", c.Rate)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %g", t.SampleRate))
	}
	return issues
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", name)
	}
}
