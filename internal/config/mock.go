package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/torosent/soapfire/internal/envelope"
)

// MockConfig holds the mock responder settings.
type MockConfig struct {
	Listen            string        `mapstructure:"listen"`
	ServicePath       string        `mapstructure:"service_path"`
	MethodName        string        `mapstructure:"method_name"`
	Namespace         string        `mapstructure:"namespace"`
	ResponseNamespace string        `mapstructure:"response_namespace"`
	MaxConns          int           `mapstructure:"max_conns"`
	FailStatus        int           `mapstructure:"fail_status"`
	Latency           time.Duration `mapstructure:"latency"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	LogLevel          string        `mapstructure:"log_level"`
	ConfigFile        string        `mapstructure:"-"`
}

// DefaultMock returns the mock configuration used when nothing is overridden.
func DefaultMock() MockConfig {
	return MockConfig{
		Listen:            DefaultListenAddr,
		ServicePath:       DefaultServicePath,
		MethodName:        DefaultMethodName,
		Namespace:         DefaultNamespace,
		ResponseNamespace: DefaultResponseNamespace,
		LogLevel:          "info",
	}
}

func (c MockConfig) Validate() error {
	var issues []string

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		issues = append(issues, fmt.Sprintf("listen: %v", err))
	}
	if !strings.HasPrefix(c.ServicePath, "/") {
		issues = append(issues, fmt.Sprintf("service_path must start with '/', got %q", c.ServicePath))
	}
	if !envelope.ValidName(c.MethodName) {
		issues = append(issues, fmt.Sprintf("method_name %q is not a valid XML element name", c.MethodName))
	}
	if c.MaxConns < 0 {
		issues = append(issues, "max_conns must be >= 0")
	}
	if c.FailStatus != 0 && (c.FailStatus < 100 || c.FailStatus > 599) {
		issues = append(issues, fmt.Sprintf("fail_status must be an HTTP status code, got %d", c.FailStatus))
	}
	if c.Latency < 0 {
		issues = append(issues, "latency must be >= 0")
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			issues = append(issues, fmt.Sprintf("metrics_addr: %v", err))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
