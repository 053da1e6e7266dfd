package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the driver reads.
const EnvPrefix = "SOAPFIRE"

// envKeys are the driver settings that may come from the environment.
var envKeys = []string{
	"service_host",
	"service_path",
	"service_port",
	"use_tls",
	"soap_action",
	"method_name",
	"base_parameter",
	"duration",
	"rate",
}

// ErrHelpRequested is returned when --help was given. Usage has already been
// printed.
var ErrHelpRequested = errors.New("help requested")

// Loader builds configuration from flags, an optional config file and the
// environment. Precedence from lowest to highest: defaults, file,
// environment, flags.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load produces the driver configuration. It does not validate it.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand("soapfire", "Rate-controlled SOAP load driver", configureFlags)
	fs, settings, configPath, err := parseSources(cmd, args, EnvPrefix, envKeys)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.ConfigFile = configPath
	if err := applyConfigSettings(&cfg, settings); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}

	cfg.ServiceHost = strings.TrimSpace(cfg.ServiceHost)
	cfg.MethodName = strings.TrimSpace(cfg.MethodName)
	return &cfg, nil
}

// LoadMock produces the mock responder configuration. It does not validate it.
func (Loader) LoadMock(args []string) (*MockConfig, error) {
	cmd := newFlagCommand("soapmock", "Mock SOAP responder", configureMockFlags)
	fs, settings, configPath, err := parseSources(cmd, args, "", nil)
	if err != nil {
		return nil, err
	}

	cfg := DefaultMock()
	cfg.ConfigFile = configPath
	if err := applyMockSettings(&cfg, settings); err != nil {
		return nil, err
	}
	if err := applyMockFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}
	cfg.MethodName = strings.TrimSpace(cfg.MethodName)
	return &cfg, nil
}

// parseSources parses args and collects file and environment settings into
// one map keyed by lowercase setting name.
func parseSources(cmd *cobra.Command, args []string, envPrefix string, keys []string) (*pflag.FlagSet, map[string]interface{}, string, error) {
	fs := cmd.Flags()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, nil, "", ErrHelpRequested
		}
		return nil, nil, "", err
	}
	if helpFlag := fs.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, nil, "", ErrHelpRequested
		}
	}
	if rest := fs.Args(); len(rest) > 0 {
		return nil, nil, "", fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	v := viper.New()
	configPath := strings.TrimSpace(fs.Lookup("config").Value.String())
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, "", fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		for _, key := range keys {
			if err := v.BindEnv(key); err != nil {
				return nil, nil, "", fmt.Errorf("bind env %s: %w", key, err)
			}
		}
	}
	return fs, v.AllSettings(), configPath, nil
}

func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "service_host", "servicehost", "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_host: %w", err)
		}
		cfg.ServiceHost = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "service_path", "servicepath", "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_path: %w", err)
		}
		cfg.ServicePath = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "service_port", "serviceport", "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("service_port: %w", err)
		}
		cfg.ServicePort = val
	}
	if raw, ok := lookupSetting(settings, "use_tls", "usetls", "is_https", "tls"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("use_tls: %w", err)
		}
		cfg.UseTLS = val
	}
	if raw, ok := lookupSetting(settings, "insecure_skip_verify", "insecureskipverify", "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure_skip_verify: %w", err)
		}
		cfg.InsecureSkipVerify = val
	}
	if raw, ok := lookupSetting(settings, "soap_action", "soapaction", "soap_action_header"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("soap_action: %w", err)
		}
		cfg.SOAPAction = val
	}
	if raw, ok := lookupSetting(settings, "method_name", "methodname", "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method_name: %w", err)
		}
		if val != "" {
			cfg.MethodName = val
		}
	}
	if raw, ok := lookupSetting(settings, "namespace"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("namespace: %w", err)
		}
		cfg.Namespace = val
	}
	if raw, ok := lookupSetting(settings, "base_parameter", "baseparameter", "base_parameter_value"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("base_parameter: %w", err)
		}
		cfg.BaseParameter = val
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = val
	}
	if raw, ok := lookupSetting(settings, "rate", "target_rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}
	if raw, ok := lookupSetting(settings, "arrival_model", "arrivalmodel"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.ArrivalModel = ArrivalModel(val)
		}
	}
	if raw, ok := lookupSetting(settings, "drain_timeout", "draintimeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("drain_timeout: %w", err)
		}
		cfg.DrainTimeout = val
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = val
	}
	if raw, ok := lookupSetting(settings, "max_in_flight", "maxinflight"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_in_flight: %w", err)
		}
		cfg.MaxInFlight = val
	}
	if raw, ok := lookupSetting(settings, "verify"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		cfg.Verify = val
	}
	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.Output = OutputFormat(val)
		}
	}
	if raw, ok := lookupSetting(settings, "log_errors", "logerrors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}
	if raw, ok := lookupSetting(settings, "log_level", "loglevel"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}
	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}
	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}
	if raw, ok := lookupSetting(settings, "metrics_addr", "metricsaddr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		if t.Endpoint, err = asString(raw); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if t.Protocol, err = asString(raw); err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		if t.ServiceName, err = asString(raw); err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if t.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		if t.SampleRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}

func applyMockSettings(cfg *MockConfig, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		cfg.Listen = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "service_path", "servicepath", "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_path: %w", err)
		}
		cfg.ServicePath = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method_name", "methodname", "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method_name: %w", err)
		}
		if val != "" {
			cfg.MethodName = val
		}
	}
	if raw, ok := lookupSetting(settings, "namespace"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("namespace: %w", err)
		}
		cfg.Namespace = val
	}
	if raw, ok := lookupSetting(settings, "response_namespace", "responsenamespace"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("response_namespace: %w", err)
		}
		cfg.ResponseNamespace = val
	}
	if raw, ok := lookupSetting(settings, "max_conns", "maxconns"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_conns: %w", err)
		}
		cfg.MaxConns = val
	}
	if raw, ok := lookupSetting(settings, "fail_status", "failstatus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("fail_status: %w", err)
		}
		cfg.FailStatus = val
	}
	if raw, ok := lookupSetting(settings, "latency"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("latency: %w", err)
		}
		cfg.Latency = val
	}
	if raw, ok := lookupSetting(settings, "metrics_addr", "metricsaddr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "log_level", "loglevel"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = val
	}
	return nil
}
