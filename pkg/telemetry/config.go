package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for infraforge.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string `koanf:"service_name"`

	// ServiceVersion is the version of the service.
	ServiceVersion string `koanf:"service_version"`

	// Environment specifies the deployment environment (dev, staging, prod).
	Environment string `koanf:"environment"`

	// Logging contains logging configuration.
	Logging LoggingConfig `koanf:"logging"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `koanf:"tracing"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `koanf:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error, fatal).
	Level string `koanf:"level"`

	// Format specifies the log format (console, json).
	Format string `koanf:"format"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `koanf:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `koanf:"enable_caller"`

	// TimeFormat specifies the timestamp format (unix, unixms, rfc3339).
	TimeFormat string `koanf:"time_format"`
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `koanf:"enabled"`

	// Exporter specifies the trace exporter (otlp, stdout, none).
	Exporter string `koanf:"exporter"`

	// Endpoint is the OTLP collector endpoint (e.g. "localhost:4317").
	Endpoint string `koanf:"endpoint"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `koanf:"sampling_rate"`

	// MaxExportBatchSize is the maximum batch size for export.
	MaxExportBatchSize int `koanf:"max_export_batch_size"`

	// ExportTimeout is the timeout for trace export.
	ExportTimeout time.Duration `koanf:"export_timeout"`

	// Headers are additional headers for the OTLP exporter.
	Headers map[string]string `koanf:"headers"`

	// Insecure disables TLS for the exporter connection.
	Insecure bool `koanf:"insecure"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `koanf:"enabled"`

	// Namespace is the metrics namespace prefix.
	Namespace string `koanf:"namespace"`

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64 `koanf:"histogram_buckets"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "infraforge",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			TimeFormat: "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "infraforge",
			// LLM calls and terraform plans dominate stage latency.
			DefaultHistogramBuckets: []float64{
				0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
			},
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "disabled": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("otlp exporter requires an endpoint")
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	return nil
}
