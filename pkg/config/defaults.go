package config

import (
	"strings"

	"github.com/marmos91/s3surge/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false) are replaced with defaults; explicit values are
// preserved. Boolean fields that default to true are handled by
// GetDefaultConfig for fresh configs; a loaded file that sets them false
// keeps false.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyS3Defaults(&cfg.S3)
	applyWorkloadDefaults(&cfg.Workload)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyS3Defaults sets S3 target defaults.
func applyS3Defaults(cfg *S3Config) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
}

// applyWorkloadDefaults sets workload shape defaults.
func applyWorkloadDefaults(cfg *WorkloadConfig) {
	if cfg.NumTransfers == 0 {
		cfg.NumTransfers = 10
	}
	if cfg.NumParts == 0 {
		cfg.NumParts = 8
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 5 * bytesize.MB
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "s3surge"
	}
}

// GetDefaultConfig returns a configuration populated entirely with defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{
		S3: S3Config{
			SendEncrypted: true,
		},
		Workload: WorkloadConfig{
			Multipart: true,
			Upload:    true,
			Download:  true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
