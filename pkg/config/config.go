// Package config loads, defaults, and validates the s3surge configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/s3surge/internal/bytesize"
)

// Config captures the static configuration of an s3surge run.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (S3SURGE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// S3 configures the target bucket, endpoint and credentials
	S3 S3Config `mapstructure:"s3" yaml:"s3"`

	// Workload shapes the transfer load the run generates
	Workload WorkloadConfig `mapstructure:"workload" yaml:"workload"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP endpoint are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// S3Config configures the target bucket and how requests reach it.
type S3Config struct {
	// Bucket is the target bucket name
	Bucket string `mapstructure:"bucket" validate:"required_without=Endpoint" yaml:"bucket"`

	// Region is the bucket's region, used for endpoint derivation and signing
	Region string `mapstructure:"region" validate:"required" yaml:"region"`

	// Endpoint overrides the derived <bucket>.s3.<region>.amazonaws.com
	// hostname, for S3-compatible services
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// SendEncrypted selects https (port 443) over http (port 80).
	// Default: true
	SendEncrypted bool `mapstructure:"send_encrypted" yaml:"send_encrypted"`

	// AccessKeyID and SecretAccessKey are static credentials. When empty the
	// default AWS credential chain is used (environment, shared config, IMDS).
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token,omitempty"`
}

// WorkloadConfig shapes the generated transfer load.
type WorkloadConfig struct {
	// NumTransfers is how many objects each phase moves.
	// Default: 10
	NumTransfers uint32 `mapstructure:"num_transfers" validate:"required,gt=0" yaml:"num_transfers"`

	// NumParts is how many parts each multipart object is split into.
	// Default: 8
	NumParts uint32 `mapstructure:"num_parts" validate:"required,gt=0" yaml:"num_parts"`

	// PartSize is the size of each part.
	// Supports human-readable formats: "5MB", "16MiB"
	// Default: 5MB
	PartSize bytesize.ByteSize `mapstructure:"part_size" yaml:"part_size"`

	// Multipart selects multipart transfers over single-shot ones.
	// Default: true
	Multipart bool `mapstructure:"multipart" yaml:"multipart"`

	// Upload and Download select which phases run. Both default to true;
	// the download phase reads back the keys the upload phase wrote.
	Upload   bool `mapstructure:"upload" yaml:"upload"`
	Download bool `mapstructure:"download" yaml:"download"`

	// KeyPrefix namespaces the object keys written by a run.
	// Default: "s3surge"
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Load loads configuration from file, environment, and defaults.
//
// configPath may be empty, in which case the default location
// ($XDG_CONFIG_HOME/s3surge/config.yaml) is searched and defaults are used
// when no file exists.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because the file may carry credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the S3SURGE_ prefix with underscores,
// e.g. S3SURGE_S3_BUCKET=my-bucket.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("S3SURGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "5MB" or "16MiB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses XDG_CONFIG_HOME
// if set, otherwise ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "s3surge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "s3surge")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
