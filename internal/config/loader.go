// Package config loads and validates the application configuration.
//
// Every configuration error surfaces here, at start time: unknown formats,
// codecs, naming strategies and empty field selections are rejected before
// any record is consumed.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/kafs3sink/internal/codec"
	"github.com/jittakal/kafs3sink/internal/config/dto"
	"github.com/jittakal/kafs3sink/internal/format"
)

// Loader handles configuration loading and validation.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references so secrets can live in the environment.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "kafs3sink")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.consumer.max_processing_ms", 300000)

	// Storage defaults
	l.v.SetDefault("storage.backend", "s3")
	l.v.SetDefault("storage.upload_timeout_seconds", 60)
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.part_size_mb", 10)

	// Output defaults
	l.v.SetDefault("output.format", "csv")
	l.v.SetDefault("output.fields", []string{"key", "value"})
	l.v.SetDefault("output.compression", "none")

	// Naming defaults
	l.v.SetDefault("naming.strategy", "legacy")
	l.v.SetDefault("naming.timestamp_source", "wallclock")

	// Flush defaults
	l.v.SetDefault("flush.max_records", 1000)
	l.v.SetDefault("flush.max_interval_seconds", 60)
	l.v.SetDefault("flush.max_concurrent_uploads", 1)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.health.port", 8080)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration.
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Kafka validation
	if len(config.Kafka.BootstrapServers) == 0 {
		return errors.New("kafka.bootstrap_servers is required")
	}
	if len(config.Kafka.Consumer.Topics) == 0 {
		return errors.New("kafka.consumer.topics is required")
	}
	if config.Kafka.Consumer.GroupID == "" {
		return errors.New("kafka.consumer.group_id is required")
	}

	// Storage validation
	switch config.Storage.Backend {
	case "s3":
		if config.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
		if config.Storage.S3.Region == "" {
			return errors.New("storage.s3.region is required for the s3 backend")
		}
	case "gcs":
		if config.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket is required for the gcs backend")
		}
	case "azure":
		if config.Storage.Azure.AccountName == "" {
			return errors.New("storage.azure.account_name is required for the azure backend")
		}
		if config.Storage.Azure.Container == "" {
			return errors.New("storage.azure.container is required for the azure backend")
		}
	case "file":
		if config.Storage.File.BasePath == "" {
			return errors.New("storage.file.base_path is required for the file backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}

	// Output validation
	outputFormat, err := format.ParseType(config.Output.Format)
	if err != nil {
		return err
	}
	fields, err := format.ParseFields(config.Output.Fields)
	if err != nil {
		return err
	}
	if err := format.Validate(outputFormat, fields); err != nil {
		return err
	}
	if _, err := codec.Parse(config.Output.Compression); err != nil {
		return err
	}

	// Naming validation
	switch config.Naming.Strategy {
	case "legacy", "":
	case "templated":
		if config.Naming.Template == "" {
			return errors.New("naming.template is required for the templated strategy")
		}
	default:
		return fmt.Errorf("unsupported naming strategy: %s", config.Naming.Strategy)
	}
	switch config.Naming.TimestampSource {
	case "wallclock", "record", "":
	default:
		return fmt.Errorf("unsupported timestamp source: %s", config.Naming.TimestampSource)
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
