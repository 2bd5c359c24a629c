// Package dto defines the configuration structures bound from YAML and
// environment variables.
package dto

// ApplicationConfig is the root configuration structure.
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Output        OutputConfig        `mapstructure:"output"`
	Naming        NamingConfig        `mapstructure:"naming"`
	Flush         FlushConfig         `mapstructure:"flush"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata.
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// KafkaConfig contains Kafka-related configuration.
type KafkaConfig struct {
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	TLSSkipVerify    bool           `mapstructure:"tls_skip_verify"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
}

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
	MaxProcessingMS     int      `mapstructure:"max_processing_ms"`
}

// StorageConfig contains storage backend configuration.
type StorageConfig struct {
	Backend              string      `mapstructure:"backend"`
	UploadTimeoutSeconds int         `mapstructure:"upload_timeout_seconds"`
	S3                   S3Config    `mapstructure:"s3"`
	GCS                  GCSConfig   `mapstructure:"gcs"`
	Azure                AzureConfig `mapstructure:"azure"`
	File                 FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PartSizeMB      int64  `mapstructure:"part_size_mb"`
}

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// OutputConfig selects the output format, field selection and compression.
type OutputConfig struct {
	Format      string   `mapstructure:"format"`
	Fields      []string `mapstructure:"fields"`
	Compression string   `mapstructure:"compression"`
}

// NamingConfig selects the destination key naming strategy.
type NamingConfig struct {
	Strategy        string `mapstructure:"strategy"`
	Template        string `mapstructure:"template"`
	PrefixTemplate  string `mapstructure:"prefix_template"`
	TimestampSource string `mapstructure:"timestamp_source"`
}

// FlushConfig controls when the host requests a flush and how the flush
// cycle runs.
type FlushConfig struct {
	MaxRecords           int `mapstructure:"max_records"`
	MaxIntervalSeconds   int `mapstructure:"max_interval_seconds"`
	MaxConcurrentUploads int `mapstructure:"max_concurrent_uploads"`
}

// ObservabilityConfig contains logging, metrics and health configuration.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ShutdownConfig contains graceful shutdown configuration.
type ShutdownConfig struct {
	GracePeriodSeconds int `mapstructure:"grace_period_seconds"`
}
