package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafs3sink/internal/codec"
	"github.com/jittakal/kafs3sink/internal/config"
	"github.com/jittakal/kafs3sink/internal/config/dto"
	"github.com/jittakal/kafs3sink/internal/format"
	"github.com/jittakal/kafs3sink/internal/grouper"
	"github.com/jittakal/kafs3sink/internal/kafka"
	"github.com/jittakal/kafs3sink/internal/keys"
	"github.com/jittakal/kafs3sink/internal/observability"
	"github.com/jittakal/kafs3sink/internal/server"
	sinkimpl "github.com/jittakal/kafs3sink/internal/sink"
	"github.com/jittakal/kafs3sink/internal/storage"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting kafka s3 sink",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every configuration value below was validated by the loader; the
	// constructors re-check so a bad value can never reach a flush cycle.
	outputFormat, err := format.ParseType(cfg.Output.Format)
	if err != nil {
		return err
	}
	fields, err := format.ParseFields(cfg.Output.Fields)
	if err != nil {
		return err
	}
	compression, err := codec.Parse(cfg.Output.Compression)
	if err != nil {
		return err
	}
	naming, err := sinkimpl.ParseNamingStrategy(cfg.Naming.Strategy)
	if err != nil {
		return err
	}

	var formatter *keys.Formatter
	var g sink.Grouper
	if naming == sinkimpl.NamingTemplated {
		g, err = grouper.NewTemplateGrouper(cfg.Naming.Template)
		if err != nil {
			return fmt.Errorf("invalid destination key template: %w", err)
		}
	} else {
		tsSource, err := keys.ParseTimestampSource(cfg.Naming.TimestampSource)
		if err != nil {
			return err
		}
		formatter, err = keys.NewFormatter(cfg.Naming.PrefixTemplate, compression, tsSource)
		if err != nil {
			return fmt.Errorf("invalid prefix template: %w", err)
		}
		g = grouper.NewTopicPartitionGrouper()
	}

	store, err := newObjectStore(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	task, err := sinkimpl.NewTask(
		sinkimpl.Config{
			Format:               outputFormat,
			Fields:               fields,
			Codec:                compression,
			Naming:               naming,
			MaxConcurrentUploads: cfg.Flush.MaxConcurrentUploads,
			UploadTimeout:        time.Duration(cfg.Storage.UploadTimeoutSeconds) * time.Second,
		},
		g, store, formatter, logger, metrics,
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := task.Stop(); err != nil {
			logger.Error("failed to stop sink task", "error", err)
		}
	}()

	consumer, err := kafka.NewSinkConsumer(
		kafka.ConsumerConfig{
			BootstrapServers:    cfg.Kafka.BootstrapServers,
			GroupID:             cfg.Kafka.Consumer.GroupID,
			SecurityProtocol:    cfg.Kafka.SecurityProtocol,
			SASLMechanism:       cfg.Kafka.SASLMechanism,
			SASLUsername:        cfg.Kafka.SASLUsername,
			SASLPassword:        cfg.Kafka.SASLPassword,
			AWSRegion:           cfg.Kafka.AWSRegion,
			AutoOffsetReset:     cfg.Kafka.Consumer.AutoOffsetReset,
			SessionTimeoutMS:    cfg.Kafka.Consumer.SessionTimeoutMS,
			HeartbeatIntervalMS: cfg.Kafka.Consumer.HeartbeatIntervalMS,
			MaxProcessingMS:     cfg.Kafka.Consumer.MaxProcessingMS,
			TLSSkipVerify:       cfg.Kafka.TLSSkipVerify,
		},
		task,
		kafka.FlushPolicy{
			MaxRecords:  cfg.Flush.MaxRecords,
			MaxInterval: time.Duration(cfg.Flush.MaxIntervalSeconds) * time.Second,
		},
		logger, metrics,
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Error("failed to close consumer", "error", err)
		}
	}()

	health := &healthState{}
	health.alive.Store(true)

	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		health,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	runErrChan := make(chan error, 1)
	go func() {
		health.ready.Store(true)
		runErrChan <- consumer.Run(ctx, cfg.Kafka.Consumer.Topics)
	}()

	logger.Info("application started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received termination signal")
	case err := <-runErrChan:
		if err != nil {
			health.alive.Store(false)
			logger.Error("consumer stopped", "error", err)
			return err
		}
	}

	logger.Info("initiating graceful shutdown")
	health.ready.Store(false)
	cancel()

	grace := time.Duration(cfg.Shutdown.GracePeriodSeconds) * time.Second
	select {
	case <-runErrChan:
	case <-time.After(grace):
		logger.Warn("grace period elapsed before consumer finished")
	}

	logger.Info("application stopped successfully")
	return nil
}

func newObjectStore(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (sink.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			PartSizeMB:      cfg.Storage.S3.PartSizeMB,
		}, logger, metrics)
	case "gcs":
		return storage.NewGCSStore(ctx, storage.GCSConfig{
			Bucket:          cfg.Storage.GCS.Bucket,
			CredentialsFile: cfg.Storage.GCS.CredentialsFile,
		}, logger, metrics)
	case "azure":
		return storage.NewAzureStore(storage.AzureConfig{
			AccountName: cfg.Storage.Azure.AccountName,
			AccountKey:  os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
			Container:   cfg.Storage.Azure.Container,
			Endpoint:    cfg.Storage.Azure.Endpoint,
		}, logger, metrics)
	case "file":
		return storage.NewFileStore(storage.FileConfig{
			BasePath: cfg.Storage.File.BasePath,
		}, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: s3, gcs, azure, file)", cfg.Storage.Backend)
	}
}

// healthState implements server.HealthChecker.
type healthState struct {
	alive atomic.Bool
	ready atomic.Bool
}

func (h *healthState) Liveness() bool {
	return h.alive.Load()
}

func (h *healthState) Readiness(ctx context.Context) bool {
	return h.ready.Load()
}

func (h *healthState) Status() map[string]string {
	status := "stopped"
	if h.ready.Load() {
		status = "consuming"
	}
	return map[string]string{"consumer": status}
}
