// Package kafka implements the consumer-group host pipeline that feeds the
// sink.
//
// The host delivers records to the sink and periodically requests a flush.
// Offsets are committed only after a flush cycle reports success, so records
// from a failed cycle are redelivered on the next session: at-least-once
// delivery with idempotent-by-key overwrite on the storage side.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"

	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/pkg/record"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// ConsumerConfig contains Kafka consumer configuration.
type ConsumerConfig struct {
	BootstrapServers    []string
	GroupID             string
	SecurityProtocol    string
	SASLMechanism       string
	SASLUsername        string
	SASLPassword        string
	AWSRegion           string
	AutoOffsetReset     string
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
	MaxProcessingMS     int
	TLSSkipVerify       bool
}

// FlushPolicy decides when the host requests a flush from the sink.
type FlushPolicy struct {
	MaxRecords  int
	MaxInterval time.Duration
}

// due returns true once either threshold is reached.
func (p FlushPolicy) due(puts int, lastFlush time.Time) bool {
	if p.MaxRecords > 0 && puts >= p.MaxRecords {
		return true
	}
	if p.MaxInterval > 0 && time.Since(lastFlush) >= p.MaxInterval {
		return true
	}
	return false
}

// MetricsCollector defines metrics operations for the Kafka host.
type MetricsCollector interface {
	IncMessagesConsumed(topic string, partition int32)
	IncOffsetCommits(topic string, partition int32, status string)
	IncRebalances(groupID string)
}

// SinkConsumer runs a sarama consumer group and drives the sink through its
// put/flush/commit contract.
type SinkConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        ConsumerConfig
	policy        FlushPolicy
	sink          sink.Sink
	logger        *slog.Logger
	metrics       MetricsCollector
	mu            sync.Mutex
	closed        bool
}

// NewSinkConsumer creates a Kafka consumer group bound to the sink.
func NewSinkConsumer(
	config ConsumerConfig,
	s sink.Sink,
	policy FlushPolicy,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*SinkConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	// Offsets advance only after a successful flush cycle; auto-commit on an
	// interval would outrun durable storage.
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false
	saramaConfig.Consumer.Return.Errors = true

	if config.SessionTimeoutMS > 0 {
		saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	}
	if config.HeartbeatIntervalMS > 0 {
		saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond
	}
	if config.MaxProcessingMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxProcessingMS) * time.Millisecond
	}

	if err := configureSecurity(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
	)

	return &SinkConsumer{
		consumerGroup: consumerGroup,
		config:        config,
		policy:        policy,
		sink:          s,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Run consumes the topics until the context is cancelled. Session errors are
// logged and the session is re-entered; a cancelled context returns nil.
func (c *SinkConsumer) Run(ctx context.Context, topics []string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrConsumerClosed
	}
	c.mu.Unlock()

	handler := &sinkHandler{consumer: c}

	go func() {
		for err := range c.consumerGroup.Errors() {
			c.logger.Error("consumer group error", "error", err)
		}
	}()

	for {
		if err := c.consumerGroup.Consume(ctx, topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("consume session failed", "error", err)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		// Rebalance: loop re-enters the session.
	}
}

// Close closes the consumer and releases resources.
func (c *SinkConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("closing kafka consumer")
	return c.consumerGroup.Close()
}

// sinkHandler implements sarama.ConsumerGroupHandler. All puts and flushes
// run under one mutex so the sink never sees a concurrent put and flush,
// even though sarama runs one ConsumeClaim goroutine per assigned partition.
type sinkHandler struct {
	consumer  *SinkConsumer
	mu        sync.Mutex
	pending   record.OffsetMap
	puts      int
	lastFlush time.Time
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *sinkHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.mu.Lock()
	h.pending = make(record.OffsetMap)
	h.puts = 0
	h.lastFlush = time.Now()
	h.mu.Unlock()

	h.consumer.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)
	if h.consumer.metrics != nil {
		h.consumer.metrics.IncRebalances(h.consumer.config.GroupID)
	}
	return nil
}

// Cleanup flushes whatever is still buffered before the partitions are
// reassigned. A failed final flush is logged, not fatal: the uncommitted
// offsets make the next session redeliver the same records.
func (h *sinkHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.flushLocked(session); err != nil {
		h.consumer.logger.Error("final flush failed, records will be redelivered", "error", err)
	}
	h.consumer.logger.Info("consumer group session cleanup", "member_id", session.MemberID())
	return nil
}

// ConsumeClaim processes messages from one claimed partition.
func (h *sinkHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	h.consumer.logger.Info("started consuming partition",
		"topic", claim.Topic(),
		"partition", claim.Partition(),
		"initial_offset", claim.InitialOffset(),
	)

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handleMessage(session, message); err != nil {
				return err
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *sinkHandler) handleMessage(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) error {
	rec := record.Record{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       message.Key,
		Value:     message.Value,
		Headers:   extractHeaders(message.Headers),
		Timestamp: message.Timestamp,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.consumer.sink.Put([]record.Record{rec}); err != nil {
		return err
	}
	h.pending.Observe(&rec)
	h.puts++
	if h.consumer.metrics != nil {
		h.consumer.metrics.IncMessagesConsumed(message.Topic, message.Partition)
	}

	if h.consumer.policy.due(h.puts, h.lastFlush) {
		if err := h.flushLocked(session); err != nil {
			return err
		}
	}
	return nil
}

// flushLocked runs one flush cycle and, only on success, marks and commits
// the pending offsets. Callers hold h.mu.
func (h *sinkHandler) flushLocked(session sarama.ConsumerGroupSession) error {
	if h.puts == 0 {
		return nil
	}

	if err := h.consumer.sink.Flush(session.Context()); err != nil {
		for pid := range h.pending {
			if h.consumer.metrics != nil {
				h.consumer.metrics.IncOffsetCommits(pid.Topic, pid.Partition, "failure")
			}
		}
		return err
	}

	for pid, next := range h.pending {
		session.MarkOffset(pid.Topic, pid.Partition, next, "")
		if h.consumer.metrics != nil {
			h.consumer.metrics.IncOffsetCommits(pid.Topic, pid.Partition, "success")
		}
	}
	session.Commit()

	h.pending = make(record.OffsetMap)
	h.puts = 0
	h.lastFlush = time.Now()
	return nil
}

func extractHeaders(headers []*sarama.RecordHeader) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, hdr := range headers {
		if hdr != nil {
			out[string(hdr.Key)] = string(hdr.Value)
		}
	}
	return out
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK
// IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}
	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	default:
		return sarama.OffsetNewest
	}
}

func configureSecurity(config *sarama.Config, kafkaConfig ConsumerConfig) error {
	switch kafkaConfig.SecurityProtocol {
	case "PLAINTEXT", "":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch kafkaConfig.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.User = kafkaConfig.SASLUsername
			config.Net.SASL.Password = kafkaConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
			// OAuth does not use username/password but sarama validates them.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"
			region := kafkaConfig.AWSRegion
			if region == "" {
				region = "us-east-1"
			}
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: region}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", kafkaConfig.SASLMechanism)
		}

		if kafkaConfig.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: kafkaConfig.TLSSkipVerify,
			}
		}

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: kafkaConfig.TLSSkipVerify,
		}

	default:
		return fmt.Errorf("unsupported security protocol: %s", kafkaConfig.SecurityProtocol)
	}

	return nil
}
