package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Event types emitted on the document-events topic.
const (
	EventDocumentGenerated = "document.generated"
	EventDocumentFailed    = "document.failed"
)

// DocumentEvent announces the outcome of a generation run or of a
// single nominee order item.
type DocumentEvent struct {
	EventType     string    `json:"event_type"`
	Engine        string    `json:"engine"`
	RTAID         int64     `json:"rta_id"`
	AppFileID     *int64    `json:"app_file_id,omitempty"`
	FileName      string    `json:"file_name,omitempty"`
	DocumentCount int       `json:"document_count,omitempty"`
	OrderUniqueID string    `json:"order_unique_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishDocumentEvent publishes a document event to Kafka
func (p *Producer) PublishDocumentEvent(ctx context.Context, event *DocumentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDocumentEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.FileName
	if key == "" {
		key = event.Engine
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "engine", Value: []byte(event.Engine)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish document event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"engine":     event.Engine,
		"file_name":  event.FileName,
	}).Debug("Published document event")

	return nil
}

// PublishGenerationRequest enqueues a generation request, used for
// follow-up work such as the nominee run after a consolidated run.
func (p *Producer) PublishGenerationRequest(ctx context.Context, req *GenerationRequest) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishGenerationRequest")
	defer span.End()

	if err := req.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(req.Engine),
		Value: data,
		Headers: []kafka.Header{
			{Key: "engine", Value: []byte(req.Engine)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish generation request")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"engine": req.Engine,
		"rta_id": req.RTAID,
	}).Debug("Published generation request")

	return nil
}
