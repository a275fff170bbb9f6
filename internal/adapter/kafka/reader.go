package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/saferoute/internal/config"
	"github.com/couchcryptid/saferoute/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes raw incident messages from the source topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaSourceTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, flushInterval: cfg.BatchFlushInterval, logger: logger}
}

// ExtractBatch fetches up to batchSize messages, waiting at most the flush
// interval for the batch to fill. An empty batch means the topic is idle.
// Offsets are committed through each event's Commit callback.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	batchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	batch := make([]domain.RawEvent, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(batchCtx)
		if err != nil {
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return batch, err
		}
		raw := mapMessageToRawEvent(msg)
		raw.Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		}
		batch = append(batch, raw)
	}

	if len(batch) > 0 {
		r.logger.Debug("kafka batch fetched", "size", len(batch), "topic", batch[0].Topic)
	}
	return batch, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawEvent copies a Kafka message into a RawEvent. The source
// taxonomy travels in the "source" header.
func mapMessageToRawEvent(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Source:    domain.Source(headers["source"]),
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
