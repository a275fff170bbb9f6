package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/saferoute/internal/config"
	"github.com/couchcryptid/saferoute/internal/surface"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes risk-surface cells to the sink topic, one message per
// cell keyed by cell id. A compacted topic keeps the latest record per cell,
// which may still include cells missing from the newest build; consumers
// group records by the generated_at header. It implements
// pipeline.SurfaceLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// CellMessage is the JSON value of one published cell.
type CellMessage struct {
	ID string `json:"cell"`
	surface.Cell
}

// LoadSurface serializes every cell and publishes them in a single
// WriteMessages call.
func (w *Writer) LoadSurface(ctx context.Context, s *surface.Surface) error {
	if len(s.Cells) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, len(s.Cells))
	for _, id := range s.CellIDs() {
		msg, err := serializeToMessage(id, s.Cells[id], s.Metadata)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish surface cells: %w", err)
	}
	w.logger.Info("surface published", "topic", w.writer.Topic, "cells", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one surface cell into a Kafka message.
func serializeToMessage(id string, cell surface.Cell, meta surface.Metadata) (kafkago.Message, error) {
	data, err := json.Marshal(CellMessage{ID: id, Cell: cell})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cell %s: %w", id, err)
	}
	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "generated_at", Value: []byte(meta.GeneratedAt.Format(time.RFC3339))},
			{Key: "h3_resolution", Value: []byte(strconv.Itoa(meta.H3Resolution))},
			{Key: "has_crime_data", Value: []byte(strconv.FormatBool(meta.HasCrimeData))},
		},
	}, nil
}
