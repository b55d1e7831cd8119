package publish

import (
	"context"
	"errors"
	"fmt"

	"flux-sentinel/internal/config"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces one message per snapshot keyed by symbol.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	return newKafkaSink(writer, cfg.Topic), nil
}

func newKafkaSink(writer messageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: payload,
		Time:  event.Time,
		Headers: []kafka.Header{
			{Key: "session", Value: []byte(event.Session)},
			{Key: "regime", Value: []byte(event.Snapshot.Regime)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
