// Package kafka publishes trade events with segmentio/kafka-go.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	MaxAttempts  int
}

// Producer writes keyed messages synchronously and waits for every
// in-sync replica.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: cfg.BatchTimeout,
			MaxAttempts:  cfg.MaxAttempts,
		},
	}
}

// Publish sends one message and returns once the brokers acknowledge it.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
