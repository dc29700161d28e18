package broadcaster

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// Publisher delivers one outbox payload and returns once the broker has
// acknowledged it.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// SaramaPublisher publishes through a sarama SyncProducer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// SaramaConfig is the producer configuration used by
// NewSaramaPublisher: every in-sync replica must acknowledge.
func SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return cfg
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("broadcaster: sarama producer: %w", err)
	}
	return NewSaramaPublisherWith(producer, topic), nil
}

// NewSaramaPublisherWith wraps an existing producer.
func NewSaramaPublisherWith(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

func (p *SaramaPublisher) Publish(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
