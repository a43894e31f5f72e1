package notify

import (
	"context"
	"fmt"

	"SignalForge/internal/domain/models"
	"SignalForge/pkg/kafka"
	"SignalForge/pkg/logger"
)

// Kafka publishes signals to a topic, keyed by pair so consumers see
// per-pair ordering.
type Kafka struct {
	producer *kafka.Producer
	topic    string
	log      *logger.Logger
}

func NewKafka(producer *kafka.Producer, topic string, log *logger.Logger) *Kafka {
	return &Kafka{producer: producer, topic: topic, log: log}
}

func (k *Kafka) ID() string { return "kafka" }

func (k *Kafka) Deliver(ctx context.Context, sig *models.Signal) error {
	if err := k.producer.Publish(ctx, k.topic, []byte(sig.Pair), sig); err != nil {
		return fmt.Errorf("kafka: publish: %w", err)
	}
	k.log.Debug("signal published to kafka",
		logger.String("topic", k.topic),
		logger.String("pair", sig.Pair),
		logger.String("signal_id", sig.ID.String()))
	return nil
}
