package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/example/dispatch-engine/internal/models"
)

// KafkaQueue writes alert batches to the alerts topic. One message per
// (driver, order) pair, keyed by driver so a driver's alerts stay
// ordered within a partition.
type KafkaQueue struct {
	writer *kafka.Writer
}

func NewKafkaQueue(brokers []string, topic string) *KafkaQueue {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaQueue{writer: w}
}

func (k *KafkaQueue) EnqueueBatch(ctx context.Context, alerts []models.NotificationAlert) error {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.DriverID), Value: b})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *KafkaQueue) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
