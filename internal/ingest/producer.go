package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/dispatch-engine/internal/models"
)

// HeartbeatProducer publishes driver availability updates to the
// locations topic; the consumer process folds them into Redis.
type HeartbeatProducer struct {
	writer *kafka.Writer
}

func NewHeartbeatProducer(brokers []string, topic string) *HeartbeatProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &HeartbeatProducer{writer: w}
}

func (p *HeartbeatProducer) PublishHeartbeat(d models.DriverAvailability) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(d.DriverID), Value: b})
}

func (p *HeartbeatProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
