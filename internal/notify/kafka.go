package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-location-digest/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes each notification as one record keyed by digest id,
// so redeliveries of the same digest land on the same partition.
type KafkaSender struct {
	writer messageWriter
}

// NewKafkaSender creates a synchronous writer for topic.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}}
}

// Send writes p to the topic.
func (k *KafkaSender) Send(ctx context.Context, digestID string, p domain.NotificationPayload) error {
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(digestID),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
}

// Close flushes and releases the writer.
func (k *KafkaSender) Close() error { return k.writer.Close() }
