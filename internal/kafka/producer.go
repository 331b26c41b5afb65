package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-settlement/internal/models"

	"github.com/segmentio/kafka-go"
)

// Publisher is the narrow surface services depend on, so tests can swap in
// a mock without a broker.
type Publisher interface {
	Publish(topic string, key string, value []byte) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishPaymentEvent streams a settled transaction to the payment-events
// topic, keyed by booking so redeliveries for one booking stay ordered.
func PublishPaymentEvent(p Publisher, topic string, event models.PaymentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(topic, event.BookingID, msgBytes)
}
