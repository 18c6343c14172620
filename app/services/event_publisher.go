package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher emits conversion events keyed by customer so one customer's events stay ordered
type KafkaEventPublisher struct {
	writer messageWriter
}

func NewKafkaEventPublisher(brokers []string, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *KafkaEventPublisher) PublishConversion(ctx context.Context, event dto.ConversionEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode conversion event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CustomerRef),
		Value: msg,
		Time:  time.Now(),
	})
}

func (k *KafkaEventPublisher) Close() error {
	return k.writer.Close()
}

// NoopEventPublisher drops events when publishing is disabled
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishConversion(context.Context, dto.ConversionEvent) error { return nil }
