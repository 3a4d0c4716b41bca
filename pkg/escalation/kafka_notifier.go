package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// KafkaNotifier publishes incidents to the oversight queue topic.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
}

type KafkaConfig struct {
	Host  string
	Port  string
	Topic string
}

func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if cfg.Host == "" || cfg.Port == "" {
		return nil, errors.New("kafka host and port are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return &KafkaNotifier{producer: producer, topic: cfg.Topic}, nil
}

func (n *KafkaNotifier) Name() string {
	return "kafka"
}

func (n *KafkaNotifier) Notify(ctx context.Context, incident Incident) error {
	if n.producer == nil {
		return errors.New("kafka producer is not initialized")
	}

	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = n.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &n.topic, Partition: kafka.PartitionAny},
		Key:            []byte(incident.IncidentID.String()),
		Value:          data,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce escalation message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case evt := <-deliveryChan:
		msg, ok := evt.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event type %T", evt)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("escalation message not delivered: %w", msg.TopicPartition.Error)
		}
		return nil
	}
}

func (n *KafkaNotifier) Close() {
	if n.producer != nil {
		n.producer.Close()
	}
}
