package pkgkafka

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

type KafkaProducer struct {
	producer *kafka.Producer
	cfg      *KafkaConfig
	doneCH   chan struct{}
}

func NewKafkaProducer(cfg *KafkaConfig) (*KafkaProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"enable.idempotence": true,
		"acks":               "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}

	kp := &KafkaProducer{
		producer: p,
		cfg:      cfg,
		doneCH:   make(chan struct{}),
	}
	go kp.eventsLoop()
	return kp, nil
}

// eventsLoop only sees what has no per-message delivery channel: client
// level errors and stats.
func (p *KafkaProducer) eventsLoop() {
	defer close(p.doneCH)
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case kafka.Error:
			logrus.WithFields(logrus.Fields{
				"CODE":  ev.Code(),
				"FATAL": ev.IsFatal(),
			}).Error("PRODUCER:ERROR")
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				logrus.WithField("TOPIC_PRTN", ev.TopicPartition).Error("Delivery failed")
			}
		}
	}
}

// Publish produces one message and waits for the broker acknowledgement.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	deliveryCH := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.producer.Produce(msg, deliveryCH); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.DeliveryTimeout)
	defer cancel()

	select {
	case e := <-deliveryCH:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", topic, m.TopicPartition.Error)
		}
		logrus.WithFields(logrus.Fields{
			"TOPIC_PRTN": m.TopicPartition,
			"KEY":        string(key),
		}).Debug("Delivery success")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("delivery to %s not acknowledged: %w", topic, ctx.Err())
	}
}

func (p *KafkaProducer) Close() {
	if remaining := p.producer.Flush(int(p.cfg.DeliveryTimeout.Milliseconds())); remaining > 0 {
		logrus.WithField("REMAINING", remaining).Warn("Producer closed with undelivered messages")
	}
	p.producer.Close()
	<-p.doneCH
}
