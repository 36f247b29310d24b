package pkgkafka

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

// EnsureTopics creates missing topics and waits until every partition has a
// leader.
func EnsureTopics(ctx context.Context, cfg *KafkaConfig, topics ...string) error {
	adminClient, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
	})
	if err != nil {
		return err
	}
	defer adminClient.Close()

	specs := make([]kafka.TopicSpecification, 0, len(topics))
	for _, t := range topics {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             t,
			NumPartitions:     cfg.NumPartitions,
			ReplicationFactor: cfg.ReplicationFactor,
		})
	}

	results, err := adminClient.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}
	for _, result := range results {
		switch result.Error.Code() {
		case kafka.ErrNoError:
			logrus.WithField("TOPIC", result.Topic).Info("TOPIC:CREATED")
		case kafka.ErrTopicAlreadyExists:
			logrus.WithField("TOPIC", result.Topic).Debug("TOPIC:EXISTS")
		default:
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	for _, t := range topics {
		if err := waitForTopicReady(ctx, adminClient, t); err != nil {
			return err
		}
	}
	return nil
}

func waitForTopicReady(ctx context.Context, adminClient *kafka.AdminClient, topicName string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		metadata, err := adminClient.GetMetadata(&topicName, false, 5000)
		if err != nil {
			logrus.Errorf("Metadata fetch failed %v", err)
		} else if topicMeta, ok := metadata.Topics[topicName]; ok && partitionsReady(topicMeta.Partitions) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("topic %s not ready: %w", topicName, ctx.Err())
		case <-ticker.C:
		}
	}
}

func partitionsReady(partitions []kafka.PartitionMetadata) bool {
	if len(partitions) == 0 {
		return false
	}
	for _, p := range partitions {
		if p.Error.Code() != kafka.ErrNoError || p.Leader == -1 {
			return false
		}
	}
	return true
}
