package pkgkafka

import (
	"os"
	"strconv"
	"time"
)

const (
	AssignStrategy_CooperativeSticky = "cooperative-sticky"
	AssignStrategy_Range             = "range"
)

type KafkaConfig struct {
	Brokers                 string
	ConsumerGroup           string
	JobsTopic               string
	DeadLetterTopic         string
	PartitionAssignStrategy string
	NumPartitions           int
	ReplicationFactor       int
	CommitInterval          time.Duration
	DeliveryTimeout         time.Duration
	EncoderType             KafkaEncoder
}

func NewKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:                 getEnv("KAFKA_BROKERS", "localhost:9092"),
		ConsumerGroup:           getEnv("KAFKA_CONSUMER_GROUP", "fulfillment_cg"),
		JobsTopic:               getEnv("KAFKA_JOBS_TOPIC", "storefront.payment-events.jobs"),
		DeadLetterTopic:         getEnv("KAFKA_DLQ_TOPIC", "storefront.payment-events.dlq"),
		PartitionAssignStrategy: getEnv("KAFKA_ASSIGN_STRATEGY", AssignStrategy_CooperativeSticky),
		NumPartitions:           getEnvInt("KAFKA_PARTITIONS", 4),
		ReplicationFactor:       getEnvInt("KAFKA_REPLICATION_FACTOR", 1),
		CommitInterval:          getEnvDuration("KAFKA_COMMIT_INTERVAL", 5*time.Second),
		DeliveryTimeout:         getEnvDuration("KAFKA_DELIVERY_TIMEOUT", 10*time.Second),
		EncoderType:             KafkaEncoder(getEnv("KAFKA_ENCODER", string(KafkaEncoder_JSON))),
	}
}

func (c *KafkaConfig) IsCooperative() bool {
	return c.PartitionAssignStrategy == AssignStrategy_CooperativeSticky
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
