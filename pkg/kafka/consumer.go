package pkgkafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// KafkaConsumer reads a topic with manual offset management. Every received
// message must be acknowledged through UpdateState; offsets are committed
// on a timer and on partition revoke.
type KafkaConsumer[T any] struct {
	ID           string
	MsgCH        chan *Message[T]
	ReadyCH      chan struct{}
	consumer     *kafka.Consumer
	topics       []string
	decoder      Decoder[T]
	msgsStateMap map[int32]*PartitionState
	Mu           *sync.RWMutex
	readyOnce    sync.Once
	cfg          *KafkaConfig
}

func NewKafkaConsumer[T any](cfg *KafkaConfig, topics []string, decoder Decoder[T], buffer int) (*KafkaConsumer[T], error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":               cfg.Brokers,
		"group.id":                        cfg.ConsumerGroup,
		"enable.auto.commit":              false,
		"auto.offset.reset":               "earliest",
		"go.application.rebalance.enable": true,
		"partition.assignment.strategy":   cfg.PartitionAssignStrategy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	consumer := &KafkaConsumer[T]{
		ID:           uuid.NewString(),
		consumer:     c,
		MsgCH:        make(chan *Message[T], buffer),
		ReadyCH:      make(chan struct{}),
		topics:       topics,
		decoder:      decoder,
		Mu:           new(sync.RWMutex),
		msgsStateMap: map[int32]*PartitionState{},
		cfg:          cfg,
	}

	if err := c.SubscribeTopics(topics, consumer.rebalanceCB); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe %v: %w", topics, err)
	}
	return consumer, nil
}

// Run blocks until ctx is cancelled, then commits what it can and closes
// the underlying consumer. MsgCH is closed on return.
func (c *KafkaConsumer[T]) Run(ctx context.Context) error {
	defer close(c.MsgCH)
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := c.consumer.ReadMessage(200 * time.Millisecond)
		if err != nil {
			var kErr kafka.Error
			if errors.As(err, &kErr) && kErr.IsTimeout() {
				continue
			}
			if errors.As(err, &kErr) && kErr.IsFatal() {
				return fmt.Errorf("fatal consumer error: %w", err)
			}
			logrus.WithField("CONSUMER", c.ID).Errorf("Consumer error: %v", err)
			continue
		}
		if msg == nil {
			continue
		}

		c.readyOnce.Do(func() { close(c.ReadyCH) })
		c.appendMsgState(&msg.TopicPartition)

		decoded, err := NewMessage(c.decoder, msg)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"OFFSET": msg.TopicPartition.Offset,
				"PRTN":   msg.TopicPartition.Partition,
				"KEY":    string(msg.Key),
			}).Errorf("MSG:UNDECODABLE %v", err)
			c.UpdateState(&msg.TopicPartition, MsgState_Error)
			continue
		}

		select {
		case c.MsgCH <- decoded:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *KafkaConsumer[T]) UpdateState(tp *kafka.TopicPartition, newState MsgState) {
	c.Mu.RLock()
	prtnState, ok := c.msgsStateMap[tp.Partition]
	c.Mu.RUnlock()
	if !ok || prtnState == nil {
		logrus.WithFields(logrus.Fields{
			"PRTN":   tp.Partition,
			"OFFSET": tp.Offset,
		}).Warn("State is missing for partition, message will be redelivered")
		return
	}

	prtnState.SetState(tp.Offset, newState)
}

func (c *KafkaConsumer[T]) appendMsgState(tp *kafka.TopicPartition) {
	c.Mu.RLock()
	prtnState := c.msgsStateMap[tp.Partition]
	c.Mu.RUnlock()

	if prtnState == nil {
		return
	}
	prtnState.MarkReceived(tp.Offset)
}

func (c *KafkaConsumer[T]) commitFunc(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	return c.consumer.CommitOffsets(offsets)
}

func (c *KafkaConsumer[T]) assignPrntCB(ev *kafka.AssignedPartitions) error {
	committed, err := c.consumer.Committed(ev.Partitions, 5000)
	if err != nil {
		logrus.Errorf("Failed to get committed offsets: %v", err)
		committed = ev.Partitions
	}

	c.Mu.Lock()
	for _, tp := range committed {
		prtnState := NewPartitionState(tp, c.commitFunc)
		if oldPS, exists := c.msgsStateMap[tp.Partition]; exists {
			oldPS.Cancel()
			<-oldPS.ExitCH
		}
		c.msgsStateMap[tp.Partition] = prtnState
		go prtnState.commitOffsetLoop(c.cfg.CommitInterval)

		logrus.WithFields(logrus.Fields{
			"PRTN":         tp.Partition,
			"START_OFFSET": tp.Offset,
		}).Info("PARTITION:ASSIGNED")
	}
	c.Mu.Unlock()

	if c.cfg.IsCooperative() {
		err = c.consumer.IncrementalAssign(ev.Partitions)
	} else {
		err = c.consumer.Assign(ev.Partitions)
	}
	if err != nil {
		logrus.Errorf("Failed to assign partitions: %v", err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"count":      len(ev.Partitions),
		"partitions": formatPartitions(ev.Partitions),
	}).Info("Successfully assigned partitions")
	return nil
}

func (c *KafkaConsumer[T]) revokePrtnCB(ev *kafka.RevokedPartitions) error {
	for _, tp := range ev.Partitions {
		c.Mu.Lock()
		partitionState, exists := c.msgsStateMap[tp.Partition]
		delete(c.msgsStateMap, tp.Partition)
		c.Mu.Unlock()
		if !exists {
			continue
		}

		partitionState.Cancel()
		<-partitionState.ExitCH
		c.commitPartition(partitionState, "revoke")
		logrus.WithField("PRTN", tp.Partition).Info("PARTITION:REVOKED")
	}

	var err error
	if c.cfg.IsCooperative() {
		err = c.consumer.IncrementalUnassign(ev.Partitions)
	} else {
		err = c.consumer.Unassign()
	}
	if err != nil {
		logrus.Errorf("Failed to unassign partitions: %v", err)
		return err
	}
	return nil
}

func (c *KafkaConsumer[T]) rebalanceCB(_ *kafka.Consumer, event kafka.Event) error {
	switch ev := event.(type) {
	case kafka.AssignedPartitions:
		return c.assignPrntCB(&ev)
	case kafka.RevokedPartitions:
		return c.revokePrtnCB(&ev)
	default:
		logrus.Warnf("Unexpected event type: %T", ev)
	}
	return nil
}

func (c *KafkaConsumer[T]) commitPartition(ps *PartitionState, reason string) {
	latest, err := ps.Commit()
	if errors.Is(err, errNothingToCommit) {
		return
	}
	if err != nil {
		logrus.WithField("REASON", reason).Errorf("Failed to commit: %v", err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"PRTN":   latest.Partition,
		"OFFSET": latest.Offset,
		"REASON": reason,
	}).Info("OFFSET:COMMITTED")
}

func (c *KafkaConsumer[T]) shutdown() {
	c.Mu.Lock()
	states := make([]*PartitionState, 0, len(c.msgsStateMap))
	for _, ps := range c.msgsStateMap {
		states = append(states, ps)
	}
	c.msgsStateMap = map[int32]*PartitionState{}
	c.Mu.Unlock()

	for _, ps := range states {
		ps.Cancel()
		<-ps.ExitCH
		c.commitPartition(ps, "shutdown")
	}

	if err := c.consumer.Close(); err != nil {
		logrus.Errorf("Failed to close consumer: %v", err)
	}
	logrus.WithField("CONSUMER", c.ID).Info("CONSUMER:CLOSED")
}

// IsReady reports whether the group assigned at least one partition.
func (c *KafkaConsumer[T]) IsReady() bool {
	assignment, err := c.consumer.Assignment()
	if err != nil {
		return false
	}
	return len(assignment) > 0
}

func formatPartitions(partitions []kafka.TopicPartition) string {
	parts := make([]string, len(partitions))
	for i, p := range partitions {
		parts[i] = fmt.Sprintf("%d@%d", p.Partition, p.Offset)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
