package pkgkafka

import (
	"sync"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerTracksAndAcksOffsets(t *testing.T) {
	var commits []kafka.TopicPartition
	topic := "jobs"
	c := &KafkaConsumer[string]{
		Mu:           new(sync.RWMutex),
		msgsStateMap: map[int32]*PartitionState{1: newTestPartition(0, &commits)},
	}

	tp0 := kafka.TopicPartition{Topic: &topic, Partition: 1, Offset: 0}
	tp1 := kafka.TopicPartition{Topic: &topic, Partition: 1, Offset: 1}
	c.appendMsgState(&tp0)
	c.appendMsgState(&tp1)
	c.UpdateState(&tp1, MsgState_Success)

	ps := c.msgsStateMap[1]
	_, err := ps.FindLatestToCommit()
	assert.ErrorIs(t, err, errNothingToCommit, "offset 0 is still in flight")

	c.UpdateState(&tp0, MsgState_Error)
	latest, err := ps.FindLatestToCommit()
	require.NoError(t, err)
	assert.Equal(t, kafka.Offset(2), latest.Offset)
}

func TestConsumerUpdateStateUnknownPartition(t *testing.T) {
	c := &KafkaConsumer[string]{
		Mu:           new(sync.RWMutex),
		msgsStateMap: map[int32]*PartitionState{},
	}
	topic := "jobs"
	tp := kafka.TopicPartition{Topic: &topic, Partition: 9, Offset: 3}

	assert.NotPanics(t, func() {
		c.appendMsgState(&tp)
		c.UpdateState(&tp, MsgState_Success)
	})
}

func TestFormatPartitions(t *testing.T) {
	out := formatPartitions([]kafka.TopicPartition{{Partition: 0, Offset: 5}, {Partition: 3, Offset: 7}})
	assert.Equal(t, "[0@5, 3@7]", out)
}
