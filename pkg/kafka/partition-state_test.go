package pkgkafka

import (
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPartition(startOffset kafka.Offset, commits *[]kafka.TopicPartition) *PartitionState {
	topic := "jobs"
	return NewPartitionState(kafka.TopicPartition{Topic: &topic, Partition: 2, Offset: startOffset}, func(tps []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
		*commits = append(*commits, tps...)
		return tps, nil
	})
}

func TestFindLatestToCommitStopsAtFirstPending(t *testing.T) {
	var commits []kafka.TopicPartition
	ps := newTestPartition(10, &commits)
	for o := kafka.Offset(10); o <= 14; o++ {
		ps.MarkReceived(o)
	}
	ps.SetState(10, MsgState_Success)
	ps.SetState(11, MsgState_Error)
	ps.SetState(13, MsgState_Success)

	latest, err := ps.FindLatestToCommit()
	require.NoError(t, err)
	assert.Equal(t, kafka.Offset(12), latest.Offset)
	assert.Equal(t, int32(2), latest.Partition)
	assert.Contains(t, ps.State, kafka.Offset(10), "nothing is pruned before a commit")

	_, err = ps.Commit()
	require.NoError(t, err)
	assert.NotContains(t, ps.State, kafka.Offset(10))
	assert.NotContains(t, ps.State, kafka.Offset(11))
	assert.Equal(t, MsgState_Success, ps.State[13])
}

func TestFindLatestToCommitAllDone(t *testing.T) {
	var commits []kafka.TopicPartition
	ps := newTestPartition(kafka.OffsetBeginning, &commits)
	ps.MarkReceived(0)
	ps.MarkReceived(1)
	ps.MarkReceived(3)
	ps.SetState(0, MsgState_Success)
	ps.SetState(1, MsgState_Success)
	ps.SetState(3, MsgState_Success)

	latest, err := ps.Commit()
	require.NoError(t, err)
	assert.Equal(t, kafka.Offset(4), latest.Offset)
	assert.Len(t, commits, 1)
	assert.Equal(t, kafka.Offset(4), ps.LastCommited)
	assert.Empty(t, ps.State)
}

func TestCommitSkipsWhenNothingNew(t *testing.T) {
	var commits []kafka.TopicPartition
	ps := newTestPartition(5, &commits)

	_, err := ps.Commit()
	assert.ErrorIs(t, err, errNothingToCommit)

	ps.MarkReceived(5)
	_, err = ps.Commit()
	assert.ErrorIs(t, err, errNothingToCommit, "head is still pending")
	assert.Empty(t, commits)

	ps.SetState(5, MsgState_Success)
	_, err = ps.Commit()
	require.NoError(t, err)
	_, err = ps.Commit()
	assert.ErrorIs(t, err, errNothingToCommit)
	assert.Len(t, commits, 1)
}

func TestCommitFailureKeepsLastCommitted(t *testing.T) {
	topic := "jobs"
	ps := NewPartitionState(kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 0}, func(tps []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
		return nil, errors.New("broker gone")
	})
	ps.MarkReceived(0)
	ps.SetState(0, MsgState_Success)

	_, err := ps.Commit()
	assert.ErrorContains(t, err, "broker gone")
	assert.Equal(t, kafka.Offset(0), ps.LastCommited)

	latest, err := ps.FindLatestToCommit()
	require.NoError(t, err)
	assert.Equal(t, kafka.Offset(1), latest.Offset, "failed commit is retried on the next tick")
}

func TestSetStateUnknownOffset(t *testing.T) {
	var commits []kafka.TopicPartition
	ps := newTestPartition(0, &commits)
	assert.False(t, ps.SetState(42, MsgState_Success))
	assert.NotContains(t, ps.State, kafka.Offset(42))
}
