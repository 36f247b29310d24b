package pkgkafka

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

type CommitFunc func([]kafka.TopicPartition) ([]kafka.TopicPartition, error)

var errNothingToCommit = fmt.Errorf("nothing to commit")

// PartitionState tracks in-flight offsets of one assigned partition. The
// committed offset only advances past a contiguous run of finished messages,
// so a pending job is always redelivered after a crash or rebalance.
type PartitionState struct {
	ID           int32
	Topic        *string
	State        map[kafka.Offset]MsgState
	MaxReceived  kafka.Offset
	Mu           *sync.RWMutex
	LastCommited kafka.Offset
	commitFunc   CommitFunc

	ctx    context.Context
	Cancel context.CancelFunc
	ExitCH chan struct{}
}

func NewPartitionState(assigned kafka.TopicPartition, commitFunc CommitFunc) *PartitionState {
	ctx, cancel := context.WithCancel(context.Background())
	lastCommited := assigned.Offset
	if lastCommited < 0 {
		lastCommited = kafka.OffsetInvalid
	}
	return &PartitionState{
		ID:           assigned.Partition,
		Topic:        assigned.Topic,
		Mu:           &sync.RWMutex{},
		State:        map[kafka.Offset]MsgState{},
		MaxReceived:  kafka.OffsetInvalid,
		LastCommited: lastCommited,
		commitFunc:   commitFunc,

		ctx:    ctx,
		Cancel: cancel,
		ExitCH: make(chan struct{}),
	}
}

func (ps *PartitionState) MarkReceived(offset kafka.Offset) {
	ps.Mu.Lock()
	defer ps.Mu.Unlock()
	ps.State[offset] = MsgState_Pending
	if offset > ps.MaxReceived {
		ps.MaxReceived = offset
	}
}

// SetState ignores offsets that were already committed away.
func (ps *PartitionState) SetState(offset kafka.Offset, state MsgState) bool {
	ps.Mu.Lock()
	defer ps.Mu.Unlock()
	if _, ok := ps.State[offset]; !ok {
		return false
	}
	ps.State[offset] = state
	return true
}

// FindLatestToCommit returns the next offset the group should resume from:
// one past the contiguous run of finished offsets at the head of the state.
func (ps *PartitionState) FindLatestToCommit() (*kafka.TopicPartition, error) {
	ps.Mu.RLock()
	defer ps.Mu.RUnlock()

	next := kafka.OffsetInvalid
	for _, offset := range slices.Sorted(maps.Keys(ps.State)) {
		if ps.State[offset] == MsgState_Pending {
			next = offset
			break
		}
		next = offset + 1
	}

	if next == kafka.OffsetInvalid || next <= ps.LastCommited {
		return nil, errNothingToCommit
	}
	return &kafka.TopicPartition{
		Topic:     ps.Topic,
		Partition: ps.ID,
		Offset:    next,
	}, nil
}

// Commit pushes the latest committable offset through commitFunc.
func (ps *PartitionState) Commit() (*kafka.TopicPartition, error) {
	latest, err := ps.FindLatestToCommit()
	if err != nil {
		return nil, err
	}
	if _, err := ps.commitFunc([]kafka.TopicPartition{*latest}); err != nil {
		return nil, fmt.Errorf("commit offset %d prtn %d: %w", latest.Offset, ps.ID, err)
	}

	ps.Mu.Lock()
	if latest.Offset > ps.LastCommited {
		ps.LastCommited = latest.Offset
	}
	for offset := range ps.State {
		if offset < latest.Offset {
			delete(ps.State, offset)
		}
	}
	ps.Mu.Unlock()
	return latest, nil
}

func (ps *PartitionState) commitOffsetLoop(commitDur time.Duration) {
	ticker := time.NewTicker(commitDur)
	defer func() {
		ticker.Stop()
		close(ps.ExitCH)
	}()
	for {
		select {
		case <-ticker.C:
			latest, err := ps.Commit()
			if errors.Is(err, errNothingToCommit) {
				continue
			}
			if err != nil {
				logrus.WithField("PRTN", ps.ID).Error(err)
				continue
			}
			logrus.WithFields(logrus.Fields{
				"COMMITED_OFFSET": latest.Offset,
				"PRTN":            ps.ID,
			}).Debug("OFFSET:COMMITTED")

		case <-ps.ctx.Done():
			return
		}
	}
}
