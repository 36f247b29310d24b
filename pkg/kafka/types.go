package pkgkafka

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type MsgState = int32

const (
	MsgState_Pending MsgState = iota
	MsgState_Success
	MsgState_Error
)

type Decoder[T any] func(metadata *kafka.TopicPartition, data []byte) (T, error)

type Message[T any] struct {
	Metadata *kafka.TopicPartition
	Key      []byte
	Data     T
}

func NewMessage[T any](decoder Decoder[T], msg *kafka.Message) (*Message[T], error) {
	payload, err := decoder(&msg.TopicPartition, msg.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode message at offset %v: %w", msg.TopicPartition.Offset, err)
	}

	return &Message[T]{
		Metadata: &msg.TopicPartition,
		Key:      msg.Key,
		Data:     payload,
	}, nil
}

// EncoderDecoder adapts a MsgEncoder to a typed Decoder. newTarget must
// return a fresh pointer for every call.
func EncoderDecoder[T any](enc MsgEncoder, newTarget func() T) Decoder[T] {
	return func(_ *kafka.TopicPartition, data []byte) (T, error) {
		target := newTarget()
		if err := enc.Decode(data, target); err != nil {
			var zero T
			return zero, err
		}
		return target, nil
	}
}
