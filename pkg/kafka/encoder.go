package pkgkafka

import (
	"encoding/json"
	"fmt"

	goavro "github.com/linkedin/goavro/v2"
)

type KafkaEncoder string

const (
	KafkaEncoder_JSON KafkaEncoder = "json"
	KafkaEncoder_AVRO KafkaEncoder = "avro"
)

type MsgEncoder interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, target any) error
	GetType() KafkaEncoder
}

// AvroRecord is implemented by values that can be written with an Avro codec.
type AvroRecord interface {
	ToAvroNative() map[string]any
}

// AvroTarget is implemented by pointers that can be filled from an Avro record.
type AvroTarget interface {
	FromAvroNative(native map[string]any) error
}

func NewMsgEncoder(encoderType KafkaEncoder, avroSchema string) (MsgEncoder, error) {
	switch encoderType {
	case KafkaEncoder_AVRO:
		return NewAvroEncoder(avroSchema)
	case KafkaEncoder_JSON, "":
		return NewJsonEncoder(), nil
	default:
		return nil, fmt.Errorf("unknown encoder %q", encoderType)
	}
}

type JsonEncoder struct {
	msgEncoderType KafkaEncoder
}

func NewJsonEncoder() *JsonEncoder {
	return &JsonEncoder{
		msgEncoderType: KafkaEncoder_JSON,
	}
}

func (e *JsonEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (e *JsonEncoder) Decode(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}

func (e *JsonEncoder) GetType() KafkaEncoder {
	return e.msgEncoderType
}

// AvroEncoder writes schemaless Avro binary with a single embedded schema.
type AvroEncoder struct {
	msgEncoderType KafkaEncoder
	codec          *goavro.Codec
}

func NewAvroEncoder(schema string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid avro schema: %w", err)
	}
	return &AvroEncoder{
		msgEncoderType: KafkaEncoder_AVRO,
		codec:          codec,
	}, nil
}

func (e *AvroEncoder) Encode(v any) ([]byte, error) {
	rec, ok := v.(AvroRecord)
	if !ok {
		return nil, fmt.Errorf("%T does not implement AvroRecord", v)
	}
	return e.codec.BinaryFromNative(nil, rec.ToAvroNative())
}

func (e *AvroEncoder) Decode(data []byte, target any) error {
	t, ok := target.(AvroTarget)
	if !ok {
		return fmt.Errorf("%T does not implement AvroTarget", target)
	}
	native, _, err := e.codec.NativeFromBinary(data)
	if err != nil {
		return fmt.Errorf("Deserialization error: %w", err)
	}
	rec, ok := native.(map[string]any)
	if !ok {
		return fmt.Errorf("avro datum is %T, want record", native)
	}
	return t.FromAvroNative(rec)
}

func (e *AvroEncoder) GetType() KafkaEncoder {
	return e.msgEncoderType
}
