package kafka

import (
	"time"
)

// Message is a record fetched from the broker. Key and Value hold the decoded
// payloads; RawKey and RawValue keep the bytes as fetched. Err is set when the
// broker or the decoder reported a problem for this record.
type Message struct {
	Timestamp time.Time
	Key       any
	Value     any
	Err       error
	Topic     string
	RawKey    []byte
	RawValue  []byte
	Offset    int64
	Partition int32

	// ack marks the record consumed with the subscription that fetched it.
	ack func()
}

// NewMessage builds a raw message as a subscription would hand it to the
// consumer loop. ack, when non-nil, is invoked once the loop is done with it.
func NewMessage(topic string, partition int32, offset int64, key, value []byte, ack func()) *Message {
	return &Message{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		RawKey:    key,
		RawValue:  value,
		Timestamp: time.Now(),
		ack:       ack,
	}
}

func (m *Message) markConsumed() {
	if m != nil && m.ack != nil {
		m.ack()
		m.ack = nil
	}
}
