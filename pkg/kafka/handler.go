package kafka

import (
	"context"
	"fmt"
)

// Handler receives every successfully decoded message of a consumer, once,
// on the consumer's goroutine. It owns whatever state it mutates. Returning an
// error stops the consumer: a handler defect is not something the loop can
// recover from.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// HandlerError is returned by Consumer.Run when the handler failed. The
// failing message is not marked consumed.
type HandlerError struct {
	Err       error
	Topic     string
	Offset    int64
	Partition int32
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed on %s[%d]@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
