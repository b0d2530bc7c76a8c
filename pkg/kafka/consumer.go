package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	ErrConsumerRunning = errors.New("kafka: consumer already running")
	ErrConsumerClosed  = errors.New("kafka: consumer closed")
)

// State is the consumer loop's position in its lifecycle.
//
//	SUBSCRIBING -> ASSIGNED -> DRAINING <-> IDLE -> CLOSED
type State int32

const (
	StateSubscribing State = iota
	StateAssigned
	StateDraining
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateAssigned:
		return "assigned"
	case StateDraining:
		return "draining"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConsumerConfig configures a polling consumer.
type ConsumerConfig struct {
	// TopicPattern is a topic name, a comma separated list of names, or a
	// regular expression starting with "^".
	TopicPattern string
	// GroupID defaults to TopicPattern.
	GroupID      string
	OffsetPolicy OffsetPolicy
	// IdleSleep is the pause between drain bursts. Defaults to 1s.
	IdleSleep time.Duration
	// PollTimeout bounds every single poll. Defaults to 100ms.
	PollTimeout time.Duration
	// KeyDecoder and ValueDecoder default to codec.Raw.
	KeyDecoder   codec.Decoder
	ValueDecoder codec.Decoder
}

func (c *ConsumerConfig) applyDefaults() {
	if c.GroupID == "" {
		c.GroupID = c.TopicPattern
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 100 * time.Millisecond
	}
	if c.KeyDecoder == nil {
		c.KeyDecoder = codec.Raw{}
	}
	if c.ValueDecoder == nil {
		c.ValueDecoder = codec.Raw{}
	}
}

// Stats counts what the loop has seen. Delivered and Errored are kept apart:
// both keep a drain burst going, only Delivered reached the handler.
type Stats struct {
	Delivered   uint64
	Errored     uint64
	Assignments uint64
	Bursts      uint64
}

// Consumer drains a subscription in bursts: it polls until nothing is
// available, sleeps for IdleSleep, and starts over, until Close is called or
// the context passed to Run is done. All handler calls happen on the
// goroutine running Run.
type Consumer struct {
	cfg     ConsumerConfig
	sub     Subscription
	handler Handler
	logger  *zap.Logger

	// after is the idle timer; tests replace it.
	after func(time.Duration) <-chan time.Time

	state       atomic.Int32
	delivered   atomic.Uint64
	errored     atomic.Uint64
	assignments atomic.Uint64
	bursts      atomic.Uint64

	mu       sync.Mutex
	assigned []TopicPartition

	closeCtx  context.Context
	closeFn   context.CancelFunc
	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	consumed   prometheus.Counter
	decodeErr  prometheus.Counter
	brokerErr  prometheus.Counter
	burstCount prometheus.Counter
	handlerDur prometheus.Observer
}

// NewConsumer creates a consumer that joins the group cfg.GroupID on the
// brokers of c.
func NewConsumer(c *Client, cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	if cfg.TopicPattern == "" {
		return nil, fmt.Errorf("kafka: consumer requires a topic pattern")
	}
	cfg.applyDefaults()
	sub, err := newGroupSubscription(c, cfg.GroupID, cfg.OffsetPolicy)
	if err != nil {
		return nil, err
	}
	return NewConsumerWithSubscription(sub, cfg, handler, c.logger), nil
}

// NewConsumerWithSubscription creates a consumer over an existing subscription.
func NewConsumerWithSubscription(sub Subscription, cfg ConsumerConfig, handler Handler, logger *zap.Logger) *Consumer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	closeCtx, closeFn := context.WithCancel(context.Background())
	label := cfg.TopicPattern
	return &Consumer{
		cfg:        cfg,
		sub:        sub,
		handler:    handler,
		logger:     logger.Named("consumer").With(zap.String("pattern", cfg.TopicPattern)),
		after:      time.After,
		closeCtx:   closeCtx,
		closeFn:    closeFn,
		done:       make(chan struct{}),
		consumed:   metrics.ConsumedMessages.WithLabelValues(label),
		decodeErr:  metrics.ConsumeErrors.WithLabelValues(label, "decode"),
		brokerErr:  metrics.ConsumeErrors.WithLabelValues(label, "broker"),
		burstCount: metrics.DrainBursts.WithLabelValues(label),
		handlerDur: metrics.HandlerDuration.WithLabelValues(label),
	}
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// Assigned returns the partitions of the latest assignment.
func (c *Consumer) Assigned() []TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TopicPartition, len(c.assigned))
	copy(out, c.assigned)
	return out
}

// Stats returns a snapshot of the loop counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Delivered:   c.delivered.Load(),
		Errored:     c.errored.Load(),
		Assignments: c.assignments.Load(),
		Bursts:      c.bursts.Load(),
	}
}

// Run subscribes and drains until closed. It returns nil after Close or when
// ctx is done, and a *HandlerError when the handler failed. The subscription
// is released before Run returns. A consumer runs at most once.
func (c *Consumer) Run(ctx context.Context) error {
	if c.closeCtx.Err() != nil {
		return ErrConsumerClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrConsumerRunning
	}
	defer close(c.done)
	defer c.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.closeCtx, cancel)
	defer stop()

	c.setState(StateSubscribing)
	if err := c.sub.Subscribe(ctx, c.cfg.TopicPattern); err != nil {
		return fmt.Errorf("kafka: subscribe %s: %w", c.cfg.TopicPattern, err)
	}
	c.logger.Info("subscribed",
		zap.String("group", c.cfg.GroupID),
		zap.Stringer("offsetPolicy", c.cfg.OffsetPolicy))

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.drain(ctx); err != nil {
			return err
		}
		if c.State() != StateSubscribing {
			c.setState(StateIdle)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.after(c.cfg.IdleSleep):
		}
	}
}

// drain polls until a poll comes back empty.
func (c *Consumer) drain(ctx context.Context) error {
	if s := c.State(); s == StateAssigned || s == StateIdle {
		c.setState(StateDraining)
	}
	for {
		ev := c.sub.Poll(ctx, c.cfg.PollTimeout)
		switch ev.Kind {
		case EventNone:
			c.bursts.Add(1)
			c.burstCount.Inc()
			return nil
		case EventAssignment:
			c.assign(ev.Assignment)
			if c.State() == StateAssigned {
				c.setState(StateDraining)
			}
		case EventError:
			c.skip(ev.Message, ev.Err, "broker", c.brokerErr)
		case EventMessage:
			if err := c.dispatch(ctx, ev.Message); err != nil {
				return err
			}
		}
	}
}

// assign applies the offset policy to a fresh assignment and acknowledges it
// before anything else is polled.
func (c *Consumer) assign(a *Assignment) {
	if a == nil {
		return
	}
	parts := make([]TopicPartition, len(a.Partitions))
	copy(parts, a.Partitions)
	if c.cfg.OffsetPolicy == OffsetEarliest {
		for i := range parts {
			parts[i].Offset = OffsetBeginning
		}
	}
	a.Ack(parts)

	c.mu.Lock()
	c.assigned = parts
	c.mu.Unlock()
	c.assignments.Add(1)
	if c.State() == StateSubscribing {
		c.setState(StateAssigned)
	}
	c.logger.Info("partitions assigned",
		zap.Int("partitions", len(parts)),
		zap.Stringer("offsetPolicy", c.cfg.OffsetPolicy))
}

func (c *Consumer) dispatch(ctx context.Context, msg *Message) error {
	if msg == nil {
		return nil
	}
	if err := c.decode(ctx, msg); err != nil {
		c.skip(msg, err, "decode", c.decodeErr)
		return nil
	}

	c.logger.Debug("dispatching message",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset))

	start := time.Now()
	err := c.handler.Handle(ctx, msg)
	c.handlerDur.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("handler failed, stopping consumer",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return &HandlerError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
	}

	c.sub.Commit(msg)
	c.delivered.Add(1)
	c.consumed.Inc()
	return nil
}

func (c *Consumer) decode(ctx context.Context, msg *Message) error {
	if msg.Err != nil {
		return msg.Err
	}
	key, err := c.cfg.KeyDecoder.Decode(ctx, msg.RawKey)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}
	value, err := c.cfg.ValueDecoder.Decode(ctx, msg.RawValue)
	if err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	msg.Key, msg.Value = key, value
	return nil
}

// skip logs a failed record and marks it consumed so the same offset is never
// fetched again.
func (c *Consumer) skip(msg *Message, err error, kind string, counter prometheus.Counter) {
	c.errored.Add(1)
	counter.Inc()
	fields := []zap.Field{zap.String("kind", kind), zap.Error(err)}
	if msg != nil {
		msg.Err = err
		fields = append(fields,
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		c.sub.Commit(msg)
	}
	c.logger.Error("skipping message", fields...)
}

func (c *Consumer) release() {
	c.closeOnce.Do(func() {
		c.closeErr = c.sub.Close()
		c.setState(StateClosed)
		if c.closeErr != nil {
			c.logger.Error("failed to close subscription", zap.Error(c.closeErr))
		} else {
			c.logger.Info("consumer closed")
		}
	})
}

// Close stops the loop at its next idle boundary and waits for Run to return.
// It must not be called from the handler.
func (c *Consumer) Close() error {
	c.closeFn()
	if c.started.Load() {
		<-c.done
	}
	c.release()
	return c.closeErr
}
