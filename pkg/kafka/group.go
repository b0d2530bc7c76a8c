package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var errNoMatchingTopics = errors.New("kafka: no topics match pattern")

// groupSubscription implements Subscription on top of a sarama consumer
// group. sarama drives the group from its own goroutines; everything they
// produce is funneled through events so the consumer loop sees assignments,
// records and errors in a single ordered stream.
type groupSubscription struct {
	client  sarama.Client
	group   sarama.ConsumerGroup
	groupID string
	logger  *zap.Logger

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subscribeOnce sync.Once
	closeOnce     sync.Once
}

func newGroupSubscription(c *Client, groupID string, policy OffsetPolicy) (*groupSubscription, error) {
	client, err := c.newGroupClient(policy)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroupFromClient(groupID, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group %s: %w", groupID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &groupSubscription{
		client:  client,
		group:   group,
		groupID: groupID,
		logger:  c.logger.Named("group").With(zap.String("group", groupID)),
		events:  make(chan Event),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Subscribe starts the group session loop in the background.
func (s *groupSubscription) Subscribe(_ context.Context, pattern string) error {
	if _, err := resolveTopics(pattern, nil); err != nil {
		return err
	}
	s.subscribeOnce.Do(func() {
		s.wg.Add(2)
		go s.run(pattern)
		go s.forwardErrors()
	})
	return nil
}

func (s *groupSubscription) run(pattern string) {
	defer s.wg.Done()
	h := &groupHandler{sub: s}

	for s.ctx.Err() == nil {
		topics, err := s.waitForTopics(pattern)
		if err != nil {
			return // context done
		}
		s.logger.Debug("joining group", zap.Strings("topics", topics))

		if err := s.group.Consume(s.ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			s.logger.Error("consumer group session failed", zap.Error(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// waitForTopics resolves pattern against the cluster metadata, retrying with
// backoff until at least one topic matches.
func (s *groupSubscription) waitForTopics(pattern string) ([]string, error) {
	var topics []string
	op := func() error {
		if err := s.client.RefreshMetadata(); err != nil {
			return err
		}
		available, err := s.client.Topics()
		if err != nil {
			return err
		}
		resolved, err := resolveTopics(pattern, available)
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(resolved) == 0 {
			return errNoMatchingTopics
		}
		topics = resolved
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	notify := func(err error, next time.Duration) {
		s.logger.Warn("waiting for topics",
			zap.String("pattern", pattern),
			zap.Duration("retryIn", next),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, s.ctx), notify); err != nil {
		return nil, err
	}
	return topics, nil
}

func (s *groupSubscription) forwardErrors() {
	defer s.wg.Done()
	for err := range s.group.Errors() {
		ev := Event{Kind: EventError, Err: err}
		var cerr *sarama.ConsumerError
		if errors.As(err, &cerr) {
			ev.Err = cerr.Err
			ev.Message = &Message{Topic: cerr.Topic, Partition: cerr.Partition, Offset: -1, Err: cerr.Err}
		}
		if !s.emit(s.ctx, ev) {
			return
		}
	}
}

func (s *groupSubscription) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *groupSubscription) Poll(ctx context.Context, timeout time.Duration) Event {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-s.events:
		return ev
	case <-timer.C:
	case <-ctx.Done():
	}
	return Event{Kind: EventNone}
}

func (s *groupSubscription) Commit(msg *Message) {
	msg.markConsumed()
}

func (s *groupSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if gerr := s.group.Close(); gerr != nil {
			err = fmt.Errorf("failed to close consumer group: %w", gerr)
		}
		s.wg.Wait()
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close client: %w", cerr)
		}
	})
	return err
}

// groupHandler is the sarama.ConsumerGroupHandler of a groupSubscription.
type groupHandler struct {
	sub *groupSubscription
}

// Setup hands the session's claims to the consumer loop and holds the session
// until the loop has acknowledged them, so start offsets are in place before
// any partition is fetched.
func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	var parts []TopicPartition
	for topic, partitions := range sess.Claims() {
		for _, p := range partitions {
			parts = append(parts, TopicPartition{Topic: topic, Partition: p, Offset: OffsetStored})
		}
	}
	a := NewAssignment(parts)
	if !h.sub.emit(sess.Context(), Event{Kind: EventAssignment, Assignment: a}) {
		return sess.Context().Err()
	}
	acked, err := a.Wait(sess.Context())
	if err != nil {
		return err
	}

	for _, tp := range acked {
		offset := tp.Offset
		switch {
		case offset == OffsetBeginning:
			oldest, err := h.sub.client.GetOffset(tp.Topic, tp.Partition, sarama.OffsetOldest)
			if err != nil {
				h.sub.logger.Error("failed to look up earliest offset",
					zap.String("topic", tp.Topic),
					zap.Int32("partition", tp.Partition),
					zap.Error(err))
				continue
			}
			offset = oldest
		case offset < 0:
			continue
		}
		sess.ResetOffset(tp.Topic, tp.Partition, offset, "")
	}

	h.sub.logger.Info("session started",
		zap.Int32("generation", sess.GenerationID()),
		zap.String("member", sess.MemberID()),
		zap.Int("partitions", len(acked)))
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.sub.logger.Debug("session ended", zap.Int32("generation", sess.GenerationID()))
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			msg := NewMessage(m.Topic, m.Partition, m.Offset, m.Key, m.Value, func() {
				sess.MarkMessage(m, "")
			})
			msg.Timestamp = m.Timestamp
			if !h.sub.emit(sess.Context(), Event{Kind: EventMessage, Message: msg}) {
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}

var (
	_ Subscription                = (*groupSubscription)(nil)
	_ sarama.ConsumerGroupHandler = (*groupHandler)(nil)
)
