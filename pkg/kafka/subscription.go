package kafka

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// OffsetPolicy decides where newly assigned partitions start.
type OffsetPolicy int

const (
	// OffsetLatest leaves the start to the broker: the committed offset, or
	// the log end when the group has none.
	OffsetLatest OffsetPolicy = iota
	// OffsetEarliest forces every newly assigned partition back to its
	// earliest available offset.
	OffsetEarliest
)

func (p OffsetPolicy) String() string {
	if p == OffsetEarliest {
		return "earliest"
	}
	return "latest"
}

// ParseOffsetPolicy accepts "earliest" and "latest" (or empty).
func ParseOffsetPolicy(s string) (OffsetPolicy, error) {
	switch strings.ToLower(s) {
	case "", "latest":
		return OffsetLatest, nil
	case "earliest":
		return OffsetEarliest, nil
	default:
		return OffsetLatest, fmt.Errorf("invalid offset policy %q", s)
	}
}

const (
	// OffsetBeginning marks a partition to start at its earliest offset.
	OffsetBeginning int64 = sarama.OffsetOldest
	// OffsetStored leaves a partition's start offset to the broker.
	OffsetStored int64 = -1000
)

// TopicPartition is one assigned partition and the offset it should start at.
type TopicPartition struct {
	Topic     string
	Offset    int64
	Partition int32
}

// Assignment is a rebalance result waiting for the consumer loop. Delivery
// from the new partitions is held back until Ack is called.
type Assignment struct {
	Partitions []TopicPartition
	done       chan []TopicPartition
}

// NewAssignment wraps partitions, all starting at OffsetStored.
func NewAssignment(partitions []TopicPartition) *Assignment {
	return &Assignment{
		Partitions: partitions,
		done:       make(chan []TopicPartition, 1),
	}
}

// Ack accepts the assignment with the (possibly rewritten) start offsets.
// Only the first call has an effect.
func (a *Assignment) Ack(partitions []TopicPartition) {
	select {
	case a.done <- partitions:
	default:
	}
}

// Wait blocks until the assignment is acknowledged or ctx ends.
func (a *Assignment) Wait(ctx context.Context) ([]TopicPartition, error) {
	select {
	case parts := <-a.done:
		return parts, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EventKind tells what a poll produced.
type EventKind int

const (
	EventNone EventKind = iota
	EventAssignment
	EventMessage
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventAssignment:
		return "assignment"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "none"
	}
}

// Event is the result of a single poll. Message is set for EventMessage and,
// when the failure belongs to a record, for EventError.
type Event struct {
	Err        error
	Assignment *Assignment
	Message    *Message
	Kind       EventKind
}

// Subscription is the broker side of a consumer loop.
type Subscription interface {
	// Subscribe registers the topic pattern. Assignments are delivered later
	// as EventAssignment from Poll.
	Subscribe(ctx context.Context, pattern string) error
	// Poll waits at most timeout for the next event and returns EventNone
	// when nothing is available.
	Poll(ctx context.Context, timeout time.Duration) Event
	// Commit marks msg consumed so its offset advances.
	Commit(msg *Message)
	// Close releases the subscription and its broker resources.
	Close() error
}

// resolveTopics expands pattern against the topics known to the broker. A
// pattern starting with "^" is a regular expression; anything else is a comma
// separated list of literal names.
func resolveTopics(pattern string, available []string) ([]string, error) {
	if !strings.HasPrefix(pattern, "^") {
		var topics []string
		for _, name := range strings.Split(pattern, ",") {
			if name = strings.TrimSpace(name); name != "" {
				topics = append(topics, name)
			}
		}
		return topics, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid topic pattern %q: %w", pattern, err)
	}
	var topics []string
	for _, name := range available {
		if strings.HasPrefix(name, "__") {
			continue // internal topics
		}
		if re.MatchString(name) {
			topics = append(topics, name)
		}
	}
	sort.Strings(topics)
	return topics, nil
}
