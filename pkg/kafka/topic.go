package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/edgeflare/ctastream/pkg/metrics"
	"go.uber.org/zap"
)

// ErrInvalidTopic is returned when a Topic fails validation.
var ErrInvalidTopic = errors.New("invalid topic")

// Topic describes a topic to provision. Topics are immutable once created.
type Topic struct {
	Name          string
	Partitions    int32
	Replicas      int16
	RetentionMS   int64
	ConfigEntries map[string]string
}

// Validate checks the name and sizing of t.
func (t Topic) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTopic)
	}
	if t.Partitions < 1 {
		return fmt.Errorf("%w: %s: partitions must be >= 1, got %d", ErrInvalidTopic, t.Name, t.Partitions)
	}
	if t.Replicas < 1 {
		return fmt.Errorf("%w: %s: replicas must be >= 1, got %d", ErrInvalidTopic, t.Name, t.Replicas)
	}
	return nil
}

func (t Topic) detail() *sarama.TopicDetail {
	entries := make(map[string]*string, len(t.ConfigEntries)+1)
	for k, v := range t.ConfigEntries {
		entries[k] = stringPtr(v)
	}
	if t.RetentionMS > 0 {
		entries["retention.ms"] = stringPtr(strconv.FormatInt(t.RetentionMS, 10))
	}
	return &sarama.TopicDetail{
		NumPartitions:     t.Partitions,
		ReplicationFactor: t.Replicas,
		ConfigEntries:     entries,
	}
}

// TopicState is the provisioner's knowledge about a topic.
type TopicState int

const (
	TopicUnknown TopicState = iota
	TopicCreating
	TopicExists
)

func (s TopicState) String() string {
	switch s {
	case TopicCreating:
		return "creating"
	case TopicExists:
		return "exists"
	default:
		return "unknown"
	}
}

// TopicAdmin is the subset of sarama.ClusterAdmin the provisioner needs.
type TopicAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	Close() error
}

// Provisioner creates topics on demand and remembers which ones exist so that
// repeated calls for the same name never reach the broker again. The status
// map belongs to the instance; there is no package-level cache. Two processes
// racing to create the same topic are resolved by the broker.
type Provisioner struct {
	newAdmin func() (TopicAdmin, error)
	logger   *zap.Logger

	mu    sync.Mutex
	state map[string]TopicState
}

// NewProvisioner returns a Provisioner that opens a cluster admin from c for
// each provisioning round.
func NewProvisioner(c *Client) *Provisioner {
	return NewProvisionerWithAdmin(func() (TopicAdmin, error) {
		return c.NewClusterAdmin()
	}, c.logger)
}

// NewProvisionerWithAdmin returns a Provisioner using newAdmin to reach the broker.
func NewProvisionerWithAdmin(newAdmin func() (TopicAdmin, error), logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		newAdmin: newAdmin,
		logger:   logger.Named("provisioner"),
		state:    make(map[string]TopicState),
	}
}

// State reports what the provisioner knows about the named topic.
func (p *Provisioner) State(name string) TopicState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[name]
}

// EnsureTopic makes sure t exists on the broker. A topic that already exists,
// including one created concurrently by another process, is a success. Broker
// failures are logged and returned; callers are expected to carry on since a
// later publish surfaces the problem more visibly. Failed attempts are not
// remembered, so the next call tries again.
func (p *Provisioner) EnsureTopic(ctx context.Context, t Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}

	// Held for the whole round so concurrent callers for the same name wait
	// for the first creation instead of issuing their own.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state[t.Name] == TopicExists {
		p.logger.Debug("topic already provisioned", zap.String("topic", t.Name))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.state[t.Name] = TopicCreating
	err := p.provision(t)
	if err != nil {
		delete(p.state, t.Name)
		metrics.TopicProvisioning.WithLabelValues("error").Inc()
		p.logger.Error("cannot provision topic", zap.String("topic", t.Name), zap.Error(err))
		return err
	}
	p.state[t.Name] = TopicExists
	return nil
}

func (p *Provisioner) provision(t Topic) error {
	admin, err := p.newAdmin()
	if err != nil {
		return err
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}
	if _, exists := topics[t.Name]; exists {
		metrics.TopicProvisioning.WithLabelValues("exists").Inc()
		p.logger.Info("topic already exists", zap.String("topic", t.Name))
		return nil
	}

	err = admin.CreateTopic(t.Name, t.detail(), false)
	if isTopicAlreadyExists(err) {
		metrics.TopicProvisioning.WithLabelValues("exists").Inc()
		p.logger.Info("topic created concurrently", zap.String("topic", t.Name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", t.Name, err)
	}

	metrics.TopicProvisioning.WithLabelValues("created").Inc()
	p.logger.Info("topic created",
		zap.String("topic", t.Name),
		zap.Int32("partitions", t.Partitions),
		zap.Int16("replicas", t.Replicas))
	return nil
}

func isTopicAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) {
		return topicErr.Err == sarama.ErrTopicAlreadyExists
	}
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}

func stringPtr(s string) *string {
	return &s
}
