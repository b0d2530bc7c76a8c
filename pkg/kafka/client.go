package kafka

import (
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Client builds the sarama admin, producer and consumer-group clients that the
// rest of the package works with. It holds no connections itself.
type Client struct {
	config *Config
	logger *zap.Logger
}

// NewClient creates a new Client. Zero config fields are defaulted.
func NewClient(config *Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Client{
		config: config,
		logger: logger,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() *Config {
	return c.config
}

// NewClusterAdmin creates a new sarama.ClusterAdmin. The caller owns it.
func (c *Client) NewClusterAdmin() (sarama.ClusterAdmin, error) {
	saramaConfig, err := c.config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	admin, err := sarama.NewClusterAdmin(c.config.GetBrokers(), saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster admin: %w", err)
	}

	return admin, nil
}

func (c *Client) newAsyncProducer(topic string) (sarama.AsyncProducer, error) {
	conf, err := c.config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}
	conf.ClientID = c.config.memberClientID("producer")

	producer, err := sarama.NewAsyncProducer(c.config.GetBrokers(), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create async producer for %s: %w", topic, err)
	}
	return producer, nil
}

// newGroupClient creates the sarama.Client a consumer group is built from.
// Sharing the client lets the group adapter resolve topic patterns and look up
// partition offsets over the same connections the group uses.
func (c *Client) newGroupClient(policy OffsetPolicy) (sarama.Client, error) {
	conf, err := c.config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}
	conf.ClientID = c.config.memberClientID("consumer")
	if policy == OffsetEarliest {
		conf.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	client, err := sarama.NewClient(c.config.GetBrokers(), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}
