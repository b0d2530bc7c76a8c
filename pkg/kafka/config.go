package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Config represents the broker connection configuration shared by producers,
// consumers and the topic provisioner.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`
	Version      string        `mapstructure:"version"`
	ClientID     string        `mapstructure:"clientID"`
	SASL         *SASL         `mapstructure:"sasl"`
	TLS          TLS           `mapstructure:"tls"`
	Partitions   int32         `mapstructure:"partitions"`
	Replicas     int16         `mapstructure:"replicas"`
	RetentionMS  int64         `mapstructure:"retentionMs"`
	FlushTimeout time.Duration `mapstructure:"flushTimeout"`
}

// SASL represents SASL authentication configuration
type SASL struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Algorithm string `mapstructure:"algorithm"`
	Enable    bool   `mapstructure:"enable"`
}

// TLS represents TLS configuration
type TLS struct {
	CertFile   string `mapstructure:"certFile"`
	KeyFile    string `mapstructure:"keyFile"`
	CAFile     string `mapstructure:"caFile"`
	Enable     bool   `mapstructure:"enable"`
	SkipVerify bool   `mapstructure:"skipVerify"`
}

// DefaultConfig returns a Config pointing at a local single-broker cluster.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:9092"},
		Version:      "2.8.0",
		ClientID:     "ctastream",
		Partitions:   1,
		Replicas:     1,
		RetentionMS:  7 * 24 * 60 * 60 * 1000, // 7 days
		FlushTimeout: 10 * time.Second,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if len(c.Brokers) == 0 {
		c.Brokers = def.Brokers
	}
	if c.Version == "" {
		c.Version = def.Version
	}
	if c.ClientID == "" {
		c.ClientID = def.ClientID
	}
	if c.Partitions == 0 {
		c.Partitions = def.Partitions
	}
	if c.Replicas == 0 {
		c.Replicas = def.Replicas
	}
	if c.RetentionMS == 0 {
		c.RetentionMS = def.RetentionMS
	}
	if c.FlushTimeout == 0 {
		c.FlushTimeout = def.FlushTimeout
	}
}

// ToSaramaConfig converts the Config to a sarama.Config
func (c *Config) ToSaramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("error parsing Kafka version: %w", err)
	}
	conf.Version = version

	if c.SASL != nil && c.SASL.Enable {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password
		conf.Net.SASL.Handshake = true

		switch c.SASL.Algorithm {
		case "sha512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		case "sha256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "", "plain":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
		}
	}

	if c.TLS.Enable {
		tlsConfig, err := createTLSConfiguration(c.TLS)
		if err != nil {
			return nil, err
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}

	conf.ClientID = c.ClientID
	conf.Metadata.Full = true

	// Producer side: batched, fire-and-forget from the caller's point of view.
	// Delivery failures come back on Errors(); successes are not surfaced.
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 5
	conf.Producer.Retry.Backoff = 250 * time.Millisecond
	conf.Producer.Return.Successes = false
	conf.Producer.Return.Errors = true
	conf.Producer.Flush.Frequency = 100 * time.Millisecond

	// Consumer side: broker-committed offsets are the only state kept across
	// restarts; marked offsets are committed in the background.
	conf.Consumer.Return.Errors = true
	conf.Consumer.Offsets.AutoCommit.Enable = true
	conf.Consumer.Offsets.Initial = sarama.OffsetNewest
	conf.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	return conf, nil
}

// memberClientID derives a per-instance client id so that several consumers
// running in one process can be told apart in broker logs.
func (c *Config) memberClientID(role string) string {
	return fmt.Sprintf("%s-%s-%s", c.ClientID, role, uuid.NewString()[:8])
}

func createTLSConfiguration(tlsCfg TLS) (*tls.Config, error) {
	t := &tls.Config{
		InsecureSkipVerify: tlsCfg.SkipVerify,
	}

	if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		t.Certificates = []tls.Certificate{cert}
	}

	if tlsCfg.CAFile != "" {
		caCert, err := os.ReadFile(tlsCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		caCertPool.AppendCertsFromPEM(caCert)
		t.RootCAs = caCertPool
	}

	return t, nil
}

// GetBrokers returns the list of Kafka brokers
func (c *Config) GetBrokers() []string {
	return c.Brokers
}
