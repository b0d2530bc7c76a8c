// Package connect configures Kafka Connect connectors over the Connect REST API.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/ctastream/pkg/httputil"
	"go.uber.org/zap"
)

// Connector is a connector definition as accepted by POST /connectors.
type Connector struct {
	Config map[string]string `json:"config"`
	Name   string            `json:"name"`
}

// JDBCSource describes a JDBC source connector that copies a table into a
// topic in incrementing mode.
type JDBCSource struct {
	Name            string        `mapstructure:"name"`
	ConnectionURL   string        `mapstructure:"connectionURL"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Table           string        `mapstructure:"table"`
	IncrementColumn string        `mapstructure:"incrementColumn"`
	TopicPrefix     string        `mapstructure:"topicPrefix"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	BatchMaxRows    int           `mapstructure:"batchMaxRows"`
}

// DefaultStationsSource returns the connector that publishes the stations
// table to org.chicago.cta.stations twice a day.
func DefaultStationsSource() JDBCSource {
	return JDBCSource{
		Name:            "org.chicago.cta.stations",
		ConnectionURL:   "jdbc:postgresql://postgres:5432/cta",
		User:            "cta_admin",
		Password:        "chicago",
		Table:           "stations",
		IncrementColumn: "stop_id",
		TopicPrefix:     "org.chicago.cta.",
		PollInterval:    12 * time.Hour,
		BatchMaxRows:    500,
	}
}

// Connector renders s with schemaless JSON converters for keys and values.
func (s JDBCSource) Connector() Connector {
	return Connector{
		Name: s.Name,
		Config: map[string]string{
			"connector.class":                "io.confluent.connect.jdbc.JdbcSourceConnector",
			"key.converter":                  "org.apache.kafka.connect.json.JsonConverter",
			"key.converter.schemas.enable":   "false",
			"value.converter":                "org.apache.kafka.connect.json.JsonConverter",
			"value.converter.schemas.enable": "false",
			"batch.max.rows":                 strconv.Itoa(s.BatchMaxRows),
			"connection.url":                 s.ConnectionURL,
			"connection.user":                s.User,
			"connection.password":            s.Password,
			"table.whitelist":                s.Table,
			"mode":                           "incrementing",
			"incrementing.column.name":       s.IncrementColumn,
			"topic.prefix":                   s.TopicPrefix,
			"poll.interval.ms":               strconv.FormatInt(s.PollInterval.Milliseconds(), 10),
		},
	}
}

// Client is a Kafka Connect REST client.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient returns a client for the Connect worker at baseURL
// (e.g. http://localhost:8083).
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		logger:  logger.Named("connect"),
	}
}

func (c *Client) request(method, u string) httputil.RequestConfig {
	cfg := httputil.DefaultRequestConfig(method, u)
	cfg.Client = c.client
	cfg.Logger = c.logger
	cfg.Headers = map[string][]string{
		"Accept":       {"application/json"},
		"Content-Type": {"application/json"},
	}
	return cfg
}

// Exists reports whether a connector called name is registered.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	u := fmt.Sprintf("%s/connectors/%s", c.baseURL, url.PathEscape(name))
	_, err := httputil.Request(ctx, c.request(http.MethodGet, u), nil)
	switch {
	case err == nil:
		return true, nil
	case httputil.IsStatus(err, http.StatusNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Create registers conn. The worker rejects names that are already taken.
func (c *Client) Create(ctx context.Context, conn Connector) error {
	_, err := httputil.Request(ctx, c.request(http.MethodPost, c.baseURL+"/connectors"), conn)
	if err != nil {
		return fmt.Errorf("create connector %s: %w", conn.Name, err)
	}
	return nil
}

// Ensure creates conn unless a connector with the same name exists. It
// reports whether a connector was created.
func (c *Client) Ensure(ctx context.Context, conn Connector) (bool, error) {
	c.logger.Debug("creating or updating kafka connect connector", zap.String("connector", conn.Name))

	exists, err := c.Exists(ctx, conn.Name)
	if err != nil {
		return false, fmt.Errorf("look up connector %s: %w", conn.Name, err)
	}
	if exists {
		c.logger.Debug("connector already created, skipping recreation", zap.String("connector", conn.Name))
		return false, nil
	}

	c.logger.Info("creating connector", zap.String("connector", conn.Name))
	err = c.Create(ctx, conn)
	if httputil.IsStatus(err, http.StatusConflict) {
		c.logger.Info("connector created concurrently", zap.String("connector", conn.Name))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Configure ensures conn. Failures are logged, not returned.
func (c *Client) Configure(ctx context.Context, conn Connector) {
	if _, err := c.Ensure(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("an error occurred during creation of connector",
			zap.String("connector", conn.Name),
			zap.Error(err))
	}
}
