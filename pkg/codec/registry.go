package codec

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/ctastream/pkg/httputil"
	"go.uber.org/zap"
)

const registryContentType = "application/vnd.schemaregistry.v1+json"

// Schema represents a schema definition from the registry.
type Schema struct {
	ID      int    `json:"id"`
	Subject string `json:"subject,omitempty"`
	Version int    `json:"version,omitempty"`
	Schema  string `json:"schema"`
	Type    string `json:"schemaType,omitempty"` // AVRO (default), PROTOBUF, JSON
}

// Registry stores and resolves schemas.
type Registry interface {
	// Register adds schema under subject (idempotent on the registry side) and
	// returns its global id.
	Register(ctx context.Context, subject, schema string) (int, error)
	// GetByID retrieves a schema by its global id.
	GetByID(ctx context.Context, id int) (*Schema, error)
}

// ConfluentRegistry implements Registry against the Confluent Schema Registry HTTP API.
type ConfluentRegistry struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu    sync.RWMutex
	byID  map[int]*Schema
	bySub map[string]int // subject + "\x00" + schema -> id
}

// RegistryOption configures the ConfluentRegistry.
type RegistryOption func(*ConfluentRegistry)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *ConfluentRegistry) { r.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *ConfluentRegistry) { r.logger = l }
}

// NewConfluentRegistry creates a new Confluent Schema Registry client.
func NewConfluentRegistry(baseURL string, opts ...RegistryOption) (*ConfluentRegistry, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("schema registry base URL is required")
	}
	r := &ConfluentRegistry{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  zap.NewNop(),
		byID:    make(map[int]*Schema),
		bySub:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *ConfluentRegistry) request(method, u string) httputil.RequestConfig {
	cfg := httputil.DefaultRequestConfig(method, u)
	cfg.Client = r.client
	cfg.Logger = r.logger
	cfg.Headers = map[string][]string{
		"Accept":       {registryContentType},
		"Content-Type": {registryContentType},
	}
	return cfg
}

// Register posts schema as a new version of subject. Registering an identical
// schema again returns the existing id; results are cached per process.
func (r *ConfluentRegistry) Register(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "\x00" + schema
	r.mu.RLock()
	id, ok := r.bySub[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	u := fmt.Sprintf("%s/subjects/%s/versions", r.baseURL, url.PathEscape(subject))
	resp, err := httputil.Request(ctx, r.request(http.MethodPost, u), map[string]string{"schema": schema})
	if err != nil {
		return 0, fmt.Errorf("register schema for %s: %w", subject, err)
	}

	var out struct {
		ID int `json:"id"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return 0, fmt.Errorf("register schema for %s: %w", subject, err)
	}

	r.mu.Lock()
	r.bySub[key] = out.ID
	r.byID[out.ID] = &Schema{ID: out.ID, Subject: subject, Schema: schema}
	r.mu.Unlock()

	r.logger.Debug("schema registered", zap.String("subject", subject), zap.Int("id", out.ID))
	return out.ID, nil
}

// GetByID retrieves a schema by its global ID. Schemas are immutable, so the
// cache never expires.
func (r *ConfluentRegistry) GetByID(ctx context.Context, id int) (*Schema, error) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	u := fmt.Sprintf("%s/schemas/ids/%d", r.baseURL, id)
	resp, err := httputil.Request(ctx, r.request(http.MethodGet, u), nil)
	if err != nil {
		return nil, fmt.Errorf("get schema by id %d: %w", id, err)
	}

	var schema Schema
	if err := resp.DecodeJSON(&schema); err != nil {
		return nil, fmt.Errorf("get schema by id %d: %w", id, err)
	}
	schema.ID = id

	r.mu.Lock()
	r.byID[id] = &schema
	r.mu.Unlock()
	return &schema, nil
}

var _ Registry = (*ConfluentRegistry)(nil)
