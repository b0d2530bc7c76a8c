package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka: producer closed")

// Producer publishes to a single topic. Sends are asynchronous: Publish only
// fails when the record cannot be encoded or the producer is closed, and
// delivery failures are logged as they come back from the broker.
type Producer struct {
	topic        string
	producer     sarama.AsyncProducer
	keyEncoder   codec.Encoder
	valueEncoder codec.Encoder
	flushTimeout time.Duration
	logger       *zap.Logger

	published  prometheus.Counter
	publishErr prometheus.Counter

	mu     sync.RWMutex
	closed bool
	errs   sync.WaitGroup
}

// NewProducer provisions t through p and opens an asynchronous producer for
// it. Zero sizing fields of t are taken from the client configuration. A
// provisioning failure other than an invalid topic is logged and the producer
// is created anyway. Nil encoders default to codec.Raw.
func NewProducer(ctx context.Context, c *Client, p *Provisioner, t Topic, keyEncoder, valueEncoder codec.Encoder) (*Producer, error) {
	cfg := c.Config()
	if t.Partitions == 0 {
		t.Partitions = cfg.Partitions
	}
	if t.Replicas == 0 {
		t.Replicas = cfg.Replicas
	}
	if t.RetentionMS == 0 {
		t.RetentionMS = cfg.RetentionMS
	}

	if p != nil {
		if err := p.EnsureTopic(ctx, t); err != nil {
			if errors.Is(err, ErrInvalidTopic) {
				return nil, err
			}
			c.logger.Warn("continuing without confirmed topic", zap.String("topic", t.Name), zap.Error(err))
		}
	}

	ap, err := c.newAsyncProducer(t.Name)
	if err != nil {
		return nil, err
	}
	return newProducer(t.Name, ap, keyEncoder, valueEncoder, cfg.FlushTimeout, c.logger), nil
}

func newProducer(topic string, ap sarama.AsyncProducer, keyEncoder, valueEncoder codec.Encoder, flushTimeout time.Duration, logger *zap.Logger) *Producer {
	if keyEncoder == nil {
		keyEncoder = codec.Raw{}
	}
	if valueEncoder == nil {
		valueEncoder = codec.Raw{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if flushTimeout <= 0 {
		flushTimeout = DefaultConfig().FlushTimeout
	}
	pr := &Producer{
		topic:        topic,
		producer:     ap,
		keyEncoder:   keyEncoder,
		valueEncoder: valueEncoder,
		flushTimeout: flushTimeout,
		logger:       logger.Named("producer").With(zap.String("topic", topic)),
		published:    metrics.PublishedMessages.WithLabelValues(topic),
		publishErr:   metrics.PublishErrors.WithLabelValues(topic),
	}
	pr.errs.Add(1)
	go pr.watchErrors()
	return pr
}

func (p *Producer) watchErrors() {
	defer p.errs.Done()
	for perr := range p.producer.Errors() {
		p.publishErr.Inc()
		fields := []zap.Field{zap.Error(perr.Err)}
		if perr.Msg != nil {
			fields = append(fields, zap.Int32("partition", perr.Msg.Partition))
		}
		p.logger.Error("failed to deliver message", fields...)
	}
}

// Topic returns the name of the topic p writes to.
func (p *Producer) Topic() string {
	return p.topic
}

// Publish encodes key and value and queues the record. A nil key or value
// leaves that part of the record empty.
func (p *Producer) Publish(ctx context.Context, key, value any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	msg := &sarama.ProducerMessage{Topic: p.topic}
	if key != nil {
		data, err := p.keyEncoder.Encode(ctx, key)
		if err != nil {
			return fmt.Errorf("encode key for %s: %w", p.topic, err)
		}
		msg.Key = sarama.ByteEncoder(data)
	}
	if value != nil {
		data, err := p.valueEncoder.Encode(ctx, value)
		if err != nil {
			return fmt.Errorf("encode value for %s: %w", p.topic, err)
		}
		msg.Value = sarama.ByteEncoder(data)
	}

	select {
	case p.producer.Input() <- msg:
		p.published.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued records, waiting at most the configured flush timeout.
// Flush failures are logged, never returned.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.producer.AsyncClose()
		p.errs.Wait()
	}()

	timer := time.NewTimer(p.flushTimeout)
	defer timer.Stop()
	select {
	case <-done:
		p.logger.Debug("producer flushed")
	case <-timer.C:
		p.logger.Warn("producer flush timed out", zap.Duration("timeout", p.flushTimeout))
	}
	return nil
}
