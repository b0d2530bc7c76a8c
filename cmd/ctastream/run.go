package ctastream

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/edgeflare/ctastream/pkg/metrics"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// run calls fn with a context that is canceled on SIGINT or SIGTERM, serving
// metrics alongside when enabled. It waits up to shutdownTimeout for the
// metrics server after fn returns.
func run(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Logger: logger,
			Addr:   cfg.Metrics.Addr,
		})
	}

	err := fn(ctx)
	if ctx.Err() != nil {
		logger.Info("received termination signal, shutting down gracefully")
	}
	stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out", zap.Duration("timeout", shutdownTimeout))
	}
	return err
}

// kafkaClient returns a client for the configured brokers together with a
// provisioner sized from the same config.
func kafkaClient() (*kafka.Client, *kafka.Provisioner) {
	client := kafka.NewClient(&cfg.Kafka, logger)
	return client, kafka.NewProvisioner(client)
}

// topic returns the named topic sized from the broker config.
func topic(name string) kafka.Topic {
	return kafka.Topic{
		Name:        name,
		Partitions:  cfg.Kafka.Partitions,
		Replicas:    cfg.Kafka.Replicas,
		RetentionMS: cfg.Kafka.RetentionMS,
	}
}

// consumerConfig returns a consumer for pattern using the configured polling
// settings.
func consumerConfig(pattern string) (kafka.ConsumerConfig, error) {
	policy, err := kafka.ParseOffsetPolicy(cfg.Consumer.OffsetPolicy)
	if err != nil {
		return kafka.ConsumerConfig{}, err
	}
	return kafka.ConsumerConfig{
		TopicPattern: pattern,
		OffsetPolicy: policy,
		IdleSleep:    cfg.Consumer.IdleSleep,
		PollTimeout:  cfg.Consumer.PollTimeout,
	}, nil
}
