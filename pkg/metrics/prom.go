package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/edgeflare/ctastream/pkg/httputil/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	TopicProvisioning = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_topic_provisioning_total",
			Help: "Topic provisioning rounds by result (created, exists, error)",
		},
		[]string{"result"},
	)

	PublishedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_published_messages_total",
			Help: "Total number of messages handed to the producer by topic",
		},
		[]string{"topic"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_publish_errors_total",
			Help: "Total number of asynchronous delivery failures by topic",
		},
		[]string{"topic"},
	)

	ConsumedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_consumed_messages_total",
			Help: "Total number of messages dispatched to a handler by consumer",
		},
		[]string{"consumer"},
	)

	ConsumeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_consume_errors_total",
			Help: "Total number of skipped messages by consumer and kind (broker, decode)",
		},
		[]string{"consumer", "kind"},
	)

	DrainBursts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_drain_bursts_total",
			Help: "Total number of completed drain bursts by consumer",
		},
		[]string{"consumer"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ctastream_handler_duration_seconds",
			Help:    "Duration of message handler calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"consumer"},
	)

	TableUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_table_upserts_total",
			Help: "Total number of upserts into a stream table",
		},
		[]string{"table"},
	)

	BridgedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctastream_bridged_rows_total",
			Help: "Total number of relational rows published by the station bridge",
		},
		[]string{"table"},
	)
)

type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options.
// The server shuts down gracefully when ctx is canceled; wg is released once it has.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	effectiveOpts := defaultPrometheusServerOptions()
	logger := zap.NewNop()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			logger = opts.Logger
		}
	}
	logger = logger.Named("metrics")

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	handler := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(middleware.LoggerOptions{Logger: logger, Level: zapcore.DebugLevel}),
	)
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
