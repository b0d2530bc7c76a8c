package ctastream

import (
	"context"
	"regexp"
	"time"

	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/edgeflare/ctastream/pkg/stations"
	"github.com/edgeflare/ctastream/pkg/weather"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var reportInterval time.Duration

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume weather readings and the station table",
	Long: `Runs one polling consumer for the weather topic and one for the station table topic.
A handler failure in either stops both and exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), consume)
	},
}

func init() {
	f := consumeCmd.Flags()
	f.String("offset", "latest", "Where a new consumer group starts (earliest, latest)")
	f.Duration("idle-sleep", time.Second, "Pause after a drained burst")
	f.DurationVar(&reportInterval, "report-interval", 30*time.Second, "How often to log the consumed state")
}

// exactTopic returns a pattern matching only name.
func exactTopic(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}

func consume(ctx context.Context) error {
	registry, err := codec.NewConfluentRegistry(cfg.SchemaRegistry.URL, codec.WithLogger(logger))
	if err != nil {
		return err
	}
	client := kafka.NewClient(&cfg.Kafka, logger)

	snapshot := weather.NewSnapshot(logger)
	weatherCfg, err := consumerConfig(exactTopic(weather.Topic))
	if err != nil {
		return err
	}
	avro := codec.NewAvroDecoder(registry)
	weatherCfg.KeyDecoder, weatherCfg.ValueDecoder = avro, avro
	weatherConsumer, err := kafka.NewConsumer(client, weatherCfg, snapshot)
	if err != nil {
		return err
	}
	defer weatherConsumer.Close()

	directory := stations.NewDirectory(logger)
	tableCfg, err := consumerConfig(exactTopic(stations.TableTopic))
	if err != nil {
		return err
	}
	tableCfg.KeyDecoder, tableCfg.ValueDecoder = codec.JSON{}, codec.JSON{}
	tableConsumer, err := kafka.NewConsumer(client, tableCfg, directory)
	if err != nil {
		return err
	}
	defer tableConsumer.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return weatherConsumer.Run(gctx) })
	g.Go(func() error { return tableConsumer.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				temp, status := snapshot.Current()
				logger.Info("consumer status",
					zap.Float64("temperature", temp),
					zap.String("weather", status),
					zap.Int("stations", directory.Len()),
					zap.Uint64("weatherMessages", weatherConsumer.Stats().Delivered),
					zap.Uint64("tableMessages", tableConsumer.Stats().Delivered))
			}
		}
	})
	return g.Wait()
}
