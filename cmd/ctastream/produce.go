package ctastream

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/edgeflare/ctastream/pkg/restproxy"
	"github.com/edgeflare/ctastream/pkg/weather"
	"github.com/spf13/cobra"
)

var produceCmd = &cobra.Command{
	Use:     "produce",
	Aliases: []string{"weather"},
	Short:   "Publish simulated weather readings",
	Long: `Simulates the seasonal Chicago weather and publishes one Avro reading per interval,
either through the REST proxy or directly to Kafka with the schema registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), produceWeather)
	},
}

func init() {
	f := produceCmd.Flags()
	f.String("transport", "restproxy", "How readings reach Kafka (restproxy, kafka)")
	f.Duration("interval", 5*time.Second, "Time between readings")
}

func produceWeather(ctx context.Context) error {
	var pub weather.Publisher
	switch cfg.Weather.Transport {
	case "kafka":
		p, err := newWeatherProducer(ctx)
		if err != nil {
			return err
		}
		defer p.Close()
		pub = p
	default:
		pub = restproxy.NewClient(cfg.RESTProxy.URL, nil, logger).
			Topic(weather.Topic, weather.KeySchema, weather.ValueSchema)
	}

	sim := weather.NewSimulator(time.Now().Month(), pub, logger)
	return sim.Run(ctx, cfg.Weather.Interval)
}

func newWeatherProducer(ctx context.Context) (*kafka.Producer, error) {
	registry, err := codec.NewConfluentRegistry(cfg.SchemaRegistry.URL, codec.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	keyEnc, err := codec.NewAvroEncoder(registry, codec.Subject(weather.Topic, true), weather.KeySchema)
	if err != nil {
		return nil, fmt.Errorf("weather key schema: %w", err)
	}
	valueEnc, err := codec.NewAvroEncoder(registry, codec.Subject(weather.Topic, false), weather.ValueSchema)
	if err != nil {
		return nil, fmt.Errorf("weather value schema: %w", err)
	}

	client, prov := kafkaClient()
	return kafka.NewProducer(ctx, client, prov, topic(weather.Topic), keyEnc, valueEnc)
}
