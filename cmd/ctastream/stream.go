package ctastream

import (
	"context"

	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/edgeflare/ctastream/pkg/stations"
	"github.com/spf13/cobra"
)

// streamGroup is the consumer group of the stations transform.
const streamGroup = "stations-stream"

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Transform raw stations into the station line table",
	Long: `Consumes the stations topic written by Kafka Connect or the bridge, keeps the line
of every station and publishes each update to the station table topic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		offsetSet := cmd.Flags().Changed("offset")
		return run(cmd.Context(), func(ctx context.Context) error {
			return stream(ctx, offsetSet)
		})
	},
}

func init() {
	f := streamCmd.Flags()
	f.String("offset", "earliest", "Where a new consumer group starts (earliest, latest)")
}

// streamConsumerConfig configures the stations consumer. The table is rebuilt
// from the earliest offset unless --offset was given.
func streamConsumerConfig(offsetSet bool) (kafka.ConsumerConfig, error) {
	ccfg, err := consumerConfig(exactTopic(stations.Topic))
	if err != nil {
		return kafka.ConsumerConfig{}, err
	}
	ccfg.GroupID = streamGroup
	ccfg.ValueDecoder = codec.JSON{}
	if !offsetSet {
		ccfg.OffsetPolicy = kafka.OffsetEarliest
	}
	return ccfg, nil
}

func stream(ctx context.Context, offsetSet bool) error {
	ccfg, err := streamConsumerConfig(offsetSet)
	if err != nil {
		return err
	}

	client, prov := kafkaClient()
	changelog, err := kafka.NewProducer(ctx, client, prov, topic(stations.TableTopic), codec.JSON{}, codec.JSON{})
	if err != nil {
		return err
	}
	defer changelog.Close()

	stage := stations.NewStage(stations.NewTable(changelog, logger), logger)
	consumer, err := kafka.NewConsumer(client, ccfg, stage)
	if err != nil {
		return err
	}
	defer consumer.Close()
	return consumer.Run(ctx)
}
