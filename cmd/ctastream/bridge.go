package ctastream

import (
	"context"

	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/edgeflare/ctastream/pkg/pgx"
	"github.com/edgeflare/ctastream/pkg/stations"
	"github.com/spf13/cobra"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Copy the stations table into Kafka without Kafka Connect",
	Long: `Polls the Postgres stations table in stop_id order and publishes every new row to
the stations topic as schemaless JSON, the way the JDBC source connector does.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), bridge)
	},
}

func init() {
	bridgeCmd.Flags().String("table", "stations", "Table to read, optionally schema qualified")
}

func bridge(ctx context.Context) error {
	pool, err := pgx.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, prov := kafkaClient()
	producer, err := kafka.NewProducer(ctx, client, prov, topic(stations.Topic), codec.JSON{}, codec.JSON{})
	if err != nil {
		return err
	}
	defer producer.Close()

	return stations.NewSource(pool, producer, cfg.Bridge, logger).Run(ctx)
}
