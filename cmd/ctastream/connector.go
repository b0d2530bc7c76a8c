package ctastream

import (
	"context"
	"time"

	"github.com/edgeflare/ctastream/pkg/connect"
	"github.com/spf13/cobra"
)

const connectorTimeout = 2 * time.Minute

var connectorCmd = &cobra.Command{
	Use:   "connector",
	Short: "Create the JDBC stations source connector",
	Long: `Creates the Kafka Connect JDBC source that copies the stations table into the
stations topic. Nothing is done if the connector already exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), connectorTimeout)
		defer cancel()
		connect.NewClient(cfg.Connect.URL, nil, logger).Configure(ctx, cfg.Connect.Connector.Connector())
		return nil
	},
}
