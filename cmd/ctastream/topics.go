package ctastream

import (
	"fmt"

	"github.com/edgeflare/ctastream/pkg/stations"
	"github.com/edgeflare/ctastream/pkg/weather"
	"github.com/spf13/cobra"
)

var topicsCmd = &cobra.Command{
	Use:   "topics [name...]",
	Short: "Create the CTA topics if they do not exist",
	Long: `Creates the weather, stations and station table topics, or the named topics,
with the configured partitions, replicas and retention. Existing topics are left alone.`,
	RunE: runTopics,
}

func runTopics(cmd *cobra.Command, args []string) error {
	names := args
	if len(names) == 0 {
		names = []string{weather.Topic, stations.Topic, stations.TableTopic}
	}
	_, prov := kafkaClient()

	var failed int
	for _, name := range names {
		if err := prov.EnsureTopic(cmd.Context(), topic(name)); err != nil {
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, prov.State(name))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d topics could not be provisioned", failed, len(names))
	}
	return nil
}
