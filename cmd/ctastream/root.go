package ctastream

import (
	"fmt"
	"os"

	"github.com/edgeflare/ctastream/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string
var logLevel string
var cfg *config.Config
var logger = zap.NewNop()

// flagKeys maps flag names to the config keys they override. A flag is only
// bound when the running command has it.
var flagKeys = map[string]string{
	"metrics":      "metrics.enabled",
	"metrics-addr": "metrics.addr",
	"offset":       "consumer.offsetPolicy",
	"idle-sleep":   "consumer.idleSleep",
	"transport":    "weather.transport",
	"interval":     "weather.interval",
	"table":        "bridge.table",
}

var rootCmd = &cobra.Command{
	Use:   "ctastream",
	Short: "ctastream streams Chicago transit data through Kafka",
	Long: `ctastream provisions the CTA topics, simulates weather, bridges the stations
table into Kafka, transforms stations into a line table and consumes the results`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
			return
		}

		// If no subcommand is provided, print help
		cmd.Help()
	},
}

func Main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ctastream.yaml)")
	f.StringVarP(&logLevel, "log-level", "L", "info", "log at this level (debug, info, warn, error, fatal, none)")
	f.BoolP("version", "v", false, "Print the version number")
	f.Bool("metrics", false, "Enable Prometheus metrics server")
	f.String("metrics-addr", ":9100", "Prometheus metrics server address")

	rootCmd.AddCommand(topicsCmd, produceCmd, consumeCmd, streamCmd, connectorCmd, bridgeCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetBool("version"); v {
		return nil
	}

	var err error
	logger, err = newLogger(logLevel)
	if err != nil {
		return err
	}

	var opts []config.Option
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			opts = append(opts, config.BindFlag(key, f))
		}
	}
	cfg, err = config.Load(cfgFile, opts...)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.File != "" {
		logger.Info("using config file", zap.String("file", cfg.File))
	}
	return nil
}

// newLogger builds a production logger at level. "debug" switches to the
// development encoder and "none" discards everything.
func newLogger(level string) (*zap.Logger, error) {
	if level == "none" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
