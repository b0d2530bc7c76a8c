package ctastream

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/edgeflare/ctastream/pkg/config"
	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/edgeflare/ctastream/pkg/stations"
	"github.com/edgeflare/ctastream/pkg/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = newLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = newLogger("none")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.FatalLevel))

	_, err = newLogger("loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestExactTopic(t *testing.T) {
	re := regexp.MustCompile(exactTopic(weather.Topic))
	assert.True(t, re.MatchString("org.chicago.cta.weather.v1"))
	assert.False(t, re.MatchString("org.chicago.cta.weather.v10"))
	assert.False(t, re.MatchString("orgXchicago.cta.weather.v1"))

	assert.False(t, regexp.MustCompile(exactTopic(stations.Topic)).MatchString(stations.TableTopic))
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	assert.Nil(t, cfg, "config is not loaded for --version")
	assert.Equal(t, config.Version+"\n", out.String())
}

func TestStreamConsumerConfig(t *testing.T) {
	def := config.Default()
	prev := cfg
	cfg = &def
	t.Cleanup(func() { cfg = prev })

	ccfg, err := streamConsumerConfig(false)
	require.NoError(t, err)
	assert.Equal(t, kafka.OffsetEarliest, ccfg.OffsetPolicy, "the table is rebuilt from the start by default")
	assert.Equal(t, streamGroup, ccfg.GroupID)
	assert.Equal(t, exactTopic(stations.Topic), ccfg.TopicPattern)
	assert.Equal(t, codec.JSON{}, ccfg.ValueDecoder)

	ccfg, err = streamConsumerConfig(true)
	require.NoError(t, err)
	assert.Equal(t, kafka.OffsetLatest, ccfg.OffsetPolicy, "an explicit --offset uses the configured policy")

	def.Consumer.OffsetPolicy = "sideways"
	_, err = streamConsumerConfig(true)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = c.RunE != nil
	}
	for _, want := range []string{"topics", "produce", "consume", "stream", "connector", "bridge"} {
		assert.True(t, names[want], "%s is registered with a RunE", want)
	}
	assert.NotNil(t, streamCmd.Flags().Lookup("offset"))
}
