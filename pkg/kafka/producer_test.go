package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/edgeflare/ctastream/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func expectRecord(key, value string) mocks.MessageChecker {
	return func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "org.chicago.cta.weather.v1" {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		if got := encoded(msg.Key); got != key {
			return fmt.Errorf("key: want %q, got %q", key, got)
		}
		if got := encoded(msg.Value); got != value {
			return fmt.Errorf("value: want %q, got %q", value, got)
		}
		return nil
	}
}

func encoded(e sarama.Encoder) string {
	if e == nil {
		return "<nil>"
	}
	b, _ := e.Encode()
	return string(b)
}

func newTestProducer(t *testing.T) (*mocks.AsyncProducer, *Producer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	mp := mocks.NewAsyncProducer(t, nil)
	p := newProducer("org.chicago.cta.weather.v1", mp, codec.Raw{}, codec.JSON{}, 0, zap.New(core))
	return mp, p, logs
}

func TestProducerPublish(t *testing.T) {
	mp, p, _ := newTestProducer(t)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(expectRecord("1700000000", `{"status":"sunny","temperature":72.5}`))
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(expectRecord("<nil>", `{"status":"windy"}`))

	ctx := context.Background()
	require.NoError(t, p.Publish(ctx, "1700000000", map[string]any{"temperature": 72.5, "status": "sunny"}))
	require.NoError(t, p.Publish(ctx, nil, map[string]string{"status": "windy"}))
	require.NoError(t, p.Close())
	assert.Equal(t, "org.chicago.cta.weather.v1", p.Topic())
}

func TestProducerEncodeFailure(t *testing.T) {
	_, p, _ := newTestProducer(t)

	err := p.Publish(context.Background(), 42, nil)
	require.ErrorContains(t, err, "encode key")
	require.NoError(t, p.Close())
}

func TestProducerLogsDeliveryFailures(t *testing.T) {
	mp, p, logs := newTestProducer(t)
	mp.ExpectInputAndFail(errors.New("leader not available"))

	require.NoError(t, p.Publish(context.Background(), "k", "v"), "delivery failures are not returned to the caller")
	require.NoError(t, p.Close())

	failed := logs.FilterMessage("failed to deliver message").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "org.chicago.cta.weather.v1", failed[0].ContextMap()["topic"])
}

func TestProducerClosed(t *testing.T) {
	_, p, _ := newTestProducer(t)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish(context.Background(), "k", "v"), ErrProducerClosed)
	assert.NoError(t, p.Close())
}

func TestNewProducerRejectsInvalidTopic(t *testing.T) {
	c := NewClient(&Config{}, nil)
	admin := newFakeAdmin()
	prov := NewProvisionerWithAdmin(func() (TopicAdmin, error) { return admin, nil }, nil)

	_, err := NewProducer(context.Background(), c, prov, Topic{}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidTopic)
	assert.Zero(t, admin.lists)
}
