//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"shiptrack/internal/platform/config"
	"shiptrack/internal/platform/kafka"
	"shiptrack/pkg/testutil/containers"
)

func TestKafkaPublisherRoundTrip(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "tracking.status_changed.test"
	client, err := kafka.NewClient(config.KafkaConfig{Brokers: rp.Brokers, StatusTopic: topic, ClientID: "shiptrack-test"})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, client, topic, 1, 1), "second call must tolerate an existing topic")

	ev := sampleEvent()
	require.NoError(t, NewKafkaPublisher(client, topic).PublishStatusChanged(ctx, ev))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var got StatusChanged
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, ev.EventID, got.EventID)
	require.Equal(t, "ORD001", string(records[0].Key))
}
