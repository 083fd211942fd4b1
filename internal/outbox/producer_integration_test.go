//go:build integration

package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/hatchery/internal/events"
)

func TestDispatcherPublishesToKafka(t *testing.T) {
	ctx := context.Background()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "hatchery.rewards.test"
	producer := NewKafkaProducer(brokers, 10*time.Second)
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.EnsureTopic(ctx, topic, 1))

	dispatcher := NewDispatcher(producer, topic, 8, 1, nil)
	runCtx, cancel := context.WithCancel(ctx)
	go dispatcher.Start(runCtx)
	require.NoError(t, dispatcher.Publish(ctx, acquiredEvent("c-1")))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)
	require.Equal(t, "c-1", string(msg.Key))
	require.Equal(t, events.TypeCreatureAcquired, eventType(msg))

	cancel()
	dispatcher.Wait()
}
