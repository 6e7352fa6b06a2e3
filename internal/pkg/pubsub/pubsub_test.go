package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/edna_go_client/internal/stream"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPublisher_NilIsNoOp(t *testing.T) {
	var p *Publisher
	err := p.Publish(context.Background(), "job1", stream.Message{Type: stream.TypeLog})
	assert.NoError(t, err)
}

func TestPubSub_RoundTrip(t *testing.T) {
	client := setupRedis(t)
	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *ProgressEvent, 1)
	go subscriber.Subscribe(ctx, func(event *ProgressEvent) {
		received <- event
	})

	// 订阅建立需要一拍
	time.Sleep(100 * time.Millisecond)

	msg := stream.Message{Type: stream.TypeProgress, Step: "read_sequences", Status: "complete"}
	require.NoError(t, publisher.Publish(ctx, "job1", msg))

	select {
	case event := <-received:
		assert.Equal(t, "job1", event.FileID)
		assert.Equal(t, stream.TypeProgress, event.Event.Type)
		assert.Equal(t, "read_sequences", event.Event.Step)
	case <-time.After(2 * time.Second):
		t.Fatal("expected relayed progress event")
	}
}

func TestSubscriber_IgnoresMalformedPayload(t *testing.T) {
	client := setupRedis(t)
	subscriber := NewSubscriber(client)
	publisher := NewPublisher(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *ProgressEvent, 1)
	go subscriber.Subscribe(ctx, func(event *ProgressEvent) {
		received <- event
	})

	time.Sleep(100 * time.Millisecond)

	// 坏 payload 被忽略，后续好消息照常送达
	require.NoError(t, client.Publish(ctx, ChannelProgress, "{not json").Err())
	require.NoError(t, publisher.Publish(ctx, "job2", stream.Message{Type: stream.TypeComplete}))

	select {
	case event := <-received:
		assert.Equal(t, "job2", event.FileID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected event after malformed payload")
	}
}
