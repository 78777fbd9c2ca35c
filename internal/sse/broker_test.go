package sse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis never delivers messages, so only local fan-out is exercised.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Skip("Redis not available for testing")
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Redis not available for testing")
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(EventAlertRaised, map[string]string{"id": "alert-1"})
	require.NoError(t, err)

	assert.Equal(t, EventAlertRaised, event.Type)
	assert.JSONEq(t, `{"id":"alert-1"}`, string(event.Data))
}

func TestBroker_LocalFanout(t *testing.T) {
	broker := NewBroker(unreachableRedis(t))
	defer broker.Close()

	first := broker.Subscribe("child-1")
	second := broker.Subscribe("child-1")
	other := broker.Subscribe("child-2")
	assert.Equal(t, 2, broker.ClientCount("child-1"))
	assert.Equal(t, 1, broker.ClientCount("child-2"))

	event, err := NewEvent(EventAlertResolved, map[string]string{"id": "alert-1"})
	require.NoError(t, err)
	broker.broadcast("child-1", event)

	assert.Equal(t, event, <-first.Events)
	assert.Equal(t, event, <-second.Events)
	assert.Empty(t, other.Events)

	broker.Unsubscribe(first)
	_, open := <-first.Done
	assert.False(t, open)
	assert.Equal(t, 1, broker.ClientCount("child-1"))

	broker.Unsubscribe(first)
	assert.Equal(t, 1, broker.ClientCount("child-1"))

	broker.Close()
	_, open = <-second.Done
	assert.False(t, open)
	_, open = <-other.Done
	assert.False(t, open)
	assert.Equal(t, 0, broker.ClientCount("child-2"))
}

func TestBroker_DropsWhenClientBufferFull(t *testing.T) {
	broker := NewBroker(unreachableRedis(t))
	defer broker.Close()

	client := broker.Subscribe("child-1")
	event, err := NewEvent(EventAlertRaised, map[string]string{"id": "alert-1"})
	require.NoError(t, err)

	for i := 0; i < clientBufferSize+5; i++ {
		broker.broadcast("child-1", event)
	}
	assert.Len(t, client.Events, clientBufferSize)
}

func TestBroker_RedisRoundTrip(t *testing.T) {
	broker := NewBroker(testRedis(t))
	defer broker.Close()

	client := broker.Subscribe("child-roundtrip")
	defer broker.Unsubscribe(client)

	event, err := NewEvent(EventAlertRaised, map[string]string{"id": "alert-9"})
	require.NoError(t, err)

	// The redis subscription is established asynchronously.
	var received Event
	assert.Eventually(t, func() bool {
		_ = broker.Publish(context.Background(), "child-roundtrip", event)
		select {
		case received = <-client.Events:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, event.Type, received.Type)
	assert.JSONEq(t, string(event.Data), string(received.Data))
}
