package events

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishFansOut(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.PublishJSON("log.completed", map[string]string{"log_id": "l1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, "log.completed", event.Type)
			var data map[string]string
			require.NoError(t, json.Unmarshal(event.Data, &data))
			assert.Equal(t, "l1", data["log_id"])
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	defer b.Close()

	slow, cancelSlow := b.Subscribe()
	defer cancelSlow()
	fast, cancelFast := b.Subscribe()
	defer cancelFast()

	// Overflow the slow subscriber's buffer without draining it.
	for i := 0; i < subscriberBuffer+1; i++ {
		b.Publish(Event{Type: "tick", Data: json.RawMessage(`{}`)})
	}

	assert.Equal(t, 1, b.SubscriberCount(), "the slow subscriber must be dropped")

	// The drop closes the channel after the buffered events.
	drained := 0
	for range slow {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)

	// The fast subscriber stays live even though it buffered everything.
	select {
	case _, ok := <-fast:
		assert.True(t, ok)
	default:
		t.Fatal("fast subscriber should have buffered events")
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, b.SubscriberCount())
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	ch, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Subscribing after close yields a closed channel.
	late, _ := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroadcaster(zap.NewNop())
	defer b.Close()

	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the handler to register its subscription before publishing.
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)
	b.PublishJSON("log.completed", map[string]string{"log_id": "l9"})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	assert.Equal(t, "event: log.completed", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "data: "))
	assert.Contains(t, lines[1], `"log_id":"l9"`)
}
