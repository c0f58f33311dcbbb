package redisbridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-peerlink/logger"
)

type publishedMessage struct {
	channel string
	payload string
}

// fakeBroker records publishes and delivers whatever is pushed to feed.
type fakeBroker struct {
	mu         sync.Mutex
	published  []publishedMessage
	publishErr error
	subscribed chan string
	feed       chan string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		subscribed: make(chan string, 1),
		feed:       make(chan string),
	}
}

func (f *fakeBroker) Publish(_ context.Context, channel, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}

	f.published = append(f.published, publishedMessage{channel: channel, payload: payload})
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string, deliver func(string)) error {
	f.subscribed <- channel
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-f.feed:
			deliver(payload)
		}
	}
}

func (f *fakeBroker) publishedPayloads() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]publishedMessage(nil), f.published...)
}

func runBridge(t *testing.T, b *Bridge) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(cancel)

	return cancel, done
}

func TestBridge_Forward(t *testing.T) {
	broker := newFakeBroker()
	b := New(broker, Options{PublishChannel: "out", SubscribeChannel: "in"}, nil)
	cancel, done := runBridge(t, b)

	b.Forward("hello")
	b.Forward("world")

	assert.Eventually(t, func() bool {
		return len(broker.publishedPayloads()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []publishedMessage{{"out", "hello"}, {"out", "world"}}, broker.publishedPayloads())

	cancel()
	assert.NoError(t, <-done)
}

func TestBridge_Drain(t *testing.T) {
	broker := newFakeBroker()
	b := New(broker, Options{PublishChannel: "out", SubscribeChannel: "in"}, nil)
	runBridge(t, b)

	assert.Equal(t, "in", <-broker.subscribed)
	broker.feed <- "first"
	broker.feed <- "second"

	var got []string
	assert.Eventually(t, func() bool {
		b.Drain(func(text string) { got = append(got, text) })
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, got)

	assert.Zero(t, b.Drain(func(string) { t.Fatal("nothing should be pending") }))
}

func TestBridge_Buffers(t *testing.T) {
	t.Run("forward drops when full", func(t *testing.T) {
		b := New(newFakeBroker(), Options{BufferSize: 2}, nil)

		b.Forward("a")
		b.Forward("b")
		b.Forward("c")
		assert.Equal(t, uint64(1), b.Dropped())
	})

	t.Run("receive drops when full", func(t *testing.T) {
		b := New(newFakeBroker(), Options{BufferSize: 1}, nil)

		b.receive("a")
		b.receive("b")
		assert.Equal(t, uint64(1), b.Dropped())

		var got []string
		assert.Equal(t, 1, b.Drain(func(text string) { got = append(got, text) }))
		assert.Equal(t, []string{"a"}, got)
	})

	t.Run("drops are logged once per window and direction", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewZerologLogger(zerolog.New(&buf), "peerlink", zerolog.InfoLevel)
		b := New(newFakeBroker(), Options{BufferSize: 1, LogThrottleWindow: 30 * time.Millisecond}, log)

		b.Forward("a")
		b.Forward("b")
		b.Forward("c")
		b.receive("a")
		b.receive("b")
		b.receive("c")
		assert.Equal(t, uint64(4), b.Dropped())
		assert.Equal(t, 1, strings.Count(buf.String(), `"direction":"outbound"`))
		assert.Equal(t, 1, strings.Count(buf.String(), `"direction":"inbound"`))

		assert.Eventually(t, func() bool {
			b.Forward("d")
			return strings.Count(buf.String(), `"direction":"outbound"`) == 2
		}, time.Second, 10*time.Millisecond, "a later overflow is logged again")
	})

	t.Run("default buffer size", func(t *testing.T) {
		b := New(newFakeBroker(), Options{}, nil)
		assert.Equal(t, DefaultBufferSize, cap(b.inbound))
		assert.Equal(t, DefaultBufferSize, cap(b.outbound))
	})
}

func TestBridge_PublishError(t *testing.T) {
	broker := newFakeBroker()
	broker.publishErr = errors.New("connection refused")
	b := New(broker, Options{PublishChannel: "out"}, nil)
	_, done := runBridge(t, b)

	b.Forward("lost")

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "connection refused")
	case <-time.After(time.Second):
		t.Fatal("Run did not return after a publish error")
	}
}

func TestRedisBroker_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	broker := NewRedisBroker(client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := broker.Publish(ctx, "out", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish to out")

	err = broker.Subscribe(ctx, "in", func(string) {})
	assert.ErrorContains(t, err, "redis subscribe to in")
}

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })
	broker := NewRedisBroker(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- broker.Subscribe(ctx, "peerlink:send", func(payload string) { received <- payload })
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("peerlink:send")["peerlink:send"] == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, broker.Publish(ctx, "peerlink:send", "hello"))
	select {
	case payload := <-received:
		assert.Equal(t, "hello", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribed payload not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestBridge_OverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })

	b := New(NewRedisBroker(client), Options{PublishChannel: "out", SubscribeChannel: "in"}, nil)
	runBridge(t, b)

	watcher := client.Subscribe(context.Background(), "out")
	t.Cleanup(func() { _ = watcher.Close() })
	_, err := watcher.Receive(context.Background())
	require.NoError(t, err)

	b.Forward("from peer")
	msg, err := watcher.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from peer", msg.Payload)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("in")["in"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	mr.Publish("in", "to peer")

	var got []string
	assert.Eventually(t, func() bool {
		b.Drain(func(text string) { got = append(got, text) })
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"to peer"}, got)
}
