// Package redisbridge connects a session to a pub/sub broker. Messages
// received from the peer are published to one channel; messages published
// to another channel are queued for sending to the peer.
//
// The tick loop only touches the bridge through Forward and Drain, neither
// of which blocks. Broker I/O happens in Run on its own goroutines.
package redisbridge

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-peerlink/logger"
	"github.com/cyberinferno/go-peerlink/throttle"
)

const (
	// DefaultBufferSize is the number of messages buffered in each direction.
	DefaultBufferSize = 256

	// DefaultLogThrottleWindow is how long a dropped-message warning is
	// suppressed after it was logged.
	DefaultLogThrottleWindow = 5 * time.Second
)

// Options configures a Bridge.
type Options struct {
	// PublishChannel receives every message forwarded from the peer.
	PublishChannel string
	// SubscribeChannel supplies messages to send to the peer.
	SubscribeChannel string
	// BufferSize bounds each direction; zero selects DefaultBufferSize.
	BufferSize int
	// LogThrottleWindow suppresses repeated dropped-message warnings per
	// direction; zero selects DefaultLogThrottleWindow.
	LogThrottleWindow time.Duration
}

// Bridge moves messages between a session and a Broker.
type Bridge struct {
	broker   Broker
	opts     Options
	log      logger.Logger
	throttle *throttle.Throttle
	outbound chan string
	inbound  chan string
	dropped  atomic.Uint64
}

// New creates a bridge. Nothing is published or subscribed until Run.
//
// Parameters:
//   - broker: The pub/sub backend, e.g. NewRedisBroker(client)
//   - opts: Channel names and buffer size
//   - log: Logger for broker failures; nil discards
//
// Returns:
//   - A new *Bridge
func New(broker Broker, opts Options, log logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	if opts.LogThrottleWindow <= 0 {
		opts.LogThrottleWindow = DefaultLogThrottleWindow
	}

	return &Bridge{
		broker:   broker,
		opts:     opts,
		log:      log.With(logger.String("component", "redisbridge")),
		throttle: throttle.New(opts.LogThrottleWindow),
		outbound: make(chan string, opts.BufferSize),
		inbound:  make(chan string, opts.BufferSize),
	}
}

// Forward queues a message received from the peer for publishing. It never
// blocks; when the buffer is full the message is dropped and counted.
func (b *Bridge) Forward(text string) {
	select {
	case b.outbound <- text:
	default:
		b.drop("outbound")
	}
}

// Drain hands every message currently waiting to be sent to the peer to
// send, in arrival order, and returns how many there were. It never blocks.
func (b *Bridge) Drain(send func(text string)) int {
	n := 0
	for {
		select {
		case text := <-b.inbound:
			send(text)
			n++
		default:
			return n
		}
	}
}

// Dropped returns the number of messages lost to full buffers.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Run publishes forwarded messages and subscribes for messages to send
// until ctx is done or the broker fails.
//
// Returns:
//   - nil when ctx is cancelled
//   - The first broker error otherwise
func (b *Bridge) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.publishLoop(ctx)
	})

	g.Go(func() error {
		b.log.Info("subscribing", logger.String("channel", b.opts.SubscribeChannel))
		return b.broker.Subscribe(ctx, b.opts.SubscribeChannel, b.receive)
	})

	return g.Wait()
}

func (b *Bridge) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case text := <-b.outbound:
			if err := b.broker.Publish(ctx, b.opts.PublishChannel, text); err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return err
			}
		}
	}
}

func (b *Bridge) receive(payload string) {
	select {
	case b.inbound <- payload:
	default:
		b.drop("inbound")
	}
}

// drop counts a lost message and warns at most once per window and direction.
func (b *Bridge) drop(direction string) {
	total := b.dropped.Add(1)
	if b.throttle.Allow(direction) {
		b.log.Warn("buffer full, dropping messages",
			logger.String("direction", direction),
			logger.Int("buffer_size", b.opts.BufferSize),
			logger.Field{Key: "dropped_total", Value: total})
	}
}
