package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyberinferno/go-peerlink/logger"
	"github.com/cyberinferno/go-peerlink/netsession"
	"github.com/cyberinferno/go-peerlink/perfmonitor"
	"github.com/cyberinferno/go-peerlink/redisbridge"
)

// driver owns the session and is the only goroutine that touches it.
type driver struct {
	session  *netsession.Session
	bridge   *redisbridge.Bridge
	log      logger.Logger
	out      io.Writer
	interval time.Duration
	echo     bool
	perf     *perfmonitor.PerformanceMonitor
}

func newDriver(session *netsession.Session, bridge *redisbridge.Bridge, log logger.Logger, out io.Writer, interval time.Duration, echo bool) *driver {
	d := &driver{
		session:  session,
		bridge:   bridge,
		log:      log,
		out:      out,
		interval: interval,
		echo:     echo,
		perf:     perfmonitor.NewPerformanceMonitor(),
	}
	session.OnMessage(d.handle)

	return d
}

// run ticks the session at the configured rate until ctx is done or a tick
// fails. lines may be closed; the loop keeps running without input.
func (d *driver) run(ctx context.Context, lines <-chan string) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.step(lines); err != nil {
				return err
			}
		}
	}
}

// step queues pending input and advances the session by one tick.
func (d *driver) step(lines <-chan string) error {
	d.input(lines)
	if d.bridge != nil {
		d.bridge.Drain(d.session.Send)
	}

	d.perf.Reset()
	d.perf.Start()
	err := d.session.Tick()
	d.perf.Stop()
	if err != nil {
		return err
	}

	if d.perf.Elapsed() > d.interval {
		d.log.Warn("tick overran its budget",
			logger.Field{Key: "elapsed_ms", Value: d.perf.ElapsedMilliseconds()},
			logger.Field{Key: "budget_ms", Value: d.interval.Milliseconds()})
	}

	return nil
}

func (d *driver) input(lines <-chan string) {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}

			d.command(line)
		default:
			return
		}
	}
}

// command sends line to the peer unless it is one of the local commands.
func (d *driver) command(line string) {
	switch strings.TrimSpace(line) {
	case "/disconnect":
		d.session.Disconnect()
	case "/stats":
		s := d.session.Stats()
		fmt.Fprintf(d.out, "sent=%d received=%d bytes_sent=%d bytes_received=%d connects=%d disconnects=%d queued=%d\n",
			s.MessagesSent, s.MessagesReceived, s.BytesSent, s.BytesReceived, s.Connects, s.Disconnects, d.session.QueuedBytes())
	default:
		d.session.Send(line)
	}
}

func (d *driver) handle(text string) {
	fmt.Fprintln(d.out, text)
	if d.echo {
		d.session.Send(text)
	}

	if d.bridge != nil {
		d.bridge.Forward(text)
	}
}
