package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-peerlink/config"
	"github.com/cyberinferno/go-peerlink/logger"
	"github.com/cyberinferno/go-peerlink/netsession"
	"github.com/cyberinferno/go-peerlink/redisbridge"
	"github.com/cyberinferno/go-peerlink/socket"
)

func runCmd(c *cli.Context) error {
	file, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	log, err := newLogger(file)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer log.Close()

	session := netsession.New(file.NetConfig(), socket.NewTransport(), log)
	if err := session.Startup(); err != nil {
		log.Error("startup failed", logger.Err(err))
		return cli.Exit(err, 1)
	}
	defer session.Shutdown()

	var bridge *redisbridge.Bridge
	if file.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     file.Redis.Address,
			Password: file.Redis.Password,
			DB:       file.Redis.DB,
		})
		defer client.Close()

		bridge = redisbridge.New(redisbridge.NewRedisBroker(client), redisbridge.Options{
			PublishChannel:   file.Redis.PublishChannel,
			SubscribeChannel: file.Redis.SubscribeChannel,
		}, log)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := newDriver(session, bridge, log, os.Stdout, file.TickInterval(), file.Loop.Echo)
	lines := readLines(os.Stdin)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.run(ctx, lines)
	})
	if bridge != nil {
		g.Go(func() error {
			return bridge.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("stopped", logger.Err(err))
		return cli.Exit(err, 1)
	}

	stats := session.Stats()
	log.Info("stopped",
		logger.Field{Key: "messages_sent", Value: stats.MessagesSent},
		logger.Field{Key: "messages_received", Value: stats.MessagesReceived})
	return nil
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(c *cli.Context) (*config.File, error) {
	file := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	if c.IsSet("mode") {
		file.Net.Mode = c.String("mode")
	}
	if c.IsSet("address") {
		file.Net.Address = c.String("address")
	}
	if c.IsSet("tick-rate") && c.Int("tick-rate") > 0 {
		file.Loop.TickRate = c.Int("tick-rate")
	}
	if c.IsSet("redis") {
		file.Redis.Address = c.String("redis")
	}
	if c.IsSet("echo") {
		file.Loop.Echo = c.Bool("echo")
	}
	if c.IsSet("log") {
		file.Log.Level = c.String("log")
	}
	if c.IsSet("log-dir") {
		file.Log.Dir = c.String("log-dir")
	}

	// A session started from the command line must have something to do.
	file.Net.RequireNetwork = true
	return file, nil
}

// newLogger logs to stderr, and to daily files as well when [log] dir is set.
func newLogger(file *config.File) (logger.Logger, error) {
	level, err := logger.ParseLevel(file.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	if file.Log.Dir == "" {
		return logger.NewConsoleLogger(os.Stderr, file.Log.Service, level), nil
	}

	return logger.NewFileLogger(os.Stderr, file.Log.Service, file.Log.Dir, level)
}

// readLines forwards lines from r until EOF. A blocked read cannot be
// cancelled, so the goroutine is not part of the errgroup.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return lines
}
