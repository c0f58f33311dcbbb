package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const BuildVersion = "v0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "peerlink"
	app.Usage = "Exchange 0x00-terminated text messages with a single TCP peer."
	app.Version = BuildVersion
	app.EnableBashCompletion = true
	app.Commands = []*cli.Command{
		{
			Name:    "run",
			Aliases: []string{"r"},
			Usage:   "Run a client or server session, sending stdin lines and printing received messages",
			Action:  runCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "the TOML configuration file",
				},
				&cli.StringFlag{
					Name:    "mode",
					Aliases: []string{"m"},
					Usage:   "client or server, overrides [net] mode",
				},
				&cli.StringFlag{
					Name:    "address",
					Aliases: []string{"a"},
					Usage:   "the `HOST:PORT` to connect to or listen on, overrides [net] address",
				},
				&cli.IntFlag{
					Name:  "tick-rate",
					Usage: "ticks per second, overrides [loop] tick-rate",
				},
				&cli.StringFlag{
					Name:  "redis",
					Usage: "the Redis `HOST:PORT` to bridge messages through, overrides [redis] address",
				},
				&cli.BoolFlag{
					Name:  "echo",
					Usage: "send every received message back to the peer",
				},
				&cli.StringFlag{
					Name:    "log",
					Aliases: []string{"l"},
					Usage:   "the log level, overrides [log] level",
				},
				&cli.StringFlag{
					Name:  "log-dir",
					Usage: "also write daily-rotated log files to `DIR`, overrides [log] dir",
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
