// Package config loads peerlink settings from a TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/cyberinferno/go-peerlink/netsession"
)

const (
	// DefaultTickRate is the number of ticks per second.
	DefaultTickRate = 60
	// MaxTickRate caps the tick rate so a tick interval never rounds to zero.
	MaxTickRate = 1000
	// DefaultLogLevel is the minimum level logged.
	DefaultLogLevel = "info"
	// DefaultServiceName is the "service" field on every log entry and the
	// prefix of log file names.
	DefaultServiceName = "peerlink"
)

// File is the parsed content of a peerlink TOML file.
type File struct {
	Net struct {
		Mode                      string `toml:"mode"`
		Address                   string `toml:"address"`
		SendBufferSize            int    `toml:"send-buffer-size"`
		RecvBufferSize            int    `toml:"recv-buffer-size"`
		ClearOutgoingOnDisconnect bool   `toml:"clear-outgoing-on-disconnect"`
		RequireNetwork            bool   `toml:"require-network"`
		LogThrottleSeconds        int    `toml:"log-throttle-seconds"`
	} `toml:"net"`
	Log struct {
		Level   string `toml:"level"`
		Service string `toml:"service"`
		Dir     string `toml:"dir"`
	} `toml:"log"`
	Loop struct {
		TickRate int  `toml:"tick-rate"`
		Echo     bool `toml:"echo"`
	} `toml:"loop"`
	Redis struct {
		Address          string `toml:"address"`
		Password         string `toml:"password"`
		DB               int    `toml:"db"`
		PublishChannel   string `toml:"publish-channel"`
		SubscribeChannel string `toml:"subscribe-channel"`
	} `toml:"redis"`
}

// Default returns the settings used when no file is given.
func Default() *File {
	var f File
	f.applyDefaults()
	return &f
}

// Load reads and parses the TOML file at path. Missing values fall back to
// their defaults.
//
// Parameters:
//   - path: Location of the TOML file
//
// Returns:
//   - The parsed *File
//   - An error if the file cannot be read or is not valid TOML
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML content. Missing values fall back to their defaults.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	f.applyDefaults()
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.Net.SendBufferSize <= 0 {
		f.Net.SendBufferSize = netsession.DefaultBufferSize
	}
	if f.Net.RecvBufferSize <= 0 {
		f.Net.RecvBufferSize = netsession.DefaultBufferSize
	}
	if f.Net.LogThrottleSeconds <= 0 {
		f.Net.LogThrottleSeconds = int(netsession.DefaultLogThrottleWindow / time.Second)
	}
	if f.Log.Level == "" {
		f.Log.Level = DefaultLogLevel
	}
	if f.Log.Service == "" {
		f.Log.Service = DefaultServiceName
	}
	if f.Loop.TickRate <= 0 {
		f.Loop.TickRate = DefaultTickRate
	}
	if f.Loop.TickRate > MaxTickRate {
		f.Loop.TickRate = MaxTickRate
	}
	if f.Redis.PublishChannel == "" {
		f.Redis.PublishChannel = "peerlink:received"
	}
	if f.Redis.SubscribeChannel == "" {
		f.Redis.SubscribeChannel = "peerlink:send"
	}
}

// NetConfig converts the [net] table into a session configuration.
func (f *File) NetConfig() netsession.Config {
	return netsession.Config{
		Mode:                      netsession.ParseMode(f.Net.Mode),
		Address:                   f.Net.Address,
		SendBufferSize:            f.Net.SendBufferSize,
		RecvBufferSize:            f.Net.RecvBufferSize,
		ClearOutgoingOnDisconnect: f.Net.ClearOutgoingOnDisconnect,
		RequireNetwork:            f.Net.RequireNetwork,
		LogThrottleWindow:         time.Duration(f.Net.LogThrottleSeconds) * time.Second,
	}
}

// TickInterval returns the time budget of one loop iteration. The rate is
// clamped to (0, MaxTickRate] so the interval is always positive.
func (f *File) TickInterval() time.Duration {
	rate := f.Loop.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	if rate > MaxTickRate {
		rate = MaxTickRate
	}

	return time.Second / time.Duration(rate)
}
