package netsession

import (
	"strings"
	"time"
)

// Mode selects which side of the connection a session plays.
type Mode int

const (
	ModeDisabled Mode = iota // No networking; every tick is a no-op
	ModeClient               // Connect out to a server
	ModeServer               // Listen for a single peer
)

// String returns the lower-case configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string to a Mode. Matching is
// case-insensitive; anything other than "client" or "server" is
// ModeDisabled.
func ParseMode(s string) Mode {
	switch {
	case strings.EqualFold(strings.TrimSpace(s), "client"):
		return ModeClient
	case strings.EqualFold(strings.TrimSpace(s), "server"):
		return ModeServer
	default:
		return ModeDisabled
	}
}

const (
	// DefaultBufferSize is the default cap, in bytes, on a single send or
	// receive.
	DefaultBufferSize = 2048

	// DefaultLogThrottleWindow is how long a repeating per-tick warning is
	// suppressed after it was logged.
	DefaultLogThrottleWindow = 5 * time.Second
)

// Config holds the settings of a session. It is fixed for the lifetime of
// the session.
type Config struct {
	// Mode selects client, server or disabled operation.
	Mode Mode
	// Address is "host:port". Server mode accepts "*" or an empty host to
	// bind all interfaces.
	Address string
	// SendBufferSize caps the bytes handed to a single send. Frames wider
	// than this go out as several capped chunks.
	SendBufferSize int
	// RecvBufferSize caps the bytes read by the single receive of a tick.
	RecvBufferSize int
	// ClearOutgoingOnDisconnect drops queued but unsent bytes when the peer
	// is lost. When false they are kept and sent to the next peer.
	ClearOutgoingOnDisconnect bool
	// RequireNetwork makes Startup fail when Mode is ModeDisabled.
	RequireNetwork bool
	// LogThrottleWindow suppresses repeats of per-tick warnings such as a
	// refused connect. Zero selects DefaultLogThrottleWindow.
	LogThrottleWindow time.Duration
}

// DefaultConfig returns a Config with default buffer sizes for the given mode
// and address. Override fields as needed before passing it to New.
//
// Parameters:
//   - mode: Client, server or disabled
//   - address: The "host:port" to connect to or listen on
//
// Returns:
//   - A Config with 2048-byte send and receive caps, outgoing bytes kept
//     across disconnects and a 5s log throttle window
func DefaultConfig(mode Mode, address string) Config {
	return Config{
		Mode:              mode,
		Address:           address,
		SendBufferSize:    DefaultBufferSize,
		RecvBufferSize:    DefaultBufferSize,
		LogThrottleWindow: DefaultLogThrottleWindow,
	}
}

func (c Config) withDefaults() Config {
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultBufferSize
	}

	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = DefaultBufferSize
	}

	if c.LogThrottleWindow <= 0 {
		c.LogThrottleWindow = DefaultLogThrottleWindow
	}

	return c
}
