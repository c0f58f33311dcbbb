// Package netsession implements a single-peer TCP session that runs inside
// a fixed-rate polling loop. A session is either a client or a server; each
// call to Tick advances its connection state machine by one step, drains
// queued outgoing messages and reassembles incoming ones from the byte
// stream. Tick never blocks.
//
// A Session is not safe for concurrent use. All calls must come from the
// goroutine that drives Tick.
package netsession

import (
	"errors"
	"fmt"

	"github.com/cyberinferno/go-peerlink/hostaddr"
	"github.com/cyberinferno/go-peerlink/logger"
	"github.com/cyberinferno/go-peerlink/socket"
	"github.com/cyberinferno/go-peerlink/throttle"
)

var (
	// ErrUnsupportedMode is returned by Startup when RequireNetwork is set
	// but the configured mode is neither client nor server.
	ErrUnsupportedMode = errors.New("unsupported network mode")

	// ErrReentrantTick is returned when Tick is called from inside a Tick,
	// typically from a message handler.
	ErrReentrantTick = errors.New("tick already in progress")
)

// MessageHandler receives each reassembled message, in arrival order,
// synchronously from within Tick.
type MessageHandler func(text string)

// Stats are running counters for a session. They survive reconnects and
// restarts.
type Stats struct {
	MessagesSent     uint64 // Frames fully handed to the OS
	MessagesReceived uint64 // Messages delivered to the handler
	BytesSent        uint64
	BytesReceived    uint64
	Connects         uint64 // Peers accepted or connected
	Disconnects      uint64 // Peers lost
}

// Session is a single-peer TCP session driven by Tick.
type Session struct {
	config    Config
	transport socket.Transport
	log       logger.Logger
	throttle  *throttle.Throttle
	onMessage MessageHandler

	mode        Mode
	started     bool
	addr        hostaddr.Address
	listener    socket.Handle
	peer        socket.Handle
	serverState ServerState
	clientState ClientState

	outgoing outgoingQueue
	incoming reassembler
	recvBuf  []byte

	ticking         bool
	resetPending    bool
	shutdownPending bool

	peerID uint32
	stats  Stats
}

// New creates a session. Nothing touches the network until Startup.
//
// Parameters:
//   - config: Session settings; zero buffer sizes fall back to defaults
//   - transport: The socket transport, e.g. socket.NewTransport()
//   - log: Logger for state changes and I/O failures; nil discards
//
// Returns:
//   - A new *Session in the disabled, disconnected state
func New(config Config, transport socket.Transport, log logger.Logger) *Session {
	if log == nil {
		log = logger.NewNopLogger()
	}

	config = config.withDefaults()
	return &Session{
		config:    config,
		transport: transport,
		log:       log.With(logger.String("component", "netsession"), logger.String("mode", config.Mode.String())),
		throttle:  throttle.New(config.LogThrottleWindow),
		mode:      config.Mode,
		listener:  socket.InvalidHandle,
		peer:      socket.InvalidHandle,
	}
}

// OnMessage registers the handler for reassembled messages. Only one handler
// is active; repeated calls replace the previous one. Pass nil to clear it.
//
// Parameters:
//   - handler: Called once per complete message from within Tick
func (s *Session) OnMessage(handler MessageHandler) {
	s.onMessage = handler
}

// Startup resolves the configured address and, in server mode, binds and
// starts listening. Client sockets are created lazily by Tick. Calling
// Startup on a started session does nothing. A Shutdown still pending from
// the current Tick is applied first, so Shutdown followed by Startup inside
// a message handler restarts the session.
//
// Returns:
//   - An error if the address is malformed, the server cannot bind or
//     listen, or RequireNetwork is set without a network mode. Callers
//     should treat it as fatal.
func (s *Session) Startup() error {
	if s.shutdownPending {
		s.shutdownPending = false
		s.shutdown()
	}

	if s.started {
		return nil
	}

	s.mode = s.config.Mode
	s.serverState = NotListening
	s.clientState = Disconnected

	switch s.mode {
	case ModeServer:
		addr, err := hostaddr.Parse(s.config.Address, true)
		if err != nil {
			s.mode = ModeDisabled
			return fmt.Errorf("server address: %w", err)
		}

		ln, err := s.transport.Listen(addr)
		if err != nil {
			s.mode = ModeDisabled
			return fmt.Errorf("start server on %s: %w", addr, err)
		}

		s.addr = addr
		s.listener = ln
		if bound, err := s.transport.LocalAddr(ln); err == nil {
			s.addr = bound
		}

		s.setServerState(Listening)
		s.log.Info("server listening", logger.String("addr", s.addr.String()))
	case ModeClient:
		addr, err := hostaddr.Parse(s.config.Address, false)
		if err != nil {
			s.mode = ModeDisabled
			return fmt.Errorf("client address: %w", err)
		}

		s.addr = addr
		s.log.Info("client ready", logger.String("addr", addr.String()))
	default:
		if s.config.RequireNetwork {
			return fmt.Errorf("%w: %s", ErrUnsupportedMode, s.mode)
		}

		s.log.Info("network disabled")
	}

	s.recvBuf = make([]byte, s.config.RecvBufferSize)
	s.started = true
	return nil
}

// Tick advances the session by exactly one step: a pending reset is applied
// first, then the server accepts or processes its peer, or the client
// connects, polls its pending connect, or processes its peer. Messages that
// complete during the step are handed to the registered handler before Tick
// returns.
//
// Returns:
//   - ErrReentrantTick if called from within Tick
//   - An error if restarting after Disconnect failed; callers should treat it as fatal
//   - nil otherwise; peer loss and would-block conditions never surface here
func (s *Session) Tick() error {
	if s.ticking {
		return ErrReentrantTick
	}

	s.ticking = true
	defer s.endTick()

	if s.resetPending {
		s.resetPending = false
		s.log.Info("restarting session")
		s.shutdown()
		if err := s.Startup(); err != nil {
			return fmt.Errorf("restart after disconnect: %w", err)
		}
	}

	if !s.started {
		return nil
	}

	switch s.mode {
	case ModeServer:
		s.stepServer()
	case ModeClient:
		s.stepClient()
	}

	return nil
}

func (s *Session) endTick() {
	s.ticking = false
	if s.shutdownPending {
		s.shutdownPending = false
		s.shutdown()
	}
}

// Shutdown closes all sockets and returns the session to the disabled,
// disconnected state. Queued outgoing messages are kept unless
// ClearOutgoingOnDisconnect is set. It is idempotent and safe on a session
// that was never started. Called from within Tick, it takes effect when
// that Tick returns.
func (s *Session) Shutdown() {
	if s.ticking {
		s.shutdownPending = true
		return
	}

	s.shutdown()
}

func (s *Session) shutdown() {
	wasStarted := s.started

	s.closePeer()
	if s.listener.Valid() {
		s.transport.Close(s.listener)
		s.listener = socket.InvalidHandle
	}

	s.incoming.reset()
	if s.config.ClearOutgoingOnDisconnect {
		s.outgoing.reset()
	}

	s.recvBuf = nil
	s.serverState = NotListening
	s.clientState = Disconnected
	s.mode = ModeDisabled
	s.started = false
	s.resetPending = false

	if wasStarted {
		s.log.Info("session shut down")
	}
}

// Disconnect requests a full restart. At the start of the next Tick the
// session shuts down, closing every socket, and starts up again with its
// configured mode. It does nothing on a session that is not started.
func (s *Session) Disconnect() {
	if !s.started {
		return
	}

	s.resetPending = true
}

// Send queues text as one message. It never blocks and never fails; the
// message goes out during a later Tick once a peer is connected. text must
// not contain the terminator byte.
//
// Parameters:
//   - text: The message to send
func (s *Session) Send(text string) {
	s.outgoing.push(text, nil)
}

// SendArgs queues text followed by " key=value" for every entry of args, in
// key order, as one message.
//
// Parameters:
//   - text: The message text, typically a command name
//   - args: Key/value pairs appended to the text
func (s *Session) SendArgs(text string, args map[string]string) {
	s.outgoing.push(text, args)
}

// IsEnabled reports whether the session runs in client or server mode.
func (s *Session) IsEnabled() bool {
	return s.mode != ModeDisabled
}

// IsServer reports whether the session runs in server mode.
func (s *Session) IsServer() bool {
	return s.mode == ModeServer
}

// IsClient reports whether the session runs in client mode.
func (s *Session) IsClient() bool {
	return s.mode == ModeClient
}

// IsConnected reports whether a peer is currently connected.
func (s *Session) IsConnected() bool {
	switch s.mode {
	case ModeServer:
		return s.serverState == PeerConnected
	case ModeClient:
		return s.clientState == Connected
	default:
		return false
	}
}

// ServerState returns the current server state. It is NotListening outside
// server mode.
func (s *Session) ServerState() ServerState {
	return s.serverState
}

// ClientState returns the current client state. It is Disconnected outside
// client mode.
func (s *Session) ClientState() ClientState {
	return s.clientState
}

// Addr returns the resolved address; in server mode, the bound address.
func (s *Session) Addr() hostaddr.Address {
	return s.addr
}

// Config returns the session configuration with defaults applied.
func (s *Session) Config() Config {
	return s.config
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// QueuedBytes returns the number of outgoing bytes not yet handed to the OS.
func (s *Session) QueuedBytes() int {
	return s.outgoing.len()
}

func (s *Session) stepServer() {
	switch s.serverState {
	case Listening:
		peer, err := s.transport.TryAccept(s.listener)
		if err != nil {
			if s.throttle.Allow("accept") {
				s.log.Error("accept failed", logger.Err(err))
			}

			return
		}

		if !peer.Valid() {
			return
		}

		s.peer = peer
		s.peerConnected()
		s.setServerState(PeerConnected)
	case PeerConnected:
		s.process()
	}
}

func (s *Session) stepClient() {
	switch s.clientState {
	case Disconnected:
		peer, res := s.transport.TryConnect(s.addr)
		if res.Status == socket.ConnectFailed {
			s.connectFailed(res.Err)
			return
		}

		s.peer = peer
		s.setClientState(Connecting)
	case Connecting:
		res := s.transport.PollConnect(s.peer)
		switch res.Status {
		case socket.ConnectSucceeded:
			s.throttle.Forget("connect")
			s.peerConnected()
			s.setClientState(Connected)
		case socket.ConnectFailed:
			s.closePeer()
			s.connectFailed(res.Err)
			s.setClientState(Disconnected)
		}
	case Connected:
		s.process()
	}
}

func (s *Session) connectFailed(err error) {
	if s.throttle.Allow("connect") {
		s.log.Warn("connect failed", logger.String("addr", s.addr.String()), logger.Err(err))
	}
}

// process drains the outgoing queue, then performs the single receive of
// the tick unless the peer was lost while sending.
func (s *Session) process() {
	if !s.drain() {
		return
	}

	s.receive()
}

// drain sends queued frames until the queue is empty or the socket stops
// taking bytes. It returns false if the peer was lost.
func (s *Session) drain() bool {
	for {
		frame, capped := s.outgoing.next(s.config.SendBufferSize)
		if frame == nil {
			return true
		}

		if capped && s.throttle.Allow("oversize") {
			s.log.Warn("frame exceeds send buffer, sending in chunks",
				logger.Int("send_buffer_size", s.config.SendBufferSize))
		}

		res := s.transport.Send(s.peer, frame)
		switch res.Status {
		case socket.StatusOK:
			full := res.N == len(frame)
			s.outgoing.consume(res.N)
			s.stats.BytesSent += uint64(res.N)
			if !full {
				// The socket buffer is full; the rest goes out next tick.
				return true
			}

			if !capped {
				s.stats.MessagesSent++
			}
		case socket.StatusWouldBlock:
			return true
		case socket.StatusPeerClosed:
			s.peerLost("send", res.Err)
			return false
		default:
			if s.throttle.Allow("send") {
				s.log.Error("send failed", logger.Err(res.Err))
			}

			return true
		}
	}
}

func (s *Session) receive() {
	res := s.transport.Recv(s.peer, s.recvBuf)
	switch res.Status {
	case socket.StatusOK:
		s.stats.BytesReceived += uint64(res.N)
		s.incoming.feed(s.recvBuf[:res.N], s.deliver)
	case socket.StatusWouldBlock:
	case socket.StatusPeerClosed:
		s.peerLost("recv", res.Err)
	default:
		if s.throttle.Allow("recv") {
			s.log.Error("receive failed", logger.Err(res.Err))
		}
	}
}

func (s *Session) deliver(msg string) {
	s.stats.MessagesReceived++
	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

func (s *Session) peerConnected() {
	s.peerID++
	s.stats.Connects++
	s.log.Info("peer connected", logger.Field{Key: "peer_id", Value: s.peerID})
}

// peerLost closes the peer socket and falls back to listening or
// disconnected. Any unterminated incoming bytes are discarded.
func (s *Session) peerLost(op string, err error) {
	fields := []logger.Field{{Key: "peer_id", Value: s.peerID}, logger.String("op", op)}
	if err != nil {
		fields = append(fields, logger.Err(err))
	}

	s.log.Info("peer disconnected", fields...)

	s.closePeer()
	s.incoming.reset()
	if s.config.ClearOutgoingOnDisconnect {
		s.outgoing.reset()
	}

	s.stats.Disconnects++
	switch s.mode {
	case ModeServer:
		s.setServerState(Listening)
	case ModeClient:
		s.setClientState(Disconnected)
	}
}

func (s *Session) closePeer() {
	if s.peer.Valid() {
		s.transport.Close(s.peer)
		s.peer = socket.InvalidHandle
	}
}

func (s *Session) setServerState(state ServerState) {
	if s.serverState == state {
		return
	}

	s.log.Debug("server state changed",
		logger.String("from", s.serverState.String()), logger.String("to", state.String()))
	s.serverState = state
}

func (s *Session) setClientState(state ClientState) {
	if s.clientState == state {
		return
	}

	s.log.Debug("client state changed",
		logger.String("from", s.clientState.String()), logger.String("to", state.String()))
	s.clientState = state
}
