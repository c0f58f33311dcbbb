// Package socket is a thin, non-blocking wrapper over the listen, accept,
// connect, send and receive primitives of a TCP stack. Every operation
// returns immediately; outcomes that would have required waiting are
// reported as a distinct status instead of stalling the caller.
package socket

import (
	"errors"

	"github.com/cyberinferno/go-peerlink/hostaddr"
)

// ErrInvalidHandle is reported when an operation is attempted on
// InvalidHandle.
var ErrInvalidHandle = errors.New("invalid socket handle")

// Handle identifies an OS socket owned by the caller.
type Handle int

// InvalidHandle marks the absence of a socket.
const InvalidHandle Handle = -1

// Valid reports whether h refers to an open socket.
func (h Handle) Valid() bool {
	return h >= 0
}

// Status classifies the outcome of a send or receive.
type Status int

const (
	StatusOK         Status = iota // Bytes were transferred
	StatusWouldBlock               // No progress possible right now
	StatusPeerClosed               // The peer closed, reset or aborted the connection
	StatusFatal                    // Any other error
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWouldBlock:
		return "WouldBlock"
	case StatusPeerClosed:
		return "PeerClosed"
	case StatusFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// ConnectStatus classifies the progress of a non-blocking connect.
type ConnectStatus int

const (
	ConnectPending   ConnectStatus = iota // Connect issued, outcome not known yet
	ConnectSucceeded                      // Connection established
	ConnectFailed                         // Connection could not be established
)

// String returns a human-readable name for the connect status.
func (s ConnectStatus) String() string {
	switch s {
	case ConnectPending:
		return "Pending"
	case ConnectSucceeded:
		return "Succeeded"
	case ConnectFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SendResult is the outcome of Transport.Send.
type SendResult struct {
	Status Status // Outcome class
	N      int    // Bytes accepted by the OS; only meaningful with StatusOK
	Err    error  // Underlying error, nil with StatusOK
}

// RecvResult is the outcome of Transport.Recv.
type RecvResult struct {
	Status Status // Outcome class
	N      int    // Bytes written into the caller's buffer; only meaningful with StatusOK
	Err    error  // Underlying error, nil with StatusOK and for an orderly close
}

// ConnectResult is the outcome of Transport.TryConnect and Transport.PollConnect.
type ConnectResult struct {
	Status ConnectStatus // Connect progress
	Err    error         // Cause of ConnectFailed
}

// Transport is the contract the session state machine drives. All methods
// must return without blocking.
type Transport interface {
	// Listen creates a non-blocking socket bound to addr and puts it into the
	// listening state with the system default backlog.
	//
	// Parameters:
	//   - addr: The address to bind; a wildcard address binds all interfaces
	//
	// Returns:
	//   - The listening socket handle
	//   - An error if the socket could not be created, bound or put into listening state
	Listen(addr hostaddr.Address) (Handle, error)

	// TryAccept accepts at most one pending connection. Additional pending
	// connections stay queued by the OS.
	//
	// Parameters:
	//   - listener: A handle returned by Listen
	//
	// Returns:
	//   - The accepted peer handle, or InvalidHandle when nothing is pending
	//   - An error for failures other than "nothing pending"
	TryAccept(listener Handle) (Handle, error)

	// TryConnect creates a non-blocking socket and initiates a connect to addr.
	// On ConnectFailed the socket has already been released.
	//
	// Parameters:
	//   - addr: The address to connect to
	//
	// Returns:
	//   - The socket handle, or InvalidHandle on failure
	//   - The connect progress
	TryConnect(addr hostaddr.Address) (Handle, ConnectResult)

	// PollConnect runs a zero-timeout readiness check on a socket returned by
	// TryConnect. The socket is not closed on failure; the caller owns it.
	//
	// Parameters:
	//   - h: The connecting socket
	//
	// Returns:
	//   - ConnectSucceeded once writable, ConnectFailed once errored, ConnectPending otherwise
	PollConnect(h Handle) ConnectResult

	// Send writes as much of b as the socket accepts right now.
	//
	// Parameters:
	//   - h: A connected socket
	//   - b: The bytes to send
	//
	// Returns:
	//   - The send outcome; N may be less than len(b)
	Send(h Handle, b []byte) SendResult

	// Recv reads up to len(buf) bytes into buf.
	//
	// Parameters:
	//   - h: A connected socket
	//   - buf: Destination buffer; its length caps the read
	//
	// Returns:
	//   - The receive outcome; a zero-length read is reported as StatusPeerClosed
	Recv(h Handle, buf []byte) RecvResult

	// LocalAddr returns the address a socket is bound to.
	LocalAddr(h Handle) (hostaddr.Address, error)

	// Close releases the socket. It is safe to call with InvalidHandle.
	Close(h Handle)
}
