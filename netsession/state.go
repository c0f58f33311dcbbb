package netsession

// ServerState is the connection state of a server-mode session.
type ServerState int

const (
	NotListening  ServerState = iota // Not started, or shut down
	Listening                        // Bound and waiting for a peer
	PeerConnected                    // A peer was accepted
)

// String returns a human-readable name for the server state.
func (s ServerState) String() string {
	switch s {
	case NotListening:
		return "NotListening"
	case Listening:
		return "Listening"
	case PeerConnected:
		return "PeerConnected"
	default:
		return "Unknown"
	}
}

// ClientState is the connection state of a client-mode session.
type ClientState int

const (
	Disconnected ClientState = iota // No socket, or the last attempt failed
	Connecting                      // Connect issued, waiting for readiness
	Connected                       // Connection established
)

// String returns a human-readable name for the client state.
func (s ClientState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}
