//go:build unix

package socket

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cyberinferno/go-peerlink/hostaddr"
)

// PosixTransport implements Transport on top of BSD sockets in non-blocking
// mode. It holds no state; handles are owned by the caller.
type PosixTransport struct{}

// NewTransport returns the platform socket transport.
func NewTransport() *PosixTransport {
	return &PosixTransport{}
}

// Listen implements Transport.
func (t *PosixTransport) Listen(addr hostaddr.Address) (Handle, error) {
	fd, err := newSocket()
	if err != nil {
		return InvalidHandle, fmt.Errorf("create listen socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return InvalidHandle, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, sockaddr(addr)); err != nil {
		_ = unix.Close(fd)
		return InvalidHandle, fmt.Errorf("bind %s: %w", addr, err)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return InvalidHandle, fmt.Errorf("listen %s: %w", addr, err)
	}

	return Handle(fd), nil
}

// TryAccept implements Transport.
func (t *PosixTransport) TryAccept(listener Handle) (Handle, error) {
	if !listener.Valid() {
		return InvalidHandle, ErrInvalidHandle
	}

	nfd, _, err := unix.Accept(int(listener))
	if err != nil {
		switch classify(err) {
		case StatusWouldBlock, StatusPeerClosed:
			// Nothing pending, or the pending peer gave up before we got to it.
			return InvalidHandle, nil
		default:
			return InvalidHandle, fmt.Errorf("accept: %w", err)
		}
	}

	if err := prepare(nfd); err != nil {
		_ = unix.Close(nfd)
		return InvalidHandle, fmt.Errorf("prepare accepted socket: %w", err)
	}

	return Handle(nfd), nil
}

// TryConnect implements Transport.
func (t *PosixTransport) TryConnect(addr hostaddr.Address) (Handle, ConnectResult) {
	fd, err := newSocket()
	if err != nil {
		return InvalidHandle, ConnectResult{Status: ConnectFailed, Err: fmt.Errorf("create socket: %w", err)}
	}

	err = unix.Connect(fd, sockaddr(addr))
	switch {
	case err == nil:
		return Handle(fd), ConnectResult{Status: ConnectSucceeded}
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EALREADY), errors.Is(err, unix.EINTR):
		return Handle(fd), ConnectResult{Status: ConnectPending}
	default:
		_ = unix.Close(fd)
		return InvalidHandle, ConnectResult{Status: ConnectFailed, Err: fmt.Errorf("connect %s: %w", addr, err)}
	}
}

// PollConnect implements Transport.
func (t *PosixTransport) PollConnect(h Handle) ConnectResult {
	if !h.Valid() {
		return ConnectResult{Status: ConnectFailed, Err: ErrInvalidHandle}
	}

	fds := []unix.PollFd{{Fd: int32(h), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, 0)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return ConnectResult{Status: ConnectPending}
		}

		return ConnectResult{Status: ConnectFailed, Err: fmt.Errorf("poll: %w", err)}
	}

	revents := fds[0].Revents
	if n == 0 || revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) == 0 {
		return ConnectResult{Status: ConnectPending}
	}

	soErr, err := unix.GetsockoptInt(int(h), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return ConnectResult{Status: ConnectFailed, Err: fmt.Errorf("read SO_ERROR: %w", err)}
	}

	if soErr != 0 {
		return ConnectResult{Status: ConnectFailed, Err: unix.Errno(soErr)}
	}

	if revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return ConnectResult{Status: ConnectFailed, Err: unix.ECONNREFUSED}
	}

	if err := prepare(int(h)); err != nil {
		return ConnectResult{Status: ConnectFailed, Err: err}
	}

	return ConnectResult{Status: ConnectSucceeded}
}

// Send implements Transport.
func (t *PosixTransport) Send(h Handle, b []byte) SendResult {
	if !h.Valid() {
		return SendResult{Status: StatusFatal, Err: ErrInvalidHandle}
	}

	n, err := unix.Write(int(h), b)
	if err != nil {
		return SendResult{Status: classify(err), Err: err}
	}

	return SendResult{Status: StatusOK, N: n}
}

// Recv implements Transport.
func (t *PosixTransport) Recv(h Handle, buf []byte) RecvResult {
	if !h.Valid() {
		return RecvResult{Status: StatusFatal, Err: ErrInvalidHandle}
	}

	n, err := unix.Read(int(h), buf)
	if err != nil {
		return RecvResult{Status: classify(err), Err: err}
	}

	if n == 0 {
		return RecvResult{Status: StatusPeerClosed}
	}

	return RecvResult{Status: StatusOK, N: n}
}

// LocalAddr implements Transport.
func (t *PosixTransport) LocalAddr(h Handle) (hostaddr.Address, error) {
	if !h.Valid() {
		return hostaddr.Address{}, ErrInvalidHandle
	}

	sa, err := unix.Getsockname(int(h))
	if err != nil {
		return hostaddr.Address{}, fmt.Errorf("getsockname: %w", err)
	}

	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return hostaddr.Address{}, fmt.Errorf("unexpected socket address type %T", sa)
	}

	return hostaddr.Address{IP: in4.Addr, Port: uint16(in4.Port)}, nil
}

// Close implements Transport.
func (t *PosixTransport) Close(h Handle) {
	if !h.Valid() {
		return
	}

	_ = unix.Close(int(h))
}

func newSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// prepare puts a connected socket into the mode the session expects.
func prepare(fd int) error {
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set non-blocking: %w", err)
	}

	// Frames are small and latency matters more than packet count.
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}

	return nil
}

func sockaddr(addr hostaddr.Address) *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: int(addr.Port), Addr: addr.IP}
}

// classify maps an OS error to a Status. This is the only place raw error
// codes are inspected.
func classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return StatusWouldBlock
	case errors.Is(err, unix.ECONNRESET),
		errors.Is(err, unix.ECONNABORTED),
		errors.Is(err, unix.EPIPE),
		errors.Is(err, unix.ENOTCONN),
		errors.Is(err, unix.ETIMEDOUT),
		errors.Is(err, unix.EHOSTUNREACH),
		errors.Is(err, unix.ENETRESET):
		return StatusPeerClosed
	default:
		return StatusFatal
	}
}
