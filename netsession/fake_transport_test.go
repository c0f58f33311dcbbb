package netsession

import (
	"bytes"

	"github.com/cyberinferno/go-peerlink/hostaddr"
	"github.com/cyberinferno/go-peerlink/socket"
)

// recvStep is one scripted outcome of fakeTransport.Recv.
type recvStep struct {
	data   []byte
	status socket.Status
	err    error
}

// fakeTransport is a scripted socket.Transport. Unscripted calls behave like
// an idle healthy socket: nothing to accept, connects stay pending, sends are
// accepted in full and receives would block.
type fakeTransport struct {
	listenErr error
	listens   []hostaddr.Address

	accepts   []socket.Handle
	acceptErr error

	connects []socket.ConnectResult
	polls    []socket.ConnectResult

	sends     []socket.SendResult
	sendLimit int
	sendCalls [][]byte
	sent      bytes.Buffer

	recvs     []recvStep
	recvCalls int

	closed     []socket.Handle
	nextHandle socket.Handle
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextHandle: 10}
}

func (f *fakeTransport) handle() socket.Handle {
	f.nextHandle++
	return f.nextHandle
}

func (f *fakeTransport) Listen(addr hostaddr.Address) (socket.Handle, error) {
	f.listens = append(f.listens, addr)
	if f.listenErr != nil {
		return socket.InvalidHandle, f.listenErr
	}

	return f.handle(), nil
}

func (f *fakeTransport) TryAccept(socket.Handle) (socket.Handle, error) {
	if f.acceptErr != nil {
		return socket.InvalidHandle, f.acceptErr
	}

	if len(f.accepts) == 0 {
		return socket.InvalidHandle, nil
	}

	h := f.accepts[0]
	f.accepts = f.accepts[1:]
	return h, nil
}

// queuePeer makes the next TryAccept return a fresh handle.
func (f *fakeTransport) queuePeer() socket.Handle {
	h := f.handle()
	f.accepts = append(f.accepts, h)
	return h
}

func (f *fakeTransport) TryConnect(hostaddr.Address) (socket.Handle, socket.ConnectResult) {
	res := socket.ConnectResult{Status: socket.ConnectPending}
	if len(f.connects) > 0 {
		res = f.connects[0]
		f.connects = f.connects[1:]
	}

	if res.Status == socket.ConnectFailed {
		return socket.InvalidHandle, res
	}

	return f.handle(), res
}

func (f *fakeTransport) PollConnect(socket.Handle) socket.ConnectResult {
	if len(f.polls) == 0 {
		return socket.ConnectResult{Status: socket.ConnectPending}
	}

	res := f.polls[0]
	f.polls = f.polls[1:]
	return res
}

func (f *fakeTransport) Send(_ socket.Handle, b []byte) socket.SendResult {
	f.sendCalls = append(f.sendCalls, append([]byte(nil), b...))

	res := socket.SendResult{Status: socket.StatusOK, N: len(b)}
	if f.sendLimit > 0 && res.N > f.sendLimit {
		res.N = f.sendLimit
	}

	if len(f.sends) > 0 {
		res = f.sends[0]
		f.sends = f.sends[1:]
	}

	if res.Status == socket.StatusOK {
		f.sent.Write(b[:res.N])
	}

	return res
}

func (f *fakeTransport) Recv(_ socket.Handle, buf []byte) socket.RecvResult {
	f.recvCalls++
	if len(f.recvs) == 0 {
		return socket.RecvResult{Status: socket.StatusWouldBlock}
	}

	step := f.recvs[0]
	f.recvs = f.recvs[1:]
	if step.status != socket.StatusOK {
		return socket.RecvResult{Status: step.status, Err: step.err}
	}

	n := copy(buf, step.data)
	return socket.RecvResult{Status: socket.StatusOK, N: n}
}

// queueRecv scripts receives that deliver each chunk in turn.
func (f *fakeTransport) queueRecv(chunks ...string) {
	for _, c := range chunks {
		f.recvs = append(f.recvs, recvStep{data: []byte(c), status: socket.StatusOK})
	}
}

func (f *fakeTransport) queueRecvStatus(status socket.Status, err error) {
	f.recvs = append(f.recvs, recvStep{status: status, err: err})
}

func (f *fakeTransport) LocalAddr(socket.Handle) (hostaddr.Address, error) {
	if len(f.listens) == 0 {
		return hostaddr.Address{}, socket.ErrInvalidHandle
	}

	return f.listens[len(f.listens)-1], nil
}

func (f *fakeTransport) Close(h socket.Handle) {
	if h.Valid() {
		f.closed = append(f.closed, h)
	}
}

func (f *fakeTransport) wasClosed(h socket.Handle) bool {
	for _, c := range f.closed {
		if c == h {
			return true
		}
	}

	return false
}
