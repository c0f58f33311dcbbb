package netsession

import (
	"bytes"
	"maps"
	"slices"
)

// Terminator ends every frame on the wire. It cannot appear inside a
// payload and is never escaped.
const Terminator byte = 0x00

// AppendFrame appends text, the " key=value" pairs of args in key order, and
// the terminator to dst.
//
// Parameters:
//   - dst: Buffer to append to; may be nil
//   - text: The message text
//   - args: Optional key/value pairs; may be nil
//
// Returns:
//   - The extended buffer
func AppendFrame(dst []byte, text string, args map[string]string) []byte {
	dst = append(dst, text...)
	for _, k := range slices.Sorted(maps.Keys(args)) {
		dst = append(dst, ' ')
		dst = append(dst, k...)
		dst = append(dst, '=')
		dst = append(dst, args[k]...)
	}

	return append(dst, Terminator)
}

// outgoingQueue holds back-to-back frames waiting to be sent, oldest first.
type outgoingQueue struct {
	buf bytes.Buffer
}

func (q *outgoingQueue) push(text string, args map[string]string) {
	q.buf.Write(AppendFrame(nil, text, args))
}

// next returns the bytes of the frame at the front of the queue, capped at
// limit. capped is true when the frame is wider than limit. The returned
// slice is only valid until the next call to consume or push.
func (q *outgoingQueue) next(limit int) (frame []byte, capped bool) {
	pending := q.buf.Bytes()
	i := bytes.IndexByte(pending, Terminator)
	if i < 0 {
		return nil, false
	}

	if i+1 > limit {
		return pending[:limit], true
	}

	return pending[:i+1], false
}

func (q *outgoingQueue) consume(n int) {
	q.buf.Next(n)
}

func (q *outgoingQueue) len() int {
	return q.buf.Len()
}

func (q *outgoingQueue) reset() {
	q.buf.Reset()
}

// reassembler turns received bytes back into messages. Bytes after the last
// terminator stay buffered until more data arrives.
type reassembler struct {
	buf bytes.Buffer
}

// feed appends data and calls deliver once per complete message, in order.
//
// Returns:
//   - The number of messages delivered
func (r *reassembler) feed(data []byte, deliver func(string)) int {
	r.buf.Write(data)

	delivered := 0
	for {
		i := bytes.IndexByte(r.buf.Bytes(), Terminator)
		if i < 0 {
			return delivered
		}

		msg := string(r.buf.Next(i))
		r.buf.Next(1)
		delivered++
		deliver(msg)
	}
}

func (r *reassembler) len() int {
	return r.buf.Len()
}

func (r *reassembler) reset() {
	r.buf.Reset()
}
