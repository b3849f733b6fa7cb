// Package transport constructs the connected byte-streams that peer
// handlers drive: a serial device, an outbound socket, or a listening
// socket that accepts exactly one connection. Each constructor
// produces a capability, not a peer — package peer is polymorphic
// over any Stream, per the design document's "dynamic dispatch over
// transports" note.
package transport

import "io"

// Stream is the capability a peer handler needs: a full-duplex,
// closeable byte connection. Any of net.Conn, a serial port, or either
// end of net.Pipe satisfies it, which is what lets package peer stay
// agnostic to which transport variant it was handed.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}
