package transport

import (
	"context"
	"fmt"
	"net"
)

// NewOutboundSocket dials addr ("host:port"), matching
// original_source/src/transport/sock.rs's
// tokio::net::TcpStream::connect(&peer.path) call.
func NewOutboundSocket(ctx context.Context, addr string) (Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", addr, err)
	}
	return conn, nil
}

// NewListenSocket binds addr, accepts exactly one connection, and
// closes the listener, matching original_source/src/transport/sock.rs's
// connect_sock_listen: there is no peer-pooling, one configured
// listener equals one connection. Whether that is intentional or a
// limitation is an open question left unresolved by the design
// document; this adapter implements it as specified, not "fixed."
func NewListenSocket(ctx context.Context, addr string) (Stream, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", addr, err)
	}
	defer ln.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-accepted:
		if r.err != nil {
			return nil, fmt.Errorf("transport: accepting on %s: %w", addr, r.err)
		}
		return r.conn, nil
	}
}
