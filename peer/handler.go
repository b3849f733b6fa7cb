// Package peer drives one connected transport.Stream: a reader
// goroutine that decodes frames off the stream onto the aggregation
// queue, and a writer that drains a bus subscription onto the stream.
// The two halves are deliberately not coupled into a single select
// loop — original_source keeps read and write as independent tokio
// tasks per peer (see streams.rs), and spec.md §4.6 calls for the same
// independence so a stalled writer can never hold up this peer's
// reader or vice versa.
package peer

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/adryzz/ip2char/bus"
	"github.com/adryzz/ip2char/codec"
	"github.com/adryzz/ip2char/config"
	"github.com/adryzz/ip2char/filter"
	"github.com/adryzz/ip2char/internal/logf"
)

// Handler runs the read and write halves of a single configured peer
// connected over stream, until either half fails or ctx is canceled.
type Handler struct {
	Stream      io.ReadWriteCloser
	Out         chan<- []byte
	Sub         *bus.Subscription
	AllowedIPs  filter.List
	Compression byte
	Level       codec.Level
	Logf        logf.Logf
	Recorder    Recorder
}

// NewHandler builds a Handler from a parsed peer configuration, the
// already-connected stream, the aggregation queue it feeds, and a
// fresh bus subscription for its writer half.
func NewHandler(p config.Peer, stream io.ReadWriteCloser, out chan<- []byte, sub *bus.Subscription, lf logf.Logf) *Handler {
	return &Handler{
		Stream:      stream,
		Out:         out,
		Sub:         sub,
		AllowedIPs:  p.AllowedIPs,
		Compression: p.Compression,
		Level:       p.Level,
		Logf:        lf,
	}
}

// Run blocks until the reader or writer half returns, then closes the
// stream and subscription and returns whichever error occurred first.
// Per spec.md §4.6, a peer failure is isolated here: callers (the
// supervisor) log it and move on rather than propagating it further.
func (h *Handler) Run(ctx context.Context) error {
	defer h.Stream.Close()
	defer h.Sub.Close()

	g, ctx := errgroup.WithContext(ctx)
	r := newReaderState(h.Stream, h.Out, h.Logf)
	r.recorder = h.Recorder
	w := newWriterState(h.Stream, h.Sub, h.AllowedIPs, h.Compression, h.Level, h.Logf)
	w.recorder = h.Recorder

	g.Go(func() error {
		return r.run()
	})
	g.Go(func() error {
		return w.run()
	})
	g.Go(func() error {
		// Unblock the writer's sub.Recv() (and, transitively, the
		// reader's blocking stream I/O via Close) as soon as either
		// half fails or the caller cancels, so the errgroup actually
		// converges instead of waiting on whichever half is idle.
		<-ctx.Done()
		h.Stream.Close()
		h.Sub.Close()
		return nil
	})
	return g.Wait()
}
