package relay

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/adryzz/ip2char/bus"
	"github.com/adryzz/ip2char/config"
	"github.com/adryzz/ip2char/internal/logf"
	"github.com/adryzz/ip2char/metrics"
	"github.com/adryzz/ip2char/peer"
	"github.com/adryzz/ip2char/transport"
)

// RunPeers connects and runs every configured peer concurrently, one
// goroutine each, until ctx is canceled. A single peer's connection
// failure or mid-stream error is logged and that goroutine exits; it
// is never propagated to the other peers or treated as fatal to the
// process, per spec.md §4.8 and the design document's decision not to
// attempt reconnection. Peer goroutines are spawned with
// errgroup.Group.Go but never return a non-nil error from it — each
// one recovers its own failure into a log line — so g.Wait() never
// cancels a sibling peer's context the way it would for a group that
// actually propagated errors. RunPeers returns once every peer
// goroutine has exited. reg may be nil, meaning metrics-addr was
// unset and no counters are recorded.
func RunPeers(ctx context.Context, peers []config.Peer, b *bus.Bus, aggregation chan<- []byte, reg *metrics.Registry, lf logf.Logf) {
	var g errgroup.Group
	for i, p := range peers {
		p := p
		label := peerLabel(i, p)
		g.Go(func() error {
			runPeer(ctx, label, p, b, aggregation, reg, logf.WithPrefix(lf, label+": "))
			return nil
		})
	}
	g.Wait()
}

func runPeer(ctx context.Context, label string, p config.Peer, b *bus.Bus, aggregation chan<- []byte, reg *metrics.Registry, lf logf.Logf) {
	stream, err := dial(ctx, p)
	if err != nil {
		lf("connect failed: %v", err)
		return
	}

	sub := b.Subscribe()
	h := peer.NewHandler(p, stream, aggregation, sub, lf)
	if reg != nil {
		h.Recorder = metricsRecorder{reg: reg, label: label}
	}
	if err := h.Run(ctx); err != nil {
		lf("exited: %v", err)
	}
}

func dial(ctx context.Context, p config.Peer) (io.ReadWriteCloser, error) {
	switch p.Kind {
	case config.KindChar:
		return transport.NewSerial(p.Path, int(p.Speed))
	case config.KindSock:
		return transport.NewOutboundSocket(ctx, p.Path)
	case config.KindSockListen:
		return transport.NewListenSocket(ctx, p.Path)
	default:
		return nil, fmt.Errorf("relay: unknown peer kind %v", p.Kind)
	}
}

func peerLabel(i int, p config.Peer) string {
	return fmt.Sprintf("peer[%d %s %s]", i, p.Kind, p.Path)
}

// metricsRecorder adapts metrics.Registry to peer.Recorder, fixing
// the "peer" label to this one handler's label.
type metricsRecorder struct {
	reg   *metrics.Registry
	label string
}

func (m metricsRecorder) FrameReceived(n int) { m.reg.FrameReceived(m.label, n) }
func (m metricsRecorder) FrameSent(n int)     { m.reg.FrameSent(m.label, n) }
func (m metricsRecorder) PacketFiltered()     { m.reg.PacketFiltered(m.label) }
func (m metricsRecorder) Lagged(n int)        { m.reg.Lagged(m.label, n) }
