package peer

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"

	"github.com/adryzz/ip2char/bus"
	"github.com/adryzz/ip2char/codec"
	"github.com/adryzz/ip2char/filter"
	"github.com/adryzz/ip2char/internal/logf"
	"github.com/adryzz/ip2char/wire"
)

// writerState is the per-stream egress half from the design document
// §4.5: pull packets off a bus subscription, drop anything outside
// this peer's allowed-ips, compress, frame, and write. wmu is held
// across the header+payload pair so concurrent writePacket calls on
// the same writerState can never interleave their writes, mirroring
// the teacher derp client's wmu sync.Mutex around bw in
// derp/derp_client.go.
type writerState struct {
	stream      io.Writer
	logf        logf.Logf
	sub         *bus.Subscription
	allowed     filter.List
	compression byte
	level       codec.Level
	recorder    Recorder

	wmu     sync.Mutex
	headBuf [wire.Size]byte
	scratch [wire.MaxPacketLength]byte
}

func newWriterState(stream io.Writer, sub *bus.Subscription, allowed filter.List, compression byte, level codec.Level, lf logf.Logf) *writerState {
	return &writerState{
		stream:      stream,
		logf:        lf,
		sub:         sub,
		allowed:     allowed,
		compression: compression,
		level:       level,
	}
}

// run drives the writer loop until the subscription closes or a
// stream write fails. A *bus.Lagged receive is logged and the loop
// continues, per spec.md §4.5 — lag is this peer's problem alone, not
// a fatal condition for the process.
func (w *writerState) run() error {
	for {
		pkt, err := w.sub.Recv()
		if err != nil {
			var lagged *bus.Lagged
			if errors.As(err, &lagged) {
				w.logf("writer: lagged, dropped %d packets", lagged.N)
				if w.recorder != nil {
					w.recorder.Lagged(lagged.N)
				}
				continue
			}
			return fmt.Errorf("peer: subscription closed: %w", err)
		}
		if err := w.writePacket(pkt); err != nil {
			return err
		}
	}
}

// writePacket filters, compresses, frames, and writes a single
// packet. It returns nil (not an error) when the packet's destination
// is outside w.allowed — that is a routine drop, not a fault.
func (w *writerState) writePacket(pkt []byte) error {
	dst, ok := destination(pkt)
	if !ok || !filter.Allowed(dst, w.allowed) {
		if ok && w.recorder != nil {
			w.recorder.PacketFiltered()
		}
		return nil
	}

	w.wmu.Lock()
	defer w.wmu.Unlock()

	n, err := codec.Compress(pkt, w.scratch[:], w.compression, w.level)
	if err != nil {
		return fmt.Errorf("peer: compressing payload: %w", err)
	}
	if n > wire.MaxPacketLength {
		return fmt.Errorf("peer: compressed payload %d exceeds MTU %d", n, wire.MaxPacketLength)
	}

	h := wire.Header{
		Version:      wire.Version,
		PacketLength: uint16(n),
		Compression:  w.compression,
		Encryption:   wire.EncryptionNone,
	}
	if err := wire.Encode(h, w.headBuf[:]); err != nil {
		return fmt.Errorf("peer: encoding header: %w", err)
	}
	if _, err := w.stream.Write(w.headBuf[:]); err != nil {
		return fmt.Errorf("peer: writing header: %w", err)
	}
	if _, err := w.stream.Write(w.scratch[:n]); err != nil {
		return fmt.Errorf("peer: writing payload: %w", err)
	}
	if w.recorder != nil {
		w.recorder.FrameSent(n)
	}
	return nil
}

// destination extracts the IPv4 destination address from an IP
// packet. It reports ok=false for anything too short to be a valid
// IPv4 header or whose version nibble is not 4, so non-IPv4 traffic is
// dropped the same way the ingress loop drops it on read.
func destination(pkt []byte) (netip.Addr, bool) {
	if len(pkt) < 20 || pkt[0]>>4 != 4 {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte{pkt[16], pkt[17], pkt[18], pkt[19]}), true
}
