package peer

import (
	"errors"
	"fmt"
	"io"

	"github.com/adryzz/ip2char/codec"
	"github.com/adryzz/ip2char/internal/logf"
	"github.com/adryzz/ip2char/wire"
)

// readerState is the per-stream state machine from the design
// document §4.4: awaiting-header, awaiting-payload, or desynced. It
// lives inside exactly one reader goroutine and is never shared.
type readerState struct {
	stream   io.Reader
	logf     logf.Logf
	out      chan<- []byte
	recorder Recorder
	scratch  [wire.MaxPacketLength]byte
	headBuf  [wire.Size]byte
}

func newReaderState(stream io.Reader, out chan<- []byte, lf logf.Logf) *readerState {
	return &readerState{stream: stream, logf: lf, out: out}
}

// run drives the reader loop until a stream read error or EOF
// terminates it. Frame decode errors never terminate the loop; they
// trigger desync recovery instead, per spec.md §4.4.
func (r *readerState) run() error {
	for {
		h, err := r.readHeader()
		if err != nil {
			if !errors.Is(err, errDesync) {
				return err
			}
			h, err = r.resync(r.headBuf)
			if err != nil {
				return err
			}
		}
		if err := r.readPayload(h); err != nil {
			if !errors.Is(err, errDesync) {
				return err
			}
			// The header decoded but declared an over-MTU length; the
			// bytes we already have (r.headBuf) are the resync window's
			// starting point, exactly as if decode itself had failed.
			h, err = r.resync(r.headBuf)
			if err != nil {
				return err
			}
			if err := r.readPayload(h); err != nil {
				return err
			}
		}
	}
}

// errDesync is a sentinel used internally to move from awaiting-header
// or awaiting-payload into the desynced state without that being a
// fatal stream error.
var errDesync = errors.New("peer: desynced")

// readHeader implements the awaiting-header state: read exactly
// wire.Size bytes and attempt to decode them.
func (r *readerState) readHeader() (wire.Header, error) {
	if _, err := io.ReadFull(r.stream, r.headBuf[:]); err != nil {
		return wire.Header{}, fmt.Errorf("peer: reading header: %w", err)
	}
	h, err := wire.Decode(r.headBuf[:])
	if err != nil {
		return wire.Header{}, errDesync
	}
	return h, nil
}

// readPayload implements the awaiting-payload(h) state.
func (r *readerState) readPayload(h wire.Header) error {
	if h.PacketLength > wire.MaxPacketLength {
		return errDesync
	}
	buf := r.scratch[:h.PacketLength]
	if _, err := io.ReadFull(r.stream, buf); err != nil {
		return fmt.Errorf("peer: reading payload: %w", err)
	}
	decompressed, err := codec.Decompress(buf, h.Compression)
	if err != nil {
		return fmt.Errorf("peer: decompressing payload: %w", err)
	}
	if r.recorder != nil {
		r.recorder.FrameReceived(len(decompressed))
	}
	r.out <- decompressed
	return nil
}

// resync implements the desynced state: starting from a 16-byte
// window that just failed to produce a usable header (either Decode
// failed outright or the decoded length exceeded the MTU), slide the
// window one byte at a time until its first four bytes equal the sync
// marker and the window decodes as a header, counting skipped bytes
// along the way. It only returns on success or on a stream read
// error/EOF — decode failures during the scan are logged and the scan
// continues, per spec.md §4.4.
func (r *readerState) resync(window [wire.Size]byte) (wire.Header, error) {
	skipped := 0
	for {
		h, err := wire.Decode(window[:])
		if err == nil && h.PacketLength > wire.MaxPacketLength {
			err = fmt.Errorf("declared payload length %d exceeds %d", h.PacketLength, wire.MaxPacketLength)
		}
		if err == nil {
			if skipped > 0 {
				r.logf("resync: skipped %d bytes before recovering frame sync", skipped)
			}
			return h, nil
		}
		if !errors.Is(err, wire.ErrBadSyncMarker) {
			r.logf("resync: rejected candidate header: %v", err)
		}
		copy(window[0:wire.Size-1], window[1:wire.Size])
		if _, err := io.ReadFull(r.stream, window[wire.Size-1:]); err != nil {
			return wire.Header{}, fmt.Errorf("peer: resync read: %w", err)
		}
		skipped++
	}
}
