package peer

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/adryzz/ip2char/bus"
	"github.com/adryzz/ip2char/codec"
	"github.com/adryzz/ip2char/filter"
	"github.com/adryzz/ip2char/internal/logf"
	"github.com/adryzz/ip2char/wire"
)

var discardLogf = logf.Discard

// ipv4Packet builds a minimal well-formed IPv4 packet carrying
// payload, with the given destination address, for tests that only
// care about the destination-extraction and filtering logic.
func ipv4Packet(dst netip.Addr, payload []byte) []byte {
	pkt := make([]byte, 20+len(payload))
	pkt[0] = 0x45 // version 4, IHL 5
	pkt[9] = 17   // protocol: UDP, arbitrary
	d := dst.As4()
	copy(pkt[16:20], d[:])
	copy(pkt[20:], payload)
	return pkt
}

func encodeFrame(t *testing.T, h wire.Header, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, wire.Size+len(payload))
	if err := wire.Encode(h, buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	copy(buf[wire.Size:], payload)
	return buf
}

// TestReadPayloadOverMTUDesyncsWithoutConsuming is invariant 3: a
// header declaring a length beyond the MTU moves straight to
// desynced without consuming any of the bytes that would have been
// the payload.
func TestReadPayloadOverMTUDesyncsWithoutConsuming(t *testing.T) {
	trailing := []byte("these bytes must remain unread")
	stream := bytes.NewReader(trailing)

	r := newReaderState(stream, make(chan []byte, 1), discardLogf)
	h := wire.Header{Version: wire.Version, PacketLength: 2000, Compression: wire.CompressionNone}

	err := r.readPayload(h)
	if !errors.Is(err, errDesync) {
		t.Fatalf("readPayload() error = %v, want errDesync", err)
	}

	remaining, err := io.ReadAll(stream)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(remaining, trailing) {
		t.Errorf("readPayload consumed bytes it should not have: remaining = %q, want %q", remaining, trailing)
	}
}

// TestResyncRecoversAfterJunkBytes is scenario S4: 7 junk bytes
// precede a well-formed frame; the reader must skip exactly past them
// and deliver the frame's payload, never terminating on the garbage.
func TestResyncRecoversAfterJunkBytes(t *testing.T) {
	junk := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	payload := []byte("hello through the noise")
	frame := encodeFrame(t, wire.Header{Version: wire.Version, PacketLength: uint16(len(payload)), Compression: wire.CompressionNone}, payload)

	stream := io.MultiReader(bytes.NewReader(junk), bytes.NewReader(frame))
	out := make(chan []byte, 1)
	r := newReaderState(stream, out, discardLogf)

	errCh := make(chan error, 1)
	go func() { errCh <- r.run() }()

	select {
	case got := <-out:
		if !bytes.Equal(got, payload) {
			t.Errorf("recovered payload = %q, want %q", got, payload)
		}
	case err := <-errCh:
		t.Fatalf("run() returned before delivering a packet: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recovered frame")
	}
}

// TestResyncTerminatesOnEOF is invariant 5's other half: if no valid
// frame ever appears, resync gives up only when the stream itself
// ends, not after some fixed number of attempts.
func TestResyncTerminatesOnEOF(t *testing.T) {
	stream := bytes.NewReader(bytes.Repeat([]byte{0xFF}, 64))
	r := newReaderState(stream, make(chan []byte, 1), discardLogf)

	errCh := make(chan error, 1)
	go func() { errCh <- r.run() }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("run() returned nil error on a stream of pure garbage")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run() did not terminate on EOF")
	}
}

// TestWriterDropsPacketOutsideAllowedIPs is scenario S2 / invariant 6:
// a packet whose destination is not in this peer's allowed-ips is
// silently dropped — nothing is written to the stream, and no other
// peer's traffic leaks through one that doesn't list it.
func TestWriterDropsPacketOutsideAllowedIPs(t *testing.T) {
	var stream bytes.Buffer
	b := bus.New(4)
	sub := b.Subscribe()
	defer sub.Close()

	allowed := filter.List{netip.MustParsePrefix("10.0.0.0/24")}
	w := newWriterState(&stream, sub, allowed, wire.CompressionNone, codec.LevelDefault, discardLogf)

	pkt := ipv4Packet(netip.MustParseAddr("192.168.1.1"), []byte("not for you"))
	if err := w.writePacket(pkt); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	if stream.Len() != 0 {
		t.Errorf("stream.Len() = %d, want 0 (packet should have been dropped)", stream.Len())
	}
}

// TestWriterReaderRoundTripZstd is scenario S5: a packet within the
// allowed prefix, compressed with zstd on the way out, must come back
// byte-for-byte through a reader on the other end.
func TestWriterReaderRoundTripZstd(t *testing.T) {
	var stream bytes.Buffer
	b := bus.New(4)
	sub := b.Subscribe()
	defer sub.Close()

	allowed := filter.List{netip.MustParsePrefix("10.0.0.0/24")}
	w := newWriterState(&stream, sub, allowed, wire.CompressionZstd, codec.LevelDefault, discardLogf)

	payload := bytes.Repeat([]byte("repetitive payload bytes compress well "), 20)
	pkt := ipv4Packet(netip.MustParseAddr("10.0.0.5"), payload)
	if err := w.writePacket(pkt); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	if stream.Len() == 0 {
		t.Fatal("writePacket produced no output for an allowed destination")
	}

	out := make(chan []byte, 1)
	r := newReaderState(&stream, out, discardLogf)
	h, err := r.readHeader()
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	if h.Compression != wire.CompressionZstd {
		t.Fatalf("header compression = %d, want CompressionZstd", h.Compression)
	}
	if err := r.readPayload(h); err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	got := <-out
	if !bytes.Equal(got, pkt) {
		t.Errorf("round trip mismatch: got %d bytes, want %d bytes matching original", len(got), len(pkt))
	}
}

// TestWriterPassesThroughUncompressed is scenario S1: plain
// pass-through with CompressionNone, no filtering surprises for an
// address that is allowed.
func TestWriterPassesThroughUncompressed(t *testing.T) {
	var stream bytes.Buffer
	b := bus.New(4)
	sub := b.Subscribe()
	defer sub.Close()

	allowed := filter.List{netip.MustParsePrefix("10.0.0.0/24")}
	w := newWriterState(&stream, sub, allowed, wire.CompressionNone, codec.LevelDefault, discardLogf)

	pkt := ipv4Packet(netip.MustParseAddr("10.0.0.9"), []byte("plain payload"))
	if err := w.writePacket(pkt); err != nil {
		t.Fatalf("writePacket: %v", err)
	}

	out := make(chan []byte, 1)
	r := newReaderState(&stream, out, discardLogf)
	h, err := r.readHeader()
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}
	if err := r.readPayload(h); err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	got := <-out
	if !bytes.Equal(got, pkt) {
		t.Errorf("pass-through mismatch: got %q, want %q", got, pkt)
	}
}
