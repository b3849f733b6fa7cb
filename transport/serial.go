package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// NewSerial opens the character device at path, matching
// original_source/src/transport/char.rs's
// tokio_serial::new(&peer.path, speed).open_native_async() call. baud
// defaults to config.DefaultBaud when 0.
//
// Serial devices have no connection boundary; the frame resync
// mechanism in package peer is the only synchronization primitive
// available once bytes start flowing. To avoid mistaking pre-startup
// line noise for a desync, the port's input and output buffers are
// cleared before the peer handler starts reading, per the design
// document's note on serial framing.
func NewSerial(path string, baud int) (Stream, error) {
	if baud <= 0 {
		baud = 115200
	}
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: opening serial port %s: %w", path, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: clearing input buffer on %s: %w", path, err)
	}
	if err := port.ResetOutputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: clearing output buffer on %s: %w", path, err)
	}
	return port, nil
}
