// Package tunio is the narrow seam between the kernel's virtual
// network interface and the relay's ingress/egress loop. Per the
// design document, TUN device creation and MTU selection are external
// collaborators — this package exposes only the Device capability the
// rest of the program needs and a thin constructor over
// wireguard-go's tun.Device, the same library the teacher's
// net/tstun package wraps (see wrap.go's tdev tun.Device field).
//
// Unlike tstun.Wrapper, this package does not do packet filtering,
// TAP/ethernet framing, or disco-key bookkeeping: ip2char is strictly
// L3, single-interface, and has no peer-to-peer mesh to filter
// against (see Non-goals in the design document).
package tunio

import (
	"fmt"

	"golang.zx2c4.com/wireguard/tun"
)

// MTU is fixed for the lifetime of the process, per the design
// document's virtual-interface contract.
const MTU = 1500

// Device is the capability the ingress/egress loop needs from a TUN
// interface: read one packet, write one packet, and eventually close.
// It deliberately mirrors only the subset of wireguard-go's tun.Device
// that a single-threaded L3 relay uses.
type Device interface {
	// ReadPacket reads at most one IPv4/IPv6 packet into buf and
	// returns its length; a length of 0 means no packet was read.
	ReadPacket(buf []byte) (int, error)
	// WritePacket writes one already-framed IP packet to the kernel.
	WritePacket(buf []byte) error
	Close() error
}

// wgDevice adapts wireguard-go's batched tun.Device to the
// single-packet Device capability this package exposes. ip2char only
// ever has one packet in flight per direction, so it always asks for
// a batch of one.
type wgDevice struct {
	dev   tun.Device
	sizes []int
}

// New opens (or creates) the named layer-3 TUN interface with the
// fixed MTU. It does not assign [interface].address to the device:
// no address is passed to the driver, and this constructor does not
// run ip(8)/netsh/ifconfig.
func New(name string) (Device, error) {
	dev, err := tun.CreateTUN(name, MTU)
	if err != nil {
		return nil, fmt.Errorf("tunio: create %q: %w", name, err)
	}
	return &wgDevice{dev: dev, sizes: make([]int, 1)}, nil
}

func (w *wgDevice) ReadPacket(buf []byte) (int, error) {
	bufs := [][]byte{buf}
	n, err := w.dev.Read(bufs, w.sizes, 0)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return w.sizes[0], nil
}

func (w *wgDevice) WritePacket(buf []byte) error {
	_, err := w.dev.Write([][]byte{buf}, 0)
	return err
}

func (w *wgDevice) Close() error {
	return w.dev.Close()
}
