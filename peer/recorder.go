package peer

// Recorder receives counters from a peer's reader and writer halves.
// It is optional: a Handler with a nil Recorder simply does not
// record anything. metrics.Registry (adapted per-peer) is the
// concrete implementation wired in by the supervisor; tests and
// callers that don't care about metrics never need to know the
// interface exists.
type Recorder interface {
	FrameReceived(n int)
	FrameSent(n int)
	PacketFiltered()
	Lagged(n int)
}
