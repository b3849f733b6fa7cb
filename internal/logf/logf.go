// Package logf defines the narrow logging seam threaded through the
// packages below main, so that wire, codec, filter, peer, bus, relay,
// and transport never import a concrete logging library directly.
//
// This mirrors tailscale.com/types/logger's Logf function type: any
// logging backend can be adapted to it with a one-line closure. main
// wires it to zerolog.
package logf

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Logf is a printf-shaped logging function, the same seam tailscale's
// types/logger package threads through wgengine and tstun.
type Logf func(format string, args ...any)

// Discard throws away everything logged through it.
func Discard(string, ...any) {}

// WithPrefix returns a Logf that prepends prefix to every message.
func WithPrefix(logf Logf, prefix string) Logf {
	return func(format string, args ...any) {
		logf(prefix+format, args...)
	}
}

// RateLimited returns a Logf that allows burst messages immediately
// and refills at one token per (window/burst) thereafter, dropping
// (silently counting) whatever doesn't get a token. Modeled on
// mirage-client's logger.RateLimitedFn(logf, 5*time.Second, 5, 100)
// call, backed by golang.org/x/time/rate instead of a hand-rolled
// bucket — the same library the teacher's own control-plane client
// depends on for its outbound request limiting.
func RateLimited(logf Logf, window time.Duration, burst int) Logf {
	lim := rate.NewLimiter(rate.Every(window/time.Duration(burst)), burst)
	var dropped int64
	return func(format string, args ...any) {
		if !lim.Allow() {
			atomic.AddInt64(&dropped, 1)
			return
		}
		if n := atomic.SwapInt64(&dropped, 0); n > 0 {
			logf("(rate limiting dropped %d log lines)", n)
		}
		logf(format, args...)
	}
}

