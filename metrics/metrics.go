// Package metrics exposes per-peer frame and byte counters over
// Prometheus's text exposition format, bound to the optional
// [interface].metrics-addr config key. When that key is unset,
// nothing in this package is ever constructed or served — the design
// document treats metrics as additive instrumentation, never a
// required dependency of the relay loop. Grounded on the pack's use
// of promhttp.Handler() mounted on a plain http.ServeMux (see
// other_examples' controller-server.go.go), generalized from one
// fixed endpoint to one registry per process with per-peer labels.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the counters every peer's reader and writer update.
// The zero value is not usable; construct with New.
type Registry struct {
	reg *prometheus.Registry

	framesIn    *prometheus.CounterVec
	bytesIn     *prometheus.CounterVec
	framesOut   *prometheus.CounterVec
	bytesOut    *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	laggedTotal *prometheus.CounterVec
}

// New builds a Registry with all counters pre-registered. Every
// metric carries a "peer" label whose value is passed on each update,
// typically the same human-readable peer identifier relay uses in log
// lines.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip2char",
			Name:      "frames_received_total",
			Help:      "Frames successfully decoded from a peer transport.",
		}, []string{"peer"}),
		bytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip2char",
			Name:      "bytes_received_total",
			Help:      "Decompressed payload bytes received from a peer transport.",
		}, []string{"peer"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip2char",
			Name:      "frames_sent_total",
			Help:      "Frames written to a peer transport.",
		}, []string{"peer"}),
		bytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip2char",
			Name:      "bytes_sent_total",
			Help:      "Compressed payload bytes written to a peer transport.",
		}, []string{"peer"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip2char",
			Name:      "packets_filtered_total",
			Help:      "Packets dropped by a peer's allowed-ips filter.",
		}, []string{"peer"}),
		laggedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ip2char",
			Name:      "bus_lagged_total",
			Help:      "Packets a peer's bus subscription dropped due to lag.",
		}, []string{"peer"}),
	}
	reg.MustRegister(r.framesIn, r.bytesIn, r.framesOut, r.bytesOut, r.dropped, r.laggedTotal)
	return r
}

// FrameReceived records one decoded frame of n payload bytes for peer.
func (r *Registry) FrameReceived(peer string, n int) {
	r.framesIn.WithLabelValues(peer).Inc()
	r.bytesIn.WithLabelValues(peer).Add(float64(n))
}

// FrameSent records one written frame of n payload bytes for peer.
func (r *Registry) FrameSent(peer string, n int) {
	r.framesOut.WithLabelValues(peer).Inc()
	r.bytesOut.WithLabelValues(peer).Add(float64(n))
}

// PacketFiltered records one packet dropped by peer's allowed-ips
// filter.
func (r *Registry) PacketFiltered(peer string) {
	r.dropped.WithLabelValues(peer).Inc()
}

// Lagged records n packets dropped from peer's bus subscription.
func (r *Registry) Lagged(peer string, n int) {
	r.laggedTotal.WithLabelValues(peer).Add(float64(n))
}

// Serve starts an HTTP server exposing the registry at /metrics on
// addr and blocks until ctx is canceled, at which point it shuts the
// server down. Callers only invoke Serve when metrics-addr was set in
// the config; it is never started implicitly.
func Serve(ctx context.Context, addr string, r *Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: serve %s: %w", addr, err)
		}
		return nil
	}
}
