// Command ip2char is the relay daemon: it loads ip2char.toml, brings
// up the TUN interface, and shuttles IPv4 packets between it and every
// configured peer transport until interrupted. Logging is wired to
// zerolog's global logger (github.com/rs/zerolog/log), the same
// pattern mirage-client/mirageD.go uses, adapted behind the
// internal/logf seam so nothing below main knows which logging
// library is in use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/adryzz/ip2char/bus"
	"github.com/adryzz/ip2char/config"
	"github.com/adryzz/ip2char/internal/logf"
	"github.com/adryzz/ip2char/lifecycle"
	"github.com/adryzz/ip2char/metrics"
	"github.com/adryzz/ip2char/relay"
	"github.com/adryzz/ip2char/tunio"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "path to ip2char.toml")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	baseLogf := logf.RateLimited(zerologLogf, 5*time.Second, 100)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("loading config")
		return 1
	}
	peers, err := cfg.Peers()
	if err != nil {
		log.Error().Err(err).Msg("parsing peers")
		return 1
	}
	if len(peers) == 0 {
		baseLogf("zero peers listed in configuration file")
	}

	ctx, _, stop := lifecycle.Run(context.Background(), cfg.Interface.PostUp, cfg.Interface.PostDown, baseLogf)
	defer stop()

	dev, err := tunio.New(cfg.Interface.Name)
	if err != nil {
		log.Error().Err(err).Msg("creating tun device")
		return 1
	}
	defer dev.Close()

	b := bus.New(cfg.Interface.BufferSize())
	aggregation := make(chan []byte, cfg.Interface.BufferSize())

	var reg *metrics.Registry
	if cfg.Interface.MetricsAddr != "" {
		reg = metrics.New()
		go func() {
			if err := metrics.Serve(ctx, cfg.Interface.MetricsAddr, reg); err != nil {
				baseLogf("metrics server: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- relay.Run(ctx, dev, b, aggregation, logf.WithPrefix(baseLogf, "relay: ")) }()
	go relay.RunPeers(ctx, peers, b, aggregation, reg, baseLogf)

	err = <-errCh
	stop()
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("relay loop failed")
		return 1
	}
	return 0
}

func zerologLogf(format string, args ...any) {
	log.Info().Msg(fmt.Sprintf(format, args...))
}
