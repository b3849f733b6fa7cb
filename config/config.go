// Package config loads ip2char.toml, the fixed-path configuration
// file described in the top-level design document. It is a direct
// Go-struct mirror of original_source/src/config.rs's serde model,
// parsed with github.com/BurntSushi/toml instead of serde+toml.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/adryzz/ip2char/codec"
	"github.com/adryzz/ip2char/wire"
)

// DefaultPath is the fixed config file path, relative to the working
// directory, that main looks for on startup.
const DefaultPath = "ip2char.toml"

// DefaultBufferSize is used for both the fan-out bus and the
// aggregation queue when [interface].buffer is unset.
const DefaultBufferSize = 512

// DefaultBaud is used for a [[peer-char]] entry when speed is unset.
const DefaultBaud = 115200

// Config is the parsed contents of ip2char.toml.
type Config struct {
	Interface      InterfaceSection    `toml:"interface"`
	CharPeers      []CharPeerSection   `toml:"peer-char"`
	SockPeers      []SockPeerSection   `toml:"peer-sock"`
	SockListenPeer []SockListenSection `toml:"peer-sock-listen"`
}

// InterfaceSection is the TUN/bus configuration under [interface].
type InterfaceSection struct {
	Address     string `toml:"address"` // IPv4 CIDR, required
	Name        string `toml:"name"`    // required
	IPFiltering *bool  `toml:"ip-filtering"`
	Buffer      *uint  `toml:"buffer"`
	PostUp      string `toml:"post-up"`
	PostDown    string `toml:"post-down"`
	MetricsAddr string `toml:"metrics-addr"` // additive, optional
}

// BufferSize returns the configured channel capacity, or
// DefaultBufferSize if unset.
func (s InterfaceSection) BufferSize() int {
	if s.Buffer == nil {
		return DefaultBufferSize
	}
	return int(*s.Buffer)
}

// CharPeerSection is one [[peer-char]] table entry: a serial device.
type CharPeerSection struct {
	Path        string   `toml:"path"`
	AllowedIPs  []string `toml:"allowedips"`
	Speed       *uint32  `toml:"speed"`
	Compression string   `toml:"compression"`
	Encryption  string   `toml:"encryption"`
}

// SockPeerSection is one [[peer-sock]] table entry: an outbound TCP
// connection.
type SockPeerSection struct {
	Path        string   `toml:"path"`
	AllowedIPs  []string `toml:"allowedips"`
	Compression string   `toml:"compression"`
	Encryption  string   `toml:"encryption"`
}

// SockListenSection is one [[peer-sock-listen]] table entry: a
// listening TCP socket that accepts exactly one connection.
type SockListenSection struct {
	Path        string   `toml:"path"`
	AllowedIPs  []string `toml:"allowedips"`
	Compression string   `toml:"compression"`
	Encryption  string   `toml:"encryption"`
}

// Kind identifies a Peer's transport variant.
type Kind int

const (
	KindChar Kind = iota
	KindSock
	KindSockListen
)

func (k Kind) String() string {
	switch k {
	case KindChar:
		return "char"
	case KindSock:
		return "sock"
	case KindSockListen:
		return "sock-listen"
	default:
		return "unknown"
	}
}

// Peer is the tagged union over the three transport variants from the
// design document's data model: every variant exposes its
// human-readable identifier, its allowed-prefix list, and its
// preferred compression mode.
type Peer struct {
	Kind        Kind
	Path        string
	AllowedIPs  []netip.Prefix
	Compression byte
	Level       codec.Level
	Speed       uint32 // only meaningful for KindChar
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Interface.Address == "" {
		return fmt.Errorf("[interface].address is required")
	}
	if _, err := netip.ParsePrefix(c.Interface.Address); err != nil {
		return fmt.Errorf("[interface].address: %w", err)
	}
	if c.Interface.Name == "" {
		return fmt.Errorf("[interface].name is required")
	}
	return nil
}

// Peers flattens the three peer-section lists into the tagged-union
// Peer type, the Go equivalent of original_source's
// Config::get_all_peers.
func (c *Config) Peers() ([]Peer, error) {
	var out []Peer
	for _, s := range c.CharPeers {
		prefixes, err := parsePrefixes(s.AllowedIPs)
		if err != nil {
			return nil, fmt.Errorf("peer-char %q: %w", s.Path, err)
		}
		tag, level, err := parseCompression(s.Compression)
		if err != nil {
			return nil, fmt.Errorf("peer-char %q: %w", s.Path, err)
		}
		if err := parseEncryption(s.Encryption); err != nil {
			return nil, fmt.Errorf("peer-char %q: %w", s.Path, err)
		}
		speed := uint32(DefaultBaud)
		if s.Speed != nil {
			speed = *s.Speed
		}
		out = append(out, Peer{Kind: KindChar, Path: s.Path, AllowedIPs: prefixes, Compression: tag, Level: level, Speed: speed})
	}
	for _, s := range c.SockPeers {
		prefixes, err := parsePrefixes(s.AllowedIPs)
		if err != nil {
			return nil, fmt.Errorf("peer-sock %q: %w", s.Path, err)
		}
		tag, level, err := parseCompression(s.Compression)
		if err != nil {
			return nil, fmt.Errorf("peer-sock %q: %w", s.Path, err)
		}
		if err := parseEncryption(s.Encryption); err != nil {
			return nil, fmt.Errorf("peer-sock %q: %w", s.Path, err)
		}
		out = append(out, Peer{Kind: KindSock, Path: s.Path, AllowedIPs: prefixes, Compression: tag, Level: level})
	}
	for _, s := range c.SockListenPeer {
		prefixes, err := parsePrefixes(s.AllowedIPs)
		if err != nil {
			return nil, fmt.Errorf("peer-sock-listen %q: %w", s.Path, err)
		}
		tag, level, err := parseCompression(s.Compression)
		if err != nil {
			return nil, fmt.Errorf("peer-sock-listen %q: %w", s.Path, err)
		}
		if err := parseEncryption(s.Encryption); err != nil {
			return nil, fmt.Errorf("peer-sock-listen %q: %w", s.Path, err)
		}
		out = append(out, Peer{Kind: KindSockListen, Path: s.Path, AllowedIPs: prefixes, Compression: tag, Level: level})
	}
	return out, nil
}

func parsePrefixes(ss []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(ss))
	for _, s := range ss {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("allowedips %q: %w", s, err)
		}
		if !p.Addr().Is4() {
			return nil, fmt.Errorf("allowedips %q: only IPv4 prefixes are supported", s)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseCompression(s string) (byte, codec.Level, error) {
	switch s {
	case "", "none":
		return wire.CompressionNone, codec.LevelDefault, nil
	case "zstd":
		return wire.CompressionZstd, codec.LevelDefault, nil
	case "zstd-fast":
		return wire.CompressionZstd, codec.LevelFast, nil
	case "zstd-slow":
		return wire.CompressionZstd, codec.LevelBest, nil
	case "gzip":
		return wire.CompressionGzip, codec.LevelDefault, nil
	default:
		return 0, 0, fmt.Errorf("unknown compression mode %q", s)
	}
}

func parseEncryption(s string) error {
	switch s {
	case "", "none":
		return nil
	default:
		return fmt.Errorf("unknown encryption mode %q (only \"none\" is implemented)", s)
	}
}
