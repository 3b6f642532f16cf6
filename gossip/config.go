package gossip

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/spf13/pflag"
)

type Config struct {
	// ListenAddrs are the multiaddrs to listen on for mesh traffic.
	ListenAddrs []string `json:"listen_addrs" yaml:"listen_addrs"`

	// KeyFile is the path of the node's persistent Ed25519 identity
	// key, generated on first run.
	KeyFile string `json:"key_file" yaml:"key_file"`

	// Bootstrap are multiaddrs of known peers to connect to on
	// startup.
	Bootstrap []string `json:"bootstrap" yaml:"bootstrap"`

	// MDNS enables LAN peer discovery.
	MDNS bool `json:"mdns" yaml:"mdns"`
}

func (c *Config) Default() {
	c.ListenAddrs = []string{"/ip4/0.0.0.0/tcp/7810"}
	c.KeyFile = "cidmesh.key"
	c.MDNS = true
}

func (c *Config) Validate() error {
	if len(c.ListenAddrs) == 0 {
		return fmt.Errorf("missing listen addrs")
	}
	for _, addr := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid listen addr: %s: %w", addr, err)
		}
	}
	if c.KeyFile == "" {
		return fmt.Errorf("missing key file")
	}
	for _, addr := range c.Bootstrap {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid bootstrap addr: %s: %w", addr, err)
		}
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(
		&c.ListenAddrs,
		"gossip.listen-addrs",
		c.ListenAddrs,
		`
Multiaddrs to listen on for mesh traffic.

Such as '--gossip.listen-addrs /ip4/0.0.0.0/tcp/7810'.`,
	)
	fs.StringVar(
		&c.KeyFile,
		"gossip.key-file",
		c.KeyFile,
		`
Path of the node's persistent identity key.

A new Ed25519 key is generated on first run.`,
	)
	fs.StringSliceVar(
		&c.Bootstrap,
		"gossip.bootstrap",
		c.Bootstrap,
		`
Multiaddrs of known peers to connect to on startup.

Each address must include the peer ID, such as
'/ip4/10.26.104.14/tcp/7810/p2p/12D3Koo...'.`,
	)
	fs.BoolVar(
		&c.MDNS,
		"gossip.mdns",
		c.MDNS,
		`
Whether to discover peers on the local network via mDNS.`,
	)
}
