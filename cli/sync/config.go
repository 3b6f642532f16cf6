package sync

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/cidmesh/cidmesh/admin"
	"github.com/cidmesh/cidmesh/gossip"
	"github.com/cidmesh/cidmesh/pkg/log"
	"github.com/cidmesh/cidmesh/sync"
)

type Config struct {
	Sync sync.Config `json:"sync" yaml:"sync"`

	Gossip gossip.Config `json:"gossip" yaml:"gossip"`

	Admin admin.Config `json:"admin" yaml:"admin"`

	Log log.Config `json:"log" yaml:"log"`

	// GracefulShutdownTimeout is the timeout in seconds to gracefully
	// shut down the node after receiving a shutdown signal.
	GracefulShutdownTimeout int `json:"grace_period" yaml:"grace_period"`
}

func (c *Config) Default() {
	c.Sync.Default()
	c.Gossip.Default()
	c.Admin.Default()
	c.Log.Default()
	c.GracefulShutdownTimeout = 30
}

func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.GracefulShutdownTimeout == 0 {
		return fmt.Errorf("missing grace period")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Sync.RegisterFlags(fs)
	c.Gossip.RegisterFlags(fs)
	c.Admin.RegisterFlags(fs)
	c.Log.RegisterFlags(fs)
	fs.IntVar(
		&c.GracefulShutdownTimeout,
		"grace-period",
		c.GracefulShutdownTimeout,
		`
Maximum number of seconds to gracefully shut down after receiving a
shutdown signal.`,
	)
}
