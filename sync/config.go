package sync

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type TimersConfig struct {
	// QuietMin and QuietMax bound the random quiet period between
	// keepalive announcements on a channel.
	QuietMin time.Duration `json:"quiet_min" yaml:"quiet_min"`
	QuietMax time.Duration `json:"quiet_max" yaml:"quiet_max"`

	// SynBackoffMin and SynBackoffMax bound the random delay before
	// publishing a reconciliation request, so diverged nodes don't all
	// request at once.
	SynBackoffMin time.Duration `json:"syn_backoff_min" yaml:"syn_backoff_min"`
	SynBackoffMax time.Duration `json:"syn_backoff_max" yaml:"syn_backoff_max"`

	// ResponderJitterMin and ResponderJitterMax bound the random delay
	// before answering a reconciliation request.
	ResponderJitterMin time.Duration `json:"responder_jitter_min" yaml:"responder_jitter_min"`
	ResponderJitterMax time.Duration `json:"responder_jitter_max" yaml:"responder_jitter_max"`
}

func (c *TimersConfig) Default() {
	c.QuietMin = time.Second * 20
	c.QuietMax = time.Second * 60
	c.SynBackoffMin = time.Millisecond * 200
	c.SynBackoffMax = time.Millisecond * 800
	c.ResponderJitterMin = time.Millisecond * 50
	c.ResponderJitterMax = time.Millisecond * 250
}

func (c *TimersConfig) Validate() error {
	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"quiet", c.QuietMin, c.QuietMax},
		{"syn backoff", c.SynBackoffMin, c.SynBackoffMax},
		{"responder jitter", c.ResponderJitterMin, c.ResponderJitterMax},
	}
	for _, r := range ranges {
		if r.min <= 0 {
			return fmt.Errorf("missing %s min", r.name)
		}
		if r.max < r.min {
			return fmt.Errorf("%s max below min", r.name)
		}
	}
	return nil
}

func (c *TimersConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.DurationVar(
		&c.QuietMin,
		"sync.timers.quiet-min",
		c.QuietMin,
		`
Minimum quiet period between keepalive announcements on a channel.`,
	)
	fs.DurationVar(
		&c.QuietMax,
		"sync.timers.quiet-max",
		c.QuietMax,
		`
Maximum quiet period between keepalive announcements on a channel.`,
	)
	fs.DurationVar(
		&c.SynBackoffMin,
		"sync.timers.syn-backoff-min",
		c.SynBackoffMin,
		`
Minimum delay before publishing a reconciliation request after detecting
a diverged peer.`,
	)
	fs.DurationVar(
		&c.SynBackoffMax,
		"sync.timers.syn-backoff-max",
		c.SynBackoffMax,
		`
Maximum delay before publishing a reconciliation request after detecting
a diverged peer.`,
	)
	fs.DurationVar(
		&c.ResponderJitterMin,
		"sync.timers.responder-jitter-min",
		c.ResponderJitterMin,
		`
Minimum delay before answering a reconciliation request.`,
	)
	fs.DurationVar(
		&c.ResponderJitterMax,
		"sync.timers.responder-jitter-max",
		c.ResponderJitterMax,
		`
Maximum delay before answering a reconciliation request.`,
	)
}

type Config struct {
	// Channels are the sync channels to open on startup.
	Channels []string `json:"channels" yaml:"channels"`

	Timers TimersConfig `json:"timers" yaml:"timers"`
}

func (c *Config) Default() {
	c.Timers.Default()
}

func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("missing channels")
	}
	for _, channel := range c.Channels {
		if channel == "" {
			return fmt.Errorf("empty channel name")
		}
	}
	return c.Timers.Validate()
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(
		&c.Channels,
		"sync.channels",
		c.Channels,
		`
Sync channels to open on startup.

Each channel converges on its own document set. Such as
'--sync.channels docs,media'.`,
	)
	c.Timers.RegisterFlags(fs)
}
