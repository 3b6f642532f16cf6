package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var conf Config
		conf.Default()
		conf.Channels = []string{"docs"}
		assert.NoError(t, conf.Validate())
	})

	t.Run("missing channels", func(t *testing.T) {
		var conf Config
		conf.Default()
		assert.Error(t, conf.Validate())
	})

	t.Run("empty channel name", func(t *testing.T) {
		var conf Config
		conf.Default()
		conf.Channels = []string{"docs", ""}
		assert.Error(t, conf.Validate())
	})
}

func TestTimersConfig_Validate(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var conf TimersConfig
		conf.Default()
		require.NoError(t, conf.Validate())
	})

	t.Run("missing min", func(t *testing.T) {
		var conf TimersConfig
		conf.Default()
		conf.QuietMin = 0
		assert.Error(t, conf.Validate())
	})

	t.Run("max below min", func(t *testing.T) {
		var conf TimersConfig
		conf.Default()
		conf.SynBackoffMax = conf.SynBackoffMin - time.Millisecond
		assert.Error(t, conf.Validate())
	})
}
