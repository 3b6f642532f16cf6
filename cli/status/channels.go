package status

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/cidmesh/cidmesh/status/client"
	"github.com/cidmesh/cidmesh/sync"
)

func newChannelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "inspect open sync channels",
		Long: `Inspect open sync channels.

Queries the node for each open channel's root digest, document count
and parity state.

Examples:
  cidmesh status channels
`,
	}

	var serverURL string
	cmd.Flags().StringVar(
		&serverURL,
		"server.url",
		"http://localhost:7811",
		`
Node admin server URL.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		u, err := url.Parse(serverURL)
		if err != nil {
			fmt.Printf("invalid server url: %s\n", err.Error())
			os.Exit(1)
		}

		showChannels(u)
	}

	return cmd
}

type channelsOutput struct {
	Channels []sync.ChannelStatus `json:"channels"`
}

func showChannels(url *url.URL) {
	c := client.NewClient(url)
	defer c.Close()

	channels, err := c.SyncChannels()
	if err != nil {
		fmt.Printf("failed to get channels: %s\n", err.Error())
		os.Exit(1)
	}

	out := channelsOutput{
		Channels: channels,
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		fmt.Printf("failed to encode output: %s\n", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(b))
}
